package memory

import (
	"encoding/json"
	"time"
)

// Tier identifies one of the four memory scopes.
type Tier string

const (
	// TierEphemeral is session-local and agent-private, cleared at teardown.
	TierEphemeral Tier = "ephemeral"
	// TierWorking is task-local and agent-private, cleared per task or at teardown.
	TierWorking Tier = "working"
	// TierShared is session-wide and visible to all agents, last writer wins.
	TierShared Tier = "shared"
	// TierLongTerm outlives the session, keyed by (agentID, key).
	TierLongTerm Tier = "long_term"
)

// Entry is a stored memory value with access metadata. Values are kept
// in their JSON encoding so long-term entries stay portable on disk.
type Entry struct {
	Key         string          `json:"key"`
	Value       json.RawMessage `json:"value"`
	Tier        Tier            `json:"tier"`
	AgentID     string          `json:"agent_id"`
	SessionID   string          `json:"session_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	AccessedAt  time.Time       `json:"accessed_at"`
	AccessCount int             `json:"access_count"`
	Tags        []string        `json:"tags,omitempty"`
}

// CampaignTemplate is an immutable snapshot of a high-quality past run,
// retrievable by similarity for reuse as a starting point.
type CampaignTemplate struct {
	TemplateID   string          `json:"template_id"`
	Label        string          `json:"label"`
	Category     string          `json:"category"`
	QualityScore float64         `json:"quality_score"`
	CreatedAt    time.Time       `json:"created_at"`
	SessionID    string          `json:"session_id"`
	Audience     string          `json:"audience"`
	Keywords     []string        `json:"keywords"`
	Structure    json.RawMessage `json:"structure,omitempty"`
	Metrics      json.RawMessage `json:"metrics,omitempty"`
	Tags         []string        `json:"tags,omitempty"`
}

// TemplateMatch pairs a template with its similarity score.
type TemplateMatch struct {
	Template   *CampaignTemplate `json:"template"`
	Similarity float64           `json:"similarity"` // 0.0 - 1.0
}

// TemplateQuery describes a similarity search over past campaigns.
type TemplateQuery struct {
	Category   string
	Keywords   []string
	Audience   string
	MinQuality float64
	Limit      int
}

// ProductInfo is the descriptor used to ask for learning suggestions.
type ProductInfo struct {
	Category string
	Keywords []string
	Audience string
}

// Suggestion is a reuse hint derived from the best matching template.
type Suggestion struct {
	TemplateID   string          `json:"template_id"`
	Similarity   float64         `json:"similarity"`
	Label        string          `json:"label"`
	QualityScore float64         `json:"quality_score"`
	CreatedAt    time.Time       `json:"created_at"`
	Keywords     []string        `json:"keywords"`
	Structure    json.RawMessage `json:"structure,omitempty"`
}

// Stats reports per-tier entry counts and cache usage.
type Stats struct {
	SessionID        string `json:"session_id"`
	EphemeralEntries int    `json:"ephemeral_entries"`
	WorkingEntries   int    `json:"working_entries"`
	SharedEntries    int    `json:"shared_entries"`
	LongTermEntries  int    `json:"longterm_entries"`
	Templates        int    `json:"campaign_templates"`
	CacheSize        int    `json:"cache_size"`
}
