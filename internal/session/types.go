package session

import "time"

// Status is the lifecycle state of a session.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusArchived  Status = "archived"
)

// Metadata mirrors the session_manifest.json record.
type Metadata struct {
	SessionID       string     `json:"session_id"`
	CreatedAt       time.Time  `json:"created_at"`
	Status          Status     `json:"status"`
	ProductLabel    string     `json:"product_label,omitempty"`
	WorkflowType    string     `json:"workflow_type"`
	DurationSeconds float64    `json:"duration_seconds"`
	AgentCount      int        `json:"agent_count"`
	ErrorCount      int        `json:"error_count"`
	QualityScore    *float64   `json:"quality_score,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	ArchivedAt      *time.Time `json:"archived_at,omitempty"`
}

// Handle identifies a live session and its exclusive storage namespace.
type Handle struct {
	ID  string
	Dir string
}

// Update is a partial session mutation; nil fields are left unchanged.
type Update struct {
	Status       *Status
	Duration     *float64
	AgentCount   *int
	ErrorCount   *int
	QualityScore *float64
}

// RegistryStats aggregates all known sessions.
type RegistryStats struct {
	TotalSessions   int     `json:"total_sessions"`
	Running         int     `json:"running"`
	Completed       int     `json:"completed"`
	Failed          int     `json:"failed"`
	Archived        int     `json:"archived"`
	AvgDuration     float64 `json:"avg_duration"`
	AvgQualityScore float64 `json:"avg_quality_score"`
	TotalErrors     int     `json:"total_errors"`
}
