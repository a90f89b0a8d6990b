package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ferrun/loom/internal/kvstore"
	"go.uber.org/zap"
)

// Manager exposes the four memory tiers for one session. Ephemeral,
// working and shared tiers live in process; the long-term tier writes
// through to a durable key/value store shared across sessions.
//
// Store and Retrieve never return errors: an I/O failure degrades to
// ok=false / absent so a missing memory hit can never abort a workflow.
type Manager struct {
	sessionID     string
	sessionMemDir string
	approval      float64

	ephMu     sync.RWMutex
	ephemeral map[string]map[string]*Entry // agentID -> key -> entry

	workMu  sync.RWMutex
	working map[string]map[string]*Entry

	sharedMu sync.RWMutex
	shared   map[string]*Entry

	cache    *Cache
	longterm *kvstore.Store

	tplMu        sync.Mutex
	templates    map[string]*CampaignTemplate
	templatesDir string

	logger *zap.Logger
}

// NewManager creates a memory manager scoped to the given session
// namespace. Long-term memory and campaign templates live under
// storageRoot, outside any single session's directory.
func NewManager(sessionID, sessionDir, storageRoot string, cacheSize int, approvalThreshold float64, logger *zap.Logger) (*Manager, error) {
	sessionMemDir := filepath.Join(sessionDir, "memory")
	if err := os.MkdirAll(sessionMemDir, 0o755); err != nil {
		return nil, fmt.Errorf("create session memory dir: %w", err)
	}

	longterm, err := kvstore.Open(filepath.Join(storageRoot, "memory", "longterm"), "memory_index.json", logger)
	if err != nil {
		return nil, fmt.Errorf("open longterm store: %w", err)
	}

	if approvalThreshold <= 0 {
		approvalThreshold = 85.0
	}

	m := &Manager{
		sessionID:     sessionID,
		sessionMemDir: sessionMemDir,
		approval:      approvalThreshold,
		ephemeral:     make(map[string]map[string]*Entry),
		working:       make(map[string]map[string]*Entry),
		shared:        make(map[string]*Entry),
		cache:         NewCache(cacheSize),
		longterm:      longterm,
		templatesDir:  filepath.Join(storageRoot, "memory", "templates"),
		logger:        logger,
	}
	if err := m.loadTemplates(); err != nil {
		return nil, err
	}
	return m, nil
}

// cacheKey scopes cached values per agent for private tiers. Shared
// entries use one key for all agents so a later write by another agent
// is never shadowed by a stale per-agent cache line.
func cacheKey(agentID string, tier Tier, key string) string {
	if tier == TierShared {
		return "shared:" + key
	}
	return agentID + ":" + string(tier) + ":" + key
}

// Store writes value into the given tier for agentID. Returns false on
// serialization or storage failure.
func (m *Manager) Store(agentID, key string, value interface{}, tier Tier, tags []string) bool {
	raw, err := json.Marshal(value)
	if err != nil {
		m.logger.Warn("memory store: value not serializable",
			zap.String("agent", agentID), zap.String("key", key), zap.Error(err))
		return false
	}

	now := time.Now()
	entry := &Entry{
		Key:        key,
		Value:      raw,
		Tier:       tier,
		AgentID:    agentID,
		SessionID:  m.sessionID,
		CreatedAt:  now,
		AccessedAt: now,
		Tags:       tags,
	}

	switch tier {
	case TierEphemeral:
		m.ephMu.Lock()
		if m.ephemeral[agentID] == nil {
			m.ephemeral[agentID] = make(map[string]*Entry)
		}
		m.ephemeral[agentID][key] = entry
		m.ephMu.Unlock()

		// Journaled for post-mortem inspection; never read back.
		if err := m.journalEntry(agentID, key, entry); err != nil {
			m.logger.Warn("memory store: journal write failed",
				zap.String("agent", agentID), zap.String("key", key), zap.Error(err))
			return false
		}

	case TierWorking:
		m.workMu.Lock()
		if m.working[agentID] == nil {
			m.working[agentID] = make(map[string]*Entry)
		}
		m.working[agentID][key] = entry
		m.workMu.Unlock()

	case TierShared:
		m.sharedMu.Lock()
		m.shared[key] = entry
		m.sharedMu.Unlock()

	case TierLongTerm:
		// Durable write happens outside any tier-map lock.
		if err := m.longterm.Put(agentID+":"+key, entry); err != nil {
			m.logger.Warn("memory store: longterm write failed",
				zap.String("agent", agentID), zap.String("key", key), zap.Error(err))
			return false
		}

	default:
		m.logger.Warn("memory store: unknown tier",
			zap.String("tier", string(tier)), zap.String("key", key))
		return false
	}

	m.cache.Put(cacheKey(agentID, tier, key), raw)
	return true
}

// Retrieve reads a value from the given tier, checking the cache first
// and back-filling it on a hit. Returns absent on any failure.
func (m *Manager) Retrieve(agentID, key string, tier Tier) (json.RawMessage, bool) {
	ck := cacheKey(agentID, tier, key)
	if v, ok := m.cache.Get(ck); ok {
		return v, true
	}

	var entry *Entry
	switch tier {
	case TierEphemeral:
		m.ephMu.Lock()
		if agentMem, ok := m.ephemeral[agentID]; ok {
			entry = agentMem[key]
		}
		if entry != nil {
			entry.AccessedAt = time.Now()
			entry.AccessCount++
		}
		m.ephMu.Unlock()

	case TierWorking:
		m.workMu.Lock()
		if agentMem, ok := m.working[agentID]; ok {
			entry = agentMem[key]
		}
		if entry != nil {
			entry.AccessedAt = time.Now()
			entry.AccessCount++
		}
		m.workMu.Unlock()

	case TierShared:
		m.sharedMu.Lock()
		entry = m.shared[key]
		if entry != nil {
			entry.AccessedAt = time.Now()
			entry.AccessCount++
		}
		m.sharedMu.Unlock()

	case TierLongTerm:
		var stored Entry
		ok, err := m.longterm.Get(agentID+":"+key, &stored)
		if err != nil {
			m.logger.Warn("memory retrieve: longterm read failed",
				zap.String("agent", agentID), zap.String("key", key), zap.Error(err))
			return nil, false
		}
		if ok {
			stored.AccessedAt = time.Now()
			stored.AccessCount++
			entry = &stored
		}
	}

	if entry == nil {
		return nil, false
	}

	m.cache.Put(ck, entry.Value)
	return entry.Value, true
}

// RetrieveInto retrieves and unmarshals a value in one call.
func (m *Manager) RetrieveInto(agentID, key string, tier Tier, out interface{}) bool {
	raw, ok := m.Retrieve(agentID, key, tier)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		m.logger.Warn("memory retrieve: unmarshal failed",
			zap.String("agent", agentID), zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// ShareToAgent copies an ephemeral entry from one agent to another.
func (m *Manager) ShareToAgent(fromAgent, toAgent, key string) bool {
	raw, ok := m.Retrieve(fromAgent, key, TierEphemeral)
	if !ok {
		return false
	}
	return m.Store(toAgent, key, json.RawMessage(raw), TierEphemeral, nil)
}

// ShareToAll publishes a value to the session-wide shared tier.
func (m *Manager) ShareToAll(fromAgent, key string, value interface{}) bool {
	return m.Store(fromAgent, key, value, TierShared, nil)
}

// ClearSessionMemory drops ephemeral and working entries and clears the
// cache. Called once at session teardown; long-term memory and campaign
// templates are unaffected.
func (m *Manager) ClearSessionMemory() {
	m.ephMu.Lock()
	m.ephemeral = make(map[string]map[string]*Entry)
	m.ephMu.Unlock()

	m.workMu.Lock()
	m.working = make(map[string]map[string]*Entry)
	m.workMu.Unlock()

	m.cache.Clear()
}

// ClearWorkingMemory drops one agent's working tier at a task boundary,
// including any cached lines for those keys.
func (m *Manager) ClearWorkingMemory(agentID string) {
	m.workMu.Lock()
	for k := range m.working[agentID] {
		m.cache.Remove(cacheKey(agentID, TierWorking, k))
	}
	delete(m.working, agentID)
	m.workMu.Unlock()
}

// AgentContext returns all memory visible to one agent, keyed by tier.
func (m *Manager) AgentContext(agentID string) map[Tier]map[string]json.RawMessage {
	ctx := map[Tier]map[string]json.RawMessage{
		TierEphemeral: {},
		TierWorking:   {},
		TierShared:    {},
		TierLongTerm:  {},
	}

	m.ephMu.RLock()
	for k, e := range m.ephemeral[agentID] {
		ctx[TierEphemeral][k] = e.Value
	}
	m.ephMu.RUnlock()

	m.workMu.RLock()
	for k, e := range m.working[agentID] {
		ctx[TierWorking][k] = e.Value
	}
	m.workMu.RUnlock()

	m.sharedMu.RLock()
	for k, e := range m.shared {
		ctx[TierShared][k] = e.Value
	}
	m.sharedMu.RUnlock()

	prefix := agentID + ":"
	for _, lk := range m.longterm.Keys(prefix) {
		var stored Entry
		if ok, err := m.longterm.Get(lk, &stored); err == nil && ok {
			ctx[TierLongTerm][lk[len(prefix):]] = stored.Value
		}
	}
	return ctx
}

// Stats reports entry counts per tier and current cache size.
func (m *Manager) Stats() Stats {
	st := Stats{SessionID: m.sessionID}

	m.ephMu.RLock()
	for _, agentMem := range m.ephemeral {
		st.EphemeralEntries += len(agentMem)
	}
	m.ephMu.RUnlock()

	m.workMu.RLock()
	for _, agentMem := range m.working {
		st.WorkingEntries += len(agentMem)
	}
	m.workMu.RUnlock()

	m.sharedMu.RLock()
	st.SharedEntries = len(m.shared)
	m.sharedMu.RUnlock()

	st.LongTermEntries = m.longterm.Len()

	m.tplMu.Lock()
	st.Templates = len(m.templates)
	m.tplMu.Unlock()

	st.CacheSize = m.cache.Len()
	return st
}

func (m *Manager) journalEntry(agentID, key string, entry *Entry) error {
	dir := filepath.Join(m.sessionMemDir, agentID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, key+".json"), data, 0o644)
}
