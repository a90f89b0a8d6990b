package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// checkpoint is a point-in-time snapshot of the in-process tiers.
// Long-term memory is already durable and is not part of a checkpoint.
type checkpoint struct {
	ID        string                       `json:"id"`
	Timestamp time.Time                    `json:"timestamp"`
	SessionID string                       `json:"session_id"`
	Ephemeral map[string]map[string]*Entry `json:"ephemeral"`
	Working   map[string]map[string]*Entry `json:"working"`
	Shared    map[string]*Entry            `json:"shared"`
}

// Checkpoint snapshots the ephemeral, working and shared tiers to the
// session memory directory and returns the checkpoint ID.
func (m *Manager) Checkpoint(name string) (string, error) {
	cp := checkpoint{
		ID:        fmt.Sprintf("%s_%s", name, time.Now().Format("20060102_150405")),
		Timestamp: time.Now(),
		SessionID: m.sessionID,
		Ephemeral: make(map[string]map[string]*Entry),
		Working:   make(map[string]map[string]*Entry),
		Shared:    make(map[string]*Entry),
	}

	m.ephMu.RLock()
	for agentID, agentMem := range m.ephemeral {
		cp.Ephemeral[agentID] = make(map[string]*Entry, len(agentMem))
		for k, e := range agentMem {
			copied := *e
			cp.Ephemeral[agentID][k] = &copied
		}
	}
	m.ephMu.RUnlock()

	m.workMu.RLock()
	for agentID, agentMem := range m.working {
		cp.Working[agentID] = make(map[string]*Entry, len(agentMem))
		for k, e := range agentMem {
			copied := *e
			cp.Working[agentID][k] = &copied
		}
	}
	m.workMu.RUnlock()

	m.sharedMu.RLock()
	for k, e := range m.shared {
		copied := *e
		cp.Shared[k] = &copied
	}
	m.sharedMu.RUnlock()

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal checkpoint: %w", err)
	}
	path := filepath.Join(m.sessionMemDir, "checkpoint_"+cp.ID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write checkpoint: %w", err)
	}
	return cp.ID, nil
}

// RestoreCheckpoint replaces the in-process tiers with a saved snapshot.
func (m *Manager) RestoreCheckpoint(checkpointID string) error {
	path := filepath.Join(m.sessionMemDir, "checkpoint_"+checkpointID+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read checkpoint %s: %w", checkpointID, err)
	}

	var cp checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return fmt.Errorf("parse checkpoint %s: %w", checkpointID, err)
	}

	m.ephMu.Lock()
	m.ephemeral = cp.Ephemeral
	if m.ephemeral == nil {
		m.ephemeral = make(map[string]map[string]*Entry)
	}
	m.ephMu.Unlock()

	m.workMu.Lock()
	m.working = cp.Working
	if m.working == nil {
		m.working = make(map[string]map[string]*Entry)
	}
	m.workMu.Unlock()

	m.sharedMu.Lock()
	m.shared = cp.Shared
	if m.shared == nil {
		m.shared = make(map[string]*Entry)
	}
	m.sharedMu.Unlock()

	// Cached lines may predate the snapshot.
	m.cache.Clear()
	return nil
}
