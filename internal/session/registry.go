package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Registry allocates session identities, materializes their storage
// namespaces, tracks metadata and reclaims storage after the retention
// window. The in-memory index is guarded by a single mutex; namespace
// and archive I/O happen outside the critical section where possible,
// so callers may observe "index updated, archive write still pending"
// as a transient state.
type Registry struct {
	storageRoot   string
	sessionsRoot  string
	archiveRoot   string
	indexPath     string
	retentionDays int

	mu    sync.Mutex
	index map[string]*Metadata

	logger *zap.Logger
}

// NewRegistry loads the session index from storageRoot and optionally
// runs an initial retention sweep.
func NewRegistry(storageRoot string, retentionDays int, autoCleanup bool, logger *zap.Logger) (*Registry, error) {
	sessionsRoot := filepath.Join(storageRoot, "sessions")
	if err := os.MkdirAll(sessionsRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create sessions root: %w", err)
	}

	r := &Registry{
		storageRoot:   storageRoot,
		sessionsRoot:  sessionsRoot,
		archiveRoot:   filepath.Join(storageRoot, "archive"),
		indexPath:     filepath.Join(storageRoot, "session_index.json"),
		retentionDays: retentionDays,
		index:         make(map[string]*Metadata),
		logger:        logger,
	}

	data, err := os.ReadFile(r.indexPath)
	if err == nil {
		if uerr := json.Unmarshal(data, &r.index); uerr != nil {
			logger.Warn("could not parse session index, starting empty", zap.Error(uerr))
			r.index = make(map[string]*Metadata)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read session index: %w", err)
	}

	if autoCleanup {
		r.CleanupOldSessions()
	}
	return r, nil
}

// CreateSession allocates a UUID identity, creates the isolated
// namespace directories and registers the session as running.
func (r *Registry) CreateSession(productLabel, workflowType string) (*Handle, error) {
	id := uuid.New().String()
	dir := filepath.Join(r.sessionsRoot, id)

	// The UUID makes the namespace unique, so directory setup needs no lock.
	for _, sub := range []string{"logs", "memory", "results", "agent_outputs"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create session namespace: %w", err)
		}
	}

	meta := &Metadata{
		SessionID:    id,
		CreatedAt:    time.Now(),
		Status:       StatusRunning,
		ProductLabel: productLabel,
		WorkflowType: workflowType,
	}
	if err := writeManifest(dir, meta); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.index[id] = meta
	if err := r.saveIndexLocked(); err != nil {
		return nil, err
	}

	r.logger.Info("session created",
		zap.String("session", id),
		zap.String("workflow", workflowType))
	return &Handle{ID: id, Dir: dir}, nil
}

// UpdateSession applies a partial metadata update. An unknown session
// ID is silently dropped: a late update racing a retention sweep must
// not crash a long-running workflow. Callers needing strict semantics
// should check GetSessionMetadata first.
func (r *Registry) UpdateSession(id string, u Update) {
	r.mu.Lock()
	defer r.mu.Unlock()

	meta, ok := r.index[id]
	if !ok {
		r.logger.Debug("update for unknown session dropped", zap.String("session", id))
		return
	}

	if u.Status != nil {
		meta.Status = *u.Status
		if *u.Status == StatusCompleted || *u.Status == StatusFailed {
			now := time.Now()
			meta.CompletedAt = &now
		}
	}
	if u.Duration != nil {
		meta.DurationSeconds = *u.Duration
	}
	if u.AgentCount != nil {
		meta.AgentCount = *u.AgentCount
	}
	if u.ErrorCount != nil {
		meta.ErrorCount = *u.ErrorCount
	}
	if u.QualityScore != nil {
		meta.QualityScore = u.QualityScore
	}

	if err := writeManifest(filepath.Join(r.sessionsRoot, id), meta); err != nil {
		r.logger.Warn("manifest write failed", zap.String("session", id), zap.Error(err))
	}
	if err := r.saveIndexLocked(); err != nil {
		r.logger.Warn("index write failed", zap.Error(err))
	}
}

// GetSessionMetadata returns a copy of the session record.
func (r *Registry) GetSessionMetadata(id string) (Metadata, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	meta, ok := r.index[id]
	if !ok {
		return Metadata{}, false
	}
	return *meta, true
}

// SessionDir returns the namespace directory for a session ID.
func (r *Registry) SessionDir(id string) string {
	return filepath.Join(r.sessionsRoot, id)
}

// ListSessions returns sessions newest-first, optionally filtered by
// exact status match and capped at limit.
func (r *Registry) ListSessions(status Status, limit int) []Metadata {
	r.mu.Lock()
	sessions := make([]Metadata, 0, len(r.index))
	for _, meta := range r.index {
		if status != "" && meta.Status != status {
			continue
		}
		sessions = append(sessions, *meta)
	}
	r.mu.Unlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions
}

// CleanupOldSessions archives every completed or failed session older
// than the retention window and returns how many were archived. A
// failing archive step is logged and skipped; that session is left for
// the next sweep. Idempotent: archived sessions are never candidates.
func (r *Registry) CleanupOldSessions() int {
	cutoff := time.Now().AddDate(0, 0, -r.retentionDays)

	r.mu.Lock()
	var candidates []string
	for id, meta := range r.index {
		if (meta.Status == StatusCompleted || meta.Status == StatusFailed) && meta.CreatedAt.Before(cutoff) {
			candidates = append(candidates, id)
		}
	}
	r.mu.Unlock()

	count := 0
	for _, id := range candidates {
		if r.archiveOne(id) {
			count++
		}
	}

	if count > 0 {
		r.mu.Lock()
		if err := r.saveIndexLocked(); err != nil {
			r.logger.Warn("index write failed after sweep", zap.Error(err))
		}
		r.mu.Unlock()
	}
	return count
}

// CleanupSession archives a single session immediately, regardless of age.
func (r *Registry) CleanupSession(id string) bool {
	ok := r.archiveOne(id)
	if ok {
		r.mu.Lock()
		if err := r.saveIndexLocked(); err != nil {
			r.logger.Warn("index write failed", zap.Error(err))
		}
		r.mu.Unlock()
	}
	return ok
}

// archiveOne compresses a session namespace into the archive area,
// removes the live directory, and marks the session archived. The slow
// zip work runs without holding the registry lock.
func (r *Registry) archiveOne(id string) bool {
	dir := filepath.Join(r.sessionsRoot, id)
	if err := archiveNamespace(dir, r.archiveRoot, id); err != nil {
		r.logger.Warn("session archive failed",
			zap.String("session", id), zap.Error(err))
		return false
	}

	r.mu.Lock()
	if meta, ok := r.index[id]; ok {
		meta.Status = StatusArchived
		now := time.Now()
		meta.ArchivedAt = &now
	}
	r.mu.Unlock()

	r.logger.Info("session archived", zap.String("session", id))
	return true
}

// Stats aggregates counts and averages over all known sessions.
func (r *Registry) Stats() RegistryStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := RegistryStats{TotalSessions: len(r.index)}
	var durations, scores []float64
	for _, meta := range r.index {
		switch meta.Status {
		case StatusRunning:
			st.Running++
		case StatusCompleted:
			st.Completed++
		case StatusFailed:
			st.Failed++
		case StatusArchived:
			st.Archived++
		}
		st.TotalErrors += meta.ErrorCount
		if meta.DurationSeconds > 0 {
			durations = append(durations, meta.DurationSeconds)
		}
		if meta.QualityScore != nil {
			scores = append(scores, *meta.QualityScore)
		}
	}
	if len(durations) > 0 {
		st.AvgDuration = mean(durations)
	}
	if len(scores) > 0 {
		st.AvgQualityScore = mean(scores)
	}
	return st
}

func (r *Registry) saveIndexLocked() error {
	data, err := json.MarshalIndent(r.index, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session index: %w", err)
	}
	if err := os.WriteFile(r.indexPath, data, 0o644); err != nil {
		return fmt.Errorf("write session index: %w", err)
	}
	return nil
}

func writeManifest(dir string, meta *Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "session_manifest.json"), data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

func mean(vals []float64) float64 {
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}
