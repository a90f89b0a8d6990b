package workflow

import "sync"

// StageTracker reports coarse per-stage progress over a fixed stage
// list, for consumers that want a percentage rather than task states.
type StageTracker struct {
	sessionID string
	stages    []string

	mu            sync.Mutex
	currentStage  int
	stageProgress map[int]float64
	overall       float64
}

// StageStatus is a snapshot of stage-level progress.
type StageStatus struct {
	SessionID        string          `json:"session_id"`
	CurrentStage     int             `json:"current_stage"`
	CurrentStageName string          `json:"current_stage_name"`
	StageProgress    map[int]float64 `json:"stage_progress"`
	OverallProgress  float64         `json:"overall_progress"`
	TotalStages      int             `json:"total_stages"`
	Stages           []string        `json:"stages"`
}

// NewStageTracker creates a stage tracker over the given ordered stages.
func NewStageTracker(sessionID string, stages []string) *StageTracker {
	return &StageTracker{
		sessionID:     sessionID,
		stages:        stages,
		stageProgress: make(map[int]float64),
	}
}

// UpdateStage records progress (0-100) for one stage index and
// recomputes overall progress.
func (s *StageTracker) UpdateStage(stageIndex int, progress float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.currentStage = stageIndex
	s.stageProgress[stageIndex] = progress

	var completed float64
	for _, p := range s.stageProgress {
		completed += p / 100.0
	}
	if len(s.stages) > 0 {
		s.overall = completed / float64(len(s.stages)) * 100.0
	}
}

// Status returns the current stage-level progress snapshot.
func (s *StageTracker) Status() StageStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := "Completed"
	if s.currentStage < len(s.stages) {
		name = s.stages[s.currentStage]
	}
	progress := make(map[int]float64, len(s.stageProgress))
	for k, v := range s.stageProgress {
		progress[k] = v
	}
	return StageStatus{
		SessionID:        s.sessionID,
		CurrentStage:     s.currentStage,
		CurrentStageName: name,
		StageProgress:    progress,
		OverallProgress:  s.overall,
		TotalStages:      len(s.stages),
		Stages:           s.stages,
	}
}
