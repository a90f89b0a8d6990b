package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// criticalRetryThreshold marks a failed task as unrecoverable.
const criticalRetryThreshold = 3

// Tracker maintains the task dependency graph for one workflow run and
// answers readiness queries. All methods are safe for concurrent use;
// a single mutex serializes mutation against the readiness reads that
// fan-out workers perform.
//
// Tracker performs no I/O in its state transitions. Operating on an
// unregistered task is caller misuse: it is logged and ignored.
type Tracker struct {
	workflowID string

	mu             sync.Mutex
	tasks          map[string]*Task
	order          []string // registration order
	executionOrder []string

	logger *zap.Logger
}

// NewTracker creates a tracker for one workflow run.
func NewTracker(workflowID string, logger *zap.Logger) *Tracker {
	return &Tracker{
		workflowID: workflowID,
		tasks:      make(map[string]*Task),
		logger:     logger,
	}
}

// RegisterTask adds a task with its dependency set. Must be called
// before any other task-level call for that ID. Re-registering an ID
// overwrites the previous definition. A registration whose dependency
// set would close a cycle is rejected and leaves prior state untouched.
func (t *Tracker) RegisterTask(id, name string, dependsOn []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.wouldCycle(id, dependsOn) {
		return fmt.Errorf("register task %s: dependency cycle", id)
	}

	if _, exists := t.tasks[id]; !exists {
		t.order = append(t.order, id)
	}
	t.tasks[id] = &Task{
		ID:        id,
		Name:      name,
		Status:    TaskPending,
		DependsOn: append([]string(nil), dependsOn...),
	}
	return nil
}

// wouldCycle reports whether id would be reachable from its own new
// dependency set. Unregistered dependencies cannot close a cycle.
func (t *Tracker) wouldCycle(id string, dependsOn []string) bool {
	visited := make(map[string]bool)
	var reaches func(from string) bool
	reaches = func(from string) bool {
		if from == id {
			return true
		}
		if visited[from] {
			return false
		}
		visited[from] = true
		task, ok := t.tasks[from]
		if !ok {
			return false
		}
		for _, dep := range task.DependsOn {
			if reaches(dep) {
				return true
			}
		}
		return false
	}
	for _, dep := range dependsOn {
		if reaches(dep) {
			return true
		}
	}
	return false
}

// CanExecute reports whether every dependency of id is completed.
// A task with an unregistered dependency can never execute.
func (t *Tracker) CanExecute(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.canExecuteLocked(id)
}

func (t *Tracker) canExecuteLocked(id string) bool {
	task, ok := t.tasks[id]
	if !ok {
		return false
	}
	for _, dep := range task.DependsOn {
		depTask, ok := t.tasks[dep]
		if !ok || depTask.Status != TaskCompleted {
			return false
		}
	}
	return true
}

// ReadyTasks returns all pending tasks whose dependencies are met,
// in registration order.
func (t *Tracker) ReadyTasks() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var ready []string
	for _, id := range t.order {
		task := t.tasks[id]
		if task.Status == TaskPending && t.canExecuteLocked(id) {
			ready = append(ready, id)
		}
	}
	return ready
}

// NextExecutable returns up to maxParallel ready tasks.
func (t *Tracker) NextExecutable(maxParallel int) []string {
	ready := t.ReadyTasks()
	if maxParallel > 0 && len(ready) > maxParallel {
		ready = ready[:maxParallel]
	}
	return ready
}

// StartTask transitions a task to running and stamps its start time.
func (t *Tracker) StartTask(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	task, ok := t.tasks[id]
	if !ok {
		t.logger.Warn("start of unregistered task ignored", zap.String("task", id))
		return
	}
	now := time.Now()
	task.Status = TaskRunning
	task.StartedAt = &now
	t.executionOrder = append(t.executionOrder, id)
}

// CompleteTask transitions a task to completed with its result.
func (t *Tracker) CompleteTask(id string, result interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	task, ok := t.tasks[id]
	if !ok {
		t.logger.Warn("completion of unregistered task ignored", zap.String("task", id))
		return
	}
	now := time.Now()
	task.Status = TaskCompleted
	task.EndedAt = &now
	task.Result = result
}

// FailTask transitions a task to failed with an error message.
func (t *Tracker) FailTask(id string, errMsg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	task, ok := t.tasks[id]
	if !ok {
		t.logger.Warn("failure of unregistered task ignored", zap.String("task", id))
		return
	}
	now := time.Now()
	task.Status = TaskFailed
	task.EndedAt = &now
	task.Error = errMsg
}

// SkipTask marks a task skipped; skipped tasks never become ready.
func (t *Tracker) SkipTask(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	task, ok := t.tasks[id]
	if !ok {
		t.logger.Warn("skip of unregistered task ignored", zap.String("task", id))
		return
	}
	task.Status = TaskSkipped
}

// RetryTask returns a failed task to pending, incrementing its retry
// count. No retry cap is enforced here; see HasCriticalFailure.
func (t *Tracker) RetryTask(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	task, ok := t.tasks[id]
	if !ok {
		t.logger.Warn("retry of unregistered task ignored", zap.String("task", id))
		return
	}
	task.RetryCount++
	task.Status = TaskPending
}

// Status returns a task's current status.
func (t *Tracker) Status(id string) (TaskStatus, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	task, ok := t.tasks[id]
	if !ok {
		return "", false
	}
	return task.Status, true
}

// Result returns a completed task's result.
func (t *Tracker) Result(id string) (interface{}, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	task, ok := t.tasks[id]
	if !ok || task.Status != TaskCompleted {
		return nil, false
	}
	return task.Result, true
}

// GetWorkflowProgress summarizes the current task states.
func (t *Tracker) GetWorkflowProgress() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := Progress{Total: len(t.tasks)}
	for _, task := range t.tasks {
		switch task.Status {
		case TaskCompleted:
			p.Completed++
		case TaskFailed:
			p.Failed++
		case TaskRunning:
			p.Running++
		case TaskPending:
			p.Pending++
		}
	}
	if p.Total > 0 {
		p.PercentComplete = float64(p.Completed) / float64(p.Total) * 100
	}
	return p
}

// FailedTasks lists all tasks currently in the failed state.
func (t *Tracker) FailedTasks() []FailedTask {
	t.mu.Lock()
	defer t.mu.Unlock()

	var failed []FailedTask
	for _, id := range t.order {
		task := t.tasks[id]
		if task.Status == TaskFailed {
			failed = append(failed, FailedTask{
				ID:         task.ID,
				Name:       task.Name,
				Error:      task.Error,
				RetryCount: task.RetryCount,
			})
		}
	}
	return failed
}

// HasCriticalFailure reports whether any task has failed with a retry
// count at or past the fixed threshold, signalling the orchestrator to
// abort rather than keep retrying.
func (t *Tracker) HasCriticalFailure() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, task := range t.tasks {
		if task.Status == TaskFailed && task.RetryCount >= criticalRetryThreshold {
			return true
		}
	}
	return false
}

// executionSummary is the exported state shape.
type executionSummary struct {
	WorkflowID     string           `json:"workflow_id"`
	Progress       Progress         `json:"progress"`
	ExecutionOrder []string         `json:"execution_order"`
	Tasks          map[string]*Task `json:"tasks"`
}

// ExportState writes the workflow's execution summary as JSON.
func (t *Tracker) ExportState(path string) error {
	t.mu.Lock()
	summary := executionSummary{
		WorkflowID:     t.workflowID,
		Progress:       Progress{Total: len(t.tasks)},
		ExecutionOrder: append([]string(nil), t.executionOrder...),
		Tasks:          make(map[string]*Task, len(t.tasks)),
	}
	for id, task := range t.tasks {
		copied := *task
		summary.Tasks[id] = &copied
		switch task.Status {
		case TaskCompleted:
			summary.Progress.Completed++
		case TaskFailed:
			summary.Progress.Failed++
		case TaskRunning:
			summary.Progress.Running++
		case TaskPending:
			summary.Progress.Pending++
		}
	}
	if summary.Progress.Total > 0 {
		summary.Progress.PercentComplete = float64(summary.Progress.Completed) / float64(summary.Progress.Total) * 100
	}
	t.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal workflow state: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write workflow state: %w", err)
	}
	return nil
}
