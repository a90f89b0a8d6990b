package workflow

import "time"

// TaskStatus tracks execution state of a workflow task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskSkipped   TaskStatus = "skipped"
)

// Task is one unit of work in the dependency graph.
type Task struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Status     TaskStatus  `json:"status"`
	DependsOn  []string    `json:"depends_on,omitempty"`
	StartedAt  *time.Time  `json:"started_at,omitempty"`
	EndedAt    *time.Time  `json:"ended_at,omitempty"`
	Result     interface{} `json:"result,omitempty"`
	Error      string      `json:"error,omitempty"`
	RetryCount int         `json:"retry_count"`
}

// Progress summarizes workflow completion.
type Progress struct {
	Total           int     `json:"total_tasks"`
	Completed       int     `json:"completed"`
	Failed          int     `json:"failed"`
	Running         int     `json:"running"`
	Pending         int     `json:"pending"`
	PercentComplete float64 `json:"completion_percentage"`
}

// FailedTask describes a task that ended in failure.
type FailedTask struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Error      string `json:"error"`
	RetryCount int    `json:"retry_count"`
}
