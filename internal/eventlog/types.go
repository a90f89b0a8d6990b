package eventlog

import "time"

// Level is the severity of a log event.
type Level string

const (
	LevelDebug   Level = "DEBUG"
	LevelInfo    Level = "INFO"
	LevelWarning Level = "WARNING"
	LevelError   Level = "ERROR"
	LevelSuccess Level = "SUCCESS"
	LevelMetric  Level = "METRIC"
)

// EventType classifies time-series events.
type EventType string

const (
	SessionStarted   EventType = "session_started"
	SessionCompleted EventType = "session_completed"
	AgentStarted     EventType = "agent_started"
	AgentCompleted   EventType = "agent_completed"
	AgentError       EventType = "agent_error"
	ToolCalled       EventType = "tool_called"
	ToolCompleted    EventType = "tool_completed"
	MemoryStored     EventType = "memory_stored"
	MemoryRetrieved  EventType = "memory_retrieved"
	WorkflowStage    EventType = "workflow_stage"
	ValidationResult EventType = "validation_result"
	MetricRecorded   EventType = "metric_recorded"
)

// Event is one structured, append-only log record. Events are never
// mutated after write; ParentEventID is a weak reference correlating
// nested operations (e.g. a tool call inside an agent run).
type Event struct {
	ID            string                 `json:"event_id"`
	SessionID     string                 `json:"session_id"`
	Timestamp     time.Time              `json:"timestamp"`
	Type          EventType              `json:"event_type"`
	Level         Level                  `json:"level"`
	AgentID       string                 `json:"agent_id,omitempty"`
	AgentName     string                 `json:"agent_name,omitempty"`
	Message       string                 `json:"message"`
	Data          map[string]interface{} `json:"data,omitempty"`
	DurationMS    float64                `json:"duration_ms,omitempty"`
	ParentEventID string                 `json:"parent_event_id,omitempty"`
}

// Filter narrows read-back and streaming to matching events.
// Filters apply in the order agent -> event type -> level.
type Filter struct {
	AgentID string
	Type    EventType
	Level   Level
	Limit   int
}

func (f Filter) matches(ev *Event) bool {
	if f.Type != "" && ev.Type != f.Type {
		return false
	}
	if f.Level != "" && ev.Level != f.Level {
		return false
	}
	return true
}

// Stats reports logger throughput counters.
type Stats struct {
	SessionID     string `json:"session_id"`
	EventsLogged  int64  `json:"events_logged"`
	EventsDropped int64  `json:"events_dropped"`
	QueueDepth    int    `json:"queue_depth"`
	Running       bool   `json:"running"`
}
