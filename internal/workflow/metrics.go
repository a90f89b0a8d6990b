package workflow

import (
	"sync"
	"time"
)

// Collector aggregates run counters for one session.
type Collector struct {
	sessionID string

	mu             sync.Mutex
	agentsExecuted int
	toolsCalled    int
	memoryOps      int
	errors         int
	durationMS     float64
	startTime      *time.Time
	endTime        *time.Time
}

// MetricsSnapshot is a copy of the collected counters.
type MetricsSnapshot struct {
	SessionID      string     `json:"session_id"`
	AgentsExecuted int        `json:"agents_executed"`
	ToolsCalled    int        `json:"tools_called"`
	MemoryOps      int        `json:"memory_operations"`
	Errors         int        `json:"errors"`
	DurationMS     float64    `json:"duration_ms"`
	StartTime      *time.Time `json:"start_time,omitempty"`
	EndTime        *time.Time `json:"end_time,omitempty"`
}

// NewCollector creates a metrics collector for one session.
func NewCollector(sessionID string) *Collector {
	return &Collector{sessionID: sessionID}
}

// RecordAgentExecution counts one agent run and its duration.
func (c *Collector) RecordAgentExecution(durationMS float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.agentsExecuted++
	c.durationMS += durationMS
}

// RecordToolCall counts one tool invocation.
func (c *Collector) RecordToolCall() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.toolsCalled++
}

// RecordMemoryOp counts one memory store or retrieve.
func (c *Collector) RecordMemoryOp() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.memoryOps++
}

// RecordError counts one error.
func (c *Collector) RecordError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors++
}

// MarkStart stamps the workflow start time.
func (c *Collector) MarkStart() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	c.startTime = &now
}

// MarkEnd stamps the workflow end time.
func (c *Collector) MarkEnd() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	c.endTime = &now
}

// Snapshot returns a copy of the current counters.
func (c *Collector) Snapshot() MetricsSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return MetricsSnapshot{
		SessionID:      c.sessionID,
		AgentsExecuted: c.agentsExecuted,
		ToolsCalled:    c.toolsCalled,
		MemoryOps:      c.memoryOps,
		Errors:         c.errors,
		DurationMS:     c.durationMS,
		StartTime:      c.startTime,
		EndTime:        c.endTime,
	}
}
