package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const masterLogName = "session_timeseries.jsonl"

// Logger records structured events for one session without blocking
// the caller. Producers enqueue onto a bounded queue; a single consumer
// goroutine appends each event to the session master log and, when an
// agent is set, to that agent's log. When the queue is full the event
// is dropped and counted — logging never applies backpressure.
type Logger struct {
	sessionID  string
	logsDir    string
	queue      chan *Event
	flushEvery time.Duration

	logged  atomic.Int64
	dropped atomic.Int64

	flushReq chan chan struct{}
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	zl *zap.Logger
}

// Record carries the caller-supplied fields of one event.
type Record struct {
	Type          EventType
	Level         Level
	Message       string
	AgentID       string
	AgentName     string
	Data          map[string]interface{}
	DurationMS    float64
	ParentEventID string
}

// NewLogger creates the session logs directory and starts the consumer
// goroutine. Stop must be called before the namespace is archived.
func NewLogger(sessionID, sessionDir string, bufferSize int, flushInterval time.Duration, zl *zap.Logger) (*Logger, error) {
	logsDir := filepath.Join(sessionDir, "logs")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create logs dir: %w", err)
	}
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	if flushInterval <= 0 {
		flushInterval = time.Second
	}

	l := &Logger{
		sessionID:  sessionID,
		logsDir:    logsDir,
		queue:      make(chan *Event, bufferSize),
		flushEvery: flushInterval,
		flushReq:   make(chan chan struct{}),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		zl:         zl,
	}
	go l.run()
	return l, nil
}

// Log enqueues an event and returns its ID. Never blocks: a full queue
// drops the event and increments the drop counter.
func (l *Logger) Log(rec Record) string {
	ev := &Event{
		ID:            uuid.New().String(),
		SessionID:     l.sessionID,
		Timestamp:     time.Now(),
		Type:          rec.Type,
		Level:         rec.Level,
		AgentID:       rec.AgentID,
		AgentName:     rec.AgentName,
		Message:       rec.Message,
		Data:          rec.Data,
		DurationMS:    rec.DurationMS,
		ParentEventID: rec.ParentEventID,
	}

	select {
	case l.queue <- ev:
	default:
		l.dropped.Add(1)
	}
	return ev.ID
}

// Info logs a workflow-stage message at INFO level.
func (l *Logger) Info(message, agentID string) string {
	return l.Log(Record{Type: WorkflowStage, Level: LevelInfo, Message: message, AgentID: agentID})
}

// Error logs an agent error.
func (l *Logger) Error(message, agentID string, data map[string]interface{}) string {
	return l.Log(Record{Type: AgentError, Level: LevelError, Message: message, AgentID: agentID, Data: data})
}

// AgentStart logs the beginning of an agent task.
func (l *Logger) AgentStart(agentID, agentName, task string) string {
	return l.Log(Record{
		Type: AgentStarted, Level: LevelInfo,
		Message: "Agent started: " + task,
		AgentID: agentID, AgentName: agentName,
		Data: map[string]interface{}{"task": task},
	})
}

// AgentDone logs completion of an agent task, correlated to its start event.
func (l *Logger) AgentDone(agentID, agentName string, durationMS float64, parentEventID string) string {
	return l.Log(Record{
		Type: AgentCompleted, Level: LevelSuccess,
		Message:       fmt.Sprintf("Agent completed in %.2fms", durationMS),
		AgentID:       agentID,
		AgentName:     agentName,
		DurationMS:    durationMS,
		ParentEventID: parentEventID,
	})
}

// ToolCall logs a tool invocation by an agent.
func (l *Logger) ToolCall(agentID, toolName string, params map[string]interface{}) string {
	return l.Log(Record{
		Type: ToolCalled, Level: LevelInfo,
		Message: "Tool called: " + toolName,
		AgentID: agentID,
		Data:    map[string]interface{}{"tool_name": toolName, "parameters": params},
	})
}

// MemoryOp logs a memory store or retrieve.
func (l *Logger) MemoryOp(agentID, operation, tier, key string) string {
	eventType := MemoryRetrieved
	if operation == "store" {
		eventType = MemoryStored
	}
	return l.Log(Record{
		Type: eventType, Level: LevelDebug,
		Message: fmt.Sprintf("Memory %s: %s.%s", operation, tier, key),
		AgentID: agentID,
		Data:    map[string]interface{}{"operation": operation, "tier": tier, "key": key},
	})
}

// Flush blocks until every event enqueued so far has been written and
// file buffers are flushed. Returns immediately after Stop.
func (l *Logger) Flush() {
	ack := make(chan struct{})
	select {
	case l.flushReq <- ack:
		<-ack
	case <-l.done:
	}
}

// Stop drains the queue, flushes and closes the log files, then stops
// the consumer. Safe to call more than once.
func (l *Logger) Stop() {
	l.stopOnce.Do(func() {
		close(l.quit)
		<-l.done
	})
}

// Stats returns throughput counters for this logger.
func (l *Logger) Stats() Stats {
	running := true
	select {
	case <-l.done:
		running = false
	default:
	}
	return Stats{
		SessionID:     l.sessionID,
		EventsLogged:  l.logged.Load(),
		EventsDropped: l.dropped.Load(),
		QueueDepth:    len(l.queue),
		Running:       running,
	}
}

// run is the single consumer goroutine. Being the only writer makes
// log line interleaving across agents race-free by construction.
func (l *Logger) run() {
	defer close(l.done)

	files := newFileSet(l.logsDir, l.zl)
	defer files.closeAll()

	ticker := time.NewTicker(l.flushEvery)
	defer ticker.Stop()

	for {
		select {
		case ev := <-l.queue:
			l.writeEvent(files, ev)
		case <-ticker.C:
			files.flush()
		case ack := <-l.flushReq:
			l.drain(files)
			files.flush()
			close(ack)
		case <-l.quit:
			l.drain(files)
			files.flush()
			return
		}
	}
}

func (l *Logger) drain(files *fileSet) {
	for {
		select {
		case ev := <-l.queue:
			l.writeEvent(files, ev)
		default:
			return
		}
	}
}

func (l *Logger) writeEvent(files *fileSet, ev *Event) {
	line, err := json.Marshal(ev)
	if err != nil {
		l.zl.Warn("event not serializable", zap.String("event", ev.ID), zap.Error(err))
		return
	}

	ok := files.append(masterLogName, line)
	if ev.AgentID != "" {
		files.append("agent_"+ev.AgentID+".jsonl", line)
	}
	if ok {
		l.logged.Add(1)
	}
}

// fileSet owns the append-only log files. Only the consumer goroutine
// touches it, so no locking is needed.
type fileSet struct {
	dir     string
	files   map[string]*os.File
	writers map[string]*bufio.Writer
	zl      *zap.Logger
}

func newFileSet(dir string, zl *zap.Logger) *fileSet {
	return &fileSet{
		dir:     dir,
		files:   make(map[string]*os.File),
		writers: make(map[string]*bufio.Writer),
		zl:      zl,
	}
}

func (fs *fileSet) append(name string, line []byte) bool {
	w, ok := fs.writers[name]
	if !ok {
		f, err := os.OpenFile(filepath.Join(fs.dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fs.zl.Warn("open log file failed", zap.String("file", name), zap.Error(err))
			return false
		}
		fs.files[name] = f
		w = bufio.NewWriter(f)
		fs.writers[name] = w
	}
	if _, err := w.Write(line); err != nil {
		fs.zl.Warn("log write failed", zap.String("file", name), zap.Error(err))
		return false
	}
	if err := w.WriteByte('\n'); err != nil {
		fs.zl.Warn("log write failed", zap.String("file", name), zap.Error(err))
		return false
	}
	return true
}

func (fs *fileSet) flush() {
	for name, w := range fs.writers {
		if err := w.Flush(); err != nil {
			fs.zl.Warn("log flush failed", zap.String("file", name), zap.Error(err))
		}
	}
}

func (fs *fileSet) closeAll() {
	fs.flush()
	for _, f := range fs.files {
		f.Close()
	}
}
