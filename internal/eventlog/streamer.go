package eventlog

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Streamer tails a session's log files, emitting Server-Sent-Events
// framed messages. Read offsets are tracked per file so repeated Stream
// calls on one Streamer resume where the previous call stopped.
type Streamer struct {
	logsDir      string
	pollInterval time.Duration

	mu      sync.Mutex
	offsets map[string]int64
}

// NewStreamer creates a streamer over the given session directory.
func NewStreamer(sessionDir string) *Streamer {
	return &Streamer{
		logsDir:      filepath.Join(sessionDir, "logs"),
		pollInterval: 100 * time.Millisecond,
		offsets:      make(map[string]int64),
	}
}

// Stream returns a channel of SSE-framed events matching the filter.
// With follow=true the producer polls for new content until ctx is
// cancelled or the log file disappears (a terminal "error" frame is
// emitted in the latter case). With follow=false the channel closes
// once existing content is exhausted. The channel is always closed.
func (s *Streamer) Stream(ctx context.Context, filter Filter, follow bool) <-chan string {
	out := make(chan string, 16)
	go func() {
		defer close(out)
		s.stream(ctx, filter, follow, out)
	}()
	return out
}

func (s *Streamer) stream(ctx context.Context, filter Filter, follow bool, out chan<- string) {
	path := filepath.Join(s.logsDir, masterLogName)
	if filter.AgentID != "" {
		path = filepath.Join(s.logsDir, "agent_"+filter.AgentID+".jsonl")
	}

	f, err := os.Open(path)
	if err != nil {
		s.emit(ctx, out, formatSSE("error", map[string]string{"message": "Log file not found"}))
		return
	}
	defer f.Close()

	s.mu.Lock()
	offset := s.offsets[path]
	s.mu.Unlock()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		s.emit(ctx, out, formatSSE("error", map[string]string{"message": "Log file seek failed"}))
		return
	}
	r := bufio.NewReader(f)

	for {
		line, err := r.ReadBytes('\n')
		if err == nil {
			offset += int64(len(line))
			s.mu.Lock()
			s.offsets[path] = offset
			s.mu.Unlock()

			var ev Event
			if json.Unmarshal(line, &ev) != nil {
				continue
			}
			if !filter.matches(&ev) {
				continue
			}
			if !s.emit(ctx, out, formatSSE("log_event", &ev)) {
				return
			}
			continue
		}

		// EOF, possibly with a partial line the writer has not finished;
		// the unadvanced offset re-reads it once complete.
		if !follow {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.pollInterval):
		}

		if _, statErr := os.Stat(path); statErr != nil {
			s.emit(ctx, out, formatSSE("error", map[string]string{"message": "Log file removed"}))
			return
		}
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			s.emit(ctx, out, formatSSE("error", map[string]string{"message": "Log file seek failed"}))
			return
		}
		r.Reset(f)
	}
}

func (s *Streamer) emit(ctx context.Context, out chan<- string, frame string) bool {
	select {
	case out <- frame:
		return true
	case <-ctx.Done():
		return false
	}
}

// Recent returns the last count events from the master log, or from an
// agent's log when agentID is set. Reads from the start of the file and
// does not disturb streaming offsets.
func (s *Streamer) Recent(count int, agentID string) []Event {
	path := filepath.Join(s.logsDir, masterLogName)
	if agentID != "" {
		path = filepath.Join(s.logsDir, "agent_"+agentID+".jsonl")
	}
	events := readEventFile(path, Filter{})
	if count > 0 && len(events) > count {
		events = events[len(events)-count:]
	}
	return events
}

// Summary aggregates the whole master log.
type Summary struct {
	TotalEvents int            `json:"total_events"`
	Agents      []string       `json:"agents"`
	EventTypes  map[string]int `json:"event_types"`
	Levels      map[string]int `json:"levels"`
	ErrorCount  int            `json:"error_count"`
	StartTime   *time.Time     `json:"start_time,omitempty"`
	EndTime     *time.Time     `json:"end_time,omitempty"`
}

// Summarize scans the master log and returns per-type and per-level
// counts, the set of logging agents, and the time span covered.
func (s *Streamer) Summarize() Summary {
	sum := Summary{
		Agents:     []string{},
		EventTypes: make(map[string]int),
		Levels:     make(map[string]int),
	}

	agents := make(map[string]struct{})
	events := readEventFile(filepath.Join(s.logsDir, masterLogName), Filter{})
	for i := range events {
		ev := &events[i]
		sum.TotalEvents++
		if ev.AgentID != "" {
			agents[ev.AgentID] = struct{}{}
		}
		sum.EventTypes[string(ev.Type)]++
		sum.Levels[string(ev.Level)]++
		if ev.Level == LevelError {
			sum.ErrorCount++
		}
		if sum.StartTime == nil {
			t := ev.Timestamp
			sum.StartTime = &t
		}
		t := ev.Timestamp
		sum.EndTime = &t
	}

	for a := range agents {
		sum.Agents = append(sum.Agents, a)
	}
	sort.Strings(sum.Agents)
	return sum
}

// formatSSE wraps data as one Server-Sent-Events message.
func formatSSE(eventName string, data interface{}) string {
	payload, err := json.Marshal(data)
	if err != nil {
		payload = []byte(`{}`)
	}
	return "event: " + eventName + "\ndata: " + string(payload) + "\n\n"
}
