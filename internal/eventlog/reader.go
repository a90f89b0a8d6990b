package eventlog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
)

// maxLineSize bounds a single JSONL record during read-back.
const maxLineSize = 1 << 20

// ReadLogs flushes pending events and reads the session's log back in
// chronological (file) order. A set Filter.AgentID selects that agent's
// log file; otherwise the master log is read. Malformed lines are
// skipped. A missing log file yields an empty slice.
func (l *Logger) ReadLogs(filter Filter) []Event {
	l.Flush()
	path := filepath.Join(l.logsDir, masterLogName)
	if filter.AgentID != "" {
		path = filepath.Join(l.logsDir, "agent_"+filter.AgentID+".jsonl")
	}
	return readEventFile(path, filter)
}

func readEventFile(path string, filter Filter) []Event {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			// Corrupt line: skip it, keep reading.
			continue
		}
		if !filter.matches(&ev) {
			continue
		}
		events = append(events, ev)
		if filter.Limit > 0 && len(events) >= filter.Limit {
			break
		}
	}
	return events
}
