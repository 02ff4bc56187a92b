package chat

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Saail289/gitsight/internal/config"
	"github.com/google/uuid"
)

// TranscriptEvent is one line in an NDJSON conversation transcript.
type TranscriptEvent struct {
	EventID   string `json:"event_id"`
	Timestamp string `json:"timestamp"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
}

// TranscriptLogger appends conversation events to per-session NDJSON
// files, and optionally a single global file, without blocking request
// handlers. Events are queued on a bounded channel; when the queue is
// full the event is dropped and counted, never waited on.
type TranscriptLogger struct {
	cfg     config.TranscriptConfig
	queue   chan TranscriptEvent
	wg      sync.WaitGroup
	mu      sync.Mutex
	dropped int64
	closed  bool
}

// NewTranscriptLogger starts the background writer. Returns a disabled
// logger (Log is a no-op) when transcript logging is off.
func NewTranscriptLogger(cfg config.TranscriptConfig) *TranscriptLogger {
	l := &TranscriptLogger{cfg: cfg}
	if !cfg.Enabled && !cfg.GlobalEnabled {
		return l
	}

	l.queue = make(chan TranscriptEvent, cfg.QueueSize)
	l.wg.Add(1)
	go l.run()
	return l
}

// Log enqueues an event. The event ID and timestamp are assigned here so
// dropped events still cost nothing downstream. The enqueue happens
// under the same lock Close uses to mark the logger closed, so a send
// can never race the channel close.
func (l *TranscriptLogger) Log(event TranscriptEvent) {
	if l.queue == nil {
		return
	}

	event.EventID = uuid.NewString()
	event.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}

	select {
	case l.queue <- event:
	default:
		l.dropped++
		if l.dropped%100 == 1 {
			slog.Warn("Transcript queue full, dropping events", "dropped_total", l.dropped)
		}
	}
}

// Dropped returns the number of events discarded due to a full queue.
func (l *TranscriptLogger) Dropped() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

// Close drains the queue and stops the writer. Safe to call once.
func (l *TranscriptLogger) Close() {
	if l.queue == nil {
		return
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()

	close(l.queue)
	l.wg.Wait()
}

func (l *TranscriptLogger) run() {
	defer l.wg.Done()
	for event := range l.queue {
		l.write(event)
	}
}

func (l *TranscriptLogger) write(event TranscriptEvent) {
	line, err := json.Marshal(event)
	if err != nil {
		slog.Warn("Failed to marshal transcript event", "error", err)
		return
	}
	line = append(line, '\n')

	if l.cfg.Enabled {
		path := filepath.Join(l.cfg.Dir, event.UserID, event.SessionID+".ndjson")
		l.appendFile(path, line)
	}
	if l.cfg.GlobalEnabled {
		l.appendFile(l.cfg.GlobalPath, line)
	}
}

func (l *TranscriptLogger) appendFile(path string, line []byte) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		slog.Warn("Failed to create transcript directory", "path", path, "error", err)
		return
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		slog.Warn("Failed to open transcript file", "path", path, "error", err)
		return
	}
	defer f.Close()
	if _, err := f.Write(line); err != nil {
		slog.Warn("Failed to write transcript event", "path", path, "error", err)
	}
}
