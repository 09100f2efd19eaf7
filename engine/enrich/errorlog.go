package enrich

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrorLog is an append-only JSONL log of enrichment failures. Failures are
// recorded and the run keeps going; the log is what operators triage after.
type ErrorLog struct {
	mu   sync.Mutex
	path string
}

// NewErrorLog creates a log backed by path.
func NewErrorLog(path string) *ErrorLog {
	return &ErrorLog{path: path}
}

type errorEntry struct {
	ItemID    string `json:"item_id,omitempty"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Record appends one failure line. Logging failures are swallowed; the
// error log must never take down the run it exists to describe.
func (l *ErrorLog) Record(itemID string, err error) {
	if err == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if mkErr := os.MkdirAll(filepath.Dir(l.path), 0o755); mkErr != nil {
		return
	}
	data, mErr := json.Marshal(errorEntry{
		ItemID:    itemID,
		Message:   err.Error(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if mErr != nil {
		return
	}
	f, oErr := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if oErr != nil {
		return
	}
	defer f.Close()
	_, _ = f.Write(append(data, '\n'))
}
