package audit

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/guillermoBallester/colprobe/internal/core/port"
)

// fileEntry is the NDJSON-serializable form of an audit record.
type fileEntry struct {
	Timestamp  string  `json:"ts"`
	ScanID     string  `json:"scan_id"`
	Tool       string  `json:"tool"`
	Table      string  `json:"table"`
	Version    string  `json:"version"`
	Rows       int     `json:"rows"`
	Columns    int     `json:"columns"`
	BlankShot  bool    `json:"blank_shot"`
	DurationMS int64   `json:"duration_ms"`
	Error      *string `json:"error"`
}

// FileAuditor writes audit entries as NDJSON (one JSON object per line) to a file.
type FileAuditor struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewFileAuditor opens (or creates) the file at path for append-only writing.
func NewFileAuditor(path string) (*FileAuditor, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return &FileAuditor{
		file: f,
		enc:  json.NewEncoder(f),
	}, nil
}

func (a *FileAuditor) Record(_ context.Context, entry port.AuditEntry) {
	fe := fileEntry{
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		ScanID:     entry.ScanID,
		Tool:       entry.Tool,
		Table:      entry.Table,
		Version:    entry.Version,
		Rows:       entry.Rows,
		Columns:    entry.Columns,
		BlankShot:  entry.BlankShot,
		DurationMS: entry.DurationMS,
	}
	if entry.Err != nil {
		s := entry.Err.Error()
		fe.Error = &s
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	_ = a.enc.Encode(fe) // best-effort; audit I/O never fails a scan
}

func (a *FileAuditor) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.file.Close()
}
