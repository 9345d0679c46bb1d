package port

import "context"

// AuditEntry represents a single auditable profiling event.
type AuditEntry struct {
	ScanID     string
	Tool       string
	Table      string
	Version    string
	Rows       int
	Columns    int
	BlankShot  bool
	DurationMS int64
	Err        error
}

// ScanAuditor records profiling audit events.
type ScanAuditor interface {
	Record(ctx context.Context, entry AuditEntry)
	Close() error
}

// NoopAuditor discards all audit entries.
type NoopAuditor struct{}

func (NoopAuditor) Record(context.Context, AuditEntry) {}
func (NoopAuditor) Close() error                       { return nil }
