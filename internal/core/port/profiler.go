package port

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/guillermoBallester/colprobe/internal/core/domain"
)

// LastVersionKey is the reserved store label pointing at the newest version.
const LastVersionKey = "last_version"

// Snapshot section keys, as persisted.
const (
	SectionDtypes         = "dtypes_"
	SectionColumns        = "columns_"
	SectionShape          = "shape_"
	SectionNumericStats   = "numeric_columns_stats"
	SectionUniqueTypes    = "unique_types"
	SectionBootstrapStats = "bootstrap_stats"
	SectionSchema         = "schema_"
)

// Sections lists every snapshot section key in persisted order.
var Sections = []string{
	SectionDtypes, SectionColumns, SectionShape, SectionNumericStats,
	SectionUniqueTypes, SectionBootstrapStats, SectionSchema,
}

// SchemaSnapshot is one profiling result for a table.
type SchemaSnapshot struct {
	Dtypes         map[string]domain.ElementType     `json:"dtypes_"`
	Columns        []string                          `json:"columns_"`
	Shape          [2]int                            `json:"shape_"`
	NumericStats   map[string]domain.NumericSummary  `json:"numeric_columns_stats"`
	UniqueTypes    map[string][]string               `json:"unique_types"`
	BootstrapStats map[string]domain.BootstrapResult `json:"bootstrap_stats"`
	Schema         *domain.Schema                    `json:"schema_,omitempty"`

	// Warnings are data-quality signals raised during the scan. They are
	// reported to the caller and never persisted.
	Warnings []string `json:"-"`
}

// Sections returns each persisted section as canonical JSON, keyed by
// section name. Absent sections are omitted.
func (s *SchemaSnapshot) Sections() (map[string]json.RawMessage, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var parts map[string]json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return nil, err
	}
	for k, v := range parts {
		canon, err := canonicalJSON(v)
		if err != nil {
			return nil, fmt.Errorf("section %s: %w", k, err)
		}
		parts[k] = canon
	}
	return parts, nil
}

// canonicalJSON re-encodes v through a generic value so key order and
// whitespace no longer matter.
func canonicalJSON(v json.RawMessage) (json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(v))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}

// StoreEntry holds every version of one table plus the last written label.
// It marshals flat: {"<version>": snapshot, ..., "last_version": "<version>"}.
type StoreEntry struct {
	Versions    map[string]*SchemaSnapshot
	LastVersion string
}

func NewStoreEntry() *StoreEntry {
	return &StoreEntry{Versions: make(map[string]*SchemaSnapshot)}
}

// SortedVersions returns the version labels in lexical order.
func (e *StoreEntry) SortedVersions() []string {
	out := make([]string, 0, len(e.Versions))
	for v := range e.Versions {
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

func (e *StoreEntry) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(e.Versions)+1)
	for v, snap := range e.Versions {
		flat[v] = snap
	}
	if e.LastVersion != "" {
		flat[LastVersionKey] = e.LastVersion
	}
	return json.Marshal(flat)
}

func (e *StoreEntry) UnmarshalJSON(data []byte) error {
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	e.Versions = make(map[string]*SchemaSnapshot, len(flat))
	e.LastVersion = ""
	for k, raw := range flat {
		if k == LastVersionKey {
			if err := json.Unmarshal(raw, &e.LastVersion); err != nil {
				return fmt.Errorf("%s: %w", LastVersionKey, err)
			}
			continue
		}
		var snap SchemaSnapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			return fmt.Errorf("version %q: %w", k, err)
		}
		e.Versions[k] = &snap
	}
	return nil
}

// Document is the whole store keyed by table name.
type Document map[string]*StoreEntry

// SchemaStore holds snapshots keyed by table name and version label.
type SchemaStore interface {
	// Put stores snap under table/version and makes version the last one.
	Put(table, version string, snap *SchemaSnapshot) error
	Get(table, version string) (*SchemaSnapshot, error)
	// Latest resolves last_version and returns that snapshot.
	Latest(table string) (string, *SchemaSnapshot, error)
	Tables() []string
	Versions(table string) []string
	// Document returns a deep copy of the store contents.
	Document() Document
	Replace(doc Document)
}

// SnapshotPersistence loads and saves a store document. Load returns an
// empty document alongside advisory errors for missing or unreadable state.
type SnapshotPersistence interface {
	Load(ctx context.Context) (Document, error)
	Save(ctx context.Context, doc Document) error
}

// TableOptions are the per-table profiling settings resolved from policy.
type TableOptions struct {
	Drop              []string
	CategoryThreshold float64
	Columns           []string
	Compare           []string
}

// OptionsResolver resolves per-table profiling options.
type OptionsResolver interface {
	Resolve(table string) TableOptions
}

// DriftReport is the outcome of comparing a stored snapshot with fresh data.
type DriftReport struct {
	Table      string   `json:"table"`
	Version    string   `json:"version"`
	Match      bool     `json:"match"`
	Compared   []string `json:"compared"`
	Mismatched []string `json:"mismatched"`
	Warnings   []string `json:"warnings,omitempty"`
}
