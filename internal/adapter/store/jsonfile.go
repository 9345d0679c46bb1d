package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/guillermoBallester/colprobe/internal/core/domain"
	"github.com/guillermoBallester/colprobe/internal/core/port"
)

// FileStore persists the store document as one indented JSON file.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) Path() string { return f.path }

// Load reads the document. A missing file yields an empty document and an
// error wrapping os.ErrNotExist; unreadable content yields an empty document
// and an error wrapping domain.ErrMalformedState.
func (f *FileStore) Load(_ context.Context) (port.Document, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return port.Document{}, fmt.Errorf("snapshot file %s: %w", f.path, os.ErrNotExist)
		}
		return port.Document{}, fmt.Errorf("%w: reading %s: %w", domain.ErrMalformedState, f.path, err)
	}

	var doc port.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return port.Document{}, fmt.Errorf("%w: decoding %s: %w", domain.ErrMalformedState, f.path, err)
	}
	if doc == nil {
		doc = port.Document{}
	}
	return doc, nil
}

// Save writes through a temp file in the same directory and renames it over
// the target.
func (f *FileStore) Save(_ context.Context, doc port.Document) error {
	if doc == nil {
		doc = port.Document{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot document: %w", err)
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".colprobe-*.json")
	if err != nil {
		return fmt.Errorf("saving snapshots to %s: %w", f.path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("saving snapshots to %s: %w", f.path, err)
	}
	return nil
}

// NoopPersistence keeps the store purely in memory.
type NoopPersistence struct{}

func (NoopPersistence) Load(context.Context) (port.Document, error) { return port.Document{}, nil }
func (NoopPersistence) Save(context.Context, port.Document) error   { return nil }
