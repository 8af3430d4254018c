package audit

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
)

// JSONWriter encodes one event per line to an io.Writer.
type JSONWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONWriter writes JSON lines to w (typically os.Stdout).
func NewJSONWriter(w io.Writer) *JSONWriter {
	return &JSONWriter{enc: json.NewEncoder(w)}
}

// Write encodes ev.
func (j *JSONWriter) Write(_ context.Context, ev Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.enc.Encode(ev)
}

// FileWriter appends events to a JSONL file.
type FileWriter struct {
	*JSONWriter
	f *os.File
}

// NewFileWriter opens path for appending, creating it when missing.
func NewFileWriter(path string) (*FileWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileWriter{JSONWriter: NewJSONWriter(f), f: f}, nil
}

// Close closes the underlying file.
func (f *FileWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.f.Close()
}
