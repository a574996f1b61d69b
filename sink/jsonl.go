// Package sink provides Emitter implementations that capture generated
// instances: JSON lines files, a SQLite regression database, a SHA3 stream
// digest, and the YAML regress list written after generation.
package sink

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sugawarayuuta/sonnet"

	"github.com/alexshd/biasgen"
)

// JSONLines writes one JSON object per instance.
type JSONLines[T biasgen.Integer] struct {
	mu     sync.Mutex
	w      *bufio.Writer
	closer io.Closer
	count  uint64
}

// NewJSONLines writes to w. Call Flush (or Close) when the run is done.
func NewJSONLines[T biasgen.Integer](w io.Writer) *JSONLines[T] {
	j := &JSONLines[T]{w: bufio.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		j.closer = c
	}
	return j
}

// CreateJSONLines creates (or truncates) path and writes to it.
func CreateJSONLines[T biasgen.Integer](path string) (*JSONLines[T], error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	return NewJSONLines[T](f), nil
}

// Emit implements biasgen.Emitter.
func (j *JSONLines[T]) Emit(_ context.Context, inst biasgen.Instance[T]) error {
	line, err := sonnet.Marshal(inst)
	if err != nil {
		return fmt.Errorf("encode instance %d: %w", inst.Iteration, err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if _, err := j.w.Write(line); err != nil {
		return err
	}
	if err := j.w.WriteByte('\n'); err != nil {
		return err
	}
	j.count++
	return nil
}

// Count returns the number of lines written.
func (j *JSONLines[T]) Count() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.count
}

// Flush writes buffered lines to the underlying writer.
func (j *JSONLines[T]) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.w.Flush()
}

// Close flushes and closes the underlying writer if it is an io.Closer.
func (j *JSONLines[T]) Close() error {
	if err := j.Flush(); err != nil {
		return err
	}
	if j.closer != nil {
		return j.closer.Close()
	}
	return nil
}

// ReadJSONLines decodes a stream written by JSONLines. Blank lines are skipped.
func ReadJSONLines[T biasgen.Integer](r io.Reader) ([]biasgen.Instance[T], error) {
	var out []biasgen.Instance[T]

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for line := 1; sc.Scan(); line++ {
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var inst biasgen.Instance[T]
		if err := sonnet.Unmarshal(raw, &inst); err != nil {
			return out, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, inst)
	}
	return out, sc.Err()
}
