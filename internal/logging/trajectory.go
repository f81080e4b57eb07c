package logging

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"swarmrl/internal/env"
)

// Frame is one recorded transition of one replica.
type Frame struct {
	Run       string       `json:"run"`
	Repeat    int          `json:"repeat"`
	Iteration int          `json:"iteration"`
	Replica   int          `json:"replica"`
	State     env.Snapshot `json:"state"`
}

// TrajectoryWriter appends frames to a zstd compressed JSONL file.
type TrajectoryWriter struct {
	path string

	mu  sync.Mutex
	f   *os.File
	enc *zstd.Encoder
	w   *bufio.Writer
}

// NewTrajectoryWriter creates <dir>/<run>.jsonl.zst.
func NewTrajectoryWriter(dir, run string) (*TrajectoryWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, fmt.Sprintf("%s.jsonl.zst", run))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &TrajectoryWriter{
		path: path,
		f:    f,
		enc:  enc,
		w:    bufio.NewWriterSize(enc, 128*1024),
	}, nil
}

// Path is the file being written.
func (t *TrajectoryWriter) Path() string { return t.path }

// Write appends one frame.
func (t *TrajectoryWriter) Write(fr Frame) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.w == nil {
		return os.ErrClosed
	}
	b, err := json.Marshal(fr)
	if err != nil {
		return err
	}
	if _, err := t.w.Write(b); err != nil {
		return err
	}
	return t.w.WriteByte('\n')
}

// Close flushes the buffer and finishes the zstd stream.
func (t *TrajectoryWriter) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.w == nil {
		return nil
	}
	err := t.w.Flush()
	if cerr := t.enc.Close(); err == nil {
		err = cerr
	}
	if cerr := t.f.Close(); err == nil {
		err = cerr
	}
	t.w, t.enc, t.f = nil, nil, nil
	return err
}

// ReadTrajectory streams frames from a file written by TrajectoryWriter,
// calling fn for each one in order. Returning an error from fn stops the scan.
func ReadTrajectory(path string, fn func(Frame) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	jd := json.NewDecoder(bufio.NewReader(dec))
	for line := 1; ; line++ {
		var fr Frame
		if err := jd.Decode(&fr); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("%s: frame %d: %w", path, line, err)
		}
		if err := fn(fr); err != nil {
			return err
		}
	}
}
