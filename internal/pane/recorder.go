package pane

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
)

const transcriptExt = ".log.zst"

// Recorder appends a pane's inbound bytes to a zstd compressed transcript.
// Write, Flush and Close may be called from different goroutines.
type Recorder struct {
	path string

	mu  sync.Mutex
	f   *os.File
	enc *zstd.Encoder
}

// TranscriptPath is where the transcript for alias lives under dir.
func TranscriptPath(dir, alias string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, alias)
	if name == "" || strings.Trim(name, ".") == "" {
		name = "_"
	}
	return filepath.Join(dir, name+transcriptExt)
}

func NewRecorder(dir, alias string) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := TranscriptPath(dir, alias)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("zstd writer: %w", err)
	}
	return &Recorder{path: path, f: f, enc: enc}, nil
}

func (r *Recorder) Path() string { return r.path }

func (r *Recorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enc == nil {
		return 0, os.ErrClosed
	}
	return r.enc.Write(p)
}

// Flush makes everything written so far decodable from disk.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enc == nil {
		return os.ErrClosed
	}
	return r.enc.Flush()
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enc == nil {
		return nil
	}
	encErr := r.enc.Close()
	r.enc = nil
	if err := r.f.Close(); err != nil {
		return err
	}
	return encErr
}

// ReadTranscript decompresses a transcript written by Recorder. A
// transcript that is still open reads up to its last Flush.
func ReadTranscript(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer dec.Close()
	data, err := io.ReadAll(dec)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return data, nil
	}
	return data, err
}
