package pane

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/antonkrylov/termbridge/internal/mirror"
)

// Pane is a local terminal pane fed by the bridge. SetTitle, WriteData and
// Close are called on the host's dispatcher; Output, Keystroke and the
// accessors may be used from any goroutine.
type Pane struct {
	alias   string
	workdir string
	ch      *Channel
	rec     *Recorder
	logger  *slog.Logger
	onClose func(*Pane)

	mu    sync.Mutex
	title string

	closeOnce sync.Once
	done      chan struct{}
}

var (
	_ mirror.Session     = (*Pane)(nil)
	_ mirror.InputSource = (*Pane)(nil)
)

func (p *Pane) Alias() string   { return p.alias }
func (p *Pane) Workdir() string { return p.workdir }

func (p *Pane) Title() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.title
}

func (p *Pane) SetTitle(title string) {
	p.mu.Lock()
	p.title = title
	p.mu.Unlock()
}

func (p *Pane) WriteData(b []byte) error {
	select {
	case <-p.done:
		return io.ErrClosedPipe
	default:
	}
	if p.rec != nil {
		if _, err := p.rec.Write(b); err != nil {
			p.logger.Warn("record transcript", "alias", p.alias, "path", p.rec.Path(), "err", err)
		}
	}
	_, err := p.ch.Inbound.Write(b)
	return err
}

func (p *Pane) Close() error {
	var err error
	p.closeOnce.Do(func() {
		_ = p.ch.Close()
		if p.rec != nil {
			err = p.rec.Close()
		}
		close(p.done)
		if p.onClose != nil {
			p.onClose(p)
		}
	})
	return err
}

// Output is the stream of remote bytes; it returns io.EOF once the pane is
// closed and drained.
func (p *Pane) Output() io.Reader { return p.ch.Inbound }

// Input is the stream of local keystrokes.
func (p *Pane) Input() io.Reader { return p.ch.Outbound }

// Keystroke queues local input typed into the pane.
func (p *Pane) Keystroke(b []byte) error {
	_, err := p.ch.Outbound.Write(b)
	return err
}

func (p *Pane) Done() <-chan struct{} { return p.done }

// Factory creates panes for the bridge.
type Factory struct {
	// RecordDir enables zstd transcripts, one file per alias.
	RecordDir string
	// FlushInterval, if set, flushes transcripts periodically so they can be
	// read while the pane is open. Otherwise they are complete on Close.
	FlushInterval time.Duration
	// OnCreate and OnClose run on the dispatcher.
	OnCreate func(*Pane)
	OnClose  func(*Pane)
	Logger   *slog.Logger
}

func (f *Factory) Create(spec mirror.SessionSpec) (mirror.Session, error) {
	logger := f.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	p := &Pane{
		alias:   spec.Alias,
		workdir: spec.Workdir,
		title:   spec.Title,
		ch:      NewChannel(),
		logger:  logger,
		onClose: f.OnClose,
		done:    make(chan struct{}),
	}
	if f.RecordDir != "" {
		rec, err := NewRecorder(f.RecordDir, spec.Alias)
		if err != nil {
			return nil, err
		}
		p.rec = rec
		if f.FlushInterval > 0 {
			go p.flushLoop(f.FlushInterval)
		}
	}
	if f.OnCreate != nil {
		f.OnCreate(p)
	}
	return p, nil
}

func (p *Pane) flushLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-p.Done():
			return
		case <-ticker.C:
			if err := p.rec.Flush(); err != nil {
				if errors.Is(err, os.ErrClosed) {
					return
				}
				p.logger.Warn("flush transcript", "alias", p.alias, "path", p.rec.Path(), "err", err)
				return
			}
		}
	}
}
