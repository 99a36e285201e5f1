package mirror

import "io"

// SessionSpec describes the local pane to create for one remote terminal.
type SessionSpec struct {
	Alias   string
	Title   string
	Workdir string
}

// Session is the host's local pane. Every method is only called from the
// bridge's Dispatcher.
type Session interface {
	SetTitle(title string)
	WriteData(p []byte) error
	Close() error
}

// SessionFactory creates local panes. Create runs on the Dispatcher too.
type SessionFactory interface {
	Create(spec SessionSpec) (Session, error)
}

// SessionFactoryFunc adapts a function to SessionFactory.
type SessionFactoryFunc func(spec SessionSpec) (Session, error)

func (f SessionFactoryFunc) Create(spec SessionSpec) (Session, error) { return f(spec) }

// InputSource is implemented by sessions that expose local keystrokes.
// The bridge only reads it when Config.ForwardInput is set.
type InputSource interface {
	Input() io.Reader
}
