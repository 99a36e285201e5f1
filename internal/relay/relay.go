// Package relay republishes mirrored terminal activity on NATS subjects:
//
//	<prefix>.<alias>.title   new title
//	<prefix>.<alias>.data    raw output bytes
//	<prefix>.<alias>.closed  empty payload, once
package relay

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/antonkrylov/termbridge/internal/mirror"
)

const DefaultSubjectPrefix = "termbridge.terminals"

// Publisher is satisfied by *nats.Conn.
type Publisher interface {
	Publish(subject string, data []byte) error
}

var _ Publisher = (*nats.Conn)(nil)

// Connect dials NATS the same way for every termbridge process. user and
// password come from the config context; credentials embedded in url work
// too.
func Connect(url, user, password string) (*nats.Conn, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	return nats.Connect(url, connectOptions(user, password)...)
}

func connectOptions(user, password string) []nats.Option {
	opts := []nats.Option{nats.Name("termbridge")}
	if user != "" {
		opts = append(opts, nats.UserInfo(user, password))
	}
	return opts
}

// Factory wraps another SessionFactory so every session also publishes
// its activity. With a nil Next the sessions only publish.
type Factory struct {
	Next      mirror.SessionFactory
	Publisher Publisher
	Prefix    string
	Logger    *slog.Logger
}

func (f *Factory) Create(spec mirror.SessionSpec) (mirror.Session, error) {
	var next mirror.Session
	if f.Next != nil {
		s, err := f.Next.Create(spec)
		if err != nil {
			return nil, err
		}
		next = s
	}
	prefix := f.Prefix
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	logger := f.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	s := &session{
		next:   next,
		pub:    f.Publisher,
		base:   prefix + "." + SubjectToken(spec.Alias),
		alias:  spec.Alias,
		logger: logger,
	}
	s.publish("title", []byte(spec.Title))
	return s, nil
}

// SubjectToken turns alias into a single NATS subject token.
func SubjectToken(alias string) string {
	if alias == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, alias)
}

type session struct {
	next   mirror.Session
	pub    Publisher
	base   string
	alias  string
	logger *slog.Logger
}

func (s *session) publish(kind string, payload []byte) {
	if s.pub == nil {
		return
	}
	if err := s.pub.Publish(s.base+"."+kind, payload); err != nil {
		s.logger.Warn("relay publish", "alias", s.alias, "kind", kind, "err", err)
	}
}

func (s *session) SetTitle(title string) {
	if s.next != nil {
		s.next.SetTitle(title)
	}
	s.publish("title", []byte(title))
}

func (s *session) WriteData(p []byte) error {
	if s.next != nil {
		if err := s.next.WriteData(p); err != nil {
			return err
		}
	}
	s.publish("data", p)
	return nil
}

func (s *session) Close() error {
	s.publish("closed", nil)
	if s.next != nil {
		return s.next.Close()
	}
	return nil
}

// Input exposes the wrapped session's keystrokes, if it has any.
func (s *session) Input() io.Reader {
	if src, ok := s.next.(mirror.InputSource); ok {
		return src.Input()
	}
	return nil
}
