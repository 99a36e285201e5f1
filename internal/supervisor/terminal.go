package supervisor

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// TitleSource reports who last set a terminal title.
type TitleSource int32

const (
	TitleSourceProcess TitleSource = 0
	TitleSourceAPI     TitleSource = 1
)

func (s TitleSource) String() string {
	switch s {
	case TitleSourceProcess:
		return "process"
	case TitleSourceAPI:
		return "api"
	default:
		return fmt.Sprintf("TitleSource(%d)", int32(s))
	}
}

// Terminal describes one terminal owned by the supervisor.
type Terminal struct {
	Alias          string
	Command        []string
	Title          string
	Pid            int64
	InitialWorkdir string
	CurrentWorkdir string
	Annotations    map[string]string
	TitleSource    TitleSource
}

// Workdir is the directory a local mirror should open in.
func (t *Terminal) Workdir() string {
	if t.CurrentWorkdir != "" {
		return t.CurrentWorkdir
	}
	return t.InitialWorkdir
}

func (t *Terminal) appendWire(b []byte) []byte {
	b = appendString(b, 1, t.Alias)
	for _, arg := range t.Command {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendString(b, arg)
	}
	b = appendString(b, 3, t.Title)
	if t.Pid != 0 {
		b = protowire.AppendTag(b, 4, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(t.Pid))
	}
	b = appendString(b, 5, t.InitialWorkdir)
	b = appendString(b, 6, t.CurrentWorkdir)
	for k, v := range t.Annotations {
		var entry []byte
		entry = appendString(entry, 1, k)
		entry = appendString(entry, 2, v)
		b = protowire.AppendTag(b, 7, protowire.BytesType)
		b = protowire.AppendBytes(b, entry)
	}
	if t.TitleSource != 0 {
		b = protowire.AppendTag(b, 8, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(t.TitleSource))
	}
	return b
}

func (t *Terminal) unmarshalWire(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			t.Alias = v
			return n
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n >= 0 {
				t.Command = append(t.Command, v)
			}
			return n
		case num == 3 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			t.Title = v
			return n
		case num == 4 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			t.Pid = int64(v)
			return n
		case num == 5 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			t.InitialWorkdir = v
			return n
		case num == 6 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			t.CurrentWorkdir = v
			return n
		case num == 7 && typ == protowire.BytesType:
			entry, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n
			}
			var key, value string
			err := walkFields(entry, func(num protowire.Number, typ protowire.Type, b []byte) int {
				switch {
				case num == 1 && typ == protowire.BytesType:
					v, n := protowire.ConsumeString(b)
					key = v
					return n
				case num == 2 && typ == protowire.BytesType:
					v, n := protowire.ConsumeString(b)
					value = v
					return n
				default:
					return protowire.ConsumeFieldValue(num, typ, b)
				}
			})
			if err != nil {
				return -1
			}
			if t.Annotations == nil {
				t.Annotations = make(map[string]string)
			}
			t.Annotations[key] = value
			return n
		case num == 8 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			t.TitleSource = TitleSource(int32(v))
			return n
		default:
			return protowire.ConsumeFieldValue(num, typ, b)
		}
	})
}

type ListTerminalsRequest struct{}

func (*ListTerminalsRequest) appendWire(b []byte) []byte { return b }

func (*ListTerminalsRequest) unmarshalWire(b []byte) error { return skipAll(b) }

type ListTerminalsResponse struct {
	Terminals []*Terminal
}

func (r *ListTerminalsResponse) appendWire(b []byte) []byte {
	for _, t := range r.Terminals {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, t.appendWire(nil))
	}
	return b
}

func (r *ListTerminalsResponse) unmarshalWire(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		if num != 1 || typ != protowire.BytesType {
			return protowire.ConsumeFieldValue(num, typ, b)
		}
		raw, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return n
		}
		t := new(Terminal)
		if err := t.unmarshalWire(raw); err != nil {
			return -1
		}
		r.Terminals = append(r.Terminals, t)
		return n
	})
}

type ListenTerminalRequest struct {
	Alias string
}

func (r *ListenTerminalRequest) appendWire(b []byte) []byte {
	return appendString(b, 1, r.Alias)
}

func (r *ListenTerminalRequest) unmarshalWire(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		if num == 1 && typ == protowire.BytesType {
			v, n := protowire.ConsumeString(b)
			r.Alias = v
			return n
		}
		return protowire.ConsumeFieldValue(num, typ, b)
	})
}

// ListenTerminalResponse is one frame of a Listen stream. Data, ExitCode and
// Title form a oneof; Kind records which member was present on the wire.
type ListenTerminalResponse struct {
	Kind        EventKind
	Data        []byte
	ExitCode    int32
	Title       string
	TitleSource TitleSource
}

// Event converts the frame into the value handed to stream consumers.
func (r *ListenTerminalResponse) Event() Event {
	ev := Event{Kind: r.Kind, TitleSource: r.TitleSource}
	switch r.Kind {
	case EventData:
		ev.Data = r.Data
	case EventExit:
		ev.ExitCode = r.ExitCode
	case EventTitle:
		ev.Title = r.Title
	}
	return ev
}

func (r *ListenTerminalResponse) appendWire(b []byte) []byte {
	// oneof members are written even when they hold the zero value
	switch r.Kind {
	case EventData:
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, r.Data)
	case EventExit:
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(int64(r.ExitCode)))
	case EventTitle:
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendString(b, r.Title)
	}
	if r.TitleSource != 0 {
		b = protowire.AppendTag(b, 4, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(r.TitleSource))
	}
	return b
}

func (r *ListenTerminalResponse) unmarshalWire(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			r.Kind, r.Data = EventData, append([]byte{}, v...)
			return n
		case num == 2 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			r.Kind, r.ExitCode = EventExit, int32(v)
			return n
		case num == 3 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			r.Kind, r.Title = EventTitle, v
			return n
		case num == 4 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			r.TitleSource = TitleSource(int32(v))
			return n
		default:
			return protowire.ConsumeFieldValue(num, typ, b)
		}
	})
}

type WriteTerminalRequest struct {
	Alias string
	Stdin []byte
}

func (r *WriteTerminalRequest) appendWire(b []byte) []byte {
	b = appendString(b, 1, r.Alias)
	if len(r.Stdin) > 0 {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, r.Stdin)
	}
	return b
}

func (r *WriteTerminalRequest) unmarshalWire(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			r.Alias = v
			return n
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			r.Stdin = append([]byte{}, v...)
			return n
		default:
			return protowire.ConsumeFieldValue(num, typ, b)
		}
	})
}

type WriteTerminalResponse struct {
	BytesWritten uint32
}

func (r *WriteTerminalResponse) appendWire(b []byte) []byte {
	if r.BytesWritten == 0 {
		return b
	}
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(r.BytesWritten))
}

func (r *WriteTerminalResponse) unmarshalWire(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		if num == 1 && typ == protowire.VarintType {
			v, n := protowire.ConsumeVarint(b)
			r.BytesWritten = uint32(v)
			return n
		}
		return protowire.ConsumeFieldValue(num, typ, b)
	})
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

// walkFields calls field for every tag in b. field returns the number of
// value bytes it consumed, or a negative protowire error code.
func walkFields(b []byte, field func(num protowire.Number, typ protowire.Type, b []byte) int) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		n = field(num, typ, b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
	}
	return nil
}

func skipAll(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		return protowire.ConsumeFieldValue(num, typ, b)
	})
}
