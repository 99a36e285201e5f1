package devsupervisor

const maxOSCPayload = 512

type oscState int

const (
	oscGround oscState = iota
	oscEscape
	oscPayload
	oscPayloadEscape
)

// titleScanner picks OSC 0 and OSC 2 window title sequences out of
// terminal output. Sequences may span chunks.
type titleScanner struct {
	state   oscState
	payload []byte
}

func (s *titleScanner) Scan(p []byte) []string {
	var titles []string
	for _, c := range p {
		switch s.state {
		case oscGround:
			if c == 0x1b {
				s.state = oscEscape
			}
		case oscEscape:
			switch c {
			case ']':
				s.state = oscPayload
				s.payload = s.payload[:0]
			case 0x1b:
			default:
				s.state = oscGround
			}
		case oscPayload:
			switch c {
			case 0x07:
				titles = s.finish(titles)
			case 0x1b:
				s.state = oscPayloadEscape
			default:
				if len(s.payload) < maxOSCPayload {
					s.payload = append(s.payload, c)
				}
			}
		case oscPayloadEscape:
			if c == '\\' {
				titles = s.finish(titles)
			} else {
				s.state = oscGround
			}
		}
	}
	return titles
}

func (s *titleScanner) finish(titles []string) []string {
	s.state = oscGround
	p := s.payload
	if len(p) >= 2 && (p[0] == '0' || p[0] == '2') && p[1] == ';' {
		titles = append(titles, string(p[2:]))
	}
	return titles
}
