package tui

import "unicode/utf8"

const (
	esc = 0x1b
	bel = 0x07

	// maxCarry bounds how much of an unterminated sequence is held back
	// waiting for the next chunk.
	maxCarry = 4096
)

// splitIncomplete splits b before a trailing escape sequence or UTF-8
// rune that the chunk boundary cut short. rest should be prepended to the
// next chunk.
func splitIncomplete(b []byte) (complete, rest []byte) {
	for i := len(b) - 1; i >= 0 && len(b)-i <= maxCarry; i-- {
		if b[i] != esc {
			continue
		}
		if !sequenceDone(b[i:]) {
			return b[:i], b[i:]
		}
		break
	}
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if !utf8.FullRune(b[i:]) {
				return b[:i], b[i:]
			}
			break
		}
	}
	return b, nil
}

// sequenceDone reports whether seq, which starts with ESC and contains no
// later ESC, is a finished sequence.
func sequenceDone(seq []byte) bool {
	if len(seq) < 2 {
		return false
	}
	switch seq[1] {
	case '[':
		for _, c := range seq[2:] {
			if c >= 0x40 && c <= 0x7e {
				return true
			}
		}
		return false
	case ']':
		for _, c := range seq[2:] {
			if c == bel {
				return true
			}
		}
		return false
	case 'P', 'X', '^', '_':
		// ended by ESC \, which would be a later ESC
		return false
	}
	for _, c := range seq[1:] {
		if c < 0x20 || c > 0x2f {
			return true
		}
	}
	return false
}
