package tui

import (
	"fmt"
	"strings"
)

// scrollback holds the tail of one pane's output. Output arrives in
// arbitrary chunks, so a chunk that does not start a new line extends the
// last one.
type scrollback struct {
	lines    []string
	size     int
	maxLines int
	maxBytes int
	dropped  int
}

func newScrollback(maxLines, maxBytes int) *scrollback {
	return &scrollback{maxLines: maxLines, maxBytes: maxBytes}
}

func (s *scrollback) Append(text string) {
	for text != "" {
		line, rest, found := strings.Cut(text, "\n")
		if found {
			line += "\n"
		}
		text = rest
		if n := len(s.lines); n > 0 && !strings.HasSuffix(s.lines[n-1], "\n") {
			s.lines[n-1] += line
		} else {
			s.lines = append(s.lines, line)
		}
		s.size += len(line)
	}
	s.evict()
}

func (s *scrollback) evict() {
	n := 0
	for n < len(s.lines)-1 && (s.maxLines > 0 && len(s.lines)-n > s.maxLines || s.maxBytes > 0 && s.size > s.maxBytes) {
		s.size -= len(s.lines[n])
		n++
	}
	if n > 0 {
		s.dropped += n
		s.lines = append([]string(nil), s.lines[n:]...)
	}
}

func (s *scrollback) Content() string {
	var b strings.Builder
	if s.dropped > 0 {
		fmt.Fprintf(&b, "[%d earlier lines dropped]\n", s.dropped)
	}
	for _, l := range s.lines {
		b.WriteString(l)
	}
	return b.String()
}
