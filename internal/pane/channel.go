package pane

import (
	"bytes"
	"io"
	"sync"
)

// Pipe is an in-memory byte pipe whose writes never block. Reads block
// until data arrives or the pipe is closed; buffered data is still
// returned after Close, then io.EOF.
type Pipe struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    bytes.Buffer
	closed bool
}

func NewPipe() *Pipe {
	p := &Pipe{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func (p *Pipe) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, io.ErrClosedPipe
	}
	n, _ := p.buf.Write(b)
	p.cond.Broadcast()
	return n, nil
}

func (p *Pipe) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.buf.Len() == 0 && !p.closed {
		p.cond.Wait()
	}
	if p.buf.Len() == 0 {
		return 0, io.EOF
	}
	return p.buf.Read(b)
}

// Buffered reports how many bytes are waiting to be read.
func (p *Pipe) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.Len()
}

func (p *Pipe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.cond.Broadcast()
	return nil
}

// Channel is the duplex byte channel behind a pane: Inbound carries remote
// output to the pane's renderer, Outbound carries local keystrokes.
type Channel struct {
	Inbound  *Pipe
	Outbound *Pipe
}

func NewChannel() *Channel {
	return &Channel{Inbound: NewPipe(), Outbound: NewPipe()}
}

func (c *Channel) Close() error {
	_ = c.Inbound.Close()
	return c.Outbound.Close()
}
