package supervisor

import (
	"context"
	"errors"
	"io"
	"sync"

	"google.golang.org/grpc"
)

// Client calls the supervisor terminal service over a shared Channel.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(ch *Channel) *Client {
	return &Client{cc: ch.Conn()}
}

// List returns the terminals the supervisor knows right now. The result is
// a snapshot; it is never updated. Failures are *ConnectionError and are
// not retried.
func (c *Client) List(ctx context.Context) ([]*Terminal, error) {
	out := new(ListTerminalsResponse)
	if err := c.cc.Invoke(ctx, listFullMethod, &ListTerminalsRequest{}, out, CallCodec()); err != nil {
		return nil, &ConnectionError{Op: "list", Err: err}
	}
	return out.Terminals, nil
}

// Listen opens the event stream for alias. The caller owns the returned
// subscription and must Close it.
func (c *Client) Listen(ctx context.Context, alias string) (*Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	cs, err := c.cc.NewStream(ctx, &listenStreamDesc, listenFullMethod, CallCodec())
	if err != nil {
		cancel()
		return nil, &ConnectionError{Op: "listen " + alias, Err: err}
	}
	stream := &grpc.GenericClientStream[ListenTerminalRequest, ListenTerminalResponse]{ClientStream: cs}
	if err := stream.SendMsg(&ListenTerminalRequest{Alias: alias}); err != nil {
		cancel()
		return nil, &ConnectionError{Op: "listen " + alias, Err: err}
	}
	if err := stream.CloseSend(); err != nil {
		cancel()
		return nil, &ConnectionError{Op: "listen " + alias, Err: err}
	}
	return &Subscription{alias: alias, stream: stream, cancel: cancel}, nil
}

// Write sends stdin bytes to the remote terminal.
func (c *Client) Write(ctx context.Context, alias string, p []byte) (uint32, error) {
	out := new(WriteTerminalResponse)
	if err := c.cc.Invoke(ctx, writeFullMethod, &WriteTerminalRequest{Alias: alias, Stdin: p}, out, CallCodec()); err != nil {
		return 0, &ConnectionError{Op: "write " + alias, Err: err}
	}
	return out.BytesWritten, nil
}

// Subscription is one open Listen stream.
type Subscription struct {
	alias  string
	stream grpc.ServerStreamingClient[ListenTerminalResponse]
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// Recv blocks for the next event. It returns io.EOF when the supervisor
// ends the stream, ErrSubscriptionClosed after Close and *StreamError for
// any other failure.
func (s *Subscription) Recv() (Event, error) {
	resp, err := s.stream.Recv()
	if err != nil {
		if s.isClosed() {
			return Event{}, ErrSubscriptionClosed
		}
		if errors.Is(err, io.EOF) {
			return Event{}, io.EOF
		}
		return Event{}, &StreamError{Alias: s.alias, Err: err}
	}
	return resp.Event(), nil
}

// Close cancels the stream. It is safe to call from any goroutine and more
// than once.
func (s *Subscription) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
}

func (s *Subscription) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
