package supervisor

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
)

type SecurityMode int

const (
	DialInsecure SecurityMode = iota
	DialTLS
)

const userAgent = "termbridge"

// Channel is the process-wide connection to the supervisor. It is safe for
// concurrent calls and streams; Close tears it down for every user.
type Channel struct {
	addr string
	conn *grpc.ClientConn
}

// Dial blocks until the supervisor at addr is reachable or ctx expires.
// Extra options are applied after the defaults.
func Dial(ctx context.Context, addr string, mode SecurityMode, extra ...grpc.DialOption) (*Channel, error) {
	opts := append(defaultDialOptions(addr, mode), extra...)
	conn, err := grpc.DialContext(ctx, addr, opts...)
	if err != nil {
		return nil, &ConnectionError{Op: "dial " + addr, Err: err}
	}
	return &Channel{addr: addr, conn: conn}, nil
}

func defaultDialOptions(addr string, mode SecurityMode) []grpc.DialOption {
	return []grpc.DialOption{
		grpc.WithTransportCredentials(transportCredentials(addr, mode)),
		grpc.WithUserAgent(userAgent),
		grpc.WithBlock(),
		// Listen streams sit idle while a terminal is quiet. Pinging more
		// often than the server's MinTime gets the connection a GOAWAY.
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:    5 * time.Minute,
			Timeout: 20 * time.Second,
		}),
		grpc.WithConnectParams(grpc.ConnectParams{
			Backoff: backoff.Config{
				BaseDelay:  250 * time.Millisecond,
				Multiplier: 1.6,
				Jitter:     0.2,
				MaxDelay:   5 * time.Second,
			},
			MinConnectTimeout: 10 * time.Second,
		}),
	}
}

func transportCredentials(addr string, mode SecurityMode) credentials.TransportCredentials {
	if mode != DialTLS {
		return insecure.NewCredentials()
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	return credentials.NewTLS(&tls.Config{ServerName: host, MinVersion: tls.VersionTLS12})
}

// NewChannel wraps a connection built elsewhere, e.g. with grpc.NewClient
// and custom options; the Channel takes ownership of it.
func NewChannel(conn *grpc.ClientConn) *Channel {
	return &Channel{addr: conn.Target(), conn: conn}
}

func (c *Channel) Addr() string { return c.addr }

func (c *Channel) Conn() grpc.ClientConnInterface { return c.conn }

func (c *Channel) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
