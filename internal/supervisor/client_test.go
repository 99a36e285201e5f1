package supervisor_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/antonkrylov/termbridge/internal/supervisor"
)

type fakeTerminalService struct {
	supervisor.UnimplementedTerminalServiceServer

	terminals []*supervisor.Terminal
	frames    map[string][]*supervisor.ListenTerminalResponse
	failAfter map[string]bool
	hold      map[string]bool

	mu      sync.Mutex
	written map[string][]byte
}

func (f *fakeTerminalService) List(context.Context, *supervisor.ListTerminalsRequest) (*supervisor.ListTerminalsResponse, error) {
	return &supervisor.ListTerminalsResponse{Terminals: f.terminals}, nil
}

func (f *fakeTerminalService) Listen(req *supervisor.ListenTerminalRequest, stream grpc.ServerStreamingServer[supervisor.ListenTerminalResponse]) error {
	frames, ok := f.frames[req.Alias]
	if !ok {
		return status.Error(codes.NotFound, "terminal not found")
	}
	for _, fr := range frames {
		if err := stream.Send(fr); err != nil {
			return err
		}
	}
	if f.failAfter[req.Alias] {
		return status.Error(codes.Internal, "pty gone")
	}
	if f.hold[req.Alias] {
		<-stream.Context().Done()
		return stream.Context().Err()
	}
	return nil
}

func (f *fakeTerminalService) Write(_ context.Context, req *supervisor.WriteTerminalRequest) (*supervisor.WriteTerminalResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.written == nil {
		f.written = make(map[string][]byte)
	}
	f.written[req.Alias] = append(f.written[req.Alias], req.Stdin...)
	return &supervisor.WriteTerminalResponse{BytesWritten: uint32(len(req.Stdin))}, nil
}

func startFake(t *testing.T, svc *fakeTerminalService) *supervisor.Client {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	s := grpc.NewServer(supervisor.ServerCodec())
	supervisor.RegisterTerminalServiceServer(s, svc)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ch, err := supervisor.Dial(ctx, lis.Addr().String(), supervisor.DialInsecure)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = ch.Close() })
	return supervisor.NewClient(ch)
}

func TestClient_ListReturnsSnapshotInOrder(t *testing.T) {
	c := startFake(t, &fakeTerminalService{terminals: []*supervisor.Terminal{
		{Alias: "t1", Title: "bash", CurrentWorkdir: "/workspace"},
		{Alias: "t2", Title: "npm"},
	}})
	terms, err := c.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(terms) != 2 || terms[0].Alias != "t1" || terms[1].Alias != "t2" {
		t.Fatalf("terms=%+v", terms)
	}
	if terms[0].Title != "bash" || terms[0].Workdir() != "/workspace" {
		t.Fatalf("t1=%+v", terms[0])
	}
}

func TestClient_ListenPreservesOrder(t *testing.T) {
	c := startFake(t, &fakeTerminalService{frames: map[string][]*supervisor.ListenTerminalResponse{
		"t1": {
			{Kind: supervisor.EventTitle, Title: "bash"},
			{Kind: supervisor.EventData, Data: []byte("hel")},
			{Kind: supervisor.EventData, Data: []byte("lo\n")},
			{Kind: supervisor.EventExit, ExitCode: 0},
		},
	}})
	sub, err := c.Listen(context.Background(), "t1")
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	var kinds []supervisor.EventKind
	var data bytes.Buffer
	for {
		ev, err := sub.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		kinds = append(kinds, ev.Kind)
		data.Write(ev.Data)
	}
	want := []supervisor.EventKind{supervisor.EventTitle, supervisor.EventData, supervisor.EventData, supervisor.EventExit}
	if len(kinds) != len(want) {
		t.Fatalf("kinds=%v", kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("kinds=%v want %v", kinds, want)
		}
	}
	if data.String() != "hello\n" {
		t.Fatalf("data=%q", data.String())
	}
}

func TestClient_ListenStreamErrorIsTyped(t *testing.T) {
	c := startFake(t, &fakeTerminalService{
		frames:    map[string][]*supervisor.ListenTerminalResponse{"t2": {{Kind: supervisor.EventData, Data: []byte("x")}}},
		failAfter: map[string]bool{"t2": true},
	})
	sub, err := c.Listen(context.Background(), "t2")
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()
	if _, err := sub.Recv(); err != nil {
		t.Fatal(err)
	}
	_, err = sub.Recv()
	var se *supervisor.StreamError
	if !errors.As(err, &se) || se.Alias != "t2" {
		t.Fatalf("err=%v, want StreamError for t2", err)
	}
	if status.Code(errors.Unwrap(err)) != codes.Internal {
		t.Fatalf("code=%v", status.Code(errors.Unwrap(err)))
	}
}

func TestClient_CloseUnblocksRecv(t *testing.T) {
	c := startFake(t, &fakeTerminalService{
		frames: map[string][]*supervisor.ListenTerminalResponse{"t1": nil},
		hold:   map[string]bool{"t1": true},
	})
	sub, err := c.Listen(context.Background(), "t1")
	if err != nil {
		t.Fatal(err)
	}
	errc := make(chan error, 1)
	go func() {
		_, err := sub.Recv()
		errc <- err
	}()
	time.Sleep(50 * time.Millisecond)
	sub.Close()
	sub.Close()
	select {
	case err := <-errc:
		if !errors.Is(err, supervisor.ErrSubscriptionClosed) {
			t.Fatalf("err=%v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Recv did not return after Close")
	}
}

func TestClient_Write(t *testing.T) {
	svc := &fakeTerminalService{}
	c := startFake(t, svc)
	n, err := c.Write(context.Background(), "t1", []byte("ls\n"))
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("bytesWritten=%d", n)
	}
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if string(svc.written["t1"]) != "ls\n" {
		t.Fatalf("written=%q", svc.written["t1"])
	}
}

func TestClient_ListOnDeadChannelIsConnectionError(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	s := grpc.NewServer(supervisor.ServerCodec())
	supervisor.RegisterTerminalServiceServer(s, &fakeTerminalService{})
	go func() { _ = s.Serve(lis) }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ch, err := supervisor.Dial(ctx, lis.Addr().String(), supervisor.DialInsecure)
	if err != nil {
		t.Fatal(err)
	}
	defer ch.Close()
	s.Stop()

	callCtx, callCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer callCancel()
	_, err = supervisor.NewClient(ch).List(callCtx)
	var ce *supervisor.ConnectionError
	if !errors.As(err, &ce) || ce.Op != "list" {
		t.Fatalf("err=%v, want ConnectionError", err)
	}
}

func TestNewChannel_WrapsExternalConn(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	s := grpc.NewServer(supervisor.ServerCodec())
	supervisor.RegisterTerminalServiceServer(s, &fakeTerminalService{terminals: []*supervisor.Terminal{{Alias: "t1"}}})
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	addr := lis.Addr().String()
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatal(err)
	}
	ch := supervisor.NewChannel(conn)
	defer ch.Close()
	if ch.Addr() != addr {
		t.Fatalf("addr=%q want %q", ch.Addr(), addr)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	terms, err := supervisor.NewClient(ch).List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(terms) != 1 || terms[0].Alias != "t1" {
		t.Fatalf("terms=%+v", terms)
	}
}

func TestDial_ChannelAddr(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	s := grpc.NewServer(supervisor.ServerCodec())
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ch, err := supervisor.Dial(ctx, lis.Addr().String(), supervisor.DialInsecure)
	if err != nil {
		t.Fatal(err)
	}
	defer ch.Close()
	if ch.Addr() != lis.Addr().String() {
		t.Fatalf("addr=%q", ch.Addr())
	}
}
