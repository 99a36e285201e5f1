// Package devsupervisor is a small stand-in for the workspace supervisor's
// terminal service. It runs real processes on PTYs so the mirroring bridge
// can be exercised without a workspace.
package devsupervisor

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"

	"github.com/antonkrylov/termbridge/internal/supervisor"
)

type TerminalConfig struct {
	Title   string
	Command []string
	Workdir string
	Env     map[string]string
}

type Config struct {
	ListenAddr string
	Terminals  []TerminalConfig
	Logger     *slog.Logger
}

type Server struct {
	supervisor.UnimplementedTerminalServiceServer

	cfg Config

	grpcServer *grpc.Server
	listener   net.Listener

	mu        sync.Mutex
	terminals map[string]*terminal
	order     []string
}

func New(cfg Config) (*Server, error) {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:22999"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	for i, tc := range cfg.Terminals {
		if len(tc.Command) == 0 {
			return nil, fmt.Errorf("terminal %d: command is required", i)
		}
	}
	return &Server{cfg: cfg, terminals: make(map[string]*terminal)}, nil
}

// Start opens the configured terminals and serves the terminal service
// until ctx is done or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	for _, tc := range s.cfg.Terminals {
		if _, err := s.Open(tc); err != nil {
			s.Stop()
			return err
		}
	}

	lis, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		s.Stop()
		return err
	}
	s.listener = lis

	s.grpcServer = grpc.NewServer(
		supervisor.ServerCodec(),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    60 * time.Second,
			Timeout: 20 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             20 * time.Second,
			PermitWithoutStream: true,
		}),
	)
	supervisor.RegisterTerminalServiceServer(s.grpcServer, s)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	go func() {
		if err := s.grpcServer.Serve(lis); err != nil {
			s.cfg.Logger.Warn("terminal service stopped", "err", err)
		}
	}()
	s.cfg.Logger.Info("terminal service listening", "addr", lis.Addr().String(), "terminals", len(s.cfg.Terminals))
	return nil
}

// Open starts a new terminal and returns its description.
func (s *Server) Open(tc TerminalConfig) (*supervisor.Terminal, error) {
	if len(tc.Command) == 0 {
		return nil, fmt.Errorf("command is required")
	}
	alias := uuid.NewString()
	t, err := startTerminal(alias, tc)
	if err != nil {
		return nil, fmt.Errorf("start %q: %w", tc.Command[0], err)
	}
	s.mu.Lock()
	s.terminals[alias] = t
	s.order = append(s.order, alias)
	s.mu.Unlock()
	s.cfg.Logger.Info("terminal opened", "alias", alias, "command", tc.Command, "pid", t.pid)
	go func() {
		<-t.done
		_, code := t.exitStatus()
		s.cfg.Logger.Info("terminal exited", "alias", alias, "exit_code", code)
	}()
	return t.info(), nil
}

func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) Stop() {
	if s.grpcServer != nil {
		s.grpcServer.Stop()
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.mu.Lock()
	terms := make([]*terminal, 0, len(s.terminals))
	for _, t := range s.terminals {
		terms = append(terms, t)
	}
	s.mu.Unlock()
	for _, t := range terms {
		t.kill()
	}
}

// List reports running terminals in the order they were opened.
func (s *Server) List(context.Context, *supervisor.ListTerminalsRequest) (*supervisor.ListTerminalsResponse, error) {
	s.mu.Lock()
	aliases := append([]string(nil), s.order...)
	s.mu.Unlock()

	resp := &supervisor.ListTerminalsResponse{}
	for _, alias := range aliases {
		t, err := s.get(alias)
		if err != nil || t.hasExited() {
			continue
		}
		resp.Terminals = append(resp.Terminals, t.info())
	}
	return resp, nil
}

func (s *Server) Listen(req *supervisor.ListenTerminalRequest, stream grpc.ServerStreamingServer[supervisor.ListenTerminalResponse]) error {
	t, err := s.get(req.Alias)
	if err != nil {
		return err
	}
	initial, l, id := t.subscribe()
	if l != nil {
		defer t.unsubscribe(id)
	}
	for _, frame := range initial {
		if err := stream.Send(frame); err != nil {
			return err
		}
	}
	if l == nil {
		return nil
	}
	for {
		select {
		case <-stream.Context().Done():
			return stream.Context().Err()
		case frame, ok := <-l.frames:
			if !ok {
				if l.overflow {
					return status.Error(codes.ResourceExhausted, "listener fell behind")
				}
				return nil
			}
			if err := stream.Send(frame); err != nil {
				return err
			}
		}
	}
}

func (s *Server) Write(_ context.Context, req *supervisor.WriteTerminalRequest) (*supervisor.WriteTerminalResponse, error) {
	t, err := s.get(req.Alias)
	if err != nil {
		return nil, err
	}
	n, err := t.write(req.Stdin)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return &supervisor.WriteTerminalResponse{BytesWritten: uint32(n)}, nil
}

func (s *Server) get(alias string) (*terminal, error) {
	if alias == "" {
		return nil, status.Error(codes.InvalidArgument, "alias is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.terminals[alias]
	if t == nil {
		return nil, status.Error(codes.NotFound, "terminal not found")
	}
	return t, nil
}
