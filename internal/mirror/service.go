package mirror

import (
	"context"

	"github.com/antonkrylov/termbridge/internal/supervisor"
)

// TerminalService is what the bridge needs from the supervisor.
type TerminalService interface {
	List(ctx context.Context) ([]*supervisor.Terminal, error)
	Listen(ctx context.Context, alias string) (Subscription, error)
	Write(ctx context.Context, alias string, p []byte) (uint32, error)
}

// Subscription is an open per-alias event stream.
type Subscription interface {
	Recv() (supervisor.Event, error)
	Close()
}

// ClientService adapts a supervisor.Client.
func ClientService(c *supervisor.Client) TerminalService {
	return clientService{c: c}
}

type clientService struct {
	c *supervisor.Client
}

func (s clientService) List(ctx context.Context) ([]*supervisor.Terminal, error) {
	return s.c.List(ctx)
}

func (s clientService) Listen(ctx context.Context, alias string) (Subscription, error) {
	sub, err := s.c.Listen(ctx, alias)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (s clientService) Write(ctx context.Context, alias string, p []byte) (uint32, error) {
	return s.c.Write(ctx, alias, p)
}
