package config

import (
	"os"
	"time"
)

const (
	DefaultSupervisorAddr = "localhost:22999"
	DefaultTimeout        = 15 * time.Second
)

// Settings is the effective configuration for one run.
type Settings struct {
	SupervisorAddr string
	TLS            bool
	Timeout        time.Duration
	RecordDir      string
	NATSURL        string
	NATSSubject    string
	NATSUser       string
	NATSPassword   string
	ForwardInput   bool

	ConfigPath  string
	ContextName string
	Config      *Config
	Context     *Context
}

// Overrides carries command line values; zero values mean "not set".
type Overrides struct {
	SupervisorAddr string
	Timeout        time.Duration
	RecordDir      string
	NATSURL        string
	NATSSubject    string
	ForwardInput   bool
}

// ResolveSettings applies, in order of precedence:
// 1) flags
// 2) config file context
// 3) environment (TERMBRIDGE_SUPERVISOR_ADDR)
// 4) defaults (localhost:22999, 15s)
func ResolveSettings(configPath, contextName string, o Overrides) (*Settings, error) {
	s := &Settings{
		ConfigPath:     configPath,
		ContextName:    contextName,
		SupervisorAddr: o.SupervisorAddr,
		Timeout:        o.Timeout,
		RecordDir:      o.RecordDir,
		NATSURL:        o.NATSURL,
		NATSSubject:    o.NATSSubject,
		ForwardInput:   o.ForwardInput,
	}

	if s.ConfigPath != "" {
		cfg, err := Load(s.ConfigPath)
		if err != nil {
			return nil, err
		}
		s.Config = cfg
	}
	if s.Config != nil {
		ctx, name, err := s.Config.Resolve(s.ContextName)
		if err != nil {
			return nil, err
		}
		s.Context, s.ContextName = ctx, name
	}

	if c := s.Context; c != nil {
		if s.SupervisorAddr == "" {
			s.SupervisorAddr = c.Supervisor
		}
		if s.Timeout == 0 && c.TimeoutSeconds > 0 {
			s.Timeout = time.Duration(c.TimeoutSeconds) * time.Second
		}
		if s.RecordDir == "" {
			s.RecordDir = c.RecordDir
		}
		if s.NATSURL == "" {
			s.NATSURL = c.NATSURL
		}
		if s.NATSSubject == "" {
			s.NATSSubject = c.NATSSubject
		}
		s.NATSUser, s.NATSPassword = c.NATSUser, c.NATSPassword
		s.TLS = c.TLS
		s.ForwardInput = s.ForwardInput || c.ForwardInput
	}

	if s.SupervisorAddr == "" {
		s.SupervisorAddr = os.Getenv(SupervisorAddrEnv)
	}
	if s.SupervisorAddr == "" {
		s.SupervisorAddr = DefaultSupervisorAddr
	}
	if s.Timeout == 0 {
		s.Timeout = DefaultTimeout
	}
	return s, nil
}
