package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_MissingFileIsNotAnError(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope"))
	if err != nil || cfg != nil {
		t.Fatalf("cfg=%v err=%v", cfg, err)
	}
}

func TestSaveLoadResolve(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config")
	in := &Config{
		CurrentContext: "ws",
		Contexts: map[string]*Context{
			"ws": {Supervisor: "10.0.0.2:22999", TimeoutSeconds: 3, RecordDir: "/tmp/rec"},
		},
	}
	if err := in.Save(path); err != nil {
		t.Fatal(err)
	}
	out, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	ctx, name, err := out.Resolve("")
	if err != nil {
		t.Fatal(err)
	}
	if name != "ws" || ctx.Supervisor != "10.0.0.2:22999" || ctx.RecordDir != "/tmp/rec" {
		t.Fatalf("name=%q ctx=%+v", name, ctx)
	}
	if _, _, err := out.Resolve("other"); !errors.Is(err, ErrContextNotFound) {
		t.Fatalf("err=%v", err)
	}
}

func TestResolveSettings_Precedence(t *testing.T) {
	t.Setenv("TERMBRIDGE_SUPERVISOR_ADDR", "env:1")
	path := writeConfig(t, `
currentContext: ws
contexts:
  ws:
    supervisor: file:1
    timeoutSeconds: 7
    natsURL: nats://file:4222
    forwardInput: true
`)

	s, err := ResolveSettings(path, "", Overrides{})
	if err != nil {
		t.Fatal(err)
	}
	if s.SupervisorAddr != "file:1" || s.Timeout != 7*time.Second || s.NATSURL != "nats://file:4222" || !s.ForwardInput {
		t.Fatalf("settings=%+v", s)
	}

	s, err = ResolveSettings(path, "", Overrides{SupervisorAddr: "flag:1", Timeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	if s.SupervisorAddr != "flag:1" || s.Timeout != time.Second {
		t.Fatalf("settings=%+v", s)
	}

	s, err = ResolveSettings("", "", Overrides{})
	if err != nil {
		t.Fatal(err)
	}
	if s.SupervisorAddr != "env:1" || s.Timeout != DefaultTimeout {
		t.Fatalf("settings=%+v", s)
	}

	t.Setenv("TERMBRIDGE_SUPERVISOR_ADDR", "")
	s, err = ResolveSettings("", "", Overrides{})
	if err != nil {
		t.Fatal(err)
	}
	if s.SupervisorAddr != DefaultSupervisorAddr {
		t.Fatalf("addr=%q", s.SupervisorAddr)
	}
}

func TestResolveSettings_UnknownContext(t *testing.T) {
	path := writeConfig(t, "contexts: {}\n")
	if _, err := ResolveSettings(path, "missing", Overrides{}); !errors.Is(err, ErrContextNotFound) {
		t.Fatalf("err=%v", err)
	}
}

func TestLoad_RejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "contexts:\n  ws:\n    supervisr: typo:1\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoad_Validates(t *testing.T) {
	cases := map[string]string{
		"negative timeout": "contexts:\n  ws:\n    timeoutSeconds: -1\n",
		"wildcard subject": "contexts:\n  ws:\n    natsSubject: terms.*\n",
		"missing current":  "currentContext: gone\ncontexts:\n  ws: {}\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body)); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoad_RecordDirRelativeToFile(t *testing.T) {
	path := writeConfig(t, "contexts:\n  ws:\n    recordDir: transcripts\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(filepath.Dir(path), "transcripts")
	if got := cfg.Contexts["ws"].RecordDir; got != want {
		t.Fatalf("recordDir=%q want %q", got, want)
	}
}

func TestContextNamesSorted(t *testing.T) {
	cfg := &Config{Contexts: map[string]*Context{"b": {}, "a": {}, "c": {}}}
	got := cfg.ContextNames()
	if len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Fatalf("names=%v", got)
	}
}

func TestDefaultConfigPathEnv(t *testing.T) {
	t.Setenv(ConfigEnv, "")
	t.Setenv(HomeEnv, "/srv/tb")
	if got := DefaultConfigPath(); got != filepath.Join("/srv/tb", "config") {
		t.Fatalf("path=%q", got)
	}
	t.Setenv(ConfigEnv, "/etc/termbridge.yaml")
	if got := DefaultConfigPath(); got != "/etc/termbridge.yaml" {
		t.Fatalf("path=%q", got)
	}
}

func TestResolveSettings_NATSCredentials(t *testing.T) {
	path := writeConfig(t, `
currentContext: ws
contexts:
  ws:
    natsURL: nats://relay:4222
    natsUser: bridge
    natsPassword: s3cret
`)
	s, err := ResolveSettings(path, "", Overrides{})
	if err != nil {
		t.Fatal(err)
	}
	if s.NATSUser != "bridge" || s.NATSPassword != "s3cret" {
		t.Fatalf("user=%q password=%q", s.NATSUser, s.NATSPassword)
	}

	path = writeConfig(t, "contexts:\n  ws:\n    natsPassword: orphan\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for password without user")
	}
}
