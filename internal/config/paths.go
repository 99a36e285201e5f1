package config

import (
	"os"
	"path/filepath"
)

// Environment variables consulted when flags and the config file are silent.
const (
	HomeEnv           = "TERMBRIDGE_HOME"
	ConfigEnv         = "TERMBRIDGE_CONFIG"
	SupervisorAddrEnv = "TERMBRIDGE_SUPERVISOR_ADDR"
)

// DefaultConfigDir is $TERMBRIDGE_HOME, else ~/.termbridge. Logs and the
// default config live here.
func DefaultConfigDir() string {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".termbridge")
	}
	return ".termbridge"
}

func DefaultConfigPath() string {
	if path := os.Getenv(ConfigEnv); path != "" {
		return path
	}
	return filepath.Join(DefaultConfigDir(), "config")
}
