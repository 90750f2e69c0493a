// Package config resolves the application home directory layout and loads
// the optional YAML config file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const HomeVarName = "TERMWORK_HOME"
const DefaultHomeDirName = ".termwork"
const ConfigFileName = "config.yaml"
const ScreensDirBaseName = "screens"
const SessionsDirBaseName = "sessions"

// Config is the on-disk configuration. Zero values fall back to defaults.
type Config struct {
	HomeDir         string `yaml:"homedir,omitempty"`
	ListenAddr      string `yaml:"listenaddr,omitempty"`
	FlushTimeoutMs  int    `yaml:"flushtimeoutms,omitempty"`
	Debug           bool   `yaml:"debug,omitempty"`
	SSHConfigImport bool   `yaml:"sshconfigimport,omitempty"`
	SSHConfigPath   string `yaml:"sshconfigpath,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ListenAddr:     "127.0.0.1:1619",
		FlushTimeoutMs: 1000,
	}
}

// GetHomeDir returns the application home: $TERMWORK_HOME or ~/.termwork.
func GetHomeDir() string {
	if envHome := os.Getenv(HomeVarName); envHome != "" {
		return envHome
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return DefaultHomeDirName
	}
	return filepath.Join(userHome, DefaultHomeDirName)
}

func GetScreensDir() string {
	return filepath.Join(GetHomeDir(), ScreensDirBaseName)
}

func GetSessionsDir() string {
	return filepath.Join(GetHomeDir(), SessionsDirBaseName)
}

// EnsureDir creates a directory (and parents) if needed.
func EnsureDir(dirName string) error {
	if err := os.MkdirAll(dirName, 0700); err != nil {
		return fmt.Errorf("cannot create directory %s: %w", dirName, err)
	}
	return nil
}

// EnsureDirs creates the home layout.
func EnsureDirs() error {
	for _, dir := range []string{GetHomeDir(), GetScreensDir(), GetSessionsDir()} {
		if err := EnsureDir(dir); err != nil {
			return err
		}
	}
	return nil
}

// Load reads <home>/config.yaml, returning defaults when the file does not
// exist.
func Load() (*Config, error) {
	cfg := Default()
	configPath := filepath.Join(GetHomeDir(), ConfigFileName)
	body, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(body, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", configPath, err)
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = Default().ListenAddr
	}
	if cfg.FlushTimeoutMs <= 0 {
		cfg.FlushTimeoutMs = Default().FlushTimeoutMs
	}
	return cfg, nil
}
