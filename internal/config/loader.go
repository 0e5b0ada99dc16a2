package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var current atomic.Pointer[Config]

var (
	onReloadMu        sync.Mutex
	onReloadCallbacks []func(*Config)
)

// Get returns the current in-memory config (hot-reloaded when the file changes).
func Get() *Config {
	if c := current.Load(); c != nil {
		return c
	}
	return DefaultConfig()
}

// Set sets the current in-memory config. Used at startup and by the file watcher.
func Set(c *Config) {
	if c != nil {
		current.Store(c)
	}
}

// RegisterOnReload registers a callback that runs after config is hot-reloaded.
func RegisterOnReload(fn func(*Config)) {
	onReloadMu.Lock()
	defer onReloadMu.Unlock()
	onReloadCallbacks = append(onReloadCallbacks, fn)
}

func notifyReload(cfg *Config) {
	onReloadMu.Lock()
	cb := make([]func(*Config), len(onReloadCallbacks))
	copy(cb, onReloadCallbacks)
	onReloadMu.Unlock()
	for _, fn := range cb {
		fn(cfg)
	}
}

//go:embed config.example.yaml
var exampleConfigBytes []byte

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads the YAML file at path on top of DefaultConfig. A .env file in the
// same directory is loaded into the environment first; variables that are
// already set win.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := loadDotEnv(filepath.Join(dir, ".env")); err != nil {
		return nil, err
	}

	return parse(data, dir)
}

func parse(data []byte, baseDir string) (*Config, error) {
	expanded := expandEnvVars(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyLoadDefaults(cfg)
	resolveRelativePaths(cfg, baseDir)

	return cfg, nil
}

func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load %s: %w", path, err)
}

func applyLoadDefaults(cfg *Config) {
	if cfg.Gateway.Port <= 0 {
		cfg.Gateway.Port = DefaultPort
	}
	if cfg.Gateway.MaxMessageBytes <= 0 {
		cfg.Gateway.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if cfg.Gateway.StaticDir == "" {
		cfg.Gateway.StaticDir = DefaultStaticDir
	}
	if strings.TrimSpace(cfg.Backend.URL) == "" {
		cfg.Backend.URL = DefaultBackendURL
	}
	if cfg.Backend.Timeout < 0 {
		cfg.Backend.Timeout = 0
	}
}

func expandEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

func resolveRelativePaths(cfg *Config, baseDir string) {
	if cfg.Gateway.StaticDir != "" && !filepath.IsAbs(cfg.Gateway.StaticDir) {
		cfg.Gateway.StaticDir = filepath.Join(baseDir, cfg.Gateway.StaticDir)
	}
}

// ResolveHome returns the CHATRELAY_HOME directory.
// Priority: CHATRELAY_HOME env > ~/.chatrelay/
func ResolveHome() string {
	if home := os.Getenv("CHATRELAY_HOME"); home != "" {
		return home
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return ".chatrelay"
	}
	return filepath.Join(userHome, ".chatrelay")
}

// ResolveConfigPath finds the config file.
// Priority: --config flag > CHATRELAY_HOME/config.yaml
func ResolveConfigPath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	return filepath.Join(ResolveHome(), "config.yaml")
}

// CreateFromExample writes the embedded config.example.yaml to targetPath.
// An existing file is left untouched.
func CreateFromExample(targetPath string) error {
	if _, err := os.Stat(targetPath); err == nil {
		return fmt.Errorf("config already exists: %s", targetPath)
	}
	dir := filepath.Dir(targetPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(targetPath, exampleConfigBytes, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
