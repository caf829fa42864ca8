package confloader

import (
	"fmt"
	"strings"
	"sync"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix is the default environment variable prefix.
const DefaultEnvPrefix = "DEVSERVE_"

// envNesting separates nested keys in environment variable names.
const envNesting = "__"

// Loader loads configuration from multiple sources.
type Loader struct {
	mu        sync.Mutex
	k         *koanf.Koanf
	envPrefix string
	filePath  string
	overrides []map[string]any
	loaded    bool
}

// Option is a function that configures the Loader.
type Option func(*Loader)

// WithEnvPrefix sets the environment variable prefix.
func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) {
		l.envPrefix = prefix
	}
}

// WithConfigFile sets the configuration file path.
func WithConfigFile(path string) Option {
	return func(l *Loader) {
		l.filePath = path
	}
}

// NewLoader creates a new configuration loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		k:         koanf.New("."),
		envPrefix: DefaultEnvPrefix,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// FilePath returns the configuration file, or "" when none is used.
func (l *Loader) FilePath() string {
	return l.filePath
}

// Load reads the file and the environment, applies the overrides given to
// LoadMap and unmarshals into target. Keys absent from every source keep
// the value target already holds.
func (l *Loader) Load(target any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.filePath != "" {
		if err := l.loadFile(l.filePath); err != nil {
			return err
		}
	}
	if err := l.loadEnv(); err != nil {
		return err
	}
	for _, m := range l.overrides {
		if err := l.k.Load(mapProvider(m), nil); err != nil {
			return fmt.Errorf("confloader: load overrides: %w", err)
		}
	}
	if err := l.k.Unmarshal("", target); err != nil {
		return fmt.Errorf("confloader: unmarshal config: %w", err)
	}

	l.loaded = true
	return nil
}

// Reload discards what was loaded and loads every source again into
// target.
func (l *Loader) Reload(target any) error {
	l.mu.Lock()
	l.k = koanf.New(".")
	l.mu.Unlock()
	return l.Load(target)
}

// LoadFile merges a YAML file.
func (l *Loader) LoadFile(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadFile(path)
}

func (l *Loader) loadFile(path string) error {
	if path == "" {
		return nil
	}
	if err := l.k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return fmt.Errorf("confloader: load file %s: %w", path, err)
	}
	return nil
}

// LoadEnv merges the environment variables carrying the prefix.
func (l *Loader) LoadEnv() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadEnv()
}

func (l *Loader) loadEnv() error {
	provider := env.Provider(l.envPrefix, ".", func(s string) string {
		return EnvKey(l.envPrefix, s)
	})
	if err := l.k.Load(provider, nil); err != nil {
		return fmt.Errorf("confloader: load env: %w", err)
	}
	return nil
}

// EnvKey maps an environment variable name to a configuration key:
// DEVSERVE_SERVER__PORT_HINT becomes server.port_hint.
func EnvKey(prefix, name string) string {
	name = strings.TrimPrefix(name, prefix)
	return strings.ReplaceAll(strings.ToLower(name), strings.ToLower(envNesting), ".")
}

// LoadMap merges data, keyed by dotted paths, over every other source.
// The map is applied again by later Load and Reload calls.
func (l *Loader) LoadMap(data map[string]any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.k.Load(mapProvider(data), nil); err != nil {
		return fmt.Errorf("confloader: load map: %w", err)
	}
	l.overrides = append(l.overrides, data)
	return nil
}

// Unmarshal unmarshals the loaded configuration into target.
func (l *Loader) Unmarshal(target any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.k.Unmarshal("", target)
}

// GetString returns a string value from the configuration.
func (l *Loader) GetString(key string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.k.String(key)
}

// GetInt returns an int value from the configuration.
func (l *Loader) GetInt(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.k.Int(key)
}

// IsLoaded returns true if configuration has been loaded.
func (l *Loader) IsLoaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loaded
}

// Keys returns all configuration keys.
func (l *Loader) Keys() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.k.Keys()
}
