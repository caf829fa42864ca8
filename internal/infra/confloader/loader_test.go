package confloader

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type testConfig struct {
	Server struct {
		Hostname        string        `koanf:"hostname"`
		PortHint        int           `koanf:"port_hint"`
		HTTP2           bool          `koanf:"http2"`
		StopGracePeriod time.Duration `koanf:"stop_grace_period"`
	} `koanf:"server"`
	Log struct {
		Level string `koanf:"level"`
	} `koanf:"log"`
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "devserve.yaml")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestNewLoader(t *testing.T) {
	l := NewLoader()
	if l.envPrefix != DefaultEnvPrefix {
		t.Errorf("envPrefix = %q, want %q", l.envPrefix, DefaultEnvPrefix)
	}

	l = NewLoader(WithEnvPrefix("TEST_"), WithConfigFile("/path/to/devserve.yaml"))
	if l.envPrefix != "TEST_" {
		t.Errorf("envPrefix = %q, want %q", l.envPrefix, "TEST_")
	}
	if l.FilePath() != "/path/to/devserve.yaml" {
		t.Errorf("FilePath() = %q", l.FilePath())
	}
}

func TestLoader_LoadFile(t *testing.T) {
	p := writeConfig(t, `
server:
  hostname: example.test
  port_hint: 9000
`)

	l := NewLoader()
	if err := l.LoadFile(p); err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if got := l.GetString("server.hostname"); got != "example.test" {
		t.Errorf("server.hostname = %q", got)
	}
	if got := l.GetInt("server.port_hint"); got != 9000 {
		t.Errorf("server.port_hint = %d", got)
	}

	if err := l.LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadFile() should fail for a missing file")
	}
	if err := l.LoadFile(""); err != nil {
		t.Errorf("LoadFile(\"\") error = %v", err)
	}
}

func TestEnvKey(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"DEVSERVE_SERVER__PORT_HINT", "server.port_hint"},
		{"DEVSERVE_SERVER__STOP_GRACE_PERIOD", "server.stop_grace_period"},
		{"DEVSERVE_LOG__LEVEL", "log.level"},
		{"DEVSERVE_DEBUG", "debug"},
	}

	for _, tt := range tests {
		if got := EnvKey(DefaultEnvPrefix, tt.name); got != tt.want {
			t.Errorf("EnvKey(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestLoader_LoadEnv(t *testing.T) {
	t.Setenv("DEVSERVE_SERVER__PORT_HINT", "9090")
	t.Setenv("DEVSERVE_SERVER__STOP_GRACE_PERIOD", "2s")
	t.Setenv("MYAPP_LOG__LEVEL", "debug")

	l := NewLoader()
	if err := l.LoadEnv(); err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}
	var cfg testConfig
	if err := l.Unmarshal(&cfg); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if cfg.Server.PortHint != 9090 {
		t.Errorf("PortHint = %d, want 9090", cfg.Server.PortHint)
	}
	if cfg.Server.StopGracePeriod != 2*time.Second {
		t.Errorf("StopGracePeriod = %v, want 2s", cfg.Server.StopGracePeriod)
	}
	if cfg.Log.Level != "" {
		t.Errorf("foreign prefix leaked: %q", cfg.Log.Level)
	}

	l = NewLoader(WithEnvPrefix("MYAPP_"))
	if err := l.LoadEnv(); err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}
	if got := l.GetString("log.level"); got != "debug" {
		t.Errorf("log.level = %q, want debug", got)
	}
}

func TestLoader_Load_Priority(t *testing.T) {
	p := writeConfig(t, `
server:
  hostname: from-file
  port_hint: 1000
  http2: true
log:
  level: warn
`)
	t.Setenv("DEVSERVE_SERVER__PORT_HINT", "2000")
	t.Setenv("DEVSERVE_LOG__LEVEL", "error")

	l := NewLoader(WithConfigFile(p))
	if err := l.LoadMap(map[string]any{"log.level": "debug"}); err != nil {
		t.Fatalf("LoadMap() error = %v", err)
	}

	var cfg testConfig
	cfg.Server.StopGracePeriod = time.Minute
	if err := l.Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Hostname != "from-file" || !cfg.Server.HTTP2 {
		t.Errorf("file values not applied: %+v", cfg.Server)
	}
	if cfg.Server.PortHint != 2000 {
		t.Errorf("PortHint = %d, env should override the file", cfg.Server.PortHint)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Level = %q, overrides should win over env", cfg.Log.Level)
	}
	if cfg.Server.StopGracePeriod != time.Minute {
		t.Errorf("StopGracePeriod = %v, unset keys keep their default", cfg.Server.StopGracePeriod)
	}
	if !l.IsLoaded() {
		t.Error("IsLoaded() should be true after Load()")
	}
}

func TestLoader_Reload(t *testing.T) {
	p := writeConfig(t, "log:\n  level: info\nserver:\n  hostname: first\n")

	l := NewLoader(WithConfigFile(p))
	if err := l.LoadMap(map[string]any{"server.port_hint": 7000}); err != nil {
		t.Fatalf("LoadMap() error = %v", err)
	}
	var cfg testConfig
	if err := l.Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if err := os.WriteFile(p, []byte("log:\n  level: debug\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	var next testConfig
	if err := l.Reload(&next); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	if next.Log.Level != "debug" {
		t.Errorf("Level = %q, want the new file value", next.Log.Level)
	}
	if next.Server.Hostname != "" {
		t.Errorf("Hostname = %q, removed keys must not survive a reload", next.Server.Hostname)
	}
	if next.Server.PortHint != 7000 {
		t.Errorf("PortHint = %d, overrides must survive a reload", next.Server.PortHint)
	}
}

func TestLoader_Keys(t *testing.T) {
	l := NewLoader()
	if err := l.LoadMap(map[string]any{"server.hostname": "a", "log.level": "b"}); err != nil {
		t.Fatal(err)
	}
	if keys := l.Keys(); len(keys) != 2 {
		t.Errorf("Keys() = %v, want 2 keys", keys)
	}
}
