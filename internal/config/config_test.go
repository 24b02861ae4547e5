package config

import (
	"testing"
)

func TestValidate_UnknownBackendType(t *testing.T) {
	cfg := Config{
		HTTP: HTTPConfig{Port: 8080},
		Search: SearchConfig{
			Backends: map[string]map[string]any{
				"main": {"type": "elastic"},
			},
		},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for unknown backend type")
	}

	expected := `search.backends.main.type must be "embedded" or "redis", got "elastic"`
	if err.Error() != expected {
		t.Errorf("unexpected error message:\ngot:  %q\nwant: %q", err.Error(), expected)
	}
}

func TestValidate_ValidBackends(t *testing.T) {
	backends := []map[string]any{
		{"type": "embedded"},
		{"type": "embedded", "path": "/tmp/idx"},
		{"type": "redis", "addrs": []any{"localhost:6379"}},
	}

	for _, props := range backends {
		t.Run(props["type"].(string), func(t *testing.T) {
			cfg := Config{
				HTTP: HTTPConfig{Port: 8080},
				Search: SearchConfig{
					Backends: map[string]map[string]any{"main": props},
				},
			}

			if err := cfg.Validate(); err != nil {
				t.Fatalf("unexpected error for %v: %v", props, err)
			}
		})
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := Config{
		HTTP: HTTPConfig{Port: 0},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidate_MissingRedisAddrs(t *testing.T) {
	cfg := Config{
		HTTP: HTTPConfig{Port: 8080},
		Search: SearchConfig{
			Backends: map[string]map[string]any{"remote": {"type": "redis"}},
		},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for missing redis addrs")
	}
}

func TestValidate_UndeclaredDefaultBackend(t *testing.T) {
	cfg := Config{
		HTTP: HTTPConfig{Port: 8080},
		Search: SearchConfig{
			DefaultBackend: "missing",
			Backends:       map[string]map[string]any{"main": {"type": "embedded"}},
		},
	}

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for undeclared default backend")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 10 {
		t.Errorf("expected ReadTimeoutSec=10, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.WriteTimeoutSec != 10 {
		t.Errorf("expected WriteTimeoutSec=10, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.HTTP.ShutdownSec != 10 {
		t.Errorf("expected ShutdownSec=10, got %d", cfg.HTTP.ShutdownSec)
	}
	if cfg.Search.StartTimeoutSec != 30 {
		t.Errorf("expected StartTimeoutSec=30, got %d", cfg.Search.StartTimeoutSec)
	}
	if got := cfg.Search.Backends["default"]["type"]; got != BackendEmbedded {
		t.Errorf("expected an embedded default backend, got %v", cfg.Search.Backends)
	}
	if cfg.Search.DefaultBackend != "default" {
		t.Errorf("expected DefaultBackend='default', got %q", cfg.Search.DefaultBackend)
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	cfg := Config{
		HTTP: HTTPConfig{ReadTimeoutSec: 30, WriteTimeoutSec: 60, ShutdownSec: 5},
		Search: SearchConfig{
			StartTimeoutSec: 5,
			Backends: map[string]map[string]any{
				"a": {"type": "redis", "addrs": "localhost:6379"},
				"b": {},
			},
		},
	}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 30 {
		t.Errorf("expected ReadTimeoutSec=30, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.WriteTimeoutSec != 60 {
		t.Errorf("expected WriteTimeoutSec=60, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.Search.StartTimeoutSec != 5 {
		t.Errorf("expected StartTimeoutSec=5, got %d", cfg.Search.StartTimeoutSec)
	}
	if cfg.Search.Backends["a"]["type"] != BackendRedis {
		t.Errorf("backend type overridden: %v", cfg.Search.Backends["a"])
	}
	if cfg.Search.Backends["b"]["type"] != BackendEmbedded {
		t.Errorf("expected untyped backend to default to embedded, got %v", cfg.Search.Backends["b"])
	}
	if cfg.Search.DefaultBackend != "" {
		t.Errorf("default backend must stay unset with two backends, got %q", cfg.Search.DefaultBackend)
	}
}

func TestParse_ExpandsEnvVars(t *testing.T) {
	t.Setenv("SEARCHMAP_TEST_REDIS", "redis.internal:6380")

	cfg, err := Parse([]byte(`
http:
  port: ${SEARCHMAP_TEST_PORT:-9090}
search:
  default_backend: remote
  backends:
    remote:
      type: redis
      addrs: ${SEARCHMAP_TEST_REDIS}
      index_defaults:
        storage: hash
    local:
      type: embedded
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.HTTP.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.HTTP.Port)
	}
	remote := cfg.Search.Backends["remote"]
	if remote["addrs"] != "redis.internal:6380" {
		t.Errorf("addrs = %v", remote["addrs"])
	}
	defaults, ok := remote["index_defaults"].(map[string]any)
	if !ok || defaults["storage"] != "hash" {
		t.Errorf("index_defaults = %#v", remote["index_defaults"])
	}
}

func TestParse_Invalid(t *testing.T) {
	if _, err := Parse([]byte("http: [")); err == nil {
		t.Error("expected a parse error")
	}
	if _, err := Parse([]byte("http:\n  port: 0\n")); err == nil {
		t.Error("expected a validation error")
	}
}
