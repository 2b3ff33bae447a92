package config

import (
	"path/filepath"
	"testing"
)

type memBackend struct {
	strings map[string]string
	ints    map[string]int
}

func (m *memBackend) GetString(key string) (string, bool, error) {
	v, ok := m.strings[key]
	return v, ok, nil
}

func (m *memBackend) GetInt(key string) (int, bool, error) {
	v, ok := m.ints[key]
	return v, ok, nil
}

func (m *memBackend) SetString(key, val string) error { m.strings[key] = val; return nil }
func (m *memBackend) SetInt(key string, val int) error { m.ints[key] = val; return nil }
func (m *memBackend) Delete(key string) error          { delete(m.strings, key); return nil }

func TestLoad_RequiresTextGenKey(t *testing.T) {
	b := &memBackend{strings: map[string]string{}, ints: map[string]int{}}
	if _, err := loadWith(b); err == nil {
		t.Fatal("expected error when text generation API key is missing")
	}
}

func TestLoad_BackendOverridesDefaults(t *testing.T) {
	b := &memBackend{
		strings: map[string]string{
			"textgen.api_key":        "sk-test",
			"tools.default_location": "Portland, OR",
		},
		ints: map[string]int{
			"server.port":           5000,
			"pipeline.window_turns": 6,
		},
	}
	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("loadWith failed: %v", err)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.Tools.DefaultLocation != "Portland, OR" {
		t.Errorf("default location = %q", cfg.Tools.DefaultLocation)
	}
	if cfg.Pipeline.WindowTurns != 6 {
		t.Errorf("window turns = %d, want 6", cfg.Pipeline.WindowTurns)
	}
	// Untouched keys keep defaults.
	if cfg.Pipeline.MaxSuggestions != 3 {
		t.Errorf("max suggestions = %d, want default 3", cfg.Pipeline.MaxSuggestions)
	}
}

func TestLoad_EnvOverridesBackend(t *testing.T) {
	b := &memBackend{
		strings: map[string]string{"textgen.api_key": "from-backend"},
		ints:    map[string]int{},
	}
	t.Setenv("RENO_TEXTGEN_API_KEY", "from-env")
	t.Setenv("RENO_SERVER_PORT", "7777")

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("loadWith failed: %v", err)
	}
	if cfg.TextGen.APIKey != "from-env" {
		t.Errorf("api key = %q, want env value", cfg.TextGen.APIKey)
	}
	if cfg.Server.Port != 7777 {
		t.Errorf("port = %d, want 7777", cfg.Server.Port)
	}
}

func TestEnvName(t *testing.T) {
	tests := []struct{ key, want string }{
		{"textgen.api_key", "RENO_TEXTGEN_API_KEY"},
		{"server.port", "RENO_SERVER_PORT"},
		{"tools.default_location", "RENO_TOOLS_DEFAULT_LOCATION"},
	}
	for _, tt := range tests {
		if got := envName(tt.key); got != tt.want {
			t.Errorf("envName(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestFileBackend_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	b := newFileBackend(path)

	if err := b.SetString("textgen.api_key", "sk-123"); err != nil {
		t.Fatalf("SetString failed: %v", err)
	}
	if err := b.SetInt("server.port", 8080); err != nil {
		t.Fatalf("SetInt failed: %v", err)
	}

	v, ok, err := b.GetString("textgen.api_key")
	if err != nil || !ok || v != "sk-123" {
		t.Errorf("GetString = (%q, %v, %v), want (sk-123, true, nil)", v, ok, err)
	}
	n, ok, err := b.GetInt("server.port")
	if err != nil || !ok || n != 8080 {
		t.Errorf("GetInt = (%d, %v, %v), want (8080, true, nil)", n, ok, err)
	}

	if err := b.Delete("textgen.api_key"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	_, ok, err = b.GetString("textgen.api_key")
	if err != nil || ok {
		t.Errorf("GetString after delete = (ok=%v, err=%v), want absent", ok, err)
	}

	// Missing file reads as empty, not an error.
	missing := newFileBackend(filepath.Join(t.TempDir(), "nope.json"))
	_, ok, err = missing.GetString("anything")
	if err != nil || ok {
		t.Errorf("missing file GetString = (ok=%v, err=%v), want absent", ok, err)
	}
}
