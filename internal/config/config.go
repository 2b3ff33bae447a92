package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	TextGen  ProviderConfig
	ImageGen ProviderConfig
	Search   ProviderConfig
	Places   ProviderConfig
	Tools    ToolsConfig
	Pipeline PipelineConfig
	Log      LogConfig
}

type LogConfig struct {
	Level string
}

type ServerConfig struct {
	Port    int
	MCPPort int
	Token   string // bearer token for the app API
}

type StorageConfig struct {
	DataDir string
	BlobDir string
}

// ProviderConfig points one capability adapter at its backend.
type ProviderConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

type ToolsConfig struct {
	// DefaultLocation parameterizes contractor lookups when the user hasn't
	// given one. Replaces the implicit global location of older builds.
	DefaultLocation string
	PerToolTimeout  time.Duration
	OverallTimeout  time.Duration
}

type PipelineConfig struct {
	HistoryCharBudget int
	ContextSnippets   int
	WindowTurns       int // anti-repetition window K
	MaxSuggestions    int // max actions/questions per turn M
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Server: ServerConfig{
			Port:    4600,
			MCPPort: 4601,
		},
		Storage: StorageConfig{
			DataDir: dataDir,
			BlobDir: filepath.Join(dataDir, "blobs"),
		},
		TextGen: ProviderConfig{
			BaseURL: "https://openrouter.ai/api/v1",
			Model:   "anthropic/claude-sonnet-4",
		},
		ImageGen: ProviderConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-image-1",
		},
		Search: ProviderConfig{
			BaseURL: "https://serpapi.com",
		},
		Places: ProviderConfig{
			BaseURL: "https://places.googleapis.com/v1",
		},
		Tools: ToolsConfig{
			DefaultLocation: "Austin, TX",
			PerToolTimeout:  10 * time.Second,
			OverallTimeout:  20 * time.Second,
		},
		Pipeline: PipelineConfig{
			HistoryCharBudget: 8000,
			ContextSnippets:   5,
			WindowTurns:       4,
			MaxSuggestions:    3,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file backend and environment.
//
// The backend is a JSON file at $XDG_CONFIG_HOME/reno/config.json (falling
// back to ~/.config/reno/config.json). Environment variables (RENO_*)
// override backend values.
func Load() (Config, error) {
	return loadWith(newFileBackend(defaultConfigPath()))
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.TextGen.APIKey == "" {
		return Config{}, fmt.Errorf(
			"missing required config: text generation API key. " +
				"Set it via environment variable RENO_TEXTGEN_API_KEY or the textgen.api_key config key")
	}

	return cfg, nil
}

func applyBackend(cfg *Config, b Backend) error {
	for key, dst := range stringKeys(cfg) {
		val, ok, err := b.GetString(key)
		if err != nil {
			return fmt.Errorf("reading config key %q: %w", key, err)
		}
		if ok {
			*dst = val
		}
	}
	for key, dst := range intKeys(cfg) {
		val, ok, err := b.GetInt(key)
		if err != nil {
			return fmt.Errorf("reading config key %q: %w", key, err)
		}
		if ok {
			*dst = val
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for key, dst := range stringKeys(cfg) {
		if v := os.Getenv(envName(key)); v != "" {
			*dst = v
		}
	}
	for key, dst := range intKeys(cfg) {
		if v := os.Getenv(envName(key)); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
}

func stringKeys(cfg *Config) map[string]*string {
	return map[string]*string{
		"server.token":           &cfg.Server.Token,
		"storage.data_dir":       &cfg.Storage.DataDir,
		"storage.blob_dir":       &cfg.Storage.BlobDir,
		"textgen.base_url":       &cfg.TextGen.BaseURL,
		"textgen.api_key":        &cfg.TextGen.APIKey,
		"textgen.model":          &cfg.TextGen.Model,
		"imagegen.base_url":      &cfg.ImageGen.BaseURL,
		"imagegen.api_key":       &cfg.ImageGen.APIKey,
		"imagegen.model":         &cfg.ImageGen.Model,
		"search.base_url":        &cfg.Search.BaseURL,
		"search.api_key":         &cfg.Search.APIKey,
		"places.base_url":        &cfg.Places.BaseURL,
		"places.api_key":         &cfg.Places.APIKey,
		"tools.default_location": &cfg.Tools.DefaultLocation,
		"log.level":              &cfg.Log.Level,
	}
}

func intKeys(cfg *Config) map[string]*int {
	return map[string]*int{
		"server.port":               &cfg.Server.Port,
		"server.mcp_port":           &cfg.Server.MCPPort,
		"pipeline.history_budget":   &cfg.Pipeline.HistoryCharBudget,
		"pipeline.context_snippets": &cfg.Pipeline.ContextSnippets,
		"pipeline.window_turns":     &cfg.Pipeline.WindowTurns,
		"pipeline.max_suggestions":  &cfg.Pipeline.MaxSuggestions,
	}
}

// envName maps "textgen.api_key" to "RENO_TEXTGEN_API_KEY".
func envName(key string) string {
	out := make([]byte, 0, len(key)+5)
	out = append(out, "RENO_"...)
	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case c == '.':
			out = append(out, '_')
		case c >= 'a' && c <= 'z':
			out = append(out, c-'a'+'A')
		default:
			out = append(out, c)
		}
	}
	return string(out)
}

func defaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "reno")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "./reno-data"
	}
	return filepath.Join(home, ".local", "share", "reno")
}

func defaultConfigPath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "reno", "config.json")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "./reno-config.json"
	}
	return filepath.Join(home, ".config", "reno", "config.json")
}
