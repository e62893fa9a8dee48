// Package config provides configuration file support for the taleforge
// service process.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jvs-project/taleforge/pkg/model"
	"github.com/jvs-project/taleforge/pkg/webhook"
	"gopkg.in/yaml.v3"
)

var (
	// cache is a per-path config cache.
	cache   = make(map[string]*Config)
	cacheMu sync.RWMutex
)

// Config represents the taleforge service configuration.
type Config struct {
	// StorageRoot is the sharded on-disk root each project's Versions Root
	// and Runs Root (VERSIONS_ROOT / RUNS_ROOT) are allocated under, as
	// sibling "versions/" and "runs/" subtrees of <root>/<projectId[:2]>/
	// <projectId>/ (pathlayout.EnsureRoots). A version's run-link symlink
	// is computed relative to this shared root, so the two configured
	// roots the data model describes live under one configured path here
	// rather than two independently rooted directories.
	StorageRoot string `yaml:"storage_root"`

	// MetadataDB is the path to the sqlite document store backing every
	// project/version/run record.
	MetadataDB string `yaml:"metadata_db"`

	// AuditLogPath is the JSONL audit trail every engine appends to.
	AuditLogPath string `yaml:"audit_log_path"`

	// DefaultEngine selects the clone strategy new versions and runs use
	// when a caller doesn't name one explicitly.
	DefaultEngine model.EngineType `yaml:"default_engine,omitempty"`

	// ReaperInterval is how often the heartbeat reaper (§4.5.6) sweeps
	// running/unknown runs against the external task queue.
	ReaperInterval string `yaml:"reaper_interval,omitempty"`

	// Webhooks configures outbound event delivery.
	Webhooks *WebhookConfig `yaml:"webhooks,omitempty"`

	// Logging configures the operational (non-audit) logger.
	Logging LoggingConfig `yaml:"logging,omitempty"`
}

// LoggingConfig configures logging behavior.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"` // debug, trace, or empty for production
}

// WebhookConfig represents webhook configuration for event notifications.
type WebhookConfig struct {
	// Enabled enables or disables webhook notifications.
	Enabled bool `yaml:"enabled,omitempty"`

	// MaxRetries is the number of retries for failed webhook deliveries.
	MaxRetries int `yaml:"max_retries,omitempty"`

	// RetryDelay is the delay between retries.
	RetryDelay string `yaml:"retry_delay,omitempty"` // e.g., "5s", "1m"

	// AsyncQueueSize is the size of the async webhook queue.
	AsyncQueueSize int `yaml:"async_queue_size,omitempty"`

	// Hooks is the list of webhook endpoints.
	Hooks []WebhookHook `yaml:"hooks,omitempty"`
}

// WebhookHook represents a single webhook endpoint.
type WebhookHook struct {
	// URL is the webhook endpoint URL.
	URL string `yaml:"url"`

	// Secret is the HMAC secret for signature verification (optional).
	Secret string `yaml:"secret,omitempty"`

	// Events is the list of events to send to this webhook.
	// Use "*" to receive all events.
	Events []string `yaml:"events,omitempty"`

	// Timeout is the HTTP request timeout (optional).
	Timeout string `yaml:"timeout,omitempty"` // e.g., "10s"

	// Enabled enables or disables this specific hook.
	Enabled bool `yaml:"enabled,omitempty"`
}

// Default returns the default configuration: versions/runs roots under a
// temporary directory, matching the options' documented default of an
// implementation-chosen temporary location.
func Default() *Config {
	base := filepath.Join(os.TempDir(), "taleforge")
	return &Config{
		StorageRoot:    filepath.Join(base, "storage"),
		MetadataDB:     filepath.Join(base, "taleforge.db"),
		AuditLogPath:   filepath.Join(base, "audit.jsonl"),
		DefaultEngine:  model.EngineCopy,
		ReaperInterval: "30s",
		Logging:        LoggingConfig{Level: ""},
	}
}

// Load reads configuration from path. Returns defaults if the file doesn't
// exist.
func Load(path string) (*Config, error) {
	cacheMu.RLock()
	if cfg, ok := cache[path]; ok {
		cacheMu.RUnlock()
		return cfg, nil
	}
	cacheMu.RUnlock()

	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cacheAndReturn(path, cfg)
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	cacheAndReturn(path, cfg)
	return cfg, nil
}

// Save writes configuration to path.
func Save(path string, cfg *Config) error {
	if err := cfg.validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	cacheAndReturn(path, cfg)
	return nil
}

// validate checks if the configuration is valid.
func (c *Config) validate() error {
	if c.StorageRoot == "" {
		return fmt.Errorf("storage_root is required")
	}

	if c.DefaultEngine != "" {
		switch c.DefaultEngine {
		case model.EngineJuiceFSClone, model.EngineReflinkCopy, model.EngineCopy, model.EngineHardlink:
		default:
			return fmt.Errorf("invalid default_engine: %s", c.DefaultEngine)
		}
	}

	if c.ReaperInterval != "" {
		if _, err := time.ParseDuration(c.ReaperInterval); err != nil {
			return fmt.Errorf("invalid reaper_interval: %w", err)
		}
	}

	if c.Webhooks != nil {
		if err := c.Webhooks.Validate(); err != nil {
			return fmt.Errorf("webhooks: %w", err)
		}
	}

	return nil
}

// ReaperIntervalDuration parses ReaperInterval, falling back to 30s when
// unset or invalid.
func (c *Config) ReaperIntervalDuration() time.Duration {
	if c.ReaperInterval == "" {
		return 30 * time.Second
	}
	d, err := time.ParseDuration(c.ReaperInterval)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// InvalidateCache clears the cached config for path.
func InvalidateCache(path string) {
	cacheMu.Lock()
	delete(cache, path)
	cacheMu.Unlock()
}

func cacheAndReturn(path string, cfg *Config) {
	cacheMu.Lock()
	cache[path] = cfg
	cacheMu.Unlock()
}

// Validate checks if the webhook configuration is valid.
func (w *WebhookConfig) Validate() error {
	for i, hook := range w.Hooks {
		if hook.URL == "" {
			return fmt.Errorf("hook[%d]: url is required", i)
		}
		if len(hook.Events) == 0 {
			return fmt.Errorf("hook[%d]: at least one event must be specified", i)
		}
	}
	return nil
}

// ToWebhookConfig converts WebhookConfig to webhook.Config for use by the
// webhook package.
func (w *WebhookConfig) ToWebhookConfig() *webhook.Config {
	if w == nil {
		return nil
	}

	cfg := &webhook.Config{
		Enabled: w.Enabled,
		Hooks:   make([]webhook.HookConfig, 0, len(w.Hooks)),
	}

	cfg.MaxRetries = 3
	if w.MaxRetries > 0 {
		cfg.MaxRetries = w.MaxRetries
	}
	cfg.RetryDelay = 5 * time.Second
	if w.RetryDelay != "" {
		if d, err := time.ParseDuration(w.RetryDelay); err == nil {
			cfg.RetryDelay = d
		}
	}
	cfg.AsyncQueueSize = 100
	if w.AsyncQueueSize > 0 {
		cfg.AsyncQueueSize = w.AsyncQueueSize
	}

	for _, h := range w.Hooks {
		hookCfg := webhook.HookConfig{
			URL:     h.URL,
			Secret:  h.Secret,
			Events:  make([]webhook.EventType, 0, len(h.Events)),
			Enabled: h.Enabled,
		}
		for _, e := range h.Events {
			hookCfg.Events = append(hookCfg.Events, webhook.EventType(e))
		}
		if h.Timeout != "" {
			if d, err := time.ParseDuration(h.Timeout); err == nil {
				hookCfg.Timeout = d
			}
		}
		cfg.Hooks = append(cfg.Hooks, hookCfg)
	}

	return cfg
}
