package config

import (
	"fmt"
	"net/url"
	"os"
	"sort"
	"time"

	"github.com/prometheus/common/model"
	"gopkg.in/yaml.v3"

	"github.com/obsidianstack/signalk-exporter/internal/exposition"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultListen         = ":9101"
	DefaultScrapeInterval = 15 * time.Second
	DefaultSnapshotTTL    = 2 * time.Minute
	DefaultStreamInterval = 5 * time.Second
	DefaultFetchTimeout   = 5 * time.Second
	DefaultAPIKeyHeader   = "X-API-Key"
	DefaultSourceID       = "self"
)

// Config is the top-level exporter configuration.
type Config struct {
	Exporter ExporterConfig `yaml:"exporter"`

	// Sources is the list of SignalK endpoints to export.
	Sources []Source `yaml:"sources"`

	// Alerts holds rule definitions and webhook delivery targets.
	Alerts AlertsConfig `yaml:"alerts"`
}

// ExporterConfig holds process-wide settings.
type ExporterConfig struct {
	// Listen is the address the serve command binds to (host:port).
	Listen string `yaml:"listen"`

	// ScrapeInterval controls how often each source is polled in serve mode.
	ScrapeInterval time.Duration `yaml:"scrape_interval"`

	// SnapshotTTL is how long a fetched document stays exportable after the
	// last successful poll.
	SnapshotTTL time.Duration `yaml:"snapshot_ttl"`

	// StreamInterval is how often /ws/stream pushes source status to clients.
	StreamInterval time.Duration `yaml:"stream_interval"`

	// Comments emits # HELP and # TYPE lines for every metric.
	Comments bool `yaml:"comments"`

	// VesselLabels promotes the document's mmsi, uuid and name to labels.
	VesselLabels bool `yaml:"vessel_labels"`

	// Labels are static labels added to every metric of every source.
	Labels map[string]string `yaml:"labels"`

	// Auth protects the HTTP endpoints of the serve command.
	Auth ServerAuthConfig `yaml:"auth"`
}

// Source describes one SignalK REST endpoint.
type Source struct {
	// ID is a unique, human-readable identifier for this source.
	ID string `yaml:"id"`

	// URL is the full REST URL, e.g.
	// http://127.0.0.1:3000/signalk/v1/api/vessels/self
	URL string `yaml:"url"`

	// Timeout bounds one HTTP request.
	Timeout time.Duration `yaml:"timeout"`

	// Retries is the number of extra attempts after a transient failure.
	// Zero means a single attempt.
	Retries int `yaml:"retries"`

	// Labels are added to every metric of this source, after the exporter's.
	Labels map[string]string `yaml:"labels"`

	// Auth configures how the exporter authenticates to this source.
	Auth AuthConfig `yaml:"auth"`

	// TLS holds optional TLS dial options.
	TLS TLSConfig `yaml:"tls"`
}

// AuthConfig specifies the authentication mode for a source.
type AuthConfig struct {
	// Mode is one of: mtls | apikey | bearer | basic | none.
	Mode string `yaml:"mode"`

	// mTLS fields, used when Mode == "mtls".
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`

	// API key fields, used when Mode == "apikey".
	Header string `yaml:"header"`
	KeyEnv string `yaml:"key_env"`

	// Bearer token, used when Mode == "bearer". SignalK servers issue JWTs
	// through /signalk/v1/auth/login.
	TokenEnv string `yaml:"token_env"`

	// Basic auth, used when Mode == "basic".
	Username    string `yaml:"username"`
	PasswordEnv string `yaml:"password_env"`
}

// Key returns the API key value resolved from the environment.
// Returns empty string if KeyEnv is unset or the variable is not found.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// Token returns the bearer token value resolved from the environment.
func (a AuthConfig) Token() string {
	if a.TokenEnv == "" {
		return ""
	}
	return os.Getenv(a.TokenEnv)
}

// Password returns the basic-auth password resolved from the environment.
func (a AuthConfig) Password() string {
	if a.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(a.PasswordEnv)
}

// TLSConfig holds per-source TLS dial options.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification.
	// Only use this for self-signed certificates on the boat network.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// ServerAuthConfig configures authentication of incoming HTTP requests.
type ServerAuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// Header is the request header carrying the key (default X-API-Key).
	Header string `yaml:"header"`

	// KeyEnv is the name of the environment variable holding the expected key.
	KeyEnv string `yaml:"key_env"`
}

// Key returns the expected API key resolved from the environment.
func (a ServerAuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns Header, or DefaultAPIKeyHeader when unset.
func (a ServerAuthConfig) EffectiveHeader() string {
	if a.Header == "" {
		return DefaultAPIKeyHeader
	}
	return a.Header
}

// Labels returns the merged static labels for src: exporter labels first,
// then the source's own, each group sorted by name.
func (c *Config) Labels(src Source) exposition.Labels {
	return sortedLabels(c.Exporter.Labels).Merge(sortedLabels(src.Labels))
}

// Source returns the source with the given id.
func (c *Config) Source(id string) (Source, bool) {
	for _, s := range c.Sources {
		if s.ID == id {
			return s, true
		}
	}
	return Source{}, false
}

func sortedLabels(m map[string]string) exposition.Labels {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(exposition.Labels, 0, len(keys))
	for _, k := range keys {
		out = append(out, exposition.Label{Name: k, Value: m[k]})
	}
	return out
}

// Load reads and parses the YAML config file at path. ${VAR} references are
// expanded from the environment before parsing.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML config data, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	applySourceDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// ForURL returns a default configuration exporting the single SignalK
// endpoint rawURL under the id "self".
func ForURL(rawURL string) (*Config, error) {
	cfg := defaults()
	cfg.Sources = []Source{{ID: DefaultSourceID, URL: rawURL}}
	applySourceDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Exporter: ExporterConfig{
			Listen:         DefaultListen,
			ScrapeInterval: DefaultScrapeInterval,
			SnapshotTTL:    DefaultSnapshotTTL,
			StreamInterval: DefaultStreamInterval,
			Comments:       true,
			VesselLabels:   true,
		},
	}
}

func applySourceDefaults(cfg *Config) {
	for i := range cfg.Sources {
		src := &cfg.Sources[i]
		if src.Timeout == 0 {
			src.Timeout = DefaultFetchTimeout
		}
		if src.Auth.Mode == "apikey" && src.Auth.Header == "" {
			src.Auth.Header = DefaultAPIKeyHeader
		}
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	if cfg.Exporter.ScrapeInterval <= 0 {
		return fmt.Errorf("exporter.scrape_interval must be positive")
	}
	if cfg.Exporter.SnapshotTTL <= 0 {
		return fmt.Errorf("exporter.snapshot_ttl must be positive")
	}
	if cfg.Exporter.StreamInterval <= 0 {
		return fmt.Errorf("exporter.stream_interval must be positive")
	}
	if err := validateLabels("exporter.labels", cfg.Exporter.Labels); err != nil {
		return err
	}
	switch cfg.Exporter.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("exporter.auth: unknown mode %q", cfg.Exporter.Auth.Mode)
	}
	if err := validateAlerts(cfg.Alerts); err != nil {
		return err
	}
	if len(cfg.Sources) == 0 {
		return fmt.Errorf("at least one source is required")
	}

	seen := make(map[string]bool, len(cfg.Sources))
	for i, src := range cfg.Sources {
		if src.ID == "" {
			return fmt.Errorf("sources[%d]: id is required", i)
		}
		if seen[src.ID] {
			return fmt.Errorf("sources[%d]: duplicate id %q", i, src.ID)
		}
		seen[src.ID] = true

		if src.URL == "" {
			return fmt.Errorf("sources[%d] %q: url is required", i, src.ID)
		}
		u, err := url.Parse(src.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("sources[%d] %q: url must be an absolute http(s) url", i, src.ID)
		}
		if src.Timeout < 0 || src.Retries < 0 {
			return fmt.Errorf("sources[%d] %q: timeout and retries must not be negative", i, src.ID)
		}
		switch src.Auth.Mode {
		case "mtls", "apikey", "bearer", "basic", "none", "":
		default:
			return fmt.Errorf("sources[%d] %q: unknown auth mode %q", i, src.ID, src.Auth.Mode)
		}
		if err := validateLabels(fmt.Sprintf("sources[%d] %q: labels", i, src.ID), src.Labels); err != nil {
			return err
		}
	}
	return nil
}

// validateLabels rejects invalid label names and the names the engine
// attaches itself.
func validateLabels(field string, labels map[string]string) error {
	for name := range labels {
		if !model.LabelName(name).IsValid() {
			return fmt.Errorf("%s: invalid label name %q", field, name)
		}
		switch name {
		case "source", "pgn":
			return fmt.Errorf("%s: label name %q is reserved", field, name)
		}
	}
	return nil
}
