// Package config loads the feature_store.yaml of a feature repository.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"featurecore/internal/blob"
	"featurecore/internal/core"
	"featurecore/internal/tracing"

	"github.com/spf13/viper"
)

// FileName is the repository configuration file.
const FileName = "feature_store.yaml"

// EnvPrefix prefixes environment overrides, e.g. FEATURECORE_PROJECT or
// FEATURECORE_REGISTRY_PATH.
const EnvPrefix = "FEATURECORE"

// DefaultRegistryPath is used when no registry is configured.
const DefaultRegistryPath = "data/registry.db"

var projectName = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Config is the parsed repository configuration.
type Config struct {
	Project     string
	Provider    string
	Registry    RegistryConfig
	OnlineStore OnlineStoreConfig
	Tracing     tracing.Config
	Metrics     MetricsConfig

	// Root is the absolute repository root; Path is the file that was read.
	Root string
	Path string
}

// RegistryConfig selects the registry backend.
type RegistryConfig struct {
	RegistryType       string `mapstructure:"registry_type"`
	Path               string `mapstructure:"path"`
	CacheTTLSeconds    int    `mapstructure:"cache_ttl_seconds"`
	S3EndpointOverride string `mapstructure:"s3_endpoint_override"`
}

// CacheTTL returns the snapshot cache lifetime.
func (r RegistryConfig) CacheTTL() time.Duration {
	if r.CacheTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(r.CacheTTLSeconds) * time.Second
}

// OnlineStoreConfig is recorded but never written to.
type OnlineStoreConfig struct {
	Type string `mapstructure:"type"`
	Path string `mapstructure:"path"`
}

// MetricsConfig controls metrics export.
type MetricsConfig struct {
	// Textfile is a node-exporter textfile written after every command.
	Textfile string `mapstructure:"textfile"`
}

// Load reads the configuration of the repository at root. file overrides
// the default location root/feature_store.yaml; a relative file resolves
// against root.
func Load(root, file string) (Config, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return Config{}, fmt.Errorf("resolve repository root: %w", err)
	}
	path := file
	if path == "" {
		path = FileName
	}
	path = resolve(absRoot, path)

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("%s not found in %s", filepath.Base(path), filepath.Dir(path))
	}
	if err != nil {
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}

	v := newViper()
	if err := v.ReadConfig(bytes.NewReader([]byte(os.ExpandEnv(string(raw))))); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg, err := decode(v)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	cfg.Root = absRoot
	cfg.Path = path
	cfg.resolvePaths()
	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := tracing.DefaultConfig()
	v.SetDefault("provider", "local")
	v.SetDefault("tracing.enabled", defaults.Enabled)
	v.SetDefault("tracing.exporter", defaults.Exporter)
	v.SetDefault("tracing.otlp_endpoint", defaults.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", defaults.SampleRate)
	v.SetDefault("tracing.service_name", defaults.ServiceName)
	v.SetDefault("tracing.file_path", "")
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("online_store.type", "")
	v.SetDefault("online_store.path", "")
	return v
}

func decode(v *viper.Viper) (Config, error) {
	cfg := Config{
		Project:  v.GetString("project"),
		Provider: v.GetString("provider"),
	}
	if cfg.Project == "" {
		return Config{}, errors.New("project is required")
	}
	if !projectName.MatchString(cfg.Project) {
		return Config{}, fmt.Errorf("invalid project name %q: only letters, digits and underscores are allowed", cfg.Project)
	}

	// registry is either a bare path or a mapping.
	switch raw := v.Get("registry").(type) {
	case nil:
		cfg.Registry.Path = DefaultRegistryPath
	case string:
		cfg.Registry.Path = raw
	default:
		if err := v.UnmarshalKey("registry", &cfg.Registry); err != nil {
			return Config{}, fmt.Errorf("decode registry: %w", err)
		}
		if p := v.GetString("registry.path"); p != "" {
			cfg.Registry.Path = p
		}
		if t := v.GetString("registry.registry_type"); t != "" {
			cfg.Registry.RegistryType = t
		}
		if cfg.Registry.Path == "" && !cfg.Registry.memory() {
			return Config{}, errors.New("registry.path is required")
		}
	}

	if err := v.UnmarshalKey("online_store", &cfg.OnlineStore); err != nil {
		return Config{}, fmt.Errorf("decode online_store: %w", err)
	}
	if err := v.UnmarshalKey("tracing", &cfg.Tracing); err != nil {
		return Config{}, fmt.Errorf("decode tracing: %w", err)
	}
	cfg.Metrics.Textfile = v.GetString("metrics.textfile")
	return cfg, nil
}

func (r RegistryConfig) memory() bool {
	return strings.EqualFold(r.RegistryType, string(core.StorageMemory))
}

func (c *Config) resolvePaths() {
	switch {
	case c.Registry.memory():
	case strings.HasPrefix(c.Registry.Path, "sqlite:///"):
		p := strings.TrimPrefix(c.Registry.Path, "sqlite:///")
		c.Registry.Path = "sqlite:///" + resolve(c.Root, p)
	case strings.Contains(c.Registry.Path, "://"):
	default:
		c.Registry.Path = resolve(c.Root, c.Registry.Path)
	}
	if c.OnlineStore.Path != "" && !strings.Contains(c.OnlineStore.Path, "://") {
		c.OnlineStore.Path = resolve(c.Root, c.OnlineStore.Path)
	}
	if c.Tracing.FilePath != "" {
		c.Tracing.FilePath = resolve(c.Root, c.Tracing.FilePath)
	}
	if c.Metrics.Textfile != "" {
		c.Metrics.Textfile = resolve(c.Root, c.Metrics.Textfile)
	}
}

// StorageOptions maps the registry configuration to a backend selection.
// The memory backend is named after the project unless a path is given.
func (c Config) StorageOptions() (core.StorageOptions, error) {
	driver, location, err := core.DetectDriver(c.Registry.RegistryType, c.Registry.Path)
	if err != nil {
		return core.StorageOptions{}, err
	}
	opts := core.StorageOptions{Driver: driver, Location: location}
	if driver == core.StorageMemory && location == "" {
		opts.Location = c.Project
	}
	if c.Registry.S3EndpointOverride != "" {
		opts.S3 = blob.S3Config{Endpoint: c.Registry.S3EndpointOverride}
	}
	return opts, nil
}

func resolve(root, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(root, filepath.FromSlash(p))
}
