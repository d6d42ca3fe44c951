// Package config loads relq configuration from YAML files, .env files and
// RELQ_ environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/satishbabariya/relq/dialect"
	"github.com/satishbabariya/relq/service"
)

// AppFs is the filesystem configuration is read from.
var AppFs = afero.NewOsFs()

// EnvPrefix prefixes environment overrides, e.g. RELQ_SERVER_LISTEN.
const EnvPrefix = "RELQ"

// Configuration describes one database the server hosts.
type Configuration struct {
	Name              string                 `mapstructure:"name"`
	Provider          string                 `mapstructure:"provider"`
	URL               string                 `mapstructure:"url"`
	MappingSchemaType string                 `mapstructure:"mapping_schema_type"`
	SqlBuilderType    string                 `mapstructure:"sql_builder_type"`
	SqlOptimizerType  string                 `mapstructure:"sql_optimizer_type"`
	Flags             *dialect.ProviderFlags `mapstructure:"flags"`
	TableOptions      []string               `mapstructure:"table_options"`
}

// ResolvedURL expands ${VAR} references in the URL.
func (c Configuration) ResolvedURL() string {
	return os.ExpandEnv(c.URL)
}

// ParsedTableOptions returns the configured table options, or nil when
// none are set.
func (c Configuration) ParsedTableOptions() (*dialect.TableOptions, error) {
	if len(c.TableOptions) == 0 {
		return nil, nil
	}
	opts, err := dialect.ParseTableOptions(c.TableOptions)
	if err != nil {
		return nil, fmt.Errorf("configuration %s: %w", c.Name, err)
	}
	return &opts, nil
}

// MappingFile registers the entities declared in Path as a mapping schema
// type.
type MappingFile struct {
	Type          string `mapstructure:"type"`
	Path          string `mapstructure:"path"`
	Configuration string `mapstructure:"configuration"`
}

// ServerConfig configures `relq serve`.
type ServerConfig struct {
	Listen         string          `mapstructure:"listen"`
	AllowUpdates   bool            `mapstructure:"allow_updates"`
	Configurations []Configuration `mapstructure:"configurations"`
}

// Validate checks names, providers and table options.
func (s ServerConfig) Validate() error {
	var errs []error
	seen := make(map[string]bool)
	for i, c := range s.Configurations {
		switch {
		case c.Name == "":
			errs = append(errs, fmt.Errorf("configurations[%d]: name is required", i))
		case seen[c.Name]:
			errs = append(errs, fmt.Errorf("configurations[%d]: duplicate name %q", i, c.Name))
		}
		seen[c.Name] = true
		if service.DriverName(c.Provider) == "" {
			errs = append(errs, fmt.Errorf("configurations[%d]: unsupported provider %q", i, c.Provider))
		}
		if c.URL == "" {
			errs = append(errs, fmt.Errorf("configurations[%d]: url is required", i))
		}
		if _, err := c.ParsedTableOptions(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ClientConfig configures the commands that talk to a server.
type ClientConfig struct {
	Endpoint      string        `mapstructure:"endpoint"`
	Configuration string        `mapstructure:"configuration"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RetryMax      int           `mapstructure:"retry_max"`
}

// Config is the full configuration file.
type Config struct {
	Mappings []MappingFile `mapstructure:"mappings"`
	Server   ServerConfig  `mapstructure:"server"`
	Client   ClientConfig  `mapstructure:"client"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-"`
}

// ValidateMappings checks the mapping file entries.
func (c *Config) ValidateMappings() error {
	var errs []error
	seen := make(map[string]bool)
	for i, m := range c.Mappings {
		if m.Type == "" || m.Path == "" {
			errs = append(errs, fmt.Errorf("mappings[%d]: type and path are required", i))
			continue
		}
		key := strings.ToLower(m.Type)
		if seen[key] {
			errs = append(errs, fmt.Errorf("mappings[%d]: duplicate type %q", i, m.Type))
		}
		seen[key] = true
	}
	return errors.Join(errs...)
}

type loader struct {
	fs          afero.Fs
	file        string
	searchPaths []string
	envDir      string
}

// LoadOption configures Load.
type LoadOption func(*loader)

// WithFs reads from fs instead of AppFs.
func WithFs(fs afero.Fs) LoadOption {
	return func(l *loader) { l.fs = fs }
}

// WithConfigFile reads path instead of searching.
func WithConfigFile(path string) LoadOption {
	return func(l *loader) { l.file = path }
}

// WithSearchPaths replaces the directories searched for .relq.yaml.
func WithSearchPaths(paths ...string) LoadOption {
	return func(l *loader) { l.searchPaths = paths }
}

// WithEnvDir sets the directory .env and .env.local are read from.
func WithEnvDir(dir string) LoadOption {
	return func(l *loader) { l.envDir = dir }
}

func defaultSearchPaths() []string {
	paths := []string{"."}
	if home, err := homedir.Dir(); err == nil {
		paths = append(paths, home, filepath.Join(home, ".config", "relq"))
	}
	return paths
}

// Load reads the configuration. Precedence, lowest first: defaults, the
// config file, .env, .env.local, RELQ_ environment variables.
func Load(opts ...LoadOption) (*Config, error) {
	l := &loader{fs: AppFs, envDir: "."}
	for _, opt := range opts {
		opt(l)
	}
	if l.searchPaths == nil {
		l.searchPaths = defaultSearchPaths()
	}

	if err := l.loadDotEnv(); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetFs(l.fs)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.allow_updates", false)
	v.SetDefault("client.endpoint", "http://localhost:8080")
	v.SetDefault("client.configuration", "")
	v.SetDefault("client.timeout", "30s")
	v.SetDefault("client.retry_max", 2)

	if l.file != "" {
		v.SetConfigFile(l.file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", l.file, err)
		}
	} else {
		v.SetConfigName(".relq")
		v.SetConfigType("yaml")
		for _, p := range l.searchPaths {
			v.AddConfigPath(p)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	return &cfg, nil
}

// loadDotEnv applies .env without overriding the environment, then
// .env.local with override.
func (l *loader) loadDotEnv() error {
	for _, f := range []struct {
		name      string
		overwrite bool
	}{
		{".env", false},
		{".env.local", true},
	} {
		path := filepath.Join(l.envDir, f.name)
		fh, err := l.fs.Open(path)
		if err != nil {
			continue
		}
		vars, err := godotenv.Parse(fh)
		fh.Close()
		if err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		for k, val := range vars {
			if cur, ok := os.LookupEnv(k); ok && cur != "" && !f.overwrite {
				continue
			}
			if err := os.Setenv(k, val); err != nil {
				return fmt.Errorf("set %s: %w", k, err)
			}
		}
	}
	return nil
}
