// Package service hosts named database configurations and executes the
// command payloads sent by remote data contexts.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/lib/pq"              // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3"    // SQLite driver

	"github.com/satishbabariya/relq/dialect"
	"github.com/satishbabariya/relq/internal/debug"
	"github.com/satishbabariya/relq/mapping"
	"github.com/satishbabariya/relq/runtime/remote"
)

// Configuration is one database the service exposes by name.
type Configuration struct {
	Name     string
	Provider string
	DB       *sql.DB

	// Reported to clients. Empty fields are derived from Provider.
	MappingSchemaType string
	SqlBuilderType    string
	SqlOptimizerType  string
	Flags             *dialect.ProviderFlags
	TableOptions      *dialect.TableOptions
}

func (c *Configuration) info() *remote.ServiceInfo {
	info := &remote.ServiceInfo{
		MappingSchemaType:     c.MappingSchemaType,
		SqlBuilderType:        c.SqlBuilderType,
		SqlOptimizerType:      c.SqlOptimizerType,
		SqlProviderFlags:      dialect.DefaultFlags(c.Provider),
		SupportedTableOptions: dialect.DefaultTableOptions(c.Provider),
		ProtocolVersion:       remote.ProtocolVersion,
	}
	if info.MappingSchemaType == "" {
		info.MappingSchemaType = mapping.DefaultSchemaType
	}
	if info.SqlBuilderType == "" {
		info.SqlBuilderType = strings.ToLower(c.Provider)
	}
	if info.SqlOptimizerType == "" {
		info.SqlOptimizerType = dialect.BasicOptimizerType
	}
	if c.Flags != nil {
		info.SqlProviderFlags = *c.Flags
	}
	if c.TableOptions != nil {
		info.SupportedTableOptions = *c.TableOptions
	}
	return info
}

// DriverName maps a provider name to its database/sql driver name.
func DriverName(provider string) string {
	switch strings.ToLower(provider) {
	case "postgresql", "postgres":
		return "postgres"
	case "mysql":
		return "mysql"
	case "sqlite", "sqlite3":
		return "sqlite3"
	default:
		return ""
	}
}

// OpenDB opens a connection pool for provider.
func OpenDB(provider, dsn string) (*sql.DB, error) {
	driverName := DriverName(provider)
	if driverName == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, provider)
	}
	return sql.Open(driverName, dsn)
}

// Option configures a Service.
type Option func(*Service)

// WithAllowUpdates permits non-query commands and batches.
func WithAllowUpdates(allow bool) Option {
	return func(s *Service) {
		s.allowUpdates = allow
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// Service executes payloads against its configurations. It is safe for
// concurrent use.
type Service struct {
	mu           sync.RWMutex
	configs      map[string]*Configuration
	allowUpdates bool
	logger       *slog.Logger
}

// New creates a service with no configurations.
func New(opts ...Option) *Service {
	s := &Service{configs: make(map[string]*Configuration)}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = debug.Or(s.logger, "service")
	return s
}

// Add registers cfg, replacing any configuration of the same name. The
// replaced pool is returned so the caller can close it.
func (s *Service) Add(cfg Configuration) (*sql.DB, error) {
	if cfg.Name == "" {
		return nil, errors.New("configuration name is required")
	}
	if cfg.DB == nil {
		return nil, fmt.Errorf("configuration %s: no database", cfg.Name)
	}
	if DriverName(cfg.Provider) == "" {
		return nil, fmt.Errorf("configuration %s: %w: %s", cfg.Name, ErrUnsupportedProvider, cfg.Provider)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var replaced *sql.DB
	if old, ok := s.configs[cfg.Name]; ok && old.DB != cfg.DB {
		replaced = old.DB
	}
	c := cfg
	s.configs[cfg.Name] = &c
	s.logger.Debug("configuration registered", "configuration", cfg.Name, "provider", cfg.Provider)
	return replaced, nil
}

// SetMappingSchemaType changes the schema type reported for name.
func (s *Service) SetMappingSchemaType(name, schemaType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.configs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownConfiguration, name)
	}
	c.MappingSchemaType = schemaType
	return nil
}

// Configurations returns the hosted configuration names, sorted.
func (s *Service) Configurations() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.configs))
	for name := range s.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AllowUpdates reports whether non-query commands are accepted.
func (s *Service) AllowUpdates() bool {
	return s.allowUpdates
}

func (s *Service) lookup(name string) (*Configuration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.configs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownConfiguration, name)
	}
	return c, nil
}

// GetInfo returns the capabilities of configuration.
func (s *Service) GetInfo(ctx context.Context, configuration string) (*remote.ServiceInfo, error) {
	c, err := s.lookup(configuration)
	if err != nil {
		return nil, err
	}
	return c.info(), nil
}

// Close closes every configuration's pool.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for name, c := range s.configs {
		if err := c.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	s.configs = make(map[string]*Configuration)
	return errors.Join(errs...)
}
