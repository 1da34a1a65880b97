package runtime

import (
	"fmt"
	"log/slog"
	"net"

	"github.com/tjfontaine/polyglot-request-logic/internal/adapters/config/file"
	"github.com/tjfontaine/polyglot-request-logic/internal/adapters/storage/sqlite"
	"github.com/tjfontaine/polyglot-request-logic/internal/core/ports"
	"github.com/tjfontaine/polyglot-request-logic/internal/storage/memory"
	"github.com/tjfontaine/polyglot-request-logic/internal/storage/sqldb"
)

// Option is a functional option for configuring a Service.
type Option func(*Service) error

// WithFileConfig uses file-based configuration with hot-reload (default).
// The path should point to a config.yaml file that will be watched for changes.
func WithFileConfig(path string) Option {
	return func(s *Service) error {
		provider, err := file.NewProvider(path, s.logger)
		if err != nil {
			return fmt.Errorf("create file config provider: %w", err)
		}
		s.config = provider
		return nil
	}
}

// WithConfigProvider sets a custom config provider.
// For advanced use cases where you need full control over config loading.
func WithConfigProvider(provider ports.ConfigProvider) Option {
	return func(s *Service) error {
		s.config = provider
		return nil
	}
}

// WithMemoryStorage keeps history, certificates and results in memory.
func WithMemoryStorage() Option {
	return func(s *Service) error {
		s.storage = memory.New()
		return nil
	}
}

// WithSQLite uses SQLite storage at path.
func WithSQLite(path string) Option {
	return func(s *Service) error {
		store, err := sqlite.NewProvider(path)
		if err != nil {
			return fmt.Errorf("create sqlite storage: %w", err)
		}
		s.storage = store
		return nil
	}
}

// WithPostgres uses PostgreSQL storage.
// Recommended when several instances share history and certificates.
func WithPostgres(dsn string) Option {
	return func(s *Service) error {
		store, err := sqldb.NewPostgres(dsn)
		if err != nil {
			return fmt.Errorf("create postgres storage: %w", err)
		}
		s.storage = store
		return nil
	}
}

// WithStorageProvider sets a custom storage provider.
func WithStorageProvider(provider ports.StorageProvider) Option {
	return func(s *Service) error {
		s.storage = provider
		return nil
	}
}

// WithListener serves the API on l instead of the configured port.
func WithListener(l net.Listener) Option {
	return func(s *Service) error {
		s.listener = l
		return nil
	}
}

// WithLogger sets a custom logger. Apply it before options that create
// providers so they share it.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) error {
		s.logger = logger
		return nil
	}
}
