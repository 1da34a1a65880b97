// Package runtime assembles the request pipeline, its storage and the HTTP
// API, and manages their lifecycle.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/tjfontaine/polyglot-request-logic/internal/adapters/auth/apikey"
	"github.com/tjfontaine/polyglot-request-logic/internal/adapters/events/direct"
	"github.com/tjfontaine/polyglot-request-logic/internal/adapters/storage/sqlite"
	"github.com/tjfontaine/polyglot-request-logic/internal/core/domain"
	"github.com/tjfontaine/polyglot-request-logic/internal/core/ports"
	"github.com/tjfontaine/polyglot-request-logic/internal/logic"
	"github.com/tjfontaine/polyglot-request-logic/internal/metrics"
	"github.com/tjfontaine/polyglot-request-logic/internal/pipeline"
	"github.com/tjfontaine/polyglot-request-logic/internal/pkg/config"
	"github.com/tjfontaine/polyglot-request-logic/internal/pkg/safehttp"
	"github.com/tjfontaine/polyglot-request-logic/internal/server"
	"github.com/tjfontaine/polyglot-request-logic/internal/storage"
	"github.com/tjfontaine/polyglot-request-logic/internal/storage/memory"
	"github.com/tjfontaine/polyglot-request-logic/internal/storage/sqldb"
	"github.com/tjfontaine/polyglot-request-logic/internal/transport/httpx"
	"github.com/tjfontaine/polyglot-request-logic/internal/variables"
)

// Service runs the request pipeline behind the HTTP API. It can be embedded
// in larger applications or run standalone.
type Service struct {
	// Dependencies (injected via options)
	config   ports.ConfigProvider
	storage  ports.StorageProvider
	listener net.Listener
	logger   *slog.Logger

	// Built by Start
	auth      *apikey.Provider
	events    *direct.Publisher
	hooks     *pipeline.Registry
	transport *httpx.Transport
	logic     *logic.Logic
	metrics   *metrics.Metrics
	server    *server.Server
	serveErr  chan error

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.RWMutex
}

// New creates a Service with the given options. Storage defaults to the
// backend named by the configuration.
func New(opts ...Option) (*Service, error) {
	s := &Service{logger: slog.Default()}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if s.config == nil {
		return nil, errors.New("config provider required (use WithFileConfig or WithConfigProvider)")
	}
	return s, nil
}

// Start loads the configuration, builds the pipeline and starts serving.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ctx, s.cancel = context.WithCancel(ctx)

	cfg, err := s.config.Load(s.ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if s.storage == nil {
		s.storage, err = openStorage(cfg.Storage)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
	}
	if err := storage.SeedCertificates(s.ctx, s.storage, certificatesFromConfig(cfg.Certificates)); err != nil {
		return fmt.Errorf("seed certificates: %w", err)
	}

	if err := s.initPipeline(cfg); err != nil {
		return fmt.Errorf("init pipeline: %w", err)
	}

	if err := s.startServer(cfg); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	go s.watchConfig()

	s.logger.Info("request logic started",
		slog.Int("port", cfg.Server.Port),
		slog.String("storage", cfg.Storage.Type),
		slog.Int("pre_hooks", len(cfg.Hooks.Pre)),
		slog.Int("post_hooks", len(cfg.Hooks.Post)))

	return nil
}

func (s *Service) initPipeline(cfg *config.Config) error {
	var err error

	s.events, err = direct.NewPublisher(s.storage, s.logger)
	if err != nil {
		return fmt.Errorf("create result publisher: %w", err)
	}

	s.hooks, err = pipeline.NewRegistryFromConfig(cfg.Hooks, s.logger)
	if err != nil {
		return fmt.Errorf("create hooks: %w", err)
	}

	timeout, err := cfg.Transport.TimeoutDuration()
	if err != nil {
		return err
	}
	transportOpts := []httpx.Option{httpx.WithTimeout(timeout), httpx.WithLogger(s.logger)}
	if cfg.Transport.BlockPrivateNetworks {
		transportOpts = append(transportOpts, httpx.WithRoundTripper(safehttp.NewTransport()))
	}
	// The transport reports into the logic built below.
	s.transport, err = httpx.New(
		ports.ReporterFunc(func(ctx context.Context, c *domain.Completion) { s.logic.Report(ctx, c) }),
		transportOpts...,
	)
	if err != nil {
		return fmt.Errorf("create transport: %w", err)
	}

	s.metrics = metrics.New()
	s.logic, err = logic.New(
		logic.WithTransport(s.transport),
		logic.WithEvaluator(variables.NewExprEvaluator(cfg.Variables)),
		logic.WithHooks(s.hooks),
		logic.WithResultSink(s.events),
		logic.WithHistory(s.storage),
		logic.WithCertificateStore(s.storage),
		logic.WithVariableListener(&variableLogger{logger: s.logger}),
		logic.WithHandlersTimeout(cfg.Logic.HandlersTimeout()),
		logic.WithVariablesDisabled(cfg.Logic.VariablesDisabled),
		logic.WithMetrics(s.metrics),
		logic.WithLogger(s.logger),
	)
	if err != nil {
		return fmt.Errorf("create logic: %w", err)
	}
	return nil
}

func (s *Service) startServer(cfg *config.Config) error {
	var err error
	s.auth, err = apikey.NewProvider(cfg.Server.APIKeys)
	if err != nil {
		return fmt.Errorf("create api key auth: %w", err)
	}

	h := server.NewHandler(server.HandlerConfig{
		Logic:         s.logic,
		Results:       s.storage,
		Awaiter:       s.events,
		History:       s.storage,
		Certificates:  s.storage,
		Authenticator: s.auth,
	})
	s.server = server.New(server.Config{
		Port:           cfg.Server.Port,
		RateLimitRPS:   cfg.Server.RateLimit.RPS,
		RateLimitBurst: cfg.Server.RateLimit.Burst,
		Metrics:        s.metrics.Handler(),
	}, s.logger, h)

	s.serveErr = make(chan error, 1)
	go func() {
		var err error
		if s.listener != nil {
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.Start()
		}
		if err != nil {
			s.logger.Error("server error", slog.String("error", err.Error()))
		}
		s.serveErr <- err
	}()
	return nil
}

// Shutdown stops the API, aborts pending requests and releases resources.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("shutting down request logic")

	if s.cancel != nil {
		s.cancel()
	}

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			s.logger.Error("failed to shutdown server", slog.String("error", err.Error()))
			return err
		}
	}

	if s.logic != nil {
		if err := s.logic.Shutdown(ctx); err != nil {
			s.logger.Error("failed to drain pending requests", slog.String("error", err.Error()))
		}
	}
	if s.transport != nil {
		s.transport.Wait()
	}

	if s.events != nil {
		if err := s.events.Close(); err != nil {
			s.logger.Error("failed to close result publisher", slog.String("error", err.Error()))
		}
	}

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			s.logger.Error("failed to close storage", slog.String("error", err.Error()))
		}
	}

	if s.config != nil {
		if err := s.config.Close(); err != nil {
			s.logger.Error("failed to close config", slog.String("error", err.Error()))
		}
	}

	s.logger.Info("request logic shutdown complete")
	return nil
}

// Handler returns the API handler. It is nil before Start.
func (s *Service) Handler() http.Handler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.server == nil {
		return nil
	}
	return s.server.Router
}

// Logic returns the pipeline. It is nil before Start.
func (s *Service) Logic() *logic.Logic {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.logic
}

// Err returns a channel that yields the server's exit error once it stops
// serving.
func (s *Service) Err() <-chan error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.serveErr
}

// watchConfig watches for config changes and reloads.
func (s *Service) watchConfig() {
	onChange := func(newCfg *config.Config) {
		s.logger.Info("config changed, reloading")
		if err := s.reload(newCfg); err != nil {
			s.logger.Error("failed to reload", slog.String("error", err.Error()))
		}
	}

	if err := s.config.Watch(s.ctx, onChange); err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Error("config watch failed", slog.String("error", err.Error()))
		}
	}
}

// reload applies the runtime-adjustable settings of cfg: hooks, API keys,
// the handlers timeout and the variables. Other settings take effect on
// restart.
func (s *Service) reload(cfg *config.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.logic == nil {
		return errors.New("service not started")
	}

	hooks, err := pipeline.HooksFromConfig(cfg.Hooks, s.logger)
	if err != nil {
		return fmt.Errorf("rebuild hooks: %w", err)
	}
	if err := s.auth.Reload(cfg.Server.APIKeys); err != nil {
		return fmt.Errorf("reload api keys: %w", err)
	}
	s.hooks.Replace(hooks...)

	s.logic.SetHandlersTimeout(cfg.Logic.HandlersTimeout())
	s.logic.SetVariablesDisabled(cfg.Logic.VariablesDisabled)
	s.logic.SetEnvironment(cfg.Variables)

	s.logger.Info("reload complete",
		slog.Int("hooks", len(hooks)),
		slog.Duration("handlers_timeout", cfg.Logic.HandlersTimeout()),
		slog.Bool("variables_disabled", cfg.Logic.VariablesDisabled))

	return nil
}

// openStorage opens the backend named by cfg.Type.
func openStorage(cfg config.StorageConfig) (ports.StorageProvider, error) {
	switch cfg.Type {
	case "", "memory":
		return memory.New(), nil
	case "sqlite":
		path := cfg.SQLite.Path
		if path == "" {
			path = cfg.Database.DSN
		}
		if path == "" {
			return nil, errors.New("storage.sqlite.path is required")
		}
		return sqlite.NewProvider(path)
	case "postgres":
		if cfg.Database.DSN == "" {
			return nil, errors.New("storage.database.dsn is required")
		}
		return sqldb.NewPostgres(cfg.Database.DSN)
	case "database":
		return sqldb.New(sqldb.Config{Driver: cfg.Database.Driver, DSN: cfg.Database.DSN})
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// certificatesFromConfig converts configured certificates. The passphrase
// belongs to the key when one is given, otherwise to the certificate.
func certificatesFromConfig(cfgs []config.CertificateConfig) []*domain.Certificate {
	certs := make([]*domain.Certificate, 0, len(cfgs))
	for _, c := range cfgs {
		cert := &domain.Certificate{
			ID:   c.ID,
			Type: c.Type,
			Cert: domain.CertificateData{Data: c.Cert},
		}
		if c.Key != "" {
			cert.Key = &domain.CertificateData{Data: c.Key, Passphrase: c.Passphrase}
		} else {
			cert.Cert.Passphrase = c.Passphrase
		}
		certs = append(certs, cert)
	}
	return certs
}

// variableLogger records variables resolved from request actions.
type variableLogger struct {
	logger *slog.Logger
}

func (v *variableLogger) VariableUpdated(ctx context.Context, name, value string) {
	v.logger.DebugContext(ctx, "variable updated", slog.String("variable", name))
}
