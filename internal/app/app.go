package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"sellerlicense/internal/config"
	apierrors "sellerlicense/internal/errors"
	"sellerlicense/internal/infrastructure"
	"sellerlicense/internal/license"
	customMiddleware "sellerlicense/internal/middleware"
	"sellerlicense/internal/storage"
	handlers "sellerlicense/internal/transport/http"
	ws "sellerlicense/internal/websocket"
)

const (
	Version = "1.0.0"
	AppName = "Seller Tools License Service"
)

// Application represents the main application container
type Application struct {
	Config        *config.Config
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
	Store         storage.Store
	Engine        *license.Engine
	WebSocketHub  *ws.Hub
	Router        *chi.Mux
	Server        *http.Server

	unsubscribe func()
}

// NewApplication loads configuration from configPath and the
// environment, initializes the logger and builds the application.
func NewApplication(configPath string) (*Application, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return New(context.Background(), cfg, logger)
}

// New builds the application from an already loaded configuration.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Application, error) {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	logger.InfoContext(ctx, "Application starting",
		slog.String("name", AppName),
		slog.String("version", Version),
		slog.String("storage_backend", cfg.Storage.Backend))

	providers, err := infrastructure.InitializeOTel(cfg.Telemetry, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	a := &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: providers,
	}

	if err := a.initializeServices(ctx); err != nil {
		providers.Shutdown(ctx)
		return nil, err
	}

	a.setupRouter()
	a.createServer()
	return a, nil
}

// initializeServices opens storage and builds the engine and hub.
func (a *Application) initializeServices(ctx context.Context) error {
	store, err := storage.Open(ctx, a.Config.Storage, infrastructure.WithComponent(a.Logger, "storage"))
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	a.Store = store

	licenseMetrics, err := license.NewMetrics(a.OTelProviders.Meter)
	if err != nil {
		store.Close()
		return fmt.Errorf("failed to create license metrics: %w", err)
	}

	engine, err := license.NewEngine(license.Options{
		Store:       store,
		KeyPrefix:   a.Config.License.KeyPrefix,
		DisableSeed: !a.Config.License.SeedDefault,
		DeviceID:    infrastructure.DeviceID(a.Config.License.AppID),
		Logger:      a.Logger,
		Metrics:     licenseMetrics,
		Tracer:      a.OTelProviders.Tracer,
	})
	if err != nil {
		store.Close()
		return fmt.Errorf("failed to create license engine: %w", err)
	}
	a.Engine = engine

	hubMetrics, err := ws.NewMetrics(a.OTelProviders.Meter)
	if err != nil {
		store.Close()
		return fmt.Errorf("failed to create websocket metrics: %w", err)
	}
	a.WebSocketHub = ws.NewHub(a.Logger, hubMetrics)
	a.unsubscribe = engine.Bus().Subscribe(a.WebSocketHub.Listener())

	return nil
}

// setupRouter builds the chi router. The websocket route sits outside
// the group that wraps the response writer.
func (a *Application) setupRouter() {
	r := chi.NewRouter()
	errorHandler := apierrors.NewErrorHandler(a.Logger, a.Config.Telemetry.Environment == "development")

	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)
	r.Use(customMiddleware.Recoverer(errorHandler))
	r.NotFound(errorHandler.NotFound)
	r.MethodNotAllowed(errorHandler.MethodNotAllowed)

	r.Handle("/ws", ws.NewHandler(a.WebSocketHub, a.Config.WebSocket, a.Config.Security.AllowedOrigins, a.Logger))

	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)
	}

	r.Group(func(r chi.Router) {
		otelMiddleware, err := customMiddleware.NewOTelMiddleware(a.OTelProviders)
		if err != nil {
			a.Logger.Error("Failed to create OpenTelemetry middleware", slog.String("error", err.Error()))
		} else {
			r.Use(otelMiddleware.Handler)
		}
		r.Use(customMiddleware.StructuredLogger(a.Logger))
		r.Use(customMiddleware.SecurityHeaders)
		r.Use(customMiddleware.CORS(customMiddleware.CORSConfig{
			AllowedOrigins: a.Config.Security.AllowedOrigins,
			ExposedHeaders: []string{"X-Request-ID", "Content-Disposition"},
			Logger:         a.Logger,
		}))

		var limiter *customMiddleware.RateLimiter
		if a.Config.Security.RateLimit.Enabled {
			limiter = customMiddleware.NewRateLimiter(
				a.Config.Security.RateLimit.RPS,
				a.Config.Security.RateLimit.Burst,
				a.Logger,
			)
		}

		health := handlers.NewHealthHandler(Version, a.Engine, storageInfo{backend: a.Config.Storage.Backend, store: a.Store}, a.WebSocketHub, a.Logger)
		r.Get("/healthz", health.HealthCheck)

		licenseHandler := handlers.NewLicenseHandler(a.Engine, errorHandler, limiter, a.Logger)
		r.Mount("/api/license", licenseHandler.Routes())
	})

	a.Router = r
}

func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
	}
}

// Run starts the hub, the engine, the HTTP server and, for the file
// backend, the storage watcher. It blocks until ctx is cancelled or a
// component fails, then shuts everything down.
func (a *Application) Run(ctx context.Context) error {
	a.WebSocketHub.Start()

	// Publishes the initial catalog and status, cached by the hub for
	// clients that connect later
	if err := a.Engine.Start(ctx); err != nil {
		a.WebSocketHub.Stop()
		return fmt.Errorf("failed to start license engine: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfoContext(gctx, "HTTP server listening",
			slog.String("address", a.Server.Addr))
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	if a.Config.Storage.Backend == config.BackendFile && a.Config.Storage.Watch {
		g.Go(func() error {
			return storage.Watch(gctx, a.Config.Storage.Dir, storage.DefaultDebounce,
				infrastructure.WithComponent(a.Logger, "storage_watcher"),
				a.refreshOnChange(gctx))
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		return a.Stop(context.Background())
	})

	return g.Wait()
}

// refreshOnChange re-broadcasts when another process rewrote the
// catalog or the activation record.
func (a *Application) refreshOnChange(ctx context.Context) func(keys []string) {
	keys := a.Engine.Keys()
	return func(changed []string) {
		if !slices.Contains(changed, keys.Catalog) && !slices.Contains(changed, keys.Activation) {
			return
		}
		a.Logger.DebugContext(ctx, "storage changed externally, refreshing",
			slog.Any("keys", changed))
		if err := a.Engine.Refresh(ctx); err != nil {
			a.Logger.WarnContext(ctx, "license refresh failed",
				slog.String("error", err.Error()))
		}
	}
}

// Stop gracefully stops the application
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.shutdownTimeout())
	defer cancel()

	var errs []error
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
	}

	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	a.WebSocketHub.Stop()

	if err := a.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("storage close error: %w", err))
	}

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
		}
	}

	a.Logger.InfoContext(ctx, "Application shutdown complete")
	return errors.Join(errs...)
}

func (a *Application) shutdownTimeout() time.Duration {
	if a.Config.Server.ShutdownTimeout > 0 {
		return a.Config.Server.ShutdownTimeout
	}
	return 30 * time.Second
}

// storageInfo reports the configured backend to the health handler.
type storageInfo struct {
	backend string
	store   storage.Store
}

func (s storageInfo) Backend() string { return s.backend }

func (s storageInfo) Degraded() bool { return storage.IsDegraded(s.store) }
