package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/upb/cognito-auth/cognito"
	"github.com/upb/cognito-auth/config"
	"github.com/upb/cognito-auth/internal/observability"
	"github.com/upb/cognito-auth/middleware"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Logger *zap.Logger

	// Metrics is nil when metrics are disabled
	Registry *prometheus.Registry
	Metrics  *observability.Metrics

	// Auth
	KeySource      *cognito.HTTPKeySource
	KeyStore       *cognito.KeyStore
	Verifier       *cognito.Verifier
	AuthMiddleware *middleware.AuthMiddleware
}

// NewDependencies creates and wires up all application dependencies.
// No network I/O happens here; the key set is fetched on first use or by WarmUp.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	deps.initMetrics(cfg)

	if err := deps.initAuth(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initMetrics creates a private registry so tests can build several dependency sets
func (d *Dependencies) initMetrics(cfg *config.Config) {
	if !cfg.Observability.MetricsEnabled {
		d.Logger.Info("metrics disabled")
		return
	}
	d.Registry = prometheus.NewRegistry()
	d.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	d.Metrics = observability.NewMetrics(d.Registry)
}

func (d *Dependencies) initAuth(cfg *config.Config) error {
	source, err := cognito.NewHTTPKeySource(cfg.Cognito.KeySetURL(), cfg.Cognito.JWKSTimeout, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create key source: %w", err)
	}

	storeCfg := cognito.KeyStoreConfig{
		MaxAge:        cfg.Cognito.JWKSMaxAge,
		UnknownKeyTTL: cfg.Cognito.UnknownKidTTL,
		Logger:        d.Logger,
	}
	opts := []cognito.VerifierOption{cognito.WithLogger(d.Logger)}
	if d.Metrics != nil {
		storeCfg.Recorder = d.Metrics
		opts = append(opts, cognito.WithRecorder(d.Metrics))
	}
	store := cognito.NewKeyStore(source, storeCfg)

	verifier, err := cognito.NewVerifier(store, cognito.Config{
		Region:     cfg.Cognito.Region,
		UserPoolID: cfg.Cognito.UserPoolID,
		TokenUse:   cfg.Cognito.TokenUse,
		ClientID:   cfg.Cognito.ClientID,
	}, opts...)
	if err != nil {
		return fmt.Errorf("failed to create verifier: %w", err)
	}

	d.KeySource = source
	d.KeyStore = store
	d.Verifier = verifier
	d.AuthMiddleware = middleware.NewAuthMiddleware(verifier, d.Logger)

	d.Logger.Info("cognito verifier initialized",
		zap.String("pool", cfg.Cognito.LogString()),
		zap.String("issuer", verifier.Issuer()))
	return nil
}

// WarmUp loads the key set ahead of the first request. A failure is logged and
// returned but is not fatal: the store retries on demand.
func (d *Dependencies) WarmUp(ctx context.Context) error {
	set, err := d.KeyStore.Refresh(ctx)
	if err != nil {
		d.Logger.Warn("initial jwks load failed, will retry on demand",
			zap.String("jwks_url", d.KeySource.URL()),
			zap.Error(err))
		return err
	}
	d.Logger.Info("jwks preloaded", zap.Strings("kids", set.KeyIDs()))
	return nil
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	// Sync logger; stderr sync errors are expected on some platforms
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	return nil
}
