// Package main provides the hadoop authorization server entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/kylo-io/hadoop-authz/pkg/api"
	"github.com/kylo-io/hadoop-authz/pkg/authz"
	"github.com/kylo-io/hadoop-authz/pkg/authz/sentry"
	"github.com/kylo-io/hadoop-authz/pkg/config"
	"github.com/kylo-io/hadoop-authz/pkg/hadoop"
	"github.com/kylo-io/hadoop-authz/pkg/ledger"
	"github.com/kylo-io/hadoop-authz/pkg/metrics"
	"github.com/kylo-io/hadoop-authz/pkg/sentryclient"
)

var version = "dev"

func main() {
	config.BindFlags(pflag.CommandLine)
	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
	pflag.Parse()

	// Initialize glog for backwards compatibility
	_ = flag.Set("logtostderr", "true")

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(pflag.CommandLine)
	if err != nil {
		glog.Fatalf("Failed to load config: %v", err)
	}

	logger.Info("starting authz server",
		"version", version,
		"listen", cfg.Listen,
		"backend", cfg.BackendType(),
		"ledger", cfg.Ledger.Enabled,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	if cfg.Tracing.Endpoint != "" {
		shutdownTracing, err := setupTraceProvider(ctx, cfg.Tracing)
		if err != nil {
			glog.Fatalf("Failed to set up tracing: %v", err)
		}
		defer shutdownTracing()
		logger.Info("tracing enabled", "endpoint", cfg.Tracing.Endpoint)
	}

	metrics.Register(prometheus.DefaultRegisterer)

	var serverOpts []api.Option
	serverOpts = append(serverOpts,
		api.WithLogger(logger),
		api.WithAdminGroups(cfg.AdminGroups),
		api.WithCORSOrigins(cfg.CORSOrigins),
	)

	var store *ledger.Store
	if cfg.Ledger.Enabled {
		store, err = setupLedger(ctx, cfg.Ledger)
		if err != nil {
			glog.Fatalf("Failed to set up policy ledger: %v", err)
		}
		serverOpts = append(serverOpts,
			api.WithLedger(store),
			api.WithReadinessCheck("ledger", store.Ping),
		)
		go ledger.NewRetentionWorker(store, cfg.Ledger.RetentionDays, logger).Run(ctx)
		logger.Info("policy ledger enabled", "type", cfg.Ledger.Type, "retentionDays", cfg.Ledger.RetentionDays)
	}

	var service authz.Service
	switch cfg.BackendType() {
	case authz.TypeSentry:
		client, svc, err := setupSentry(ctx, cfg, store, logger)
		if err != nil {
			glog.Fatalf("Failed to set up sentry backend: %v", err)
		}
		defer client.Close()
		service = svc
		serverOpts = append(serverOpts, api.WithReadinessCheck("sentry", client.Ping))
		logger.Info("using sentry backend",
			"driver", cfg.Sentry.DriverName,
			"groups", len(cfg.Sentry.Groups),
			"updateStrategy", svc.Strategy())
	default:
		service = authz.NoopService{}
		logger.Warn("authorization disabled, reconciles are accepted without provisioning anything")
	}

	switch cfg.Auth.Mode {
	case config.AuthModeJWT:
		mw, err := api.JWTIdentityMiddleware(api.JWTConfig{
			UserClaim:     cfg.Auth.JWT.UserClaim,
			GroupsClaim:   cfg.Auth.JWT.GroupsClaim,
			PublicKeyPath: cfg.Auth.JWT.PublicKeyPath,
			Issuer:        cfg.Auth.JWT.Issuer,
			Audience:      cfg.Auth.JWT.Audience,
		}, logger)
		if err != nil {
			glog.Fatalf("Failed to set up JWT identity: %v", err)
		}
		serverOpts = append(serverOpts, api.WithIdentityMiddleware(mw))
		logger.Info("using JWT identity",
			"userClaim", cfg.Auth.JWT.UserClaim,
			"groupsClaim", cfg.Auth.JWT.GroupsClaim,
			"hasPublicKey", cfg.Auth.JWT.PublicKeyPath != "")
	default:
		logger.Info("using header identity", "user", authz.HeaderRemoteUser, "groups", authz.HeaderRemoteGroup)
	}

	router := api.NewServer(service, serverOpts...).Router()

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			glog.Fatalf("HTTP server error: %v", err)
		}
	}()

	logger.Info("authz server ready", "listen", cfg.Listen)

	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("authz server stopped")
}

func setupLedger(ctx context.Context, cfg ledger.Config) (*ledger.Store, error) {
	db, err := ledger.Open(cfg.Type, cfg.DSN)
	if err != nil {
		return nil, err
	}
	store := ledger.NewStore(db)
	if err := store.AutoMigrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate ledger: %w", err)
	}
	return store, nil
}

func setupSentry(ctx context.Context, cfg *config.Config, store *ledger.Store, logger *slog.Logger) (*sentryclient.Client, *sentry.Service, error) {
	strategy, err := sentry.ParseUpdateStrategy(cfg.Sentry.UpdateStrategy)
	if err != nil {
		return nil, nil, err
	}

	hadoopConf := hadoop.NewConfiguration()
	if cfg.Hadoop.ConfDir != "" {
		hadoopConf, err = hadoop.LoadConfigurationDir(cfg.Hadoop.ConfDir)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load hadoop configuration: %w", err)
		}
	}

	aclOpts := []hadoop.ACLOption{hadoop.WithRecursive(cfg.Hadoop.Recursive)}
	if cfg.Hadoop.WebHDFSURL != "" {
		u, err := url.Parse(cfg.Hadoop.WebHDFSURL)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid webhdfs url: %w", err)
		}
		aclOpts = append(aclOpts, hadoop.WithBaseURL(u))
	}
	if cfg.Hadoop.User != "" {
		aclOpts = append(aclOpts, hadoop.WithUser(cfg.Hadoop.User))
	}

	client, err := sentryclient.Open(ctx, sentryclient.Config{
		DriverName: cfg.Sentry.DriverName,
		DataSource: cfg.Sentry.DataSource,
		Groups:     cfg.Sentry.Groups,
		ACLOptions: aclOpts,
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	opts := []sentry.Option{
		sentry.WithHadoopConfiguration(hadoopConf),
		sentry.WithUpdateStrategy(strategy),
		sentry.WithLogger(logger),
	}
	if store != nil {
		opts = append(opts, sentry.WithLedger(store))
	}
	return client, sentry.New(client, opts...), nil
}

func setupTraceProvider(ctx context.Context, cfg config.TracingConfig) (func(), error) {
	exporterOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		exporterOpts = append(exporterOpts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, exporterOpts...)
	if err != nil {
		return nil, err
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(cfg.ServiceName),
		semconv.ServiceVersionKey.String(version),
	)

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			slog.Error("failed to shut down tracer provider", "error", err)
		}
	}, nil
}
