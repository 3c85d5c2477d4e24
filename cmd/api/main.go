package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/seagull-retail/api/internal/di"
	"github.com/seagull-retail/api/internal/handlers"
	"github.com/seagull-retail/api/internal/platform/config"
	"github.com/seagull-retail/api/internal/platform/idempotency"
	"github.com/seagull-retail/api/internal/platform/jobs"
	"github.com/seagull-retail/api/internal/platform/observability"
	"github.com/seagull-retail/api/internal/platform/secrets"
	"github.com/seagull-retail/api/internal/platform/seed"
	"github.com/seagull-retail/api/internal/repositories"
	"github.com/seagull-retail/api/internal/services"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	startedAt := time.Now().UTC()

	envValues, err := config.EnvironmentValues()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read environment values: %v\n", err)
		os.Exit(1)
	}

	baseLogger, err := observability.NewLogger(observability.LoggerOptions{
		Level: envValues["API_LOG_LEVEL"],
		File:  envValues["API_LOG_FILE"],
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(fetcher),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)

	promRegistry := prometheus.NewRegistry()
	metrics, err := observability.NewMetrics(promRegistry)
	if err != nil {
		logger.Fatal("failed to register metrics", zap.Error(err))
	}

	var healthChecks []repositories.DependencyCheck

	publisher, closePublisher, err := newCheckoutPublisher(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to initialise checkout publisher", zap.Error(err))
	}
	if publisher != nil {
		healthChecks = append(healthChecks, repositories.DependencyCheck{
			Name:  "pubsub",
			Check: publisher.Ping,
		})
		logger.Info("checkout events enabled",
			zap.String("projectId", cfg.PubSub.ProjectID),
			zap.String("topic", cfg.PubSub.CheckoutTopic),
		)
	}

	idemStore, idemCheck, closeIdem, err := newIdempotencyStore(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to initialise idempotency store", zap.Error(err))
	}
	if idemCheck != nil {
		healthChecks = append(healthChecks, *idemCheck)
	}

	store, err := di.OpenStore(ctx, cfg, logger.Named("store"))
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}

	containerOpts := di.Options{
		Logger:       logger,
		Recorder:     metrics,
		Build:        buildInfo,
		HealthChecks: healthChecks,
	}
	if publisher != nil {
		containerOpts.Publisher = publisher
	}
	container, err := di.NewContainer(ctx, cfg, store, containerOpts)
	if err != nil {
		_ = store.Close(ctx)
		logger.Fatal("failed to build services", zap.Error(err))
	}
	container.AddCloser(closeIdem)
	container.AddCloser(closePublisher)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("container close error", zap.Error(err))
		}
	}()

	svc := container.Services
	if cfg.Bootstrap.BootstrapEnabled() {
		created, err := svc.Admins.EnsureBootstrapAdmin(ctx, cfg.Bootstrap.Username, cfg.Bootstrap.Password)
		if err != nil {
			logger.Fatal("failed to provision bootstrap admin", zap.Error(err))
		}
		if created {
			logger.Info("bootstrap admin provisioned", zap.String("username", cfg.Bootstrap.Username))
		}
	}

	if cfg.Seed.OnStart {
		if err := applySeed(ctx, logger.Named("seed"), cfg.Seed.File, svc); err != nil {
			logger.Fatal("failed to seed catalog", zap.Error(err))
		}
	}

	router := newRouter(cfg, logger, metrics, idemStore, svc, buildInfo)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	group.Go(func() error {
		serverLogger.Info("seagull api listening",
			zap.String("environment", buildInfo.Environment),
			zap.String("store", cfg.Store.Driver),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		return idempotency.RunCleanup(groupCtx, idemStore,
			cfg.Idempotency.CleanupInterval,
			cfg.Idempotency.CleanupBatchSize,
			observability.NewPrintfAdapter(logger.Named("idempotency")),
		)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutdown signal received; draining requests")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		logger.Error("api stopped with error", zap.Error(err))
	}
}

func newRouter(cfg config.Config, logger *zap.Logger, metrics *observability.Metrics, idemStore idempotency.Store, svc di.Services, build services.BuildInfo) http.Handler {
	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(projectID),
		metrics.Middleware(),
	}

	idempotencyMiddleware := idempotency.Middleware(
		idemStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(observability.NewPrintfAdapter(logger.Named("idempotency"))),
	)

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(build),
		handlers.WithHealthSystemService(svc.System),
	)
	authn := handlers.NewAdminAuthenticator(svc.Admins)

	itemHandlers := handlers.NewItemHandlers(svc.Catalog, svc.Pricing.Currency(), authn)
	cartHandlers := handlers.NewCartHandlers(svc.Carts, svc.Pricing)
	checkoutHandlers := handlers.NewCheckoutHandlers(svc.Checkout)
	paymentHandlers := handlers.NewPaymentHandlers(svc.Payments)
	adminHandlers := handlers.NewAdminHandlers(svc.Admins, authn)

	return handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithMetricsHandler(metrics.Handler()),
		handlers.WithItemRoutes(itemHandlers.Routes),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
		handlers.WithCheckoutMiddlewares(idempotencyMiddleware),
		handlers.WithPaymentRoutes(paymentHandlers.Routes),
		handlers.WithAdminRoutes(adminHandlers.Routes),
	)
}

func applySeed(ctx context.Context, logger *zap.Logger, path string, svc di.Services) error {
	fixture, err := seed.LoadFile(path)
	if err != nil {
		return err
	}
	result, err := seed.Apply(ctx, fixture, svc.Catalog, svc.Carts)
	if err != nil {
		return err
	}
	source := path
	if source == "" {
		source = "embedded"
	}
	logger.Info("catalog seeded",
		zap.String("source", source),
		zap.Int("itemsCreated", result.ItemsCreated),
		zap.Int("itemsSkipped", result.ItemsSkipped),
		zap.Int("components", result.Components),
		zap.Strings("cartIds", result.CartIDs),
	)
	return nil
}

type checkoutPublisher struct {
	*jobs.PubSubCheckoutPublisher
	topic *pubsub.Topic
}

// Ping reports whether the checkout topic is reachable.
func (p *checkoutPublisher) Ping(ctx context.Context) error {
	exists, err := p.topic.Exists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("pubsub topic %s does not exist", p.topic.ID())
	}
	return nil
}

func newCheckoutPublisher(ctx context.Context, cfg config.Config) (*checkoutPublisher, func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	projectID := strings.TrimSpace(cfg.PubSub.ProjectID)
	if projectID == "" {
		return nil, noop, nil
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, noop, fmt.Errorf("pubsub client: %w", err)
	}
	topic := client.Topic(cfg.PubSub.CheckoutTopic)
	pub, err := jobs.NewPubSubCheckoutPublisher(topic)
	if err != nil {
		_ = client.Close()
		return nil, noop, err
	}
	closer := func(context.Context) error {
		pub.Stop()
		return client.Close()
	}
	return &checkoutPublisher{PubSubCheckoutPublisher: pub, topic: topic}, closer, nil
}

func newIdempotencyStore(ctx context.Context, cfg config.Config) (idempotency.Store, *repositories.DependencyCheck, func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	switch cfg.Idempotency.Driver {
	case "", config.IdempotencyDriverMemory:
		return idempotency.NewMemoryStore(), nil, noop, nil
	case config.IdempotencyDriverRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.Idempotency.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, noop, fmt.Errorf("redis ping %s: %w", cfg.Idempotency.RedisAddr, err)
		}
		store, err := idempotency.NewRedisStore(client)
		if err != nil {
			_ = client.Close()
			return nil, nil, noop, err
		}
		check := &repositories.DependencyCheck{Name: "redis", Timeout: time.Second, Check: store.Ping}
		return store, check, func(context.Context) error { return client.Close() }, nil
	default:
		return nil, nil, noop, fmt.Errorf("unsupported idempotency driver %q", cfg.Idempotency.Driver)
	}
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		Environment: environment,
		StartedAt:   started,
	}
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firestore.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.PubSub.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}

	project := lookup("API_SECRETS_PROJECT_ID")
	if project == "" {
		project = lookup("API_FIRESTORE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRETS_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if project != "" {
		opts = append(opts, secrets.WithProject(project))
	}
	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists the secrets that must resolve to a non-empty value for the selected
// drivers.
func requiredSecretNames(env map[string]string) []string {
	var required []string
	if strings.EqualFold(strings.TrimSpace(env["API_STORE_DRIVER"]), config.StoreDriverPostgres) {
		required = append(required, "Postgres.DSN")
	}
	if strings.TrimSpace(env["API_BOOTSTRAP_ADMIN_USERNAME"]) != "" {
		required = append(required, "Bootstrap.Password")
	}
	return required
}
