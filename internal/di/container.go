package di

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	domain "github.com/seagull-retail/api/internal/domain"
	"github.com/seagull-retail/api/internal/platform/config"
	pfirestore "github.com/seagull-retail/api/internal/platform/firestore"
	"github.com/seagull-retail/api/internal/platform/observability"
	ppostgres "github.com/seagull-retail/api/internal/platform/postgres"
	"github.com/seagull-retail/api/internal/repositories"
	firestoreRepo "github.com/seagull-retail/api/internal/repositories/firestore"
	"github.com/seagull-retail/api/internal/repositories/memory"
	postgresRepo "github.com/seagull-retail/api/internal/repositories/postgres"
	"github.com/seagull-retail/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Catalog  services.CatalogService
	Carts    services.CartService
	Pricing  services.PricingEngine
	Payments services.PaymentValidator
	Admins   services.AdminService
	Checkout services.CheckoutService
	System   services.SystemService
}

// Options carries the optional runtime collaborators that are built outside the container.
type Options struct {
	Logger       *zap.Logger
	Publisher    services.CheckoutEventPublisher
	Recorder     services.CheckoutRecorder
	Build        services.BuildInfo
	Clock        func() time.Time
	HealthChecks []repositories.DependencyCheck
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services

	closers []func(context.Context) error
}

// OpenStore opens the inventory backend selected by cfg.Store.Driver. Postgres schemas are
// migrated before the store is returned.
func OpenStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (repositories.Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Store.Driver)); driver {
	case "", config.StoreDriverMemory:
		logger.Info("using in-memory store")
		return memory.NewStore(), nil
	case config.StoreDriverFirestore:
		provider := pfirestore.NewProvider(cfg.Firestore)
		store, err := firestoreRepo.NewStore(provider)
		if err != nil {
			_ = provider.Close(ctx)
			return nil, fmt.Errorf("open firestore store: %w", err)
		}
		logger.Info("using firestore store",
			zap.String("projectId", cfg.Firestore.ProjectID),
			zap.Bool("emulator", cfg.Firestore.EmulatorHost != ""),
		)
		return store, nil
	case config.StoreDriverPostgres:
		pool, err := ppostgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("open postgres pool: %w", err)
		}
		store, err := postgresRepo.NewStore(pool)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close(ctx)
			return nil, fmt.Errorf("migrate postgres store: %w", err)
		}
		logger.Info("using postgres store", zap.Int("maxConns", cfg.Postgres.MaxConns))
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}
}

// NewContainer constructs the runtime dependencies on top of an opened registry. The
// container takes ownership of reg and closes it in Close.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, opts Options) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(ctx, reg, cfg, opts)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// AddCloser registers a release hook that runs before the registry is closed. Hooks run in
// reverse registration order.
func (c *Container) AddCloser(fn func(context.Context) error) {
	if c == nil || fn == nil {
		return
	}
	c.closers = append(c.closers, fn)
}

// Close releases resources such as repository clients, background workers, or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	if c.Repositories != nil {
		if err := c.Repositories.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, opts Options) (Services, error) {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	serviceLogger := func(name string) func(context.Context, string, map[string]any) {
		return observability.ServiceLogger(logger.Named(name))
	}

	var svc Services

	catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
		Items:  reg.Items(),
		Logger: serviceLogger("catalog"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalogSvc

	cartSvc, err := services.NewCartService(services.CartServiceDeps{
		Repository: reg.Carts(),
		Clock:      clock,
		Logger:     serviceLogger("carts"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Carts = cartSvc

	pricing, err := services.NewPricingEngine(services.PricingEngineDeps{
		Carts:              reg.Carts(),
		Items:              reg.Items(),
		TaxRateBasisPoints: cfg.Pricing.TaxRateBasisPoints,
		Currency:           cfg.Pricing.Currency,
		Logger:             serviceLogger("pricing"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build pricing engine: %w", err)
	}
	svc.Pricing = pricing

	payments, err := services.NewPaymentValidator(services.PaymentValidatorDeps{
		Clock:  clock,
		Logger: serviceLogger("payments"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build payment validator: %w", err)
	}
	svc.Payments = payments

	adminSvc, err := services.NewAdminService(services.AdminServiceDeps{
		Repository: reg.Admins(),
		Clock:      clock,
		Logger:     serviceLogger("admins"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build admin service: %w", err)
	}
	svc.Admins = adminSvc

	checkoutSvc, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Carts:     cartSvc,
		Pricing:   pricing,
		Payments:  payments,
		Publisher: opts.Publisher,
		Recorder:  opts.Recorder,
		Clock:     clock,
		Logger:    serviceLogger("checkout"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build checkout service: %w", err)
	}
	svc.Checkout = checkoutSvc

	health, err := combinedHealth(reg.Health(), opts.HealthChecks, clock)
	if err != nil {
		return Services{}, fmt.Errorf("build health repository: %w", err)
	}
	if health != nil {
		build := opts.Build
		if strings.TrimSpace(build.Environment) == "" {
			build.Environment = cfg.Environment
		}
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: health,
			Clock:            clock,
			Build:            build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}

func combinedHealth(store repositories.HealthRepository, extra []repositories.DependencyCheck, clock func() time.Time) (repositories.HealthRepository, error) {
	if len(extra) == 0 {
		return store, nil
	}
	deps, err := repositories.NewDependencyHealthRepository(extra, repositories.WithDependencyClock(clock))
	if err != nil {
		return nil, err
	}
	if store == nil {
		return deps, nil
	}
	return &mergedHealth{parts: []repositories.HealthRepository{store, deps}, now: clock}, nil
}

// mergedHealth folds several health repositories into one report. The worst status wins.
type mergedHealth struct {
	parts []repositories.HealthRepository
	now   func() time.Time
}

func (m *mergedHealth) Collect(ctx context.Context) (domain.SystemHealthReport, error) {
	report := domain.SystemHealthReport{
		Status: domain.HealthStatusOK,
		Checks: make(map[string]domain.SystemHealthCheck),
	}
	for _, part := range m.parts {
		partial, err := part.Collect(ctx)
		if err != nil {
			return domain.SystemHealthReport{}, err
		}
		for name, check := range partial.Checks {
			report.Checks[name] = check
		}
		report.Status = worseStatus(report.Status, partial.Status)
	}
	report.GeneratedAt = m.now()
	return report, nil
}

func worseStatus(a, b string) string {
	rank := func(status string) int {
		switch status {
		case domain.HealthStatusError:
			return 2
		case domain.HealthStatusDegraded:
			return 1
		default:
			return 0
		}
	}
	if rank(b) > rank(a) {
		return b
	}
	return a
}
