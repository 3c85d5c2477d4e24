// Package config loads the API configuration from defaults, an optional dotenv file, the process
// environment and Secret Manager references.
package config

import (
	"context"
	"strings"
	"time"
)

// Store drivers accepted by API_STORE_DRIVER.
const (
	StoreDriverMemory    = "memory"
	StoreDriverFirestore = "firestore"
	StoreDriverPostgres  = "postgres"
)

// Idempotency drivers accepted by API_IDEMPOTENCY_DRIVER.
const (
	IdempotencyDriverMemory = "memory"
	IdempotencyDriverRedis  = "redis"
)

const (
	defaultEnvFile              = ".env"
	defaultCheckoutTopic        = "checkout-events"
	defaultIdempotencyHeader    = "Idempotency-Key"
	defaultIdempotencyTTL       = 24 * time.Hour
	defaultSecretsFallbackFile  = ".secrets.local"
	defaultTaxRate              = "0.08"
	defaultCurrency             = "USD"
	defaultPostgresMaxConns     = 10
	defaultIdempotencyBatchSize = 200
)

type Config struct {
	Environment string
	Server      ServerConfig
	Store       StoreConfig
	Firestore   FirestoreConfig
	Postgres    PostgresConfig
	Pricing     PricingConfig
	PubSub      PubSubConfig
	Idempotency IdempotencyConfig
	Seed        SeedConfig
	Bootstrap   BootstrapAdminConfig
	Secrets     SecretsConfig
	Logging     LoggingConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// StoreConfig selects the inventory backend.
type StoreConfig struct {
	Driver string
}

type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

type PostgresConfig struct {
	DSN      string
	MaxConns int
}

// PricingConfig holds the flat tax rate and settlement currency. TaxRate is the raw decimal
// fraction; TaxRateBasisPoints is derived from it by Load.
type PricingConfig struct {
	TaxRate            string
	TaxRateBasisPoints int64
	Currency           string
}

// PubSubConfig configures checkout events. An empty ProjectID disables publishing.
type PubSubConfig struct {
	ProjectID     string
	CheckoutTopic string
}

type IdempotencyConfig struct {
	Header           string
	TTL              time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
	Driver           string
	RedisAddr        string
}

// SeedConfig points at a YAML fixture applied on start when OnStart is set.
type SeedConfig struct {
	File    string
	OnStart bool
}

// BootstrapAdminConfig provisions the first administrator when both fields are set.
type BootstrapAdminConfig struct {
	Username string
	Password string
}

// BootstrapEnabled reports whether a bootstrap administrator should be provisioned.
func (c BootstrapAdminConfig) BootstrapEnabled() bool {
	return strings.TrimSpace(c.Username) != "" && c.Password != ""
}

type SecretsConfig struct {
	ProjectID    string
	FallbackFile string
}

type LoggingConfig struct {
	File string
}

// Option customises Load and EnvironmentValues.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	resolver        SecretResolver
	requiredSecrets []string
}

func newLoaderOptions(opts []Option) loaderOptions {
	o := loaderOptions{envFile: defaultEnvFile, useSystemEnv: true}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// WithEnvFile overrides the dotenv path. An empty path skips the file.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) { o.envFile = path }
}

// WithEnvMap layers values over every other source.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) { o.envMap = values }
}

// WithoutSystemEnv ignores the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) { o.useSystemEnv = false }
}

// WithSecretResolver resolves secret:// and sm:// values.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) { o.resolver = resolver }
}

// WithRequiredSecrets names secret-bearing fields, such as "Postgres.DSN", that must resolve to
// a non-empty value.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) { o.requiredSecrets = append(o.requiredSecrets, names...) }
}

// EnvironmentValues returns the merged key/value view Load reads from. main uses it to build the
// secret fetcher before Load runs.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	src, err := openSource(newLoaderOptions(opts))
	if err != nil {
		return nil, err
	}
	return src.flatten(), nil
}

// Load builds the Config. Malformed values and missing driver settings are reported together in
// a *ValidationError; unresolvable secret references fail with *SecretError.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)
	src, err := openSource(options)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Environment: strings.ToLower(src.str("API_ENVIRONMENT", "local")),
		Server: ServerConfig{
			Port:         src.str("API_SERVER_PORT", "8080"),
			ReadTimeout:  src.duration("Server.ReadTimeout", "API_SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: src.duration("Server.WriteTimeout", "API_SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  src.duration("Server.IdleTimeout", "API_SERVER_IDLE_TIMEOUT", 2*time.Minute),
		},
		Store: StoreConfig{Driver: strings.ToLower(src.str("API_STORE_DRIVER", StoreDriverMemory))},
		Firestore: FirestoreConfig{
			ProjectID:    src.str("API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: src.str("API_FIRESTORE_EMULATOR_HOST", ""),
		},
		Postgres: PostgresConfig{
			DSN:      src.str("API_POSTGRES_DSN", ""),
			MaxConns: src.integer("Postgres.MaxConns", "API_POSTGRES_MAX_CONNS", defaultPostgresMaxConns),
		},
		Pricing: PricingConfig{
			TaxRate:  src.str("API_PRICING_TAX_RATE", defaultTaxRate),
			Currency: strings.ToUpper(src.str("API_PRICING_CURRENCY", defaultCurrency)),
		},
		PubSub: PubSubConfig{
			ProjectID:     src.str("API_PUBSUB_PROJECT_ID", ""),
			CheckoutTopic: src.str("API_PUBSUB_CHECKOUT_TOPIC", defaultCheckoutTopic),
		},
		Idempotency: IdempotencyConfig{
			Header:           src.str("API_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:              src.duration("Idempotency.TTL", "API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval:  src.duration("Idempotency.CleanupInterval", "API_IDEMPOTENCY_CLEANUP_INTERVAL", time.Hour),
			CleanupBatchSize: src.integer("Idempotency.CleanupBatchSize", "API_IDEMPOTENCY_CLEANUP_BATCH", defaultIdempotencyBatchSize),
			Driver:           strings.ToLower(src.str("API_IDEMPOTENCY_DRIVER", IdempotencyDriverMemory)),
			RedisAddr:        src.str("API_IDEMPOTENCY_REDIS_ADDR", ""),
		},
		Seed: SeedConfig{
			File:    src.str("API_SEED_FILE", ""),
			OnStart: src.boolean("Seed.OnStart", "API_SEED_ON_START", false),
		},
		Bootstrap: BootstrapAdminConfig{
			Username: src.str("API_BOOTSTRAP_ADMIN_USERNAME", ""),
			Password: src.str("API_BOOTSTRAP_ADMIN_PASSWORD", ""),
		},
		Secrets: SecretsConfig{
			ProjectID:    src.str("API_SECRETS_PROJECT_ID", ""),
			FallbackFile: src.str("API_SECRETS_FALLBACK_FILE", defaultSecretsFallbackFile),
		},
		Logging: LoggingConfig{File: src.str("API_LOG_FILE", "")},
	}

	// Pub/Sub and Secret Manager share the Firestore project unless overridden.
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firestore.ProjectID
	}
	if cfg.Secrets.ProjectID == "" {
		cfg.Secrets.ProjectID = cfg.Firestore.ProjectID
	}

	if bps, err := ParseTaxRate(cfg.Pricing.TaxRate); err != nil {
		src.invalid("Pricing.TaxRate")
	} else {
		cfg.Pricing.TaxRateBasisPoints = bps
	}

	resolved, err := resolveSecretFields(ctx, options.resolver, map[string]*string{
		"Postgres.DSN":       &cfg.Postgres.DSN,
		"Bootstrap.Password": &cfg.Bootstrap.Password,
	})
	if err != nil {
		return Config{}, err
	}

	if err := validate(cfg, src.problems); err != nil {
		return Config{}, err
	}
	if missing := missingSecrets(options.requiredSecrets, resolved); missing != nil {
		return Config{}, missing
	}
	return cfg, nil
}
