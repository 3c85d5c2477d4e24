package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Environment != "local" {
		t.Errorf("expected default environment local, got %s", cfg.Environment)
	}
	if cfg.Store.Driver != StoreDriverMemory {
		t.Errorf("expected memory store driver, got %s", cfg.Store.Driver)
	}
	if cfg.Pricing.TaxRateBasisPoints != 800 {
		t.Errorf("expected default tax rate of 800bps, got %d", cfg.Pricing.TaxRateBasisPoints)
	}
	if cfg.Pricing.Currency != "USD" {
		t.Errorf("expected default currency USD, got %s", cfg.Pricing.Currency)
	}
	if cfg.PubSub.CheckoutTopic != defaultCheckoutTopic {
		t.Errorf("unexpected checkout topic %s", cfg.PubSub.CheckoutTopic)
	}
	if cfg.Idempotency.Header != defaultIdempotencyHeader {
		t.Errorf("expected default idempotency header, got %s", cfg.Idempotency.Header)
	}
	if cfg.Idempotency.TTL != defaultIdempotencyTTL {
		t.Errorf("unexpected default idempotency ttl: %s", cfg.Idempotency.TTL)
	}
	if cfg.Idempotency.Driver != IdempotencyDriverMemory {
		t.Errorf("unexpected idempotency driver %s", cfg.Idempotency.Driver)
	}
	if cfg.Secrets.FallbackFile != defaultSecretsFallbackFile {
		t.Errorf("unexpected secrets fallback file %s", cfg.Secrets.FallbackFile)
	}
	if cfg.Bootstrap.BootstrapEnabled() {
		t.Errorf("expected bootstrap admin disabled by default")
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"API_ENVIRONMENT":                  "Prod",
		"API_SERVER_PORT":                  "9090",
		"API_SERVER_IDLE_TIMEOUT":          "2m",
		"API_STORE_DRIVER":                 "postgres",
		"API_POSTGRES_DSN":                 "secret://postgres/dsn",
		"API_POSTGRES_MAX_CONNS":           "25",
		"API_FIRESTORE_PROJECT_ID":         "seagull-prod",
		"API_PRICING_TAX_RATE":             "0.0725",
		"API_PRICING_CURRENCY":             "eur",
		"API_PUBSUB_CHECKOUT_TOPIC":        "orders",
		"API_IDEMPOTENCY_HEADER":           "X-Idem-Key",
		"API_IDEMPOTENCY_TTL":              "48h",
		"API_IDEMPOTENCY_DRIVER":           "redis",
		"API_IDEMPOTENCY_REDIS_ADDR":       "127.0.0.1:6379",
		"API_IDEMPOTENCY_CLEANUP_INTERVAL": "30m",
		"API_BOOTSTRAP_ADMIN_USERNAME":     "root",
		"API_BOOTSTRAP_ADMIN_PASSWORD":     "sm://bootstrap/password",
		"API_SEED_FILE":                    "fixtures/catalog.yaml",
		"API_SEED_ON_START":                "yes",
		"API_LOG_FILE":                     "/var/log/api.log",
	}

	secrets := map[string]string{
		"secret://postgres/dsn":       "postgres://app@db/seagull",
		"secret://bootstrap/password": "hunter2",
	}
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Environment != "prod" {
		t.Errorf("expected lowercased environment, got %s", cfg.Environment)
	}
	if cfg.Server.Port != "9090" || cfg.Server.IdleTimeout != 2*time.Minute {
		t.Errorf("unexpected server config %+v", cfg.Server)
	}
	if cfg.Postgres.DSN != "postgres://app@db/seagull" {
		t.Errorf("expected resolved postgres dsn, got %s", cfg.Postgres.DSN)
	}
	if cfg.Postgres.MaxConns != 25 {
		t.Errorf("unexpected max conns %d", cfg.Postgres.MaxConns)
	}
	if cfg.Pricing.TaxRateBasisPoints != 725 {
		t.Errorf("expected 725bps, got %d", cfg.Pricing.TaxRateBasisPoints)
	}
	if cfg.Pricing.Currency != "EUR" {
		t.Errorf("expected uppercased currency, got %s", cfg.Pricing.Currency)
	}
	if cfg.PubSub.ProjectID != "seagull-prod" {
		t.Errorf("expected pubsub project to default to firestore project, got %s", cfg.PubSub.ProjectID)
	}
	if cfg.Secrets.ProjectID != "seagull-prod" {
		t.Errorf("expected secrets project to default to firestore project, got %s", cfg.Secrets.ProjectID)
	}
	if cfg.PubSub.CheckoutTopic != "orders" {
		t.Errorf("unexpected topic %s", cfg.PubSub.CheckoutTopic)
	}
	if cfg.Idempotency.Header != "X-Idem-Key" || cfg.Idempotency.TTL != 48*time.Hour {
		t.Errorf("unexpected idempotency config %+v", cfg.Idempotency)
	}
	if cfg.Idempotency.Driver != IdempotencyDriverRedis || cfg.Idempotency.RedisAddr != "127.0.0.1:6379" {
		t.Errorf("unexpected idempotency driver config %+v", cfg.Idempotency)
	}
	if cfg.Idempotency.CleanupInterval != 30*time.Minute {
		t.Errorf("unexpected cleanup interval %s", cfg.Idempotency.CleanupInterval)
	}
	if !cfg.Bootstrap.BootstrapEnabled() || cfg.Bootstrap.Password != "hunter2" {
		t.Errorf("expected resolved bootstrap admin, got %+v", cfg.Bootstrap)
	}
	if !cfg.Seed.OnStart || cfg.Seed.File != "fixtures/catalog.yaml" {
		t.Errorf("unexpected seed config %+v", cfg.Seed)
	}
	if cfg.Logging.File != "/var/log/api.log" {
		t.Errorf("unexpected log file %s", cfg.Logging.File)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "# local overrides\nAPI_SERVER_PORT=7070\nexport API_PRICING_CURRENCY=\"JPY\"\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from dotenv 7070, got %s", cfg.Server.Port)
	}
	if cfg.Pricing.Currency != "JPY" {
		t.Errorf("expected currency from dotenv, got %s", cfg.Pricing.Currency)
	}
}

func TestLoadMissingDotEnvIsIgnored(t *testing.T) {
	if _, err := Load(context.Background(), WithEnvFile(filepath.Join(t.TempDir(), "absent.env")), WithoutSystemEnv()); err != nil {
		t.Fatalf("expected missing dotenv to be ignored, got %v", err)
	}
}

func TestLoadValidationFailures(t *testing.T) {
	cases := map[string]struct {
		env   map[string]string
		field string
	}{
		"unknown driver":       {env: map[string]string{"API_STORE_DRIVER": "mongo"}, field: "Store.Driver"},
		"postgres without dsn": {env: map[string]string{"API_STORE_DRIVER": "postgres"}, field: "Postgres.DSN"},
		"firestore no project": {env: map[string]string{"API_STORE_DRIVER": "firestore"}, field: "Firestore.ProjectID"},
		"bad tax rate":         {env: map[string]string{"API_PRICING_TAX_RATE": "eight"}, field: "Pricing.TaxRate"},
		"tax rate too high":    {env: map[string]string{"API_PRICING_TAX_RATE": "1.5"}, field: "Pricing.TaxRate"},
		"redis without addr":   {env: map[string]string{"API_IDEMPOTENCY_DRIVER": "redis"}, field: "Idempotency.RedisAddr"},
		"seed without file":    {env: map[string]string{"API_SEED_ON_START": "true"}, field: "Seed.File"},
		"half bootstrap":       {env: map[string]string{"API_BOOTSTRAP_ADMIN_USERNAME": "root"}, field: "Bootstrap"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(context.Background(), WithEnvMap(tc.env), WithoutSystemEnv(), WithEnvFile(""))
			var validation *ValidationError
			if !errors.As(err, &validation) {
				t.Fatalf("expected ValidationError, got %T (%v)", err, err)
			}
			found := false
			for _, field := range validation.Fields() {
				if field == tc.field {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected field %s in %v", tc.field, validation.Fields())
			}
		})
	}
}

func TestParseTaxRate(t *testing.T) {
	cases := map[string]int64{
		"0.08":   800,
		"0":      0,
		"0.0725": 725,
		" 0.1 ":  1000,
	}
	for raw, want := range cases {
		got, err := ParseTaxRate(raw)
		if err != nil {
			t.Fatalf("ParseTaxRate(%q) returned error: %v", raw, err)
		}
		if got != want {
			t.Fatalf("ParseTaxRate(%q) = %d, want %d", raw, got, want)
		}
	}
	for _, raw := range []string{"", "-0.01", "1", "0.00001", "abc"} {
		if _, err := ParseTaxRate(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	env := map[string]string{
		"API_STORE_DRIVER": "postgres",
		"API_POSTGRES_DSN": "secret://missing",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected secret resolution error, got nil")
	}
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %T", err)
	}
	if secretErr.Ref != "secret://missing" {
		t.Errorf("unexpected secret ref %s", secretErr.Ref)
	}
}

func TestEnvironmentValuesMergesSources(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_FIRESTORE_PROJECT_ID=dot-project\nAPI_SECRETS_FALLBACK_FILE=.dot.local\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing env file: %v", err)
	}

	t.Setenv("API_FIRESTORE_PROJECT_ID", "os-project")
	t.Setenv("API_SECRETS_PROJECT_ID", "os-secrets")

	overrides := map[string]string{
		"API_FIRESTORE_PROJECT_ID": "override-project",
	}

	values, err := EnvironmentValues(WithEnvFile(envPath), WithEnvMap(overrides))
	if err != nil {
		t.Fatalf("EnvironmentValues returned error: %v", err)
	}

	if got := values["API_FIRESTORE_PROJECT_ID"]; got != "override-project" {
		t.Fatalf("expected override project, got %s", got)
	}
	if got := values["API_SECRETS_FALLBACK_FILE"]; got != ".dot.local" {
		t.Fatalf("expected dotenv fallback file, got %s", got)
	}
	if got := values["API_SECRETS_PROJECT_ID"]; got != "os-secrets" {
		t.Fatalf("expected system env value, got %s", got)
	}
}

func TestLoadMissingRequiredSecrets(t *testing.T) {
	_, err := Load(context.Background(),
		WithEnvMap(map[string]string{}),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("Bootstrap.Password"),
	)
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %T", err)
	}
	expectedRedacted := redactSecretName("Bootstrap.Password")
	if got := missing.RedactedNames(); len(got) != 1 || got[0] != expectedRedacted {
		t.Fatalf("unexpected redacted names %v", got)
	}
}

func TestLoadReportsMalformedValues(t *testing.T) {
	env := map[string]string{
		"API_SERVER_READ_TIMEOUT": "soon",
		"API_POSTGRES_MAX_CONNS":  "many",
		"API_SEED_ON_START":       "maybe",
	}
	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %T (%v)", err, err)
	}
	want := []string{"Server.ReadTimeout", "Postgres.MaxConns", "Seed.OnStart"}
	got := validation.Fields()
	for _, field := range want {
		if !slices.Contains(got, field) {
			t.Fatalf("expected %s in %v", field, got)
		}
	}
}

func TestMissingSecretsNamesAreSortedAndDeduplicated(t *testing.T) {
	missing := missingSecrets([]string{"Postgres.DSN", " Bootstrap.Password", "Postgres.DSN", ""}, map[string]string{})
	if missing == nil {
		t.Fatal("expected missing secrets")
	}
	if names := missing.Names(); len(names) != 2 || names[0] != "Bootstrap.Password" || names[1] != "Postgres.DSN" {
		t.Fatalf("unexpected names %v", names)
	}
	if missingSecrets([]string{"Postgres.DSN"}, map[string]string{"Postgres.DSN": "dsn"}) != nil {
		t.Fatal("resolved secrets must not be reported")
	}
}
