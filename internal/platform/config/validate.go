package config

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// ValidationError lists config fields that are missing or malformed.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

func (e *ValidationError) Fields() []string { return slices.Clone(e.fields) }

func validate(cfg Config, problems []string) error {
	bad := slices.Clone(problems)
	check := func(ok bool, field string) {
		if !ok {
			bad = append(bad, field)
		}
	}

	check(cfg.Server.Port != "", "Server.Port")
	switch cfg.Store.Driver {
	case StoreDriverMemory:
	case StoreDriverFirestore:
		check(cfg.Firestore.ProjectID != "", "Firestore.ProjectID")
	case StoreDriverPostgres:
		check(strings.TrimSpace(cfg.Postgres.DSN) != "", "Postgres.DSN")
		check(cfg.Postgres.MaxConns > 0, "Postgres.MaxConns")
	default:
		bad = append(bad, "Store.Driver")
	}
	check(len(cfg.Pricing.Currency) == 3, "Pricing.Currency")
	check(strings.TrimSpace(cfg.PubSub.CheckoutTopic) != "", "PubSub.CheckoutTopic")

	idem := cfg.Idempotency
	check(strings.TrimSpace(idem.Header) != "", "Idempotency.Header")
	check(idem.TTL > 0, "Idempotency.TTL")
	check(idem.CleanupInterval > 0, "Idempotency.CleanupInterval")
	check(idem.CleanupBatchSize > 0, "Idempotency.CleanupBatchSize")
	switch idem.Driver {
	case IdempotencyDriverMemory:
	case IdempotencyDriverRedis:
		check(strings.TrimSpace(idem.RedisAddr) != "", "Idempotency.RedisAddr")
	default:
		bad = append(bad, "Idempotency.Driver")
	}

	check(!cfg.Seed.OnStart || strings.TrimSpace(cfg.Seed.File) != "", "Seed.File")
	check((cfg.Bootstrap.Username == "") == (cfg.Bootstrap.Password == ""), "Bootstrap")

	if len(bad) > 0 {
		return &ValidationError{fields: bad}
	}
	return nil
}

// ParseTaxRate converts a decimal fraction such as "0.08" into basis points (800). Rates must
// fall within [0, 1) and carry at most four decimal places.
func ParseTaxRate(raw string) (int64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, errors.New("config: tax rate is empty")
	}
	if _, frac, ok := strings.Cut(trimmed, "."); ok && len(frac) > 4 {
		return 0, fmt.Errorf("config: tax rate %q has more than four decimal places", raw)
	}
	rate, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, fmt.Errorf("config: parse tax rate %q: %w", raw, err)
	}
	if math.IsNaN(rate) || rate < 0 || rate >= 1 {
		return 0, fmt.Errorf("config: tax rate %q out of range", raw)
	}
	return int64(math.Round(rate * 10000)), nil
}
