package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/seagull-retail/api/internal/domain"
)

const (
	minCardDigits = 13
	maxCardDigits = 19
)

// PaymentValidatorDeps wires the clock used for expiry checks and the authorization code source.
type PaymentValidatorDeps struct {
	Clock       func() time.Time
	Logger      func(context.Context, string, map[string]any)
	IDGenerator func() string
}

type paymentValidator struct {
	now    func() time.Time
	newID  func() string
	logger func(context.Context, string, map[string]any)
}

var _ PaymentValidator = (*paymentValidator)(nil)

// NewPaymentValidator constructs the stateless local card validator.
func NewPaymentValidator(deps PaymentValidatorDeps) (PaymentValidator, error) {
	if deps.Clock == nil {
		return nil, errors.New("payment validator: clock is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	return &paymentValidator{
		now:    func() time.Time { return deps.Clock().UTC() },
		newID:  idGen,
		logger: logger,
	}, nil
}

// Authorize runs the card checks in order and reports the first failure.
func (v *paymentValidator) Authorize(ctx context.Context, instrument PaymentInstrument) Authorization {
	now := v.now()
	if reason, ok := v.check(instrument, now); !ok {
		v.logger(ctx, "payment.declined", map[string]any{"reason": string(reason)})
		return Authorization{Status: domain.AuthorizationDeclined, Reason: reason, DecidedAt: now}
	}
	code := v.newID()
	v.logger(ctx, "payment.authorized", map[string]any{"authorizationCode": code})
	return Authorization{Status: domain.AuthorizationAuthorized, Code: code, DecidedAt: now}
}

func (v *paymentValidator) check(instrument PaymentInstrument, now time.Time) (DeclineReason, bool) {
	if !validCardNumber(normalizeCardNumber(instrument.CardNumber)) {
		return domain.DeclineInvalidCardNumber, false
	}

	year, month := instrument.Expiry.Year, instrument.Expiry.Month
	if month < 1 || month > 12 || year < 0 {
		return domain.DeclineInvalidExpiry, false
	}
	if year < 100 {
		year += 2000
	}
	if year < now.Year() || (year == now.Year() && month < int(now.Month())) {
		return domain.DeclineCardExpired, false
	}

	if strings.TrimSpace(instrument.HolderName) == "" {
		return domain.DeclineInvalidHolderName, false
	}

	cvv := strings.TrimSpace(instrument.CVV)
	if (len(cvv) != 3 && len(cvv) != 4) || !allDigits(cvv) {
		return domain.DeclineInvalidCVV, false
	}
	return "", true
}

func normalizeCardNumber(raw string) string {
	return strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(raw))
}

func validCardNumber(number string) bool {
	if len(number) < minCardDigits || len(number) > maxCardDigits || !allDigits(number) {
		return false
	}
	return luhnValid(number)
}

// luhnValid doubles every second digit from the right and checks the sum modulo 10.
func luhnValid(number string) bool {
	sum := 0
	double := false
	for i := len(number) - 1; i >= 0; i-- {
		d := int(number[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
