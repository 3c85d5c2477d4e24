package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Checkout outcome labels recorded by CheckoutRecorder.
const (
	CheckoutOutcomeAuthorized = "authorized"
	CheckoutOutcomeDeclined   = "declined"
	CheckoutOutcomeError      = "error"
)

// CheckoutRecorder counts checkout outcomes.
type CheckoutRecorder interface {
	RecordCheckout(outcome string)
}

// CheckoutServiceDeps wires the collaborators a checkout runs through.
type CheckoutServiceDeps struct {
	Carts       CartService
	Pricing     PricingEngine
	Payments    PaymentValidator
	Publisher   CheckoutEventPublisher
	Recorder    CheckoutRecorder
	Clock       func() time.Time
	Logger      func(ctx context.Context, event string, fields map[string]any)
	IDGenerator func() string
}

type checkoutService struct {
	carts     CartService
	pricing   PricingEngine
	payments  PaymentValidator
	publisher CheckoutEventPublisher
	recorder  CheckoutRecorder
	now       func() time.Time
	newID     func() string
	logger    func(ctx context.Context, event string, fields map[string]any)
}

var _ CheckoutService = (*checkoutService)(nil)

// NewCheckoutService constructs the checkout orchestrator. Publisher and Recorder are optional.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Carts == nil {
		return nil, errors.New("checkout service: cart service is required")
	}
	if deps.Pricing == nil {
		return nil, errors.New("checkout service: pricing engine is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("checkout service: payment validator is required")
	}
	if deps.Clock == nil {
		return nil, errors.New("checkout service: clock is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	return &checkoutService{
		carts:     deps.Carts,
		pricing:   deps.Pricing,
		payments:  deps.Payments,
		publisher: deps.Publisher,
		recorder:  deps.Recorder,
		now:       func() time.Time { return deps.Clock().UTC() },
		newID:     idGen,
		logger:    logger,
	}, nil
}

// Checkout prices the cart, authorizes the instrument and, only when authorized, clears the
// cart lines. A declined payment leaves the cart and its reserved stock untouched.
func (s *checkoutService) Checkout(ctx context.Context, cmd CheckoutCommand) (CheckoutReceipt, error) {
	cartID := strings.TrimSpace(cmd.CartID)
	receipt, err := s.checkout(ctx, cartID, cmd.Instrument)
	switch {
	case err == nil:
		s.record(CheckoutOutcomeAuthorized)
	case errors.Is(err, ErrPaymentDeclined):
		s.record(CheckoutOutcomeDeclined)
	default:
		s.record(CheckoutOutcomeError)
		s.logger(ctx, "checkout.failed", map[string]any{"cartID": cartID, "error": err.Error()})
	}
	return receipt, err
}

func (s *checkoutService) checkout(ctx context.Context, cartID string, instrument PaymentInstrument) (CheckoutReceipt, error) {
	cart, err := s.carts.GetCart(ctx, cartID)
	if err != nil {
		return CheckoutReceipt{}, err
	}
	if len(cart.Lines) == 0 {
		return CheckoutReceipt{}, fmt.Errorf("%w: %s", ErrCheckoutEmptyCart, cart.ID)
	}

	totals, err := s.pricing.ComputeTotals(ctx, cart.ID)
	if err != nil {
		return CheckoutReceipt{}, err
	}

	auth := s.payments.Authorize(ctx, instrument)
	if !auth.Authorized() {
		s.logger(ctx, "checkout.declined", map[string]any{"cartID": cart.ID, "reason": string(auth.Reason)})
		return CheckoutReceipt{}, &PaymentDeclinedError{Reason: auth.Reason}
	}

	if err := s.carts.FinalizeCart(ctx, cart.ID); err != nil {
		return CheckoutReceipt{}, err
	}

	receipt := CheckoutReceipt{
		CartID:        cart.ID,
		Totals:        totals,
		Authorization: auth,
		CompletedAt:   s.now(),
	}
	receipt.EventID = s.publish(ctx, receipt)

	s.logger(ctx, "checkout.completed", map[string]any{
		"cartID":            cart.ID,
		"totalWithTax":      totals.TotalWithTax,
		"currency":          totals.Currency,
		"authorizationCode": auth.Code,
	})
	return receipt, nil
}

// publish is best effort: the cart is already finalized, so failures are only logged.
func (s *checkoutService) publish(ctx context.Context, receipt CheckoutReceipt) string {
	if s.publisher == nil {
		return ""
	}
	event := CheckoutCompletedEvent{
		EventID:           s.newID(),
		CartID:            receipt.CartID,
		Currency:          receipt.Totals.Currency,
		RegularTotal:      receipt.Totals.RegularTotal,
		BundleTotal:       receipt.Totals.BundleTotal,
		Tax:               receipt.Totals.Tax,
		TotalWithTax:      receipt.Totals.TotalWithTax,
		AuthorizationCode: receipt.Authorization.Code,
		CompletedAt:       receipt.CompletedAt,
	}
	if _, err := s.publisher.PublishCheckoutCompleted(ctx, event); err != nil {
		s.logger(ctx, "checkout.publish_failed", map[string]any{
			"cartID":  receipt.CartID,
			"eventID": event.EventID,
			"error":   err.Error(),
		})
		return ""
	}
	return event.EventID
}

func (s *checkoutService) record(outcome string) {
	if s.recorder != nil {
		s.recorder.RecordCheckout(outcome)
	}
}
