package domain

import "time"

// CardExpiry is a card expiry at month granularity.
type CardExpiry struct {
	Year  int
	Month int
}

// PaymentInstrument carries the card data submitted at checkout.
type PaymentInstrument struct {
	CardNumber string
	Expiry     CardExpiry
	HolderName string
	CVV        string
}

// AuthorizationStatus is the synthetic decision returned by the payment validator.
type AuthorizationStatus string

const (
	// AuthorizationAuthorized means every check passed.
	AuthorizationAuthorized AuthorizationStatus = "authorized"
	// AuthorizationDeclined means one of the checks failed.
	AuthorizationDeclined AuthorizationStatus = "declined"
)

// DeclineReason identifies the check that rejected a payment instrument.
type DeclineReason string

const (
	DeclineInvalidCardNumber DeclineReason = "invalid_card_number"
	DeclineInvalidExpiry     DeclineReason = "invalid_expiry"
	DeclineCardExpired       DeclineReason = "card_expired"
	DeclineInvalidHolderName DeclineReason = "invalid_holder_name"
	DeclineInvalidCVV        DeclineReason = "invalid_cvv"
)

// Authorization is the result of validating a payment instrument.
type Authorization struct {
	Status    AuthorizationStatus
	Reason    DeclineReason
	Code      string
	DecidedAt time.Time
}

// Authorized reports whether the instrument passed every check.
func (a Authorization) Authorized() bool {
	return a.Status == AuthorizationAuthorized
}

// CheckoutReceipt summarises a completed checkout.
type CheckoutReceipt struct {
	CartID        string
	Totals        CartTotals
	Authorization Authorization
	EventID       string
	CompletedAt   time.Time
}

// CheckoutCompletedEvent is published after a cart has been finalized.
type CheckoutCompletedEvent struct {
	EventID           string    `json:"eventId"`
	CartID            string    `json:"cartId"`
	Currency          string    `json:"currency"`
	RegularTotal      int64     `json:"regularTotal"`
	BundleTotal       int64     `json:"bundleTotal"`
	Tax               int64     `json:"tax"`
	TotalWithTax      int64     `json:"totalWithTax"`
	AuthorizationCode string    `json:"authorizationCode"`
	CompletedAt       time.Time `json:"completedAt"`
}
