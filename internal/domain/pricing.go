package domain

// LineClass distinguishes regular lines from bundle lines when pricing.
type LineClass string

const (
	// LineClassRegular marks a line priced by its item unit price.
	LineClassRegular LineClass = "regular"
	// LineClassBundle marks a line priced by the bundle item's list price.
	LineClassBundle LineClass = "bundle"
)

// CartTotals captures the outcome of pricing a cart.
type CartTotals struct {
	CartID             string
	Currency           string
	RegularTotal       int64
	BundleTotal        int64
	Subtotal           int64
	TaxRateBasisPoints int64
	Tax                int64
	TotalWithTax       int64
	Lines              []LineTotal
}

// LineTotal is the per-line pricing breakdown.
type LineTotal struct {
	ItemID    string
	Class     LineClass
	Quantity  int
	UnitPrice int64
	Total     int64
}
