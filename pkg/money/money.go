package money

import "fmt"

// All monetary arithmetic in the core happens on integer minor units (cents).
// Decimal representations exist only at the presentation boundary.

// Amount is a money value in integer minor units with its currency code.
type Amount struct {
	Cents    int64  `json:"amount_cents"`
	Currency string `json:"currency"`
}

// DefaultCurrency is applied when a gig does not declare one.
const DefaultCurrency = "USD"

// PlatformFee computes the platform's cut of a session cost. The fee always
// rounds down; there is no minimum or maximum.
func PlatformFee(sessionCostCents int64, feeBPS int) int64 {
	if sessionCostCents <= 0 || feeBPS <= 0 {
		return 0
	}
	return sessionCostCents * int64(feeBPS) / 10000
}

// Total returns the amount a student is charged: session cost plus fee.
func Total(sessionCostCents int64, feeBPS int) int64 {
	return sessionCostCents + PlatformFee(sessionCostCents, feeBPS)
}

// Format renders cents as a decimal string for receipts and templates.
func Format(cents int64, currency string) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, cents/100, cents%100, currency)
}
