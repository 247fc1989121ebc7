package models

import "time"

// PaymentStatus tracks the card-processor side of a booking's payment.
type PaymentStatus string

const (
	PaymentStatusRequiresPayment   PaymentStatus = "REQUIRES_PAYMENT"
	PaymentStatusProcessing        PaymentStatus = "PROCESSING"
	PaymentStatusSucceeded         PaymentStatus = "SUCCEEDED"
	PaymentStatusFailed            PaymentStatus = "FAILED"
	PaymentStatusRefunded          PaymentStatus = "REFUNDED"
	PaymentStatusPartiallyRefunded PaymentStatus = "PARTIALLY_REFUNDED"
)

// Payment pairs a booking with a card-processor charge. At most one payment
// row exists per booking; it outlives the booking's terminal state for audit.
type Payment struct {
	ID                 string        `db:"id" json:"id"`
	BookingID          string        `db:"booking_id" json:"booking_id"`
	StudentID          string        `db:"student_id" json:"student_id"`
	AmountCents        int64         `db:"amount_cents" json:"amount_cents"`
	PlatformFeeCents   int64         `db:"platform_fee_cents" json:"platform_fee_cents"`
	TotalCents         int64         `db:"total_cents" json:"total_cents"`
	Currency           string        `db:"currency" json:"currency"`
	CPPaymentIntentID  string        `db:"cp_payment_intent_id" json:"cp_payment_intent_id"`
	Status             PaymentStatus `db:"status" json:"status"`
	PaymentMethodID    *string       `db:"payment_method_id" json:"payment_method_id,omitempty"`
	RefundedCents      int64         `db:"refunded_cents" json:"refunded_cents"`
	CreatedAt          time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time     `db:"updated_at" json:"updated_at"`
}

// PaymentMethod is an opaque saved card reference owned by a student. The
// core never sees PANs, only the processor's identifiers.
type PaymentMethod struct {
	ID             string    `db:"id" json:"id"`
	StudentID      string    `db:"student_id" json:"student_id"`
	CPMethodID     string    `db:"cp_method_id" json:"cp_method_id"`
	Brand          string    `db:"brand" json:"brand"`
	Last4          string    `db:"last4" json:"last4"`
	ExpMonth       int       `db:"exp_month" json:"exp_month"`
	ExpYear        int       `db:"exp_year" json:"exp_year"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
