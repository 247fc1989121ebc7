package models

import "time"

// RefundStatus tracks a refund request through review and processing. The
// field is append-only; a resolved request is never reopened.
type RefundStatus string

const (
	RefundStatusPendingReview RefundStatus = "PENDING_REVIEW"
	RefundStatusAutoApproved  RefundStatus = "AUTO_APPROVED"
	RefundStatusApproved      RefundStatus = "APPROVED"
	RefundStatusRejected      RefundStatus = "REJECTED"
	RefundStatusProcessed     RefundStatus = "PROCESSED"
	RefundStatusFailed        RefundStatus = "FAILED"
)

// SystemResolver marks auto-decided refund requests.
const SystemResolver = "SYSTEM"

// RefundRequest references a payment and records the decision trail.
type RefundRequest struct {
	ID                   string       `db:"id" json:"id"`
	PaymentID            string       `db:"payment_id" json:"payment_id"`
	BookingID            string       `db:"booking_id" json:"booking_id"`
	RequestedAmountCents int64        `db:"requested_amount_cents" json:"requested_amount_cents"`
	ApprovedAmountCents  *int64       `db:"approved_amount_cents" json:"approved_amount_cents,omitempty"`
	Reason               string       `db:"reason" json:"reason"`
	Status               RefundStatus `db:"status" json:"status"`
	ResolvedBy           *string      `db:"resolved_by" json:"resolved_by,omitempty"`
	AdminNotes           *string      `db:"admin_notes" json:"admin_notes,omitempty"`
	CPRefundID           *string      `db:"cp_refund_id" json:"cp_refund_id,omitempty"`
	CreatedAt            time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time    `db:"updated_at" json:"updated_at"`
}
