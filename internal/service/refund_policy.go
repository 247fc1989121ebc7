package service

import (
	"time"

	"github.com/verbalink/verbalink-api/internal/models"
)

// RefundOutcome is the policy verdict for a refund request.
type RefundOutcome string

const (
	RefundAutoApprove RefundOutcome = "AUTO_APPROVE"
	RefundNeedsReview RefundOutcome = "NEEDS_REVIEW"
	RefundReject      RefundOutcome = "REJECT"
)

// RefundDecision carries the verdict plus the amount to refund when the
// outcome is auto-approval.
type RefundDecision struct {
	Outcome     RefundOutcome
	AmountCents int64
	Reason      string
}

// DecideRefund applies the platform refund policy. It is a pure function of
// the booking, its payment, and the current instant:
//
//   - paid and cancelled before the session's end: full refund including the
//     platform fee, approved automatically
//   - paid but the session window has passed without completion: the session
//     cost is refunded automatically, the platform fee is retained
//   - completed sessions go to manual review
//   - anything without a successful charge is rejected
func DecideRefund(booking *models.Booking, payment *models.Payment, now time.Time) RefundDecision {
	if payment == nil {
		return RefundDecision{Outcome: RefundReject, Reason: "no payment exists for this booking"}
	}
	switch payment.Status {
	case models.PaymentStatusSucceeded, models.PaymentStatusPartiallyRefunded:
	default:
		return RefundDecision{Outcome: RefundReject, Reason: "payment is not in a refundable state"}
	}

	switch booking.Status {
	case models.BookingStatusPaid:
		if now.Before(booking.EndTime) {
			return RefundDecision{Outcome: RefundAutoApprove, AmountCents: payment.TotalCents}
		}
		return RefundDecision{Outcome: RefundAutoApprove, AmountCents: payment.AmountCents}
	case models.BookingStatusCompleted:
		return RefundDecision{Outcome: RefundNeedsReview}
	default:
		return RefundDecision{Outcome: RefundReject, Reason: "booking status does not permit a refund"}
	}
}
