package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/verbalink/verbalink-api/internal/models"
)

// RefundRepository handles persistence of refund requests.
type RefundRepository struct {
	db *sqlx.DB
}

// NewRefundRepository constructs the repository.
func NewRefundRepository(db *sqlx.DB) *RefundRepository {
	return &RefundRepository{db: db}
}

const refundColumns = `id, payment_id, booking_id, requested_amount_cents, approved_amount_cents,
    reason, status, resolved_by, admin_notes, cp_refund_id, created_at, updated_at`

// Create inserts a refund request.
func (r *RefundRepository) Create(ctx context.Context, request *models.RefundRequest) error {
	const query = `INSERT INTO refund_requests
        (id, payment_id, booking_id, requested_amount_cents, reason, status, resolved_by)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := r.db.ExecContext(ctx, query,
		request.ID, request.PaymentID, request.BookingID,
		request.RequestedAmountCents, request.Reason, request.Status, request.ResolvedBy); err != nil {
		return fmt.Errorf("insert refund request: %w", err)
	}
	return nil
}

// FindByID returns a refund request by its ID.
func (r *RefundRepository) FindByID(ctx context.Context, id string) (*models.RefundRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM refund_requests WHERE id = $1`, refundColumns)
	var request models.RefundRequest
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// FindByIDForUpdate loads a refund request under a row lock inside the
// caller's transaction.
func (r *RefundRepository) FindByIDForUpdate(ctx context.Context, ext sqlx.ExtContext, id string) (*models.RefundRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM refund_requests WHERE id = $1 FOR UPDATE`, refundColumns)
	var request models.RefundRequest
	if err := sqlx.GetContext(ctx, ext, &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// ExistsOpenForPayment reports whether the payment already has an
// unresolved request.
func (r *RefundRepository) ExistsOpenForPayment(ctx context.Context, paymentID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM refund_requests
        WHERE payment_id = $1 AND status IN ('PENDING_REVIEW', 'AUTO_APPROVED', 'APPROVED'))`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, paymentID); err != nil {
		return false, fmt.Errorf("check open refund requests: %w", err)
	}
	return exists, nil
}

// Resolve records a decision on a request. A nil ext resolves outside any
// transaction.
func (r *RefundRepository) Resolve(ctx context.Context, ext sqlx.ExtContext, id string, status models.RefundStatus, approvedCents *int64, resolvedBy string, adminNotes *string) error {
	if ext == nil {
		ext = r.db
	}
	const query = `UPDATE refund_requests
        SET status = $2, approved_amount_cents = $3, resolved_by = $4, admin_notes = $5, updated_at = NOW()
        WHERE id = $1`
	if _, err := ext.ExecContext(ctx, query, id, status, approvedCents, resolvedBy, adminNotes); err != nil {
		return fmt.Errorf("resolve refund request: %w", err)
	}
	return nil
}

// MarkProcessed records the processor refund ID and final status inside the
// caller's transaction.
func (r *RefundRepository) MarkProcessed(ctx context.Context, ext sqlx.ExtContext, id, cpRefundID string) error {
	const query = `UPDATE refund_requests SET status = 'PROCESSED', cp_refund_id = $2, updated_at = NOW() WHERE id = $1`
	if _, err := ext.ExecContext(ctx, query, id, cpRefundID); err != nil {
		return fmt.Errorf("mark refund processed: %w", err)
	}
	return nil
}

// MarkFailed flags a request whose processor call failed; an admin can
// retry it later.
func (r *RefundRepository) MarkFailed(ctx context.Context, id string) error {
	const query = `UPDATE refund_requests SET status = 'FAILED', updated_at = NOW() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("mark refund failed: %w", err)
	}
	return nil
}
