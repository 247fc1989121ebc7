package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/verbalink/verbalink-api/internal/models"
)

// PaymentRepository handles persistence of payments and saved payment
// methods.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository constructs the repository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// BeginTxx opens a transaction for webhook and refund processing.
func (r *PaymentRepository) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return r.db.BeginTxx(ctx, opts)
}

const paymentColumns = `id, booking_id, student_id, amount_cents, platform_fee_cents, total_cents,
    currency, cp_payment_intent_id, status, payment_method_id, refunded_cents, created_at, updated_at`

// Create inserts a payment row.
func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	const query = `INSERT INTO payments
        (id, booking_id, student_id, amount_cents, platform_fee_cents, total_cents, currency,
         cp_payment_intent_id, status, payment_method_id)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	if _, err := r.db.ExecContext(ctx, query,
		payment.ID, payment.BookingID, payment.StudentID,
		payment.AmountCents, payment.PlatformFeeCents, payment.TotalCents, payment.Currency,
		payment.CPPaymentIntentID, payment.Status, payment.PaymentMethodID); err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// FindByID returns a payment by its ID.
func (r *PaymentRepository) FindByID(ctx context.Context, id string) (*models.Payment, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments WHERE id = $1`, paymentColumns)
	var payment models.Payment
	if err := r.db.GetContext(ctx, &payment, query, id); err != nil {
		return nil, err
	}
	return &payment, nil
}

// FindByBookingID returns the payment for a booking, if any.
func (r *PaymentRepository) FindByBookingID(ctx context.Context, bookingID string) (*models.Payment, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments WHERE booking_id = $1`, paymentColumns)
	var payment models.Payment
	if err := r.db.GetContext(ctx, &payment, query, bookingID); err != nil {
		return nil, err
	}
	return &payment, nil
}

// FindByIntentIDForUpdate loads a payment by processor intent ID under a row
// lock; webhook handling is serialised per intent this way.
func (r *PaymentRepository) FindByIntentIDForUpdate(ctx context.Context, ext sqlx.ExtContext, intentID string) (*models.Payment, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments WHERE cp_payment_intent_id = $1 FOR UPDATE`, paymentColumns)
	var payment models.Payment
	if err := sqlx.GetContext(ctx, ext, &payment, query, intentID); err != nil {
		return nil, err
	}
	return &payment, nil
}

// UpdateStatus moves a payment to a new status inside the caller's
// transaction.
func (r *PaymentRepository) UpdateStatus(ctx context.Context, ext sqlx.ExtContext, id string, status models.PaymentStatus) error {
	const query = `UPDATE payments SET status = $2, updated_at = NOW() WHERE id = $1`
	if _, err := ext.ExecContext(ctx, query, id, status); err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	return nil
}

// ReplaceIntent swaps the processor intent behind a payment, used when a
// failed charge is retried with a fresh intent.
func (r *PaymentRepository) ReplaceIntent(ctx context.Context, id, intentID string, status models.PaymentStatus) error {
	const query = `UPDATE payments SET cp_payment_intent_id = $2, status = $3, updated_at = NOW() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, intentID, status); err != nil {
		return fmt.Errorf("replace payment intent: %w", err)
	}
	return nil
}

// RecordRefund accumulates the refunded amount and sets the resulting
// status inside the caller's transaction.
func (r *PaymentRepository) RecordRefund(ctx context.Context, ext sqlx.ExtContext, id string, refundedCents int64, status models.PaymentStatus) error {
	const query = `UPDATE payments SET refunded_cents = refunded_cents + $2, status = $3, updated_at = NOW() WHERE id = $1`
	if _, err := ext.ExecContext(ctx, query, id, refundedCents, status); err != nil {
		return fmt.Errorf("record refund: %w", err)
	}
	return nil
}

// SaveMethod stores an opaque processor payment-method reference.
func (r *PaymentRepository) SaveMethod(ctx context.Context, method *models.PaymentMethod) error {
	const query = `INSERT INTO payment_methods (id, student_id, cp_method_id, brand, last4, exp_month, exp_year)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (cp_method_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query,
		method.ID, method.StudentID, method.CPMethodID, method.Brand, method.Last4,
		method.ExpMonth, method.ExpYear); err != nil {
		return fmt.Errorf("save payment method: %w", err)
	}
	return nil
}

// FindMethod returns a saved method owned by the given student.
func (r *PaymentRepository) FindMethod(ctx context.Context, id, studentID string) (*models.PaymentMethod, error) {
	const query = `SELECT id, student_id, cp_method_id, brand, last4, exp_month, exp_year, created_at
        FROM payment_methods WHERE id = $1 AND student_id = $2`
	var method models.PaymentMethod
	if err := r.db.GetContext(ctx, &method, query, id, studentID); err != nil {
		return nil, err
	}
	return &method, nil
}

// ListMethodsByStudent returns a student's saved methods.
func (r *PaymentRepository) ListMethodsByStudent(ctx context.Context, studentID string) ([]models.PaymentMethod, error) {
	const query = `SELECT id, student_id, cp_method_id, brand, last4, exp_month, exp_year, created_at
        FROM payment_methods WHERE student_id = $1 ORDER BY created_at DESC`
	var methods []models.PaymentMethod
	if err := r.db.SelectContext(ctx, &methods, query, studentID); err != nil {
		return nil, fmt.Errorf("list payment methods: %w", err)
	}
	return methods, nil
}
