package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/verbalink/verbalink-api/internal/models"
)

// TeacherRepository handles persistence of teachers and students.
type TeacherRepository struct {
	db *sqlx.DB
}

// NewTeacherRepository constructs the repository.
func NewTeacherRepository(db *sqlx.DB) *TeacherRepository {
	return &TeacherRepository{db: db}
}

// FindByID returns a teacher by its ID.
func (r *TeacherRepository) FindByID(ctx context.Context, id string) (*models.Teacher, error) {
	const query = `SELECT id, display_name, timezone, hourly_rate_cents, balance_cents, status, created_at, updated_at
        FROM teachers WHERE id = $1`
	var teacher models.Teacher
	if err := r.db.GetContext(ctx, &teacher, query, id); err != nil {
		return nil, err
	}
	return &teacher, nil
}

// FindStudentByID returns a student by its ID.
func (r *TeacherRepository) FindStudentByID(ctx context.Context, id string) (*models.Student, error) {
	const query = `SELECT id, display_name, created_at FROM students WHERE id = $1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// CreditBalance adds earnings to a teacher's running balance inside the
// caller's transaction.
func (r *TeacherRepository) CreditBalance(ctx context.Context, ext sqlx.ExtContext, teacherID string, cents int64) error {
	const query = `UPDATE teachers SET balance_cents = balance_cents + $2, updated_at = NOW() WHERE id = $1`
	_, err := ext.ExecContext(ctx, query, teacherID, cents)
	return err
}

// ListEarnings returns per-booking earnings entries for a teacher, most
// recent first.
func (r *TeacherRepository) ListEarnings(ctx context.Context, teacherID string) ([]models.EarningsEntry, error) {
	const query = `SELECT b.id AS booking_id, g.title AS gig_title, b.completed_at,
        p.amount_cents, p.platform_fee_cents AS fee_cents,
        p.amount_cents - p.refunded_cents AS net_cents, p.currency
        FROM bookings b
        JOIN payments p ON p.booking_id = b.id
        JOIN gigs g ON g.id = b.gig_id
        WHERE b.teacher_id = $1 AND b.status = 'COMPLETED'
          AND p.status IN ('SUCCEEDED', 'PARTIALLY_REFUNDED')
        ORDER BY b.completed_at DESC`
	var entries []models.EarningsEntry
	if err := r.db.SelectContext(ctx, &entries, query, teacherID); err != nil {
		return nil, err
	}
	return entries, nil
}
