package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/verbalink/verbalink-api/internal/models"
)

// BookingRepository handles persistence of bookings. Status writes only
// happen through methods on this type, always inside a caller-held
// transaction so the booking service can pair them with its invariants.
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository constructs the repository.
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// BeginTxx opens a transaction for a multi-step transition.
func (r *BookingRepository) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return r.db.BeginTxx(ctx, opts)
}

// LockTeacher takes the per-teacher advisory transaction lock. Every
// transition that can change the set of non-terminal bookings for a teacher
// must acquire it before the overlap check.
func (r *BookingRepository) LockTeacher(ctx context.Context, ext sqlx.ExtContext, teacherID string) error {
	if _, err := ext.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, teacherID); err != nil {
		return fmt.Errorf("lock teacher %s: %w", teacherID, err)
	}
	return nil
}

const bookingColumns = `id, student_id, teacher_id, gig_id, start_time, end_time, status, payment_status,
    meeting_id, meeting_join_url, meeting_host_url, meeting_password,
    notes, cancel_reason, rescheduled_to, completed_by, completed_at, created_at, updated_at`

// FindByID returns a booking by its ID.
func (r *BookingRepository) FindByID(ctx context.Context, id string) (*models.Booking, error) {
	query := fmt.Sprintf(`SELECT %s FROM bookings WHERE id = $1`, bookingColumns)
	var booking models.Booking
	if err := r.db.GetContext(ctx, &booking, query, id); err != nil {
		return nil, err
	}
	return &booking, nil
}

// FindByIDForUpdate loads a booking under a row lock inside the caller's
// transaction. Transitions never act on a stale status.
func (r *BookingRepository) FindByIDForUpdate(ctx context.Context, ext sqlx.ExtContext, id string) (*models.Booking, error) {
	query := fmt.Sprintf(`SELECT %s FROM bookings WHERE id = $1 FOR UPDATE`, bookingColumns)
	var booking models.Booking
	if err := sqlx.GetContext(ctx, ext, &booking, query, id); err != nil {
		return nil, err
	}
	return &booking, nil
}

// CountOverlapping counts non-terminal bookings of the teacher intersecting
// the half-open interval [start, end).
func (r *BookingRepository) CountOverlapping(ctx context.Context, ext sqlx.ExtContext, teacherID string, start, end time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM bookings
        WHERE teacher_id = $1
          AND status IN ('PENDING', 'CONFIRMED', 'PAID')
          AND start_time < $3 AND end_time > $2`
	var count int
	if err := sqlx.GetContext(ctx, ext, &count, query, teacherID, start, end); err != nil {
		return 0, fmt.Errorf("count overlapping bookings: %w", err)
	}
	return count, nil
}

// ListBusyIntervals returns the non-terminal bookings of a teacher whose
// interval overlaps [from, to), ordered by start. A non-empty
// excludeBookingID drops that booking from the result, which lets a
// reschedule reuse its own original time. Used by the slot engine.
func (r *BookingRepository) ListBusyIntervals(ctx context.Context, teacherID string, from, to time.Time, excludeBookingID string) ([]models.Slot, error) {
	query := `SELECT start_time AS start, end_time AS "end" FROM bookings
        WHERE teacher_id = $1
          AND status IN ('PENDING', 'CONFIRMED', 'PAID')
          AND start_time < $3 AND end_time > $2`
	args := []interface{}{teacherID, from, to}
	if excludeBookingID != "" {
		query += ` AND id <> $4`
		args = append(args, excludeBookingID)
	}
	query += ` ORDER BY start_time`
	var busy []models.Slot
	if err := r.db.SelectContext(ctx, &busy, query, args...); err != nil {
		return nil, fmt.Errorf("list busy intervals: %w", err)
	}
	return busy, nil
}

// Create inserts a new booking row inside the caller's transaction.
func (r *BookingRepository) Create(ctx context.Context, ext sqlx.ExtContext, booking *models.Booking) error {
	const query = `INSERT INTO bookings
        (id, student_id, teacher_id, gig_id, start_time, end_time, status, payment_status, notes)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := ext.ExecContext(ctx, query,
		booking.ID, booking.StudentID, booking.TeacherID, booking.GigID,
		booking.StartTime, booking.EndTime, booking.Status, booking.PaymentStatus, booking.Notes); err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	return nil
}

// UpdateStatus moves a booking to a new status inside the caller's
// transaction.
func (r *BookingRepository) UpdateStatus(ctx context.Context, ext sqlx.ExtContext, id string, status models.BookingStatus) error {
	const query = `UPDATE bookings SET status = $2, updated_at = NOW() WHERE id = $1`
	if _, err := ext.ExecContext(ctx, query, id, status); err != nil {
		return fmt.Errorf("update booking status: %w", err)
	}
	return nil
}

// MarkPaid flips both the lifecycle and the denormalised payment flag.
func (r *BookingRepository) MarkPaid(ctx context.Context, ext sqlx.ExtContext, id string) error {
	const query = `UPDATE bookings SET status = 'PAID', payment_status = 'PAID', updated_at = NOW() WHERE id = $1`
	if _, err := ext.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("mark booking paid: %w", err)
	}
	return nil
}

// BindMeeting persists the provisioned credential quadruple and confirms the
// booking in one statement, inside the caller's transaction.
func (r *BookingRepository) BindMeeting(ctx context.Context, ext sqlx.ExtContext, id, meetingID, joinURL, hostURL, password string) error {
	const query = `UPDATE bookings SET status = 'CONFIRMED',
        meeting_id = $2, meeting_join_url = $3, meeting_host_url = $4, meeting_password = $5,
        updated_at = NOW()
        WHERE id = $1`
	if _, err := ext.ExecContext(ctx, query, id, meetingID, joinURL, hostURL, password); err != nil {
		return fmt.Errorf("bind meeting: %w", err)
	}
	return nil
}

// Cancel records a cancellation with its reason and, for reschedules, the
// replacement booking's ID.
func (r *BookingRepository) Cancel(ctx context.Context, ext sqlx.ExtContext, id, reason string, rescheduledTo *string) error {
	const query = `UPDATE bookings SET status = 'CANCELLED', cancel_reason = $2, rescheduled_to = $3, updated_at = NOW()
        WHERE id = $1`
	if _, err := ext.ExecContext(ctx, query, id, reason, rescheduledTo); err != nil {
		return fmt.Errorf("cancel booking: %w", err)
	}
	return nil
}

// Complete records who completed the booking and when.
func (r *BookingRepository) Complete(ctx context.Context, ext sqlx.ExtContext, id, completedBy string, at time.Time) error {
	const query = `UPDATE bookings SET status = 'COMPLETED', completed_by = $2, completed_at = $3, updated_at = NOW()
        WHERE id = $1`
	if _, err := ext.ExecContext(ctx, query, id, completedBy, at); err != nil {
		return fmt.Errorf("complete booking: %w", err)
	}
	return nil
}

// List returns bookings matching the filter with display context.
func (r *BookingRepository) List(ctx context.Context, filter models.BookingFilter) ([]models.BookingDetail, int, error) {
	base := `FROM bookings b
JOIN students s ON s.id = b.student_id
JOIN teachers t ON t.id = b.teacher_id
JOIN gigs g ON g.id = b.gig_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("b.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("b.teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("b.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	for i, c := range conditions {
		if i == 0 {
			clause = " WHERE " + c
		} else {
			clause += " AND " + c
		}
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT b.*, s.display_name AS student_name, t.display_name AS teacher_name, g.title AS gig_title
        %s ORDER BY b.start_time DESC LIMIT %d OFFSET %d`, base+clause, size, offset)

	var bookings []models.BookingDetail
	if err := r.db.SelectContext(ctx, &bookings, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list bookings: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count bookings: %w", err)
	}
	return bookings, total, nil
}
