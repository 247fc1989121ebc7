package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/verbalink/verbalink-api/internal/clients/notifier"
	"github.com/verbalink/verbalink-api/internal/clients/zoom"
	"github.com/verbalink/verbalink-api/internal/models"
	"github.com/verbalink/verbalink-api/pkg/clock"
	appErrors "github.com/verbalink/verbalink-api/pkg/errors"
)

type bookingStore interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
	LockTeacher(ctx context.Context, ext sqlx.ExtContext, teacherID string) error
	FindByID(ctx context.Context, id string) (*models.Booking, error)
	FindByIDForUpdate(ctx context.Context, ext sqlx.ExtContext, id string) (*models.Booking, error)
	CountOverlapping(ctx context.Context, ext sqlx.ExtContext, teacherID string, start, end time.Time) (int, error)
	Create(ctx context.Context, ext sqlx.ExtContext, booking *models.Booking) error
	UpdateStatus(ctx context.Context, ext sqlx.ExtContext, id string, status models.BookingStatus) error
	MarkPaid(ctx context.Context, ext sqlx.ExtContext, id string) error
	BindMeeting(ctx context.Context, ext sqlx.ExtContext, id, meetingID, joinURL, hostURL, password string) error
	Cancel(ctx context.Context, ext sqlx.ExtContext, id, reason string, rescheduledTo *string) error
	Complete(ctx context.Context, ext sqlx.ExtContext, id, completedBy string, at time.Time) error
	List(ctx context.Context, filter models.BookingFilter) ([]models.BookingDetail, int, error)
}

type bookingGigReader interface {
	FindByID(ctx context.Context, id string) (*models.Gig, error)
}

type bookingTeacherStore interface {
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
	CreditBalance(ctx context.Context, ext sqlx.ExtContext, teacherID string, cents int64) error
}

type bookingPaymentReader interface {
	FindByBookingID(ctx context.Context, bookingID string) (*models.Payment, error)
}

type slotEngine interface {
	IsBookable(ctx context.Context, teacherID, gigID string, start time.Time, excludeBookingID string) (bool, error)
	InvalidateTeacher(ctx context.Context, teacherID string)
}

type meetingProvisioner interface {
	Provision(ctx context.Context, booking *models.Booking, gig *models.Gig, teacherName string) (*zoom.Meeting, error)
	Teardown(ctx context.Context, booking *models.Booking)
}

type notificationSender interface {
	Notify(templateID, to string, params map[string]string)
}

type transitionObserver interface {
	BookingTransition(from, to models.BookingStatus)
}

// bookingTransitions is the full transition table. Everything absent fails
// with InvalidTransition.
var bookingTransitions = map[models.BookingStatus][]models.BookingStatus{
	models.BookingStatusPending:   {models.BookingStatusConfirmed, models.BookingStatusCancelled},
	models.BookingStatusConfirmed: {models.BookingStatusPaid, models.BookingStatusCancelled},
	models.BookingStatusPaid:      {models.BookingStatusCompleted, models.BookingStatusRefunded},
}

func canTransition(from, to models.BookingStatus) bool {
	for _, t := range bookingTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// BookingService owns the booking lifecycle. Every transition re-reads the
// row under a row lock; creation additionally serialises on the teacher so
// the overlap check and the insert are atomic.
type BookingService struct {
	bookings bookingStore
	gigs     bookingGigReader
	teachers bookingTeacherStore
	payments bookingPaymentReader
	slots    slotEngine
	meetings meetingProvisioner
	notify   notificationSender
	metrics  transitionObserver
	clock    clock.Clock
	minLead  time.Duration
	validate *validator.Validate
	logger   *zap.Logger
}

// NewBookingService constructs BookingService. notify and metrics may be nil.
func NewBookingService(
	bookings bookingStore,
	gigs bookingGigReader,
	teachers bookingTeacherStore,
	payments bookingPaymentReader,
	slots slotEngine,
	meetings meetingProvisioner,
	notify notificationSender,
	metrics transitionObserver,
	clk clock.Clock,
	minLead time.Duration,
	validate *validator.Validate,
	logger *zap.Logger,
) *BookingService {
	if clk == nil {
		clk = clock.New()
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BookingService{
		bookings: bookings,
		gigs:     gigs,
		teachers: teachers,
		payments: payments,
		slots:    slots,
		meetings: meetings,
		notify:   notify,
		metrics:  metrics,
		clock:    clk,
		minLead:  minLead,
		validate: validate,
		logger:   logger,
	}
}

// CreateBookingRequest is the payload for a new booking.
type CreateBookingRequest struct {
	TeacherID string    `json:"teacher_id" validate:"required,uuid"`
	GigID     string    `json:"gig_id" validate:"required,uuid"`
	StartTime time.Time `json:"start_time" validate:"required"`
	Notes     string    `json:"notes" validate:"omitempty,max=1000"`
}

// Create reserves a slot for the student and writes a PENDING booking. The
// overlap check and the insert run under a per-teacher advisory lock so two
// racing requests for the same slot cannot both succeed.
func (s *BookingService) Create(ctx context.Context, claims *models.JWTClaims, req CreateBookingRequest) (*models.Booking, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid booking request")
	}

	gig, err := s.gigs.FindByID(ctx, req.GigID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "gig not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load gig")
	}
	if gig.TeacherID != req.TeacherID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "gig does not belong to teacher")
	}

	now := s.clock.Now()
	start := req.StartTime.UTC()
	if start.Before(now.Add(s.minLead)) {
		return nil, appErrors.Clone(appErrors.ErrBadTime,
			fmt.Sprintf("bookings must start at least %s from now", s.minLead))
	}

	bookable, err := s.slots.IsBookable(ctx, req.TeacherID, req.GigID, start, "")
	if err != nil {
		return nil, err
	}
	if !bookable {
		return nil, appErrors.Clone(appErrors.ErrSlotUnavailable, "requested time is not an offered slot")
	}

	end := start.Add(gig.SessionDuration())
	booking := &models.Booking{
		ID:            s.clock.NewID(),
		StudentID:     claims.UserID,
		TeacherID:     req.TeacherID,
		GigID:         req.GigID,
		StartTime:     start,
		EndTime:       end,
		Status:        models.BookingStatusPending,
		PaymentStatus: models.BookingPaymentUnpaid,
	}
	if req.Notes != "" {
		booking.Notes = &req.Notes
	}

	tx, err := s.bookings.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open transaction")
	}
	defer tx.Rollback()

	if err := s.bookings.LockTeacher(ctx, tx, req.TeacherID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock teacher schedule")
	}
	overlapping, err := s.bookings.CountOverlapping(ctx, tx, req.TeacherID, start, end)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check conflicts")
	}
	if overlapping > 0 {
		return nil, appErrors.ErrSlotUnavailable
	}
	if err := s.bookings.Create(ctx, tx, booking); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create booking")
	}
	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit booking")
	}

	s.afterTransition(ctx, "", models.BookingStatusPending, booking.TeacherID)
	s.logger.Info("booking created",
		zap.String("booking_id", booking.ID),
		zap.String("teacher_id", booking.TeacherID),
		zap.Time("start_time", booking.StartTime))
	return booking, nil
}

// Confirm moves a PENDING booking to CONFIRMED, provisioning the meeting
// inside the same unit of work. Re-confirming a booking that already holds
// credentials returns them unchanged.
func (s *BookingService) Confirm(ctx context.Context, claims *models.JWTClaims, bookingID string) (*models.Booking, error) {
	tx, err := s.bookings.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open transaction")
	}
	defer tx.Rollback()

	booking, err := s.lockBooking(ctx, tx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.TeacherID != claims.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the booking's teacher may confirm")
	}
	switch booking.Status {
	case models.BookingStatusConfirmed, models.BookingStatusPaid:
		if booking.HasMeeting() {
			// Idempotent re-confirm; the meeting is never rotated. Any
			// other state keeps its credentials but cannot re-confirm.
			return booking, nil
		}
	}
	if !canTransition(booking.Status, models.BookingStatusConfirmed) {
		return nil, invalidTransition(booking.Status, models.BookingStatusConfirmed)
	}

	gig, err := s.gigs.FindByID(ctx, booking.GigID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load gig")
	}
	teacher, err := s.teachers.FindByID(ctx, booking.TeacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}

	meeting, err := s.meetings.Provision(ctx, booking, gig, teacher.DisplayName)
	if err != nil {
		// The row lock rolls back with the tx; the booking stays PENDING.
		return nil, err
	}

	if err := s.bookings.BindMeeting(ctx, tx, booking.ID, meeting.ID, meeting.JoinURL, meeting.StartURL, meeting.Password); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to bind meeting")
	}
	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit confirmation")
	}

	booking.Status = models.BookingStatusConfirmed
	booking.MeetingID = &meeting.ID
	booking.MeetingJoinURL = &meeting.JoinURL
	booking.MeetingHostURL = &meeting.StartURL
	booking.MeetingPassword = &meeting.Password

	s.afterTransition(ctx, models.BookingStatusPending, models.BookingStatusConfirmed, booking.TeacherID)
	s.send(notifier.TemplateBookingConfirmed, booking.StudentID, map[string]string{
		"booking_id": booking.ID,
		"start_time": booking.StartTime.Format(time.RFC3339),
	})
	s.logger.Info("booking confirmed",
		zap.String("booking_id", booking.ID), zap.String("meeting_id", meeting.ID))
	return booking, nil
}

// Cancel moves a PENDING or CONFIRMED booking to CANCELLED. Either party may
// cancel.
func (s *BookingService) Cancel(ctx context.Context, claims *models.JWTClaims, bookingID, reason string) (*models.Booking, error) {
	tx, err := s.bookings.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open transaction")
	}
	defer tx.Rollback()

	booking, err := s.lockBooking(ctx, tx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := requireParticipant(booking, claims); err != nil {
		return nil, err
	}
	if !canTransition(booking.Status, models.BookingStatusCancelled) {
		return nil, invalidTransition(booking.Status, models.BookingStatusCancelled)
	}
	if reason == "" {
		reason = "cancelled by " + string(claims.Role)
	}
	if err := s.bookings.Cancel(ctx, tx, booking.ID, reason, nil); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel booking")
	}
	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit cancellation")
	}

	prev := booking.Status
	booking.Status = models.BookingStatusCancelled
	booking.CancelReason = &reason

	s.afterTransition(ctx, prev, models.BookingStatusCancelled, booking.TeacherID)
	s.meetings.Teardown(ctx, booking)
	other := booking.TeacherID
	if claims.UserID == booking.TeacherID {
		other = booking.StudentID
	}
	s.send(notifier.TemplateBookingCancelled, other, map[string]string{
		"booking_id": booking.ID,
		"reason":     reason,
	})
	return booking, nil
}

// Reschedule cancels the original booking and creates a fresh PENDING one at
// the new time in a single transaction. The replacement inherits no meeting.
func (s *BookingService) Reschedule(ctx context.Context, claims *models.JWTClaims, bookingID string, newStart time.Time) (*models.Booking, error) {
	tx, err := s.bookings.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open transaction")
	}
	defer tx.Rollback()

	booking, err := s.lockBooking(ctx, tx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.StudentID != claims.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the booking's student may reschedule")
	}
	switch booking.Status {
	case models.BookingStatusPending, models.BookingStatusConfirmed:
	default:
		return nil, invalidTransition(booking.Status, models.BookingStatusPending)
	}

	now := s.clock.Now()
	start := newStart.UTC()
	if start.Before(now.Add(s.minLead)) {
		return nil, appErrors.Clone(appErrors.ErrBadTime,
			fmt.Sprintf("bookings must start at least %s from now", s.minLead))
	}
	// The original booking is excluded so its own interval never blocks an
	// overlapping replacement time.
	bookable, err := s.slots.IsBookable(ctx, booking.TeacherID, booking.GigID, start, booking.ID)
	if err != nil {
		return nil, err
	}
	if !bookable {
		return nil, appErrors.Clone(appErrors.ErrSlotUnavailable, "requested time is not an offered slot")
	}

	gig, err := s.gigs.FindByID(ctx, booking.GigID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load gig")
	}
	end := start.Add(gig.SessionDuration())

	if err := s.bookings.LockTeacher(ctx, tx, booking.TeacherID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock teacher schedule")
	}

	replacement := &models.Booking{
		ID:            s.clock.NewID(),
		StudentID:     booking.StudentID,
		TeacherID:     booking.TeacherID,
		GigID:         booking.GigID,
		StartTime:     start,
		EndTime:       end,
		Status:        models.BookingStatusPending,
		PaymentStatus: models.BookingPaymentUnpaid,
		Notes:         booking.Notes,
	}

	// Cancel first so the original interval does not count against the
	// replacement when the two overlap.
	if err := s.bookings.Cancel(ctx, tx, booking.ID, "rescheduled", &replacement.ID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel original booking")
	}
	overlapping, err := s.bookings.CountOverlapping(ctx, tx, booking.TeacherID, start, end)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check conflicts")
	}
	if overlapping > 0 {
		return nil, appErrors.ErrSlotUnavailable
	}
	if err := s.bookings.Create(ctx, tx, replacement); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create replacement booking")
	}
	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit reschedule")
	}

	s.afterTransition(ctx, booking.Status, models.BookingStatusCancelled, booking.TeacherID)
	s.meetings.Teardown(ctx, booking)
	s.send(notifier.TemplateRescheduled, booking.TeacherID, map[string]string{
		"booking_id": replacement.ID,
		"start_time": replacement.StartTime.Format(time.RFC3339),
	})
	return replacement, nil
}

// Complete moves a PAID booking to COMPLETED once the session window has
// passed, and credits the teacher's balance with the session cost net of the
// platform fee.
func (s *BookingService) Complete(ctx context.Context, claims *models.JWTClaims, bookingID string) (*models.Booking, error) {
	tx, err := s.bookings.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open transaction")
	}
	defer tx.Rollback()

	booking, err := s.lockBooking(ctx, tx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := requireParticipant(booking, claims); err != nil {
		return nil, err
	}
	if !canTransition(booking.Status, models.BookingStatusCompleted) {
		return nil, invalidTransition(booking.Status, models.BookingStatusCompleted)
	}
	now := s.clock.Now()
	if now.Before(booking.EndTime) {
		return nil, appErrors.ErrTooEarly
	}

	payment, err := s.payments.FindByBookingID(ctx, booking.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}

	if err := s.bookings.Complete(ctx, tx, booking.ID, claims.UserID, now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to complete booking")
	}
	earned := payment.AmountCents - payment.PlatformFeeCents
	if earned > 0 {
		if err := s.teachers.CreditBalance(ctx, tx, booking.TeacherID, earned); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to credit teacher earnings")
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit completion")
	}

	booking.Status = models.BookingStatusCompleted
	booking.CompletedBy = &claims.UserID
	booking.CompletedAt = &now

	s.afterTransition(ctx, models.BookingStatusPaid, models.BookingStatusCompleted, booking.TeacherID)
	s.logger.Info("booking completed",
		zap.String("booking_id", booking.ID),
		zap.String("completed_by", claims.UserID),
		zap.Int64("credited_cents", earned))
	return booking, nil
}

// MarkPaidTx transitions CONFIRMED to PAID inside the payment service's
// transaction. A booking already PAID is left untouched so webhook replays
// are harmless.
func (s *BookingService) MarkPaidTx(ctx context.Context, ext sqlx.ExtContext, bookingID string) error {
	booking, err := s.bookings.FindByIDForUpdate(ctx, ext, bookingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "booking not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load booking")
	}
	if booking.Status == models.BookingStatusPaid {
		return nil
	}
	if !canTransition(booking.Status, models.BookingStatusPaid) {
		return invalidTransition(booking.Status, models.BookingStatusPaid)
	}
	if err := s.bookings.MarkPaid(ctx, ext, bookingID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark booking paid")
	}
	s.afterTransition(ctx, models.BookingStatusConfirmed, models.BookingStatusPaid, booking.TeacherID)
	return nil
}

// ApplyRefundTx transitions PAID to REFUNDED inside the payment service's
// transaction. COMPLETED and already-REFUNDED bookings are left untouched.
func (s *BookingService) ApplyRefundTx(ctx context.Context, ext sqlx.ExtContext, bookingID string) error {
	booking, err := s.bookings.FindByIDForUpdate(ctx, ext, bookingID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load booking")
	}
	switch booking.Status {
	case models.BookingStatusRefunded, models.BookingStatusCompleted:
		return nil
	}
	if !canTransition(booking.Status, models.BookingStatusRefunded) {
		return invalidTransition(booking.Status, models.BookingStatusRefunded)
	}
	if err := s.bookings.UpdateStatus(ctx, ext, bookingID, models.BookingStatusRefunded); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark booking refunded")
	}
	s.afterTransition(ctx, models.BookingStatusPaid, models.BookingStatusRefunded, booking.TeacherID)
	return nil
}

// Get returns a booking visible to its participants. The host URL and
// password are stripped for students; the join URL is withheld from the
// student until payment.
func (s *BookingService) Get(ctx context.Context, claims *models.JWTClaims, bookingID string) (*models.Booking, error) {
	booking, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "booking not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load booking")
	}
	if claims.Role != models.RoleAdmin {
		if err := requireParticipant(booking, claims); err != nil {
			return nil, err
		}
	}
	if claims.UserID == booking.StudentID {
		booking.MeetingHostURL = nil
		booking.MeetingPassword = nil
		if booking.PaymentStatus != models.BookingPaymentPaid {
			booking.MeetingJoinURL = nil
		}
	}
	return booking, nil
}

// List returns the caller's bookings, newest first.
func (s *BookingService) List(ctx context.Context, claims *models.JWTClaims, status models.BookingStatus, page, pageSize int) ([]models.BookingDetail, int, error) {
	filter := models.BookingFilter{Status: status, Page: page, PageSize: pageSize}
	switch claims.Role {
	case models.RoleTeacher:
		filter.TeacherID = claims.UserID
	case models.RoleStudent:
		filter.StudentID = claims.UserID
	case models.RoleAdmin:
	default:
		return nil, 0, appErrors.ErrForbidden
	}
	details, total, err := s.bookings.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list bookings")
	}
	return details, total, nil
}

func (s *BookingService) lockBooking(ctx context.Context, tx *sqlx.Tx, id string) (*models.Booking, error) {
	booking, err := s.bookings.FindByIDForUpdate(ctx, tx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "booking not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load booking")
	}
	return booking, nil
}

// afterTransition invalidates slot caches and records the transition.
func (s *BookingService) afterTransition(ctx context.Context, from, to models.BookingStatus, teacherID string) {
	if s.slots != nil {
		s.slots.InvalidateTeacher(ctx, teacherID)
	}
	if s.metrics != nil {
		s.metrics.BookingTransition(from, to)
	}
}

func (s *BookingService) send(templateID, to string, params map[string]string) {
	if s.notify == nil {
		return
	}
	s.notify.Notify(templateID, to, params)
}

func requireParticipant(booking *models.Booking, claims *models.JWTClaims) error {
	if claims.UserID != booking.StudentID && claims.UserID != booking.TeacherID {
		return appErrors.Clone(appErrors.ErrForbidden, "not a participant of this booking")
	}
	return nil
}

func invalidTransition(from, to models.BookingStatus) error {
	return appErrors.Clone(appErrors.ErrInvalidTransition,
		fmt.Sprintf("cannot move booking from %s to %s", from, to))
}
