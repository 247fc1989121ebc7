package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/verbalink/verbalink-api/internal/clients/notifier"
	"github.com/verbalink/verbalink-api/internal/clients/zoom"
	"github.com/verbalink/verbalink-api/internal/models"
	"github.com/verbalink/verbalink-api/pkg/clock"
	appErrors "github.com/verbalink/verbalink-api/pkg/errors"
)

const (
	testTeacherID = "11111111-1111-1111-1111-111111111111"
	testStudentID = "22222222-2222-2222-2222-222222222222"
	testGigID     = "33333333-3333-3333-3333-333333333333"
	testBookingID = "44444444-4444-4444-4444-444444444444"
)

type mockBookingStore struct {
	db      *sqlx.DB
	items   map[string]*models.Booking
	overlap int
	locked  []string
	listing []models.BookingDetail
}

func (m *mockBookingStore) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return m.db.BeginTxx(ctx, opts)
}

func (m *mockBookingStore) LockTeacher(ctx context.Context, ext sqlx.ExtContext, teacherID string) error {
	m.locked = append(m.locked, teacherID)
	return nil
}

func (m *mockBookingStore) FindByID(ctx context.Context, id string) (*models.Booking, error) {
	b, ok := m.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *b
	return &cp, nil
}

func (m *mockBookingStore) FindByIDForUpdate(ctx context.Context, ext sqlx.ExtContext, id string) (*models.Booking, error) {
	return m.FindByID(ctx, id)
}

func (m *mockBookingStore) CountOverlapping(ctx context.Context, ext sqlx.ExtContext, teacherID string, start, end time.Time) (int, error) {
	return m.overlap, nil
}

func (m *mockBookingStore) Create(ctx context.Context, ext sqlx.ExtContext, booking *models.Booking) error {
	cp := *booking
	m.items[booking.ID] = &cp
	return nil
}

func (m *mockBookingStore) UpdateStatus(ctx context.Context, ext sqlx.ExtContext, id string, status models.BookingStatus) error {
	m.items[id].Status = status
	return nil
}

func (m *mockBookingStore) MarkPaid(ctx context.Context, ext sqlx.ExtContext, id string) error {
	m.items[id].Status = models.BookingStatusPaid
	m.items[id].PaymentStatus = models.BookingPaymentPaid
	return nil
}

func (m *mockBookingStore) BindMeeting(ctx context.Context, ext sqlx.ExtContext, id, meetingID, joinURL, hostURL, password string) error {
	b := m.items[id]
	b.Status = models.BookingStatusConfirmed
	b.MeetingID = &meetingID
	b.MeetingJoinURL = &joinURL
	b.MeetingHostURL = &hostURL
	b.MeetingPassword = &password
	return nil
}

func (m *mockBookingStore) Cancel(ctx context.Context, ext sqlx.ExtContext, id, reason string, rescheduledTo *string) error {
	b := m.items[id]
	b.Status = models.BookingStatusCancelled
	b.CancelReason = &reason
	b.RescheduledTo = rescheduledTo
	return nil
}

func (m *mockBookingStore) Complete(ctx context.Context, ext sqlx.ExtContext, id, completedBy string, at time.Time) error {
	b := m.items[id]
	b.Status = models.BookingStatusCompleted
	b.CompletedBy = &completedBy
	b.CompletedAt = &at
	return nil
}

func (m *mockBookingStore) List(ctx context.Context, filter models.BookingFilter) ([]models.BookingDetail, int, error) {
	return m.listing, len(m.listing), nil
}

type mockBookingGigs struct {
	items map[string]*models.Gig
}

func (m mockBookingGigs) FindByID(ctx context.Context, id string) (*models.Gig, error) {
	g, ok := m.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *g
	return &cp, nil
}

type mockBookingTeachers struct {
	items   map[string]*models.Teacher
	credits map[string]int64
}

func (m *mockBookingTeachers) FindByID(ctx context.Context, id string) (*models.Teacher, error) {
	t, ok := m.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *t
	return &cp, nil
}

func (m *mockBookingTeachers) CreditBalance(ctx context.Context, ext sqlx.ExtContext, teacherID string, cents int64) error {
	if m.credits == nil {
		m.credits = make(map[string]int64)
	}
	m.credits[teacherID] += cents
	return nil
}

type mockBookingPayments struct {
	items map[string]*models.Payment
}

func (m mockBookingPayments) FindByBookingID(ctx context.Context, bookingID string) (*models.Payment, error) {
	p, ok := m.items[bookingID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *p
	return &cp, nil
}

type stubSlotEngine struct {
	bookable    bool
	invalidated []string
	lastExclude string
}

func (s *stubSlotEngine) IsBookable(ctx context.Context, teacherID, gigID string, start time.Time, excludeBookingID string) (bool, error) {
	s.lastExclude = excludeBookingID
	return s.bookable, nil
}

func (s *stubSlotEngine) InvalidateTeacher(ctx context.Context, teacherID string) {
	s.invalidated = append(s.invalidated, teacherID)
}

type stubProvisioner struct {
	meeting   *zoom.Meeting
	err       error
	calls     int
	teardowns []string
}

func (s *stubProvisioner) Provision(ctx context.Context, booking *models.Booking, gig *models.Gig, teacherName string) (*zoom.Meeting, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.meeting, nil
}

func (s *stubProvisioner) Teardown(ctx context.Context, booking *models.Booking) {
	if booking != nil && booking.MeetingID != nil {
		s.teardowns = append(s.teardowns, *booking.MeetingID)
	}
}

type recordedNotice struct {
	template string
	to       string
}

type recorderNotifier struct {
	notices []recordedNotice
}

func (r *recorderNotifier) Notify(templateID, to string, params map[string]string) {
	r.notices = append(r.notices, recordedNotice{template: templateID, to: to})
}

type bookingFixture struct {
	store       *mockBookingStore
	gigs        mockBookingGigs
	teachers    *mockBookingTeachers
	payments    mockBookingPayments
	slots       *stubSlotEngine
	provisioner *stubProvisioner
	notifier    *recorderNotifier
	clock       *clock.Fixed
	sqlmock     sqlmock.Sqlmock
	svc         *BookingService
}

func newBookingFixture(t *testing.T) *bookingFixture {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &bookingFixture{
		store: &mockBookingStore{
			db:    sqlx.NewDb(db, "sqlmock"),
			items: make(map[string]*models.Booking),
		},
		gigs: mockBookingGigs{items: map[string]*models.Gig{
			testGigID: {ID: testGigID, TeacherID: testTeacherID, Title: "Japanese Conversation", PricePerSessionCents: 5000, SessionDurationMinutes: 60, Currency: "USD", Active: true},
		}},
		teachers: &mockBookingTeachers{items: map[string]*models.Teacher{
			testTeacherID: {ID: testTeacherID, DisplayName: "Aiko", Timezone: "UTC"},
		}},
		payments:    mockBookingPayments{items: make(map[string]*models.Payment)},
		slots:       &stubSlotEngine{bookable: true},
		provisioner: &stubProvisioner{meeting: &zoom.Meeting{ID: "mtg-1", JoinURL: "https://meet.example/j/1", StartURL: "https://meet.example/s/1", Password: "secret"}},
		notifier:    &recorderNotifier{},
		clock:       clock.NewFixed(mustUTC("2026-09-01T08:00:00Z")),
		sqlmock:     mock,
	}
	f.svc = NewBookingService(f.store, f.gigs, f.teachers, f.payments, f.slots, f.provisioner, f.notifier, nil, f.clock, 15*time.Minute, nil, zap.NewNop())
	return f
}

func (f *bookingFixture) seedBooking(status models.BookingStatus) *models.Booking {
	booking := &models.Booking{
		ID:            testBookingID,
		StudentID:     testStudentID,
		TeacherID:     testTeacherID,
		GigID:         testGigID,
		StartTime:     mustUTC("2026-09-07T10:00:00Z"),
		EndTime:       mustUTC("2026-09-07T11:00:00Z"),
		Status:        status,
		PaymentStatus: models.BookingPaymentUnpaid,
	}
	if status == models.BookingStatusPaid || status == models.BookingStatusCompleted {
		booking.PaymentStatus = models.BookingPaymentPaid
	}
	f.store.items[booking.ID] = booking
	return booking
}

func studentClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: testStudentID, Role: models.RoleStudent}
}

func teacherClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: testTeacherID, Role: models.RoleTeacher}
}

func TestBookingServiceCreate(t *testing.T) {
	f := newBookingFixture(t)
	f.sqlmock.ExpectBegin()
	f.sqlmock.ExpectCommit()

	booking, err := f.svc.Create(context.Background(), studentClaims(), CreateBookingRequest{
		TeacherID: testTeacherID,
		GigID:     testGigID,
		StartTime: mustUTC("2026-09-07T10:00:00Z"),
		Notes:     "please focus on keigo",
	})
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusPending, booking.Status)
	assert.Equal(t, models.BookingPaymentUnpaid, booking.PaymentStatus)
	assert.Equal(t, testStudentID, booking.StudentID)
	assert.Equal(t, mustUTC("2026-09-07T11:00:00Z"), booking.EndTime)
	require.NotNil(t, booking.Notes)
	assert.Equal(t, "please focus on keigo", *booking.Notes)

	assert.Equal(t, []string{testTeacherID}, f.store.locked)
	assert.Contains(t, f.slots.invalidated, testTeacherID)
	assert.NoError(t, f.sqlmock.ExpectationsWereMet())
}

func TestBookingServiceCreateRejectsUnofferedSlot(t *testing.T) {
	f := newBookingFixture(t)
	f.slots.bookable = false

	_, err := f.svc.Create(context.Background(), studentClaims(), CreateBookingRequest{
		TeacherID: testTeacherID,
		GigID:     testGigID,
		StartTime: mustUTC("2026-09-07T10:00:00Z"),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSlotUnavailable.Code, appErrors.FromError(err).Code)
}

func TestBookingServiceCreateRejectsOverlap(t *testing.T) {
	f := newBookingFixture(t)
	f.store.overlap = 1
	f.sqlmock.ExpectBegin()
	f.sqlmock.ExpectRollback()

	_, err := f.svc.Create(context.Background(), studentClaims(), CreateBookingRequest{
		TeacherID: testTeacherID,
		GigID:     testGigID,
		StartTime: mustUTC("2026-09-07T10:00:00Z"),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSlotUnavailable.Code, appErrors.FromError(err).Code)
	assert.NoError(t, f.sqlmock.ExpectationsWereMet())
}

func TestBookingServiceCreateEnforcesLeadTime(t *testing.T) {
	f := newBookingFixture(t)

	_, err := f.svc.Create(context.Background(), studentClaims(), CreateBookingRequest{
		TeacherID: testTeacherID,
		GigID:     testGigID,
		StartTime: f.clock.Now().Add(5 * time.Minute),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrBadTime.Code, appErrors.FromError(err).Code)
}

func TestBookingServiceCreateValidatesPayload(t *testing.T) {
	f := newBookingFixture(t)

	_, err := f.svc.Create(context.Background(), studentClaims(), CreateBookingRequest{
		TeacherID: "not-a-uuid",
		GigID:     testGigID,
		StartTime: mustUTC("2026-09-07T10:00:00Z"),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestBookingServiceConfirm(t *testing.T) {
	f := newBookingFixture(t)
	f.seedBooking(models.BookingStatusPending)
	f.sqlmock.ExpectBegin()
	f.sqlmock.ExpectCommit()

	booking, err := f.svc.Confirm(context.Background(), teacherClaims(), testBookingID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusConfirmed, booking.Status)
	require.NotNil(t, booking.MeetingJoinURL)
	assert.Equal(t, "https://meet.example/j/1", *booking.MeetingJoinURL)
	assert.Equal(t, 1, f.provisioner.calls)

	stored := f.store.items[testBookingID]
	assert.Equal(t, models.BookingStatusConfirmed, stored.Status)

	require.Len(t, f.notifier.notices, 1)
	assert.Equal(t, notifier.TemplateBookingConfirmed, f.notifier.notices[0].template)
	assert.Equal(t, testStudentID, f.notifier.notices[0].to)
	assert.NoError(t, f.sqlmock.ExpectationsWereMet())
}

func TestBookingServiceConfirmIsIdempotent(t *testing.T) {
	f := newBookingFixture(t)
	booking := f.seedBooking(models.BookingStatusConfirmed)
	joinURL := "https://meet.example/j/original"
	meetingID := "mtg-original"
	booking.MeetingID = &meetingID
	booking.MeetingJoinURL = &joinURL
	f.sqlmock.ExpectBegin()
	f.sqlmock.ExpectRollback()

	got, err := f.svc.Confirm(context.Background(), teacherClaims(), testBookingID)
	require.NoError(t, err)
	require.NotNil(t, got.MeetingID)
	assert.Equal(t, "mtg-original", *got.MeetingID)
	assert.Zero(t, f.provisioner.calls)
	assert.NoError(t, f.sqlmock.ExpectationsWereMet())
}

func TestBookingServiceConfirmRequiresTeacher(t *testing.T) {
	f := newBookingFixture(t)
	f.seedBooking(models.BookingStatusPending)
	f.sqlmock.ExpectBegin()
	f.sqlmock.ExpectRollback()

	_, err := f.svc.Confirm(context.Background(), studentClaims(), testBookingID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.NoError(t, f.sqlmock.ExpectationsWereMet())
}

func TestBookingServiceConfirmLeavesPendingOnProvisionFailure(t *testing.T) {
	f := newBookingFixture(t)
	f.seedBooking(models.BookingStatusPending)
	f.provisioner.err = appErrors.ErrMeetingUnavailable
	f.sqlmock.ExpectBegin()
	f.sqlmock.ExpectRollback()

	_, err := f.svc.Confirm(context.Background(), teacherClaims(), testBookingID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrMeetingUnavailable.Code, appErrors.FromError(err).Code)
	assert.Equal(t, models.BookingStatusPending, f.store.items[testBookingID].Status)
	assert.Empty(t, f.notifier.notices)
	assert.NoError(t, f.sqlmock.ExpectationsWereMet())
}

func TestBookingServiceConfirmRejectsCancelled(t *testing.T) {
	f := newBookingFixture(t)
	f.seedBooking(models.BookingStatusCancelled)
	f.sqlmock.ExpectBegin()
	f.sqlmock.ExpectRollback()

	_, err := f.svc.Confirm(context.Background(), teacherClaims(), testBookingID)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "CANCELLED")
	assert.NoError(t, f.sqlmock.ExpectationsWereMet())
}

func TestBookingServiceConfirmRejectsCancelledWithLeftoverMeeting(t *testing.T) {
	f := newBookingFixture(t)
	booking := f.seedBooking(models.BookingStatusCancelled)
	meetingID := "mtg-stale"
	joinURL := "https://meet.example/j/stale"
	booking.MeetingID = &meetingID
	booking.MeetingJoinURL = &joinURL
	f.sqlmock.ExpectBegin()
	f.sqlmock.ExpectRollback()

	// Credentials left over from before the cancellation must not make
	// a re-confirm look idempotent.
	_, err := f.svc.Confirm(context.Background(), teacherClaims(), testBookingID)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "CANCELLED")
	assert.Zero(t, f.provisioner.calls)
	assert.Equal(t, models.BookingStatusCancelled, f.store.items[testBookingID].Status)
	assert.NoError(t, f.sqlmock.ExpectationsWereMet())
}

func TestBookingServiceCancel(t *testing.T) {
	f := newBookingFixture(t)
	f.seedBooking(models.BookingStatusConfirmed)
	f.sqlmock.ExpectBegin()
	f.sqlmock.ExpectCommit()

	booking, err := f.svc.Cancel(context.Background(), studentClaims(), testBookingID, "")
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, booking.Status)
	require.NotNil(t, booking.CancelReason)
	assert.Equal(t, "cancelled by STUDENT", *booking.CancelReason)

	// The teacher, not the cancelling student, gets the notice.
	require.Len(t, f.notifier.notices, 1)
	assert.Equal(t, notifier.TemplateBookingCancelled, f.notifier.notices[0].template)
	assert.Equal(t, testTeacherID, f.notifier.notices[0].to)
	assert.NoError(t, f.sqlmock.ExpectationsWereMet())
}

func TestBookingServiceCancelTearsDownMeeting(t *testing.T) {
	f := newBookingFixture(t)
	booking := f.seedBooking(models.BookingStatusConfirmed)
	meetingID := "mtg-1"
	joinURL := "https://meet.example/j/1"
	booking.MeetingID = &meetingID
	booking.MeetingJoinURL = &joinURL
	f.sqlmock.ExpectBegin()
	f.sqlmock.ExpectCommit()

	_, err := f.svc.Cancel(context.Background(), studentClaims(), testBookingID, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"mtg-1"}, f.provisioner.teardowns)
	assert.NoError(t, f.sqlmock.ExpectationsWereMet())
}

func TestBookingServiceCancelRejectsPaid(t *testing.T) {
	f := newBookingFixture(t)
	f.seedBooking(models.BookingStatusPaid)
	f.sqlmock.ExpectBegin()
	f.sqlmock.ExpectRollback()

	_, err := f.svc.Cancel(context.Background(), teacherClaims(), testBookingID, "emergency")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
	assert.NoError(t, f.sqlmock.ExpectationsWereMet())
}

func TestBookingServiceCancelRequiresParticipant(t *testing.T) {
	f := newBookingFixture(t)
	f.seedBooking(models.BookingStatusPending)
	f.sqlmock.ExpectBegin()
	f.sqlmock.ExpectRollback()

	outsider := &models.JWTClaims{UserID: "99999999-9999-9999-9999-999999999999", Role: models.RoleStudent}
	_, err := f.svc.Cancel(context.Background(), outsider, testBookingID, "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.NoError(t, f.sqlmock.ExpectationsWereMet())
}

func TestBookingServiceReschedule(t *testing.T) {
	f := newBookingFixture(t)
	f.seedBooking(models.BookingStatusConfirmed)
	f.sqlmock.ExpectBegin()
	f.sqlmock.ExpectCommit()

	newStart := mustUTC("2026-09-08T14:00:00Z")
	replacement, err := f.svc.Reschedule(context.Background(), studentClaims(), testBookingID, newStart)
	require.NoError(t, err)
	assert.NotEqual(t, testBookingID, replacement.ID)
	assert.Equal(t, models.BookingStatusPending, replacement.Status)
	assert.Equal(t, newStart, replacement.StartTime)
	assert.Nil(t, replacement.MeetingJoinURL)

	original := f.store.items[testBookingID]
	assert.Equal(t, models.BookingStatusCancelled, original.Status)
	require.NotNil(t, original.RescheduledTo)
	assert.Equal(t, replacement.ID, *original.RescheduledTo)

	require.Len(t, f.notifier.notices, 1)
	assert.Equal(t, notifier.TemplateRescheduled, f.notifier.notices[0].template)
	assert.Equal(t, testTeacherID, f.notifier.notices[0].to)

	// The slot check runs before the original is cancelled, so the
	// original booking is excluded from its own availability lookup.
	assert.Equal(t, testBookingID, f.slots.lastExclude)
	assert.NoError(t, f.sqlmock.ExpectationsWereMet())
}

func TestBookingServiceRescheduleTearsDownMeeting(t *testing.T) {
	f := newBookingFixture(t)
	booking := f.seedBooking(models.BookingStatusConfirmed)
	meetingID := "mtg-1"
	joinURL := "https://meet.example/j/1"
	booking.MeetingID = &meetingID
	booking.MeetingJoinURL = &joinURL
	f.sqlmock.ExpectBegin()
	f.sqlmock.ExpectCommit()

	replacement, err := f.svc.Reschedule(context.Background(), studentClaims(), testBookingID, mustUTC("2026-09-08T14:00:00Z"))
	require.NoError(t, err)
	assert.Nil(t, replacement.MeetingJoinURL)
	assert.Equal(t, []string{"mtg-1"}, f.provisioner.teardowns)
	assert.NoError(t, f.sqlmock.ExpectationsWereMet())
}

func TestBookingServiceRescheduleRequiresStudent(t *testing.T) {
	f := newBookingFixture(t)
	f.seedBooking(models.BookingStatusPending)
	f.sqlmock.ExpectBegin()
	f.sqlmock.ExpectRollback()

	_, err := f.svc.Reschedule(context.Background(), teacherClaims(), testBookingID, mustUTC("2026-09-08T14:00:00Z"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.NoError(t, f.sqlmock.ExpectationsWereMet())
}

func TestBookingServiceRescheduleRejectsPaid(t *testing.T) {
	f := newBookingFixture(t)
	f.seedBooking(models.BookingStatusPaid)
	f.sqlmock.ExpectBegin()
	f.sqlmock.ExpectRollback()

	_, err := f.svc.Reschedule(context.Background(), studentClaims(), testBookingID, mustUTC("2026-09-08T14:00:00Z"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
	assert.NoError(t, f.sqlmock.ExpectationsWereMet())
}

func TestBookingServiceComplete(t *testing.T) {
	f := newBookingFixture(t)
	f.seedBooking(models.BookingStatusPaid)
	f.payments.items[testBookingID] = &models.Payment{
		BookingID:        testBookingID,
		AmountCents:      5000,
		PlatformFeeCents: 250,
		TotalCents:       5250,
		Status:           models.PaymentStatusSucceeded,
	}
	f.clock.Time = mustUTC("2026-09-07T11:00:00Z") // exactly end_time
	f.sqlmock.ExpectBegin()
	f.sqlmock.ExpectCommit()

	booking, err := f.svc.Complete(context.Background(), teacherClaims(), testBookingID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCompleted, booking.Status)
	require.NotNil(t, booking.CompletedBy)
	assert.Equal(t, testTeacherID, *booking.CompletedBy)
	assert.Equal(t, int64(4750), f.teachers.credits[testTeacherID])
	assert.NoError(t, f.sqlmock.ExpectationsWereMet())
}

func TestBookingServiceCompleteRejectsEarly(t *testing.T) {
	f := newBookingFixture(t)
	f.seedBooking(models.BookingStatusPaid)
	f.clock.Time = mustUTC("2026-09-07T10:59:59Z")
	f.sqlmock.ExpectBegin()
	f.sqlmock.ExpectRollback()

	_, err := f.svc.Complete(context.Background(), studentClaims(), testBookingID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrTooEarly.Code, appErrors.FromError(err).Code)
	assert.Empty(t, f.teachers.credits)
	assert.NoError(t, f.sqlmock.ExpectationsWereMet())
}

func TestBookingServiceCompleteRequiresPaid(t *testing.T) {
	f := newBookingFixture(t)
	f.seedBooking(models.BookingStatusConfirmed)
	f.clock.Time = mustUTC("2026-09-07T12:00:00Z")
	f.sqlmock.ExpectBegin()
	f.sqlmock.ExpectRollback()

	_, err := f.svc.Complete(context.Background(), teacherClaims(), testBookingID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
	assert.NoError(t, f.sqlmock.ExpectationsWereMet())
}

func TestBookingServiceMarkPaidTx(t *testing.T) {
	f := newBookingFixture(t)
	f.seedBooking(models.BookingStatusConfirmed)

	require.NoError(t, f.svc.MarkPaidTx(context.Background(), nil, testBookingID))
	assert.Equal(t, models.BookingStatusPaid, f.store.items[testBookingID].Status)
	assert.Equal(t, models.BookingPaymentPaid, f.store.items[testBookingID].PaymentStatus)

	// Replayed settlement is a no-op.
	require.NoError(t, f.svc.MarkPaidTx(context.Background(), nil, testBookingID))
	assert.Equal(t, models.BookingStatusPaid, f.store.items[testBookingID].Status)
}

func TestBookingServiceMarkPaidTxRejectsPending(t *testing.T) {
	f := newBookingFixture(t)
	f.seedBooking(models.BookingStatusPending)

	err := f.svc.MarkPaidTx(context.Background(), nil, testBookingID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestBookingServiceApplyRefundTx(t *testing.T) {
	f := newBookingFixture(t)
	f.seedBooking(models.BookingStatusPaid)

	require.NoError(t, f.svc.ApplyRefundTx(context.Background(), nil, testBookingID))
	assert.Equal(t, models.BookingStatusRefunded, f.store.items[testBookingID].Status)
}

func TestBookingServiceApplyRefundTxSkipsCompleted(t *testing.T) {
	f := newBookingFixture(t)
	f.seedBooking(models.BookingStatusCompleted)

	require.NoError(t, f.svc.ApplyRefundTx(context.Background(), nil, testBookingID))
	assert.Equal(t, models.BookingStatusCompleted, f.store.items[testBookingID].Status)
}

func TestBookingServiceGetStripsCredentialsForStudent(t *testing.T) {
	f := newBookingFixture(t)
	booking := f.seedBooking(models.BookingStatusConfirmed)
	meetingID, joinURL, hostURL, password := "mtg-1", "https://j", "https://h", "pw"
	booking.MeetingID = &meetingID
	booking.MeetingJoinURL = &joinURL
	booking.MeetingHostURL = &hostURL
	booking.MeetingPassword = &password

	got, err := f.svc.Get(context.Background(), studentClaims(), testBookingID)
	require.NoError(t, err)
	assert.Nil(t, got.MeetingHostURL)
	assert.Nil(t, got.MeetingPassword)
	// Join URL is withheld until the booking is paid.
	assert.Nil(t, got.MeetingJoinURL)

	f.store.items[testBookingID].PaymentStatus = models.BookingPaymentPaid
	got, err = f.svc.Get(context.Background(), studentClaims(), testBookingID)
	require.NoError(t, err)
	require.NotNil(t, got.MeetingJoinURL)
	assert.Nil(t, got.MeetingHostURL)

	got, err = f.svc.Get(context.Background(), teacherClaims(), testBookingID)
	require.NoError(t, err)
	require.NotNil(t, got.MeetingHostURL)
	require.NotNil(t, got.MeetingPassword)
}

func TestBookingServiceGetDeniesOutsiders(t *testing.T) {
	f := newBookingFixture(t)
	f.seedBooking(models.BookingStatusPending)

	outsider := &models.JWTClaims{UserID: "99999999-9999-9999-9999-999999999999", Role: models.RoleStudent}
	_, err := f.svc.Get(context.Background(), outsider, testBookingID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	admin := &models.JWTClaims{UserID: outsider.UserID, Role: models.RoleAdmin}
	_, err = f.svc.Get(context.Background(), admin, testBookingID)
	assert.NoError(t, err)
}
