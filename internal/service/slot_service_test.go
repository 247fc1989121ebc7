package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/verbalink/verbalink-api/internal/models"
	"github.com/verbalink/verbalink-api/pkg/clock"
	appErrors "github.com/verbalink/verbalink-api/pkg/errors"
)

type slotTeacherStub struct {
	items map[string]*models.Teacher
}

func (s slotTeacherStub) FindByID(ctx context.Context, id string) (*models.Teacher, error) {
	if t, ok := s.items[id]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

type slotGigStub struct {
	items map[string]*models.Gig
}

func (s slotGigStub) FindByID(ctx context.Context, id string) (*models.Gig, error) {
	if g, ok := s.items[id]; ok {
		cp := *g
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

type slotRuleStub struct {
	rules []models.AvailabilityRule
}

func (s slotRuleStub) ListForTeacher(ctx context.Context, teacherID string) ([]models.AvailabilityRule, error) {
	return s.rules, nil
}

type slotBusyStub struct {
	busy        []models.Slot
	busyIDs     []string
	lastExclude string
}

func (s *slotBusyStub) ListBusyIntervals(ctx context.Context, teacherID string, from, to time.Time, excludeBookingID string) ([]models.Slot, error) {
	s.lastExclude = excludeBookingID
	if excludeBookingID == "" {
		return s.busy, nil
	}
	out := make([]models.Slot, 0, len(s.busy))
	for i, slot := range s.busy {
		if i < len(s.busyIDs) && s.busyIDs[i] == excludeBookingID {
			continue
		}
		out = append(out, slot)
	}
	return out, nil
}

type slotCacheStub struct {
	store map[string][]models.Slot
	sets  int
}

func (s *slotCacheStub) Get(ctx context.Context, key string, dest interface{}) error {
	cached, ok := s.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	*(dest.(*[]models.Slot)) = cached
	return nil
}

func (s *slotCacheStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if s.store == nil {
		s.store = make(map[string][]models.Slot)
	}
	s.store[key] = value.([]models.Slot)
	s.sets++
	return nil
}

func (s *slotCacheStub) DeleteByPattern(ctx context.Context, pattern string) error {
	s.store = nil
	return nil
}

type slotFixture struct {
	teachers slotTeacherStub
	gigs     slotGigStub
	rules    *slotRuleStub
	busy     *slotBusyStub
	cache    *slotCacheStub
	clock    *clock.Fixed
}

func intPtr(v int) *int          { return &v }
func strPtr(v string) *string    { return &v }
func mustUTC(v string) time.Time { t, _ := time.Parse(time.RFC3339, v); return t.UTC() }

func newSlotFixture(tz string, now time.Time) *slotFixture {
	return &slotFixture{
		teachers: slotTeacherStub{items: map[string]*models.Teacher{
			"teacher-1": {ID: "teacher-1", DisplayName: "Aiko", Timezone: tz},
		}},
		gigs: slotGigStub{items: map[string]*models.Gig{
			"gig-1": {ID: "gig-1", TeacherID: "teacher-1", Title: "Japanese Conversation", PricePerSessionCents: 5000, SessionDurationMinutes: 60, Currency: "USD", Active: true},
		}},
		rules: &slotRuleStub{},
		busy:  &slotBusyStub{},
		clock: clock.NewFixed(now),
	}
}

func (f *slotFixture) service() *SlotService {
	var cache SlotCache
	if f.cache != nil {
		cache = f.cache
	}
	return NewSlotService(f.teachers, f.gigs, f.rules, f.busy, cache, f.clock, 90, 15*time.Minute, 30*time.Second, zap.NewNop())
}

func TestSlotServiceListsRecurringWindow(t *testing.T) {
	f := newSlotFixture("UTC", mustUTC("2026-09-01T00:00:00Z"))
	f.rules.rules = []models.AvailabilityRule{
		{TeacherID: "teacher-1", DayOfWeek: intPtr(1), StartTime: "09:00", EndTime: "17:00"},
	}

	slots, err := f.service().ListSlots(context.Background(), "teacher-1", "gig-1", "2026-09-07")
	require.NoError(t, err)
	require.Len(t, slots, 8)
	assert.Equal(t, mustUTC("2026-09-07T09:00:00Z"), slots[0].Start)
	assert.Equal(t, mustUTC("2026-09-07T10:00:00Z"), slots[0].End)
	assert.Equal(t, mustUTC("2026-09-07T16:00:00Z"), slots[7].Start)
}

func TestSlotServiceSubtractsBusyIntervals(t *testing.T) {
	f := newSlotFixture("UTC", mustUTC("2026-09-01T00:00:00Z"))
	f.rules.rules = []models.AvailabilityRule{
		{TeacherID: "teacher-1", DayOfWeek: intPtr(1), StartTime: "09:00", EndTime: "13:00"},
	}
	f.busy.busy = []models.Slot{
		{Start: mustUTC("2026-09-07T10:00:00Z"), End: mustUTC("2026-09-07T11:00:00Z")},
	}

	slots, err := f.service().ListSlots(context.Background(), "teacher-1", "gig-1", "2026-09-07")
	require.NoError(t, err)
	require.Len(t, slots, 3)
	// A booking ending at 11:00 does not consume the 11:00 slot.
	assert.Equal(t, mustUTC("2026-09-07T09:00:00Z"), slots[0].Start)
	assert.Equal(t, mustUTC("2026-09-07T11:00:00Z"), slots[1].Start)
	assert.Equal(t, mustUTC("2026-09-07T12:00:00Z"), slots[2].Start)
}

func TestSlotServiceDiscardsShortResidue(t *testing.T) {
	f := newSlotFixture("UTC", mustUTC("2026-09-01T00:00:00Z"))
	f.rules.rules = []models.AvailabilityRule{
		{TeacherID: "teacher-1", DayOfWeek: intPtr(1), StartTime: "09:00", EndTime: "10:30"},
	}

	slots, err := f.service().ListSlots(context.Background(), "teacher-1", "gig-1", "2026-09-07")
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, mustUTC("2026-09-07T09:00:00Z"), slots[0].Start)
}

func TestSlotServiceOverrideShadowsRecurring(t *testing.T) {
	f := newSlotFixture("UTC", mustUTC("2026-09-01T00:00:00Z"))
	f.rules.rules = []models.AvailabilityRule{
		{TeacherID: "teacher-1", DayOfWeek: intPtr(1), StartTime: "09:00", EndTime: "17:00"},
		{TeacherID: "teacher-1", Date: strPtr("2026-09-07"), StartTime: "13:00", EndTime: "15:00"},
	}

	slots, err := f.service().ListSlots(context.Background(), "teacher-1", "gig-1", "2026-09-07")
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, mustUTC("2026-09-07T13:00:00Z"), slots[0].Start)
	assert.Equal(t, mustUTC("2026-09-07T14:00:00Z"), slots[1].Start)
}

func TestSlotServiceProjectsTimezoneAcrossDST(t *testing.T) {
	f := newSlotFixture("America/New_York", mustUTC("2027-03-01T00:00:00Z"))
	f.rules.rules = []models.AvailabilityRule{
		{TeacherID: "teacher-1", DayOfWeek: intPtr(0), StartTime: "09:00", EndTime: "11:00"},
	}
	svc := f.service()

	// Standard time: 09:00 EST is 14:00 UTC.
	slots, err := svc.ListSlots(context.Background(), "teacher-1", "gig-1", "2027-03-07")
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, mustUTC("2027-03-07T14:00:00Z"), slots[0].Start)

	// After the spring-forward on March 14: 09:00 EDT is 13:00 UTC, and the
	// slot keeps its full wall-clock length.
	slots, err = svc.ListSlots(context.Background(), "teacher-1", "gig-1", "2027-03-14")
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, mustUTC("2027-03-14T13:00:00Z"), slots[0].Start)
	assert.Equal(t, mustUTC("2027-03-14T14:00:00Z"), slots[0].End)
}

func TestSlotServiceRejectsDatesOutsideWindow(t *testing.T) {
	f := newSlotFixture("UTC", mustUTC("2026-09-01T00:00:00Z"))
	f.rules.rules = []models.AvailabilityRule{
		{TeacherID: "teacher-1", DayOfWeek: intPtr(1), StartTime: "09:00", EndTime: "17:00"},
	}
	svc := f.service()

	_, err := svc.ListSlots(context.Background(), "teacher-1", "gig-1", "2027-01-05")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDateOutOfWindow.Code, appErrors.FromError(err).Code)

	_, err = svc.ListSlots(context.Background(), "teacher-1", "gig-1", "2026-08-31")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDateOutOfWindow.Code, appErrors.FromError(err).Code)
}

func TestSlotServiceHidesSlotsInsideLeadTime(t *testing.T) {
	f := newSlotFixture("UTC", mustUTC("2026-09-07T10:50:00Z"))
	f.rules.rules = []models.AvailabilityRule{
		{TeacherID: "teacher-1", DayOfWeek: intPtr(1), StartTime: "09:00", EndTime: "13:00"},
	}

	slots, err := f.service().ListSlots(context.Background(), "teacher-1", "gig-1", "2026-09-07")
	require.NoError(t, err)
	// 09:00 and 10:00 are in the past and 11:00 starts inside the 15 minute
	// lead window, leaving only 12:00.
	require.Len(t, slots, 1)
	assert.Equal(t, mustUTC("2026-09-07T12:00:00Z"), slots[0].Start)
}

func TestSlotServiceUnknownTeacherAndGig(t *testing.T) {
	f := newSlotFixture("UTC", mustUTC("2026-09-01T00:00:00Z"))
	svc := f.service()

	_, err := svc.ListSlots(context.Background(), "nobody", "gig-1", "2026-09-07")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	_, err = svc.ListSlots(context.Background(), "teacher-1", "missing-gig", "2026-09-07")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestSlotServiceIsBookable(t *testing.T) {
	f := newSlotFixture("UTC", mustUTC("2026-09-01T00:00:00Z"))
	f.rules.rules = []models.AvailabilityRule{
		{TeacherID: "teacher-1", DayOfWeek: intPtr(1), StartTime: "09:00", EndTime: "17:00"},
	}
	svc := f.service()

	ok, err := svc.IsBookable(context.Background(), "teacher-1", "gig-1", mustUTC("2026-09-07T10:00:00Z"), "")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.IsBookable(context.Background(), "teacher-1", "gig-1", mustUTC("2026-09-07T10:30:00Z"), "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSlotServiceIsBookableExcludesOwnBooking(t *testing.T) {
	f := newSlotFixture("UTC", mustUTC("2026-09-01T00:00:00Z"))
	f.rules.rules = []models.AvailabilityRule{
		{TeacherID: "teacher-1", DayOfWeek: intPtr(1), StartTime: "09:00", EndTime: "12:00"},
	}
	f.busy.busy = []models.Slot{
		{Start: mustUTC("2026-09-07T10:00:00Z"), End: mustUTC("2026-09-07T11:00:00Z")},
	}
	f.busy.busyIDs = []string{"booking-1"}
	svc := f.service()

	// Occupied by booking-1, so anyone else is turned away.
	ok, err := svc.IsBookable(context.Background(), "teacher-1", "gig-1", mustUTC("2026-09-07T10:00:00Z"), "")
	require.NoError(t, err)
	assert.False(t, ok)

	// Rescheduling booking-1 onto its own interval is allowed.
	ok, err = svc.IsBookable(context.Background(), "teacher-1", "gig-1", mustUTC("2026-09-07T10:00:00Z"), "booking-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "booking-1", f.busy.lastExclude)

	// Another booking's interval still blocks.
	ok, err = svc.IsBookable(context.Background(), "teacher-1", "gig-1", mustUTC("2026-09-07T10:00:00Z"), "booking-2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSlotServiceServesFromCache(t *testing.T) {
	f := newSlotFixture("UTC", mustUTC("2026-09-01T00:00:00Z"))
	f.cache = &slotCacheStub{}
	f.rules.rules = []models.AvailabilityRule{
		{TeacherID: "teacher-1", DayOfWeek: intPtr(1), StartTime: "09:00", EndTime: "11:00"},
	}
	svc := f.service()

	first, err := svc.ListSlots(context.Background(), "teacher-1", "gig-1", "2026-09-07")
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, 1, f.cache.sets)

	// A stale cache serves until invalidated by a booking mutation.
	f.rules.rules = nil
	cached, err := svc.ListSlots(context.Background(), "teacher-1", "gig-1", "2026-09-07")
	require.NoError(t, err)
	assert.Len(t, cached, 2)

	svc.InvalidateTeacher(context.Background(), "teacher-1")
	fresh, err := svc.ListSlots(context.Background(), "teacher-1", "gig-1", "2026-09-07")
	require.NoError(t, err)
	assert.Empty(t, fresh)
}
