package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/verbalink/verbalink-api/internal/models"
	"github.com/verbalink/verbalink-api/pkg/clock"
	appErrors "github.com/verbalink/verbalink-api/pkg/errors"
)

type slotTeacherReader interface {
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
}

type slotGigReader interface {
	FindByID(ctx context.Context, id string) (*models.Gig, error)
}

type slotRuleReader interface {
	ListForTeacher(ctx context.Context, teacherID string) ([]models.AvailabilityRule, error)
}

type slotBusyReader interface {
	ListBusyIntervals(ctx context.Context, teacherID string, from, to time.Time, excludeBookingID string) ([]models.Slot, error)
}

// SlotCache is the optional read-through cache for slot listings.
type SlotCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// SlotService derives the bookable slots for a (teacher, date, gig) triple
// from availability rules and existing reservations.
type SlotService struct {
	teachers   slotTeacherReader
	gigs       slotGigReader
	rules      slotRuleReader
	bookings   slotBusyReader
	cache      SlotCache
	clock      clock.Clock
	windowDays int
	minLead    time.Duration
	cacheTTL   time.Duration
	logger     *zap.Logger
}

// NewSlotService constructs SlotService. The cache is optional.
func NewSlotService(teachers slotTeacherReader, gigs slotGigReader, rules slotRuleReader, bookings slotBusyReader, cache SlotCache, clk clock.Clock, windowDays int, minLead, cacheTTL time.Duration, logger *zap.Logger) *SlotService {
	if clk == nil {
		clk = clock.New()
	}
	if windowDays <= 0 {
		windowDays = 90
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SlotService{
		teachers:   teachers,
		gigs:       gigs,
		rules:      rules,
		bookings:   bookings,
		cache:      cache,
		clock:      clk,
		windowDays: windowDays,
		minLead:    minLead,
		cacheTTL:   cacheTTL,
		logger:     logger,
	}
}

// ListSlots returns the ordered, disjoint bookable slots for the teacher's
// gig on the given date (formatted 2006-01-02, interpreted in the teacher's
// timezone). Results are cached briefly; every booking mutation invalidates.
func (s *SlotService) ListSlots(ctx context.Context, teacherID, gigID, date string) ([]models.Slot, error) {
	cacheKey := fmt.Sprintf("slots:%s:%s:%s", teacherID, gigID, date)
	if s.cache != nil {
		var cached []models.Slot
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return cached, nil
		}
	}

	slots, err := s.Compute(ctx, teacherID, gigID, date)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, slots, s.cacheTTL); err != nil {
			s.logger.Warn("slot cache set failed", zap.Error(err))
		}
	}
	return slots, nil
}

// Compute derives slots without consulting the cache. The booking service
// uses it directly when validating a creation request.
func (s *SlotService) Compute(ctx context.Context, teacherID, gigID, date string) ([]models.Slot, error) {
	return s.compute(ctx, teacherID, gigID, date, "")
}

// compute optionally ignores one booking's interval, so a reschedule can
// move into the time its own original occupies.
func (s *SlotService) compute(ctx context.Context, teacherID, gigID, date, excludeBookingID string) ([]models.Slot, error) {
	teacher, err := s.teachers.FindByID(ctx, teacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	gig, err := s.gigs.FindByID(ctx, gigID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "gig not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load gig")
	}
	if gig.TeacherID != teacher.ID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "gig does not belong to teacher")
	}
	if !gig.Active {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "gig is not active")
	}

	loc, err := time.LoadLocation(teacher.Timezone)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "teacher has an invalid timezone")
	}

	day, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date must be formatted YYYY-MM-DD")
	}

	now := s.clock.Now()
	today := time.Date(now.In(loc).Year(), now.In(loc).Month(), now.In(loc).Day(), 0, 0, 0, 0, loc)
	if day.Before(today) || day.After(today.AddDate(0, 0, s.windowDays)) {
		return nil, appErrors.Clone(appErrors.ErrDateOutOfWindow,
			fmt.Sprintf("date must fall within the next %d days", s.windowDays))
	}

	rules, err := s.rules.ListForTeacher(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load availability")
	}
	windows := applicableWindows(rules, day, loc)
	if len(windows) == 0 {
		return []models.Slot{}, nil
	}

	dayStart := day
	dayEnd := day.AddDate(0, 0, 1)
	busy, err := s.bookings.ListBusyIntervals(ctx, teacherID, dayStart.UTC(), dayEnd.UTC(), excludeBookingID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reservations")
	}

	duration := gig.SessionDuration()
	earliest := now.Add(s.minLead)

	slots := make([]models.Slot, 0, 16)
	for _, window := range windows {
		for _, free := range subtractBusy(window, busy) {
			// Slots align to the free interval's start; a trailing residue
			// shorter than the session is discarded.
			for cur := free.Start; !cur.Add(duration).After(free.End); cur = cur.Add(duration) {
				if cur.Before(earliest) {
					continue
				}
				slots = append(slots, models.Slot{Start: cur, End: cur.Add(duration)})
			}
		}
	}

	sort.Slice(slots, func(i, j int) bool { return slots[i].Start.Before(slots[j].Start) })
	return slots, nil
}

// IsBookable reports whether the exact start instant is one of the slots the
// engine would list for that teacher-local date. A non-empty excludeBookingID
// removes that booking's interval from the busy set.
func (s *SlotService) IsBookable(ctx context.Context, teacherID, gigID string, start time.Time, excludeBookingID string) (bool, error) {
	teacher, err := s.teachers.FindByID(ctx, teacherID)
	if err != nil {
		return false, err
	}
	loc, err := time.LoadLocation(teacher.Timezone)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "teacher has an invalid timezone")
	}
	date := start.In(loc).Format("2006-01-02")

	slots, err := s.compute(ctx, teacherID, gigID, date, excludeBookingID)
	if err != nil {
		return false, err
	}
	for _, slot := range slots {
		if slot.Start.Equal(start) {
			return true, nil
		}
	}
	return false, nil
}

// InvalidateTeacher drops cached slot listings after a booking mutation.
func (s *SlotService) InvalidateTeacher(ctx context.Context, teacherID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, fmt.Sprintf("slots:%s:*", teacherID)); err != nil {
		s.logger.Warn("slot cache invalidation failed", zap.String("teacher_id", teacherID), zap.Error(err))
	}
}

// applicableWindows projects the rules that govern the day onto UTC
// intervals. Date-specific overrides shadow all recurring rules.
func applicableWindows(rules []models.AvailabilityRule, day time.Time, loc *time.Location) []models.Slot {
	date := day.Format("2006-01-02")
	weekday := int(day.Weekday())

	var overrides, recurring []models.AvailabilityRule
	for _, rule := range rules {
		if rule.IsOverride() {
			if *rule.Date == date {
				overrides = append(overrides, rule)
			}
			continue
		}
		if rule.DayOfWeek != nil && *rule.DayOfWeek == weekday {
			recurring = append(recurring, rule)
		}
	}

	selected := recurring
	if len(overrides) > 0 {
		selected = overrides
	}

	windows := make([]models.Slot, 0, len(selected))
	for _, rule := range selected {
		start, okStart := projectWallTime(rule.StartTime, day, loc)
		end, okEnd := projectWallTime(rule.EndTime, day, loc)
		if !okStart || !okEnd || !end.After(start) {
			continue
		}
		windows = append(windows, models.Slot{Start: start, End: end})
	}
	sort.Slice(windows, func(i, j int) bool { return windows[i].Start.Before(windows[j].Start) })
	return windows
}

func projectWallTime(hm string, day time.Time, loc *time.Location) (time.Time, bool) {
	t, err := time.Parse("15:04", hm)
	if err != nil {
		return time.Time{}, false
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, loc).UTC(), true
}

// subtractBusy carves the busy intervals out of the window, returning the
// remaining free intervals in order. All intervals are half-open, so a
// booking ending at T does not consume a slot starting at T.
func subtractBusy(window models.Slot, busy []models.Slot) []models.Slot {
	free := []models.Slot{window}
	for _, b := range busy {
		next := free[:0:0]
		for _, f := range free {
			if !b.Start.Before(f.End) || !b.End.After(f.Start) {
				next = append(next, f)
				continue
			}
			if b.Start.After(f.Start) {
				next = append(next, models.Slot{Start: f.Start, End: b.Start})
			}
			if b.End.Before(f.End) {
				next = append(next, models.Slot{Start: b.End, End: f.End})
			}
		}
		free = next
	}
	return free
}
