package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/verbalink/verbalink-api/internal/models"
	"github.com/verbalink/verbalink-api/pkg/clock"
	appErrors "github.com/verbalink/verbalink-api/pkg/errors"
	"github.com/verbalink/verbalink-api/pkg/export"
	"github.com/verbalink/verbalink-api/pkg/money"
)

type teacherReader interface {
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
	ListEarnings(ctx context.Context, teacherID string) ([]models.EarningsEntry, error)
}

type availabilityStore interface {
	ListForTeacher(ctx context.Context, teacherID string) ([]models.AvailabilityRule, error)
	ReplaceForTeacher(ctx context.Context, teacherID string, rules []models.AvailabilityRule) error
}

// TeacherService covers the teacher-facing surface: availability management
// and the earnings ledger.
type TeacherService struct {
	teachers teacherReader
	rules    availabilityStore
	slots    interface {
		InvalidateTeacher(ctx context.Context, teacherID string)
	}
	clock    clock.Clock
	validate *validator.Validate
	logger   *zap.Logger
}

// NewTeacherService constructs TeacherService.
func NewTeacherService(teachers teacherReader, rules availabilityStore, slots *SlotService, clk clock.Clock, validate *validator.Validate, logger *zap.Logger) *TeacherService {
	if clk == nil {
		clk = clock.New()
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &TeacherService{
		teachers: teachers,
		rules:    rules,
		clock:    clk,
		validate: validate,
		logger:   logger,
	}
	if slots != nil {
		svc.slots = slots
	}
	return svc
}

// AvailabilityRuleInput is one declared window.
type AvailabilityRuleInput struct {
	DayOfWeek *int    `json:"day_of_week" validate:"omitempty,min=0,max=6"`
	Date      *string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	StartTime string  `json:"start_time" validate:"required,datetime=15:04"`
	EndTime   string  `json:"end_time" validate:"required,datetime=15:04"`
}

// ReplaceAvailability swaps the teacher's full rule set. Each rule must be
// either recurring or a date override, end after start, and no two rules for
// the same day or date may overlap.
func (s *TeacherService) ReplaceAvailability(ctx context.Context, claims *models.JWTClaims, inputs []AvailabilityRuleInput) ([]models.AvailabilityRule, error) {
	rules := make([]models.AvailabilityRule, 0, len(inputs))
	for i, in := range inputs {
		if err := s.validate.Struct(in); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status,
				fmt.Sprintf("rule %d is invalid", i))
		}
		if (in.DayOfWeek == nil) == (in.Date == nil) {
			return nil, appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("rule %d must set exactly one of day_of_week and date", i))
		}
		if in.EndTime <= in.StartTime {
			return nil, appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("rule %d must end after it starts", i))
		}
		rules = append(rules, models.AvailabilityRule{
			ID:        s.clock.NewID(),
			TeacherID: claims.UserID,
			DayOfWeek: in.DayOfWeek,
			Date:      in.Date,
			StartTime: in.StartTime,
			EndTime:   in.EndTime,
		})
	}
	if err := checkRuleOverlaps(rules); err != nil {
		return nil, err
	}

	if err := s.rules.ReplaceForTeacher(ctx, claims.UserID, rules); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store availability")
	}
	if s.slots != nil {
		s.slots.InvalidateTeacher(ctx, claims.UserID)
	}
	s.logger.Info("availability replaced",
		zap.String("teacher_id", claims.UserID), zap.Int("rules", len(rules)))
	return rules, nil
}

// ListAvailability returns the teacher's declared rules.
func (s *TeacherService) ListAvailability(ctx context.Context, teacherID string) ([]models.AvailabilityRule, error) {
	rules, err := s.rules.ListForTeacher(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load availability")
	}
	return rules, nil
}

// EarningsStatement is the teacher's balance plus its history.
type EarningsStatement struct {
	BalanceCents int64                  `json:"balance_cents"`
	Currency     string                 `json:"currency"`
	Entries      []models.EarningsEntry `json:"entries"`
}

// GetEarnings returns the teacher's running balance and per-session history.
func (s *TeacherService) GetEarnings(ctx context.Context, claims *models.JWTClaims) (*EarningsStatement, error) {
	teacher, err := s.teachers.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	entries, err := s.teachers.ListEarnings(ctx, claims.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load earnings")
	}
	return &EarningsStatement{
		BalanceCents: teacher.BalanceCents,
		Currency:     money.DefaultCurrency,
		Entries:      entries,
	}, nil
}

// ExportEarningsCSV renders the earnings statement as CSV.
func (s *TeacherService) ExportEarningsCSV(ctx context.Context, claims *models.JWTClaims) ([]byte, error) {
	statement, err := s.GetEarnings(ctx, claims)
	if err != nil {
		return nil, err
	}
	rows := make([]map[string]string, 0, len(statement.Entries))
	for _, e := range statement.Entries {
		rows = append(rows, map[string]string{
			"booking_id":   e.BookingID,
			"gig":          e.GigTitle,
			"completed_at": e.CompletedAt.Format(time.RFC3339),
			"amount":       money.Format(e.AmountCents, e.Currency),
			"fee":          money.Format(e.FeeCents, e.Currency),
			"net":          money.Format(e.NetCents, e.Currency),
		})
	}
	return export.RenderCSV(export.Dataset{
		Headers: []string{"booking_id", "gig", "completed_at", "amount", "fee", "net"},
		Rows:    rows,
	})
}

// checkRuleOverlaps rejects rule sets where two windows for the same
// recurrence target overlap. Wall-time strings compare lexicographically.
func checkRuleOverlaps(rules []models.AvailabilityRule) error {
	for i := 0; i < len(rules); i++ {
		for j := i + 1; j < len(rules); j++ {
			a, b := rules[i], rules[j]
			sameDay := a.DayOfWeek != nil && b.DayOfWeek != nil && *a.DayOfWeek == *b.DayOfWeek
			sameDate := a.Date != nil && b.Date != nil && *a.Date == *b.Date
			if !sameDay && !sameDate {
				continue
			}
			if a.StartTime < b.EndTime && b.StartTime < a.EndTime {
				return appErrors.Clone(appErrors.ErrValidation,
					fmt.Sprintf("rules %d and %d overlap", i, j))
			}
		}
	}
	return nil
}
