package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/verbalink/verbalink-api/internal/models"
)

// AvailabilityRepository handles persistence of availability rules.
type AvailabilityRepository struct {
	db *sqlx.DB
}

// NewAvailabilityRepository constructs the repository.
func NewAvailabilityRepository(db *sqlx.DB) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

// ListForTeacher returns all of a teacher's rules, recurring and overrides.
func (r *AvailabilityRepository) ListForTeacher(ctx context.Context, teacherID string) ([]models.AvailabilityRule, error) {
	const query = `SELECT id, teacher_id, day_of_week, date, start_time, end_time, created_at
        FROM availability_rules
        WHERE teacher_id = $1
        ORDER BY day_of_week NULLS LAST, date NULLS LAST, start_time`
	var rules []models.AvailabilityRule
	if err := r.db.SelectContext(ctx, &rules, query, teacherID); err != nil {
		return nil, fmt.Errorf("list availability rules: %w", err)
	}
	return rules, nil
}

// ReplaceForTeacher swaps a teacher's full rule set atomically.
func (r *AvailabilityRepository) ReplaceForTeacher(ctx context.Context, teacherID string, rules []models.AvailabilityRule) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace availability: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM availability_rules WHERE teacher_id = $1`, teacherID); err != nil {
		return fmt.Errorf("clear availability rules: %w", err)
	}

	const insert = `INSERT INTO availability_rules (id, teacher_id, day_of_week, date, start_time, end_time)
        VALUES ($1, $2, $3, $4, $5, $6)`
	for _, rule := range rules {
		if _, err := tx.ExecContext(ctx, insert,
			rule.ID, teacherID, rule.DayOfWeek, rule.Date, rule.StartTime, rule.EndTime); err != nil {
			return fmt.Errorf("insert availability rule: %w", err)
		}
	}

	return tx.Commit()
}
