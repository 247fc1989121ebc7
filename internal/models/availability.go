package models

import "time"

// AvailabilityRule declares when a teacher may be booked. A rule is either
// recurring (DayOfWeek set, Date nil) or a date-specific override (Date set);
// overrides shadow all recurring rules for that date. StartTime/EndTime are
// teacher-local wall times in "15:04" form.
type AvailabilityRule struct {
	ID        string    `db:"id" json:"id"`
	TeacherID string    `db:"teacher_id" json:"teacher_id"`
	DayOfWeek *int      `db:"day_of_week" json:"day_of_week,omitempty"`
	Date      *string   `db:"date" json:"date,omitempty"`
	StartTime string    `db:"start_time" json:"start_time"`
	EndTime   string    `db:"end_time" json:"end_time"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// IsOverride reports whether the rule targets a specific date.
func (r AvailabilityRule) IsOverride() bool {
	return r.Date != nil
}

// Slot is a concrete bookable interval, half-open [Start, End).
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}
