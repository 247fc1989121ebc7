package models

import "time"

// Gig is a teacher's published offering: what is taught, for how long, at
// what price per session.
type Gig struct {
	ID                     string    `db:"id" json:"id"`
	TeacherID              string    `db:"teacher_id" json:"teacher_id"`
	Title                  string    `db:"title" json:"title"`
	Category               string    `db:"category" json:"category"`
	PricePerSessionCents   int64     `db:"price_per_session_cents" json:"price_per_session_cents"`
	SessionDurationMinutes int       `db:"session_duration_minutes" json:"session_duration_minutes"`
	Currency               string    `db:"currency" json:"currency"`
	Active                 bool      `db:"active" json:"active"`
	CreatedAt              time.Time `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time `db:"updated_at" json:"updated_at"`
}

// SessionDuration returns the gig length as a duration.
func (g Gig) SessionDuration() time.Duration {
	return time.Duration(g.SessionDurationMinutes) * time.Minute
}
