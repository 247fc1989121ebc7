package models

import "time"

// TeacherStatus gates whether a teacher is bookable.
type TeacherStatus string

const (
	TeacherStatusActive    TeacherStatus = "ACTIVE"
	TeacherStatusSuspended TeacherStatus = "SUSPENDED"
)

// Teacher is a tutor offering gigs. Timezone is the IANA zone all of the
// teacher's availability rule times are expressed in.
type Teacher struct {
	ID             string        `db:"id" json:"id"`
	DisplayName    string        `db:"display_name" json:"display_name"`
	Timezone       string        `db:"timezone" json:"timezone"`
	HourlyRateCents int64        `db:"hourly_rate_cents" json:"hourly_rate_cents"`
	BalanceCents   int64         `db:"balance_cents" json:"-"`
	Status         TeacherStatus `db:"status" json:"status"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
}

// Student is a learner who books sessions.
type Student struct {
	ID          string    `db:"id" json:"id"`
	DisplayName string    `db:"display_name" json:"display_name"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// EarningsEntry is one completed booking's contribution to a teacher's balance.
type EarningsEntry struct {
	BookingID    string    `db:"booking_id" json:"booking_id"`
	GigTitle     string    `db:"gig_title" json:"gig_title"`
	CompletedAt  time.Time `db:"completed_at" json:"completed_at"`
	AmountCents  int64     `db:"amount_cents" json:"amount_cents"`
	FeeCents     int64     `db:"fee_cents" json:"fee_cents"`
	NetCents     int64     `db:"net_cents" json:"net_cents"`
	Currency     string    `db:"currency" json:"currency"`
}
