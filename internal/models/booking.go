package models

import "time"

// BookingStatus is the booking lifecycle state. Transitions are owned
// exclusively by the booking service.
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "PENDING"
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusPaid      BookingStatus = "PAID"
	BookingStatusCompleted BookingStatus = "COMPLETED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
	BookingStatusRefunded  BookingStatus = "REFUNDED"
)

// Terminal reports whether no further transition is possible.
func (s BookingStatus) Terminal() bool {
	switch s {
	case BookingStatusCompleted, BookingStatusCancelled, BookingStatusRefunded:
		return true
	}
	return false
}

// BookingPaymentStatus mirrors the payment side on the booking row for cheap
// listing queries; the payments table remains the source of truth.
type BookingPaymentStatus string

const (
	BookingPaymentUnpaid BookingPaymentStatus = "UNPAID"
	BookingPaymentPaid   BookingPaymentStatus = "PAID"
)

// Booking reserves a teacher's time for a student against a gig. The meeting
// credential quadruple is owned by the booking and bound on first confirm.
type Booking struct {
	ID            string               `db:"id" json:"id"`
	StudentID     string               `db:"student_id" json:"student_id"`
	TeacherID     string               `db:"teacher_id" json:"teacher_id"`
	GigID         string               `db:"gig_id" json:"gig_id"`
	StartTime     time.Time            `db:"start_time" json:"start_time"`
	EndTime       time.Time            `db:"end_time" json:"end_time"`
	Status        BookingStatus        `db:"status" json:"status"`
	PaymentStatus BookingPaymentStatus `db:"payment_status" json:"payment_status"`

	MeetingID       *string `db:"meeting_id" json:"meeting_id,omitempty"`
	MeetingJoinURL  *string `db:"meeting_join_url" json:"meeting_join_url,omitempty"`
	MeetingHostURL  *string `db:"meeting_host_url" json:"meeting_host_url,omitempty"`
	MeetingPassword *string `db:"meeting_password" json:"meeting_password,omitempty"`

	Notes          *string    `db:"notes" json:"notes,omitempty"`
	CancelReason   *string    `db:"cancel_reason" json:"cancel_reason,omitempty"`
	RescheduledTo  *string    `db:"rescheduled_to" json:"rescheduled_to,omitempty"`
	CompletedBy    *string    `db:"completed_by" json:"completed_by,omitempty"`
	CompletedAt    *time.Time `db:"completed_at" json:"completed_at,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// HasMeeting reports whether credentials were already provisioned.
func (b Booking) HasMeeting() bool {
	return b.MeetingJoinURL != nil && *b.MeetingJoinURL != ""
}

// BookingDetail joins display context for listings.
type BookingDetail struct {
	Booking
	StudentName string `db:"student_name" json:"student_name"`
	TeacherName string `db:"teacher_name" json:"teacher_name"`
	GigTitle    string `db:"gig_title" json:"gig_title"`
}

// BookingFilter narrows booking listings.
type BookingFilter struct {
	StudentID string
	TeacherID string
	Status    BookingStatus
	Page      int
	PageSize  int
}
