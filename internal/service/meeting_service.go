package service

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/verbalink/verbalink-api/internal/clients/zoom"
	"github.com/verbalink/verbalink-api/internal/models"
	appErrors "github.com/verbalink/verbalink-api/pkg/errors"
)

// requestKeyNamespace seeds the deterministic per-booking provisioning key.
// Changing it would orphan any meeting created under the old keys.
var requestKeyNamespace = uuid.MustParse("8f2f9b1c-5d3a-4e6b-9c7d-2a1b0e4f6c8d")

type videoProvider interface {
	CreateMeeting(ctx context.Context, in zoom.CreateMeetingInput) (*zoom.Meeting, error)
	FindMeetingByRequestKey(ctx context.Context, requestKey string) (*zoom.Meeting, error)
	DeleteMeeting(ctx context.Context, meetingID string) error
}

// MeetingService provisions video rooms for confirmed bookings. Provisioning
// is idempotent per booking: the request key sent to the provider is derived
// from the booking ID, so a create that timed out after succeeding is found
// again instead of duplicated.
type MeetingService struct {
	provider    videoProvider
	callTimeout time.Duration
	maxAttempts int
	backoffBase time.Duration
	sleep       func(time.Duration)
	logger      *zap.Logger
}

// NewMeetingService constructs MeetingService.
func NewMeetingService(provider videoProvider, callTimeout time.Duration, logger *zap.Logger) *MeetingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MeetingService{
		provider:    provider,
		callTimeout: callTimeout,
		maxAttempts: 3,
		backoffBase: 500 * time.Millisecond,
		sleep:       time.Sleep,
		logger:      logger,
	}
}

// RequestKey returns the stable provisioning key for a booking.
func RequestKey(bookingID string) string {
	return uuid.NewSHA1(requestKeyNamespace, []byte(bookingID)).String()
}

// Provision obtains meeting credentials for the booking, reconciling with
// any earlier attempt before creating. Transient provider failures are
// retried with jittered exponential backoff; exhaustion or a permanent
// failure surfaces as a provisioning-unavailable error and the booking is
// left untouched by the caller.
func (s *MeetingService) Provision(ctx context.Context, booking *models.Booking, gig *models.Gig, teacherName string) (*zoom.Meeting, error) {
	key := RequestKey(booking.ID)
	topic := fmt.Sprintf("%s with %s", gig.Title, teacherName)

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if attempt > 1 {
			s.sleep(s.backoff(attempt - 1))
		}

		callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
		meeting, err := s.provider.FindMeetingByRequestKey(callCtx, key)
		if err == nil && meeting != nil {
			cancel()
			s.logger.Info("meeting reconciled from earlier attempt",
				zap.String("booking_id", booking.ID), zap.String("meeting_id", meeting.ID))
			return meeting, nil
		}
		if err != nil {
			cancel()
			lastErr = err
			if !zoom.Transient(err) {
				break
			}
			continue
		}

		meeting, err = s.provider.CreateMeeting(callCtx, zoom.CreateMeetingInput{
			Topic:           topic,
			StartTime:       booking.StartTime,
			DurationMinutes: gig.SessionDurationMinutes,
			RequestKey:      key,
		})
		cancel()
		if err == nil {
			return meeting, nil
		}
		lastErr = err
		if !zoom.Transient(err) {
			break
		}
		s.logger.Warn("meeting create failed, will retry",
			zap.String("booking_id", booking.ID), zap.Int("attempt", attempt), zap.Error(err))
	}

	s.logger.Error("meeting provisioning failed",
		zap.String("booking_id", booking.ID), zap.Error(lastErr))
	return nil, appErrors.Wrap(lastErr, appErrors.ErrMeetingUnavailable.Code,
		appErrors.ErrMeetingUnavailable.Status, appErrors.ErrMeetingUnavailable.Message)
}

// Teardown removes the provisioned room for a booking that no longer
// needs it. The cancellation has already committed, so failures are
// logged rather than surfaced.
func (s *MeetingService) Teardown(ctx context.Context, booking *models.Booking) {
	if booking == nil || !booking.HasMeeting() || booking.MeetingID == nil {
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	if err := s.provider.DeleteMeeting(callCtx, *booking.MeetingID); err != nil {
		s.logger.Warn("meeting teardown failed",
			zap.String("booking_id", booking.ID), zap.String("meeting_id", *booking.MeetingID), zap.Error(err))
	}
}

// backoff returns base*2^(n-1) with ±20% jitter.
func (s *MeetingService) backoff(n int) time.Duration {
	d := s.backoffBase << (n - 1)
	jitter := 0.8 + 0.4*rand.Float64()
	return time.Duration(float64(d) * jitter)
}
