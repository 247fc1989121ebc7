package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	stripeapi "github.com/stripe/stripe-go/v76"
	"go.uber.org/zap"

	"github.com/verbalink/verbalink-api/internal/clients/notifier"
	stripeclient "github.com/verbalink/verbalink-api/internal/clients/stripe"
	"github.com/verbalink/verbalink-api/internal/models"
	"github.com/verbalink/verbalink-api/pkg/clock"
	appErrors "github.com/verbalink/verbalink-api/pkg/errors"
	"github.com/verbalink/verbalink-api/pkg/export"
	"github.com/verbalink/verbalink-api/pkg/money"
)

type paymentStore interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
	Create(ctx context.Context, payment *models.Payment) error
	FindByID(ctx context.Context, id string) (*models.Payment, error)
	FindByBookingID(ctx context.Context, bookingID string) (*models.Payment, error)
	FindByIntentIDForUpdate(ctx context.Context, ext sqlx.ExtContext, intentID string) (*models.Payment, error)
	UpdateStatus(ctx context.Context, ext sqlx.ExtContext, id string, status models.PaymentStatus) error
	ReplaceIntent(ctx context.Context, id, intentID string, status models.PaymentStatus) error
	RecordRefund(ctx context.Context, ext sqlx.ExtContext, id string, refundedCents int64, status models.PaymentStatus) error
	SaveMethod(ctx context.Context, method *models.PaymentMethod) error
	FindMethod(ctx context.Context, id, studentID string) (*models.PaymentMethod, error)
	ListMethodsByStudent(ctx context.Context, studentID string) ([]models.PaymentMethod, error)
}

type refundStore interface {
	Create(ctx context.Context, request *models.RefundRequest) error
	FindByID(ctx context.Context, id string) (*models.RefundRequest, error)
	FindByIDForUpdate(ctx context.Context, ext sqlx.ExtContext, id string) (*models.RefundRequest, error)
	ExistsOpenForPayment(ctx context.Context, paymentID string) (bool, error)
	Resolve(ctx context.Context, ext sqlx.ExtContext, id string, status models.RefundStatus, approvedCents *int64, resolvedBy string, adminNotes *string) error
	MarkProcessed(ctx context.Context, ext sqlx.ExtContext, id, cpRefundID string) error
	MarkFailed(ctx context.Context, id string) error
}

type bookingMachine interface {
	MarkPaidTx(ctx context.Context, ext sqlx.ExtContext, bookingID string) error
	ApplyRefundTx(ctx context.Context, ext sqlx.ExtContext, bookingID string) error
}

type paymentBookingReader interface {
	FindByID(ctx context.Context, id string) (*models.Booking, error)
}

type paymentPartyReader interface {
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
	FindStudentByID(ctx context.Context, id string) (*models.Student, error)
}

type cardProcessor interface {
	CreatePaymentIntent(ctx context.Context, in stripeclient.CreateIntentInput) (*stripeclient.Intent, error)
	RetrievePaymentIntent(ctx context.Context, intentID string) (*stripeclient.Intent, error)
	CreateRefund(ctx context.Context, intentID string, amountCents int64) (*stripeclient.Refund, error)
	VerifyWebhook(payload []byte, signatureHeader string) (*stripeapi.Event, error)
}

// PaymentService orchestrates charges and refunds against the card
// processor. Webhooks are the source of truth for charge outcomes; every
// status write re-reads the payment row FOR UPDATE so replayed or
// out-of-order events settle on the same final state.
type PaymentService struct {
	payments paymentStore
	refunds  refundStore
	bookings paymentBookingReader
	machine  bookingMachine
	gigs     bookingGigReader
	parties  paymentPartyReader
	cp       cardProcessor
	notify   notificationSender
	clock    clock.Clock
	feeBPS   int
	validate *validator.Validate
	logger   *zap.Logger
}

// NewPaymentService constructs PaymentService. notify may be nil.
func NewPaymentService(
	payments paymentStore,
	refunds refundStore,
	bookings paymentBookingReader,
	machine bookingMachine,
	gigs bookingGigReader,
	parties paymentPartyReader,
	cp cardProcessor,
	notify notificationSender,
	clk clock.Clock,
	feeBPS int,
	validate *validator.Validate,
	logger *zap.Logger,
) *PaymentService {
	if clk == nil {
		clk = clock.New()
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{
		payments: payments,
		refunds:  refunds,
		bookings: bookings,
		machine:  machine,
		gigs:     gigs,
		parties:  parties,
		cp:       cp,
		notify:   notify,
		clock:    clk,
		feeBPS:   feeBPS,
		validate: validate,
		logger:   logger,
	}
}

// InitiatePaymentRequest starts a charge for a confirmed booking.
type InitiatePaymentRequest struct {
	BookingID       string `json:"booking_id" validate:"required,uuid"`
	PaymentMethodID string `json:"payment_method_id" validate:"omitempty,uuid"`
	SaveMethod      bool   `json:"save_method"`
}

// PaymentIntentResult is what the student needs to finish the charge.
type PaymentIntentResult struct {
	PaymentID    string               `json:"payment_id"`
	ClientSecret string               `json:"client_secret,omitempty"`
	Status       models.PaymentStatus `json:"status"`
}

// InitiatePayment creates a processor intent for the booking's total and
// persists the payment row. With a saved method the intent is confirmed
// off-session in the same call; otherwise the client secret is returned for
// an on-device flow. Re-initiating while an intent is still open returns the
// same intent.
func (s *PaymentService) InitiatePayment(ctx context.Context, claims *models.JWTClaims, req InitiatePaymentRequest) (*PaymentIntentResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment request")
	}

	booking, err := s.bookings.FindByID(ctx, req.BookingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "booking not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load booking")
	}
	if booking.StudentID != claims.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the booking's student may pay")
	}
	if booking.Status != models.BookingStatusConfirmed {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "booking must be confirmed before payment")
	}

	existing, err := s.payments.FindByBookingID(ctx, booking.ID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}
	if existing != nil {
		switch existing.Status {
		case models.PaymentStatusSucceeded, models.PaymentStatusProcessing:
			return nil, appErrors.ErrAlreadyPaid
		case models.PaymentStatusRequiresPayment:
			intent, err := s.cp.RetrievePaymentIntent(ctx, existing.CPPaymentIntentID)
			if err != nil {
				return nil, err
			}
			return &PaymentIntentResult{PaymentID: existing.ID, ClientSecret: intent.ClientSecret, Status: existing.Status}, nil
		}
	}

	gig, err := s.gigs.FindByID(ctx, booking.GigID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load gig")
	}

	amount := gig.PricePerSessionCents
	fee := money.PlatformFee(amount, s.feeBPS)
	total := money.Total(amount, s.feeBPS)
	currency := gig.Currency
	if currency == "" {
		currency = money.DefaultCurrency
	}

	input := stripeclient.CreateIntentInput{
		AmountCents: total,
		Currency:    currency,
		Metadata: map[string]string{
			"booking_id":  booking.ID,
			"student_id":  booking.StudentID,
			"teacher_id":  booking.TeacherID,
			"save_method": strconv.FormatBool(req.SaveMethod),
		},
	}
	var methodRef *string
	if req.PaymentMethodID != "" {
		method, err := s.payments.FindMethod(ctx, req.PaymentMethodID, claims.UserID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "payment method not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment method")
		}
		input.PaymentMethodID = method.CPMethodID
		input.ConfirmNow = true
		methodRef = &method.ID
	}

	intent, err := s.cp.CreatePaymentIntent(ctx, input)
	if err != nil {
		return nil, err
	}

	status := models.PaymentStatusRequiresPayment
	if input.ConfirmNow {
		status = models.PaymentStatusProcessing
	}

	var payment *models.Payment
	if existing != nil {
		// A failed charge gets a fresh intent on the same row.
		if err := s.payments.ReplaceIntent(ctx, existing.ID, intent.ID, status); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update payment")
		}
		existing.CPPaymentIntentID = intent.ID
		existing.Status = status
		payment = existing
	} else {
		payment = &models.Payment{
			ID:                s.clock.NewID(),
			BookingID:         booking.ID,
			StudentID:         booking.StudentID,
			AmountCents:       amount,
			PlatformFeeCents:  fee,
			TotalCents:        total,
			Currency:          currency,
			CPPaymentIntentID: intent.ID,
			Status:            status,
			PaymentMethodID:   methodRef,
		}
		if err := s.payments.Create(ctx, payment); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist payment")
		}
	}

	// An off-session confirm can settle synchronously; the webhook will
	// arrive later and find nothing left to do.
	if intent.Status == "succeeded" {
		if err := s.settleSuccess(ctx, intent.ID, nil); err != nil {
			return nil, err
		}
		payment.Status = models.PaymentStatusSucceeded
	}

	s.logger.Info("payment initiated",
		zap.String("payment_id", payment.ID),
		zap.String("booking_id", booking.ID),
		zap.Int64("total_cents", total))
	return &PaymentIntentResult{PaymentID: payment.ID, ClientSecret: intent.ClientSecret, Status: payment.Status}, nil
}

// HandleWebhook verifies and applies one processor event. Unknown event
// types are acknowledged and ignored. Replays and out-of-order deliveries
// are settled by conditional transitions on the locked payment row.
func (s *PaymentService) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) error {
	event, err := s.cp.VerifyWebhook(payload, signatureHeader)
	if err != nil {
		return err
	}

	switch event.Type {
	case "payment_intent.succeeded":
		var intent stripeapi.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "malformed event payload")
		}
		return s.settleSuccess(ctx, intent.ID, &intent)
	case "payment_intent.payment_failed":
		var intent stripeapi.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "malformed event payload")
		}
		return s.settleFailure(ctx, intent.ID)
	default:
		s.logger.Debug("ignoring webhook event", zap.String("type", string(event.Type)))
		return nil
	}
}

// settleSuccess moves the payment to SUCCEEDED and the booking to PAID in
// one transaction. A payment already terminal is left untouched.
func (s *PaymentService) settleSuccess(ctx context.Context, intentID string, intent *stripeapi.PaymentIntent) error {
	tx, err := s.payments.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open transaction")
	}
	defer tx.Rollback()

	payment, err := s.payments.FindByIntentIDForUpdate(ctx, tx, intentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// An intent this service never issued; acknowledge and drop.
			s.logger.Warn("webhook for unknown intent", zap.String("intent_id", intentID))
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}
	switch payment.Status {
	case models.PaymentStatusRequiresPayment, models.PaymentStatusProcessing, models.PaymentStatusFailed:
	default:
		return nil
	}

	if err := s.payments.UpdateStatus(ctx, tx, payment.ID, models.PaymentStatusSucceeded); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update payment")
	}
	if err := s.machine.MarkPaidTx(ctx, tx, payment.BookingID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit payment")
	}

	if intent != nil {
		s.maybeSaveMethod(ctx, payment.StudentID, intent)
	}
	s.sendReceiptNotices(ctx, payment)
	s.logger.Info("payment succeeded",
		zap.String("payment_id", payment.ID), zap.String("booking_id", payment.BookingID))
	return nil
}

// settleFailure records a failed charge; the booking stays CONFIRMED so the
// student can retry.
func (s *PaymentService) settleFailure(ctx context.Context, intentID string) error {
	tx, err := s.payments.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open transaction")
	}
	defer tx.Rollback()

	payment, err := s.payments.FindByIntentIDForUpdate(ctx, tx, intentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}
	switch payment.Status {
	case models.PaymentStatusRequiresPayment, models.PaymentStatusProcessing:
	default:
		return nil
	}
	if err := s.payments.UpdateStatus(ctx, tx, payment.ID, models.PaymentStatusFailed); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update payment")
	}
	if err := tx.Commit(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit payment")
	}
	s.logger.Warn("payment failed",
		zap.String("payment_id", payment.ID), zap.String("booking_id", payment.BookingID))
	return nil
}

// maybeSaveMethod stores the card reference when the student opted in at
// intent creation. The processor is the only holder of card data; the core
// keeps an opaque id plus display metadata.
func (s *PaymentService) maybeSaveMethod(ctx context.Context, studentID string, intent *stripeapi.PaymentIntent) {
	if intent.Metadata["save_method"] != "true" || intent.PaymentMethod == nil {
		return
	}
	method := &models.PaymentMethod{
		ID:         s.clock.NewID(),
		StudentID:  studentID,
		CPMethodID: intent.PaymentMethod.ID,
	}
	if card := intent.PaymentMethod.Card; card != nil {
		method.Brand = string(card.Brand)
		method.Last4 = card.Last4
		method.ExpMonth = int(card.ExpMonth)
		method.ExpYear = int(card.ExpYear)
	}
	if err := s.payments.SaveMethod(ctx, method); err != nil {
		s.logger.Warn("failed to save payment method", zap.Error(err))
	}
}

// RefundRequestInput asks for money back on a paid booking.
type RefundRequestInput struct {
	BookingID   string `json:"booking_id" validate:"required,uuid"`
	AmountCents int64  `json:"amount_cents" validate:"omitempty,gt=0"`
	Reason      string `json:"reason" validate:"required,max=1000"`
}

// RequestRefund applies the refund policy. Auto-approved requests are
// processed against the processor immediately; completed sessions queue for
// an administrator.
func (s *PaymentService) RequestRefund(ctx context.Context, claims *models.JWTClaims, req RefundRequestInput) (*models.RefundRequest, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid refund request")
	}

	booking, err := s.bookings.FindByID(ctx, req.BookingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "booking not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load booking")
	}
	if booking.StudentID != claims.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the booking's student may request a refund")
	}

	payment, err := s.payments.FindByBookingID(ctx, booking.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotRefundable, "no payment exists for this booking")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}

	open, err := s.refunds.ExistsOpenForPayment(ctx, payment.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check refund requests")
	}
	if open {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a refund request is already open for this payment")
	}

	decision := DecideRefund(booking, payment, s.clock.Now())
	switch decision.Outcome {
	case RefundReject:
		return nil, appErrors.Clone(appErrors.ErrNotRefundable, decision.Reason)
	case RefundNeedsReview:
		requested := req.AmountCents
		if requested == 0 {
			requested = payment.TotalCents
		}
		if requested > payment.TotalCents-payment.RefundedCents {
			return nil, appErrors.Clone(appErrors.ErrValidation, "requested amount exceeds the refundable balance")
		}
		request := &models.RefundRequest{
			ID:                   s.clock.NewID(),
			PaymentID:            payment.ID,
			BookingID:            booking.ID,
			RequestedAmountCents: requested,
			Reason:               req.Reason,
			Status:               models.RefundStatusPendingReview,
		}
		if err := s.refunds.Create(ctx, request); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record refund request")
		}
		return request, nil
	default: // RefundAutoApprove
		resolver := models.SystemResolver
		approved := decision.AmountCents
		request := &models.RefundRequest{
			ID:                   s.clock.NewID(),
			PaymentID:            payment.ID,
			BookingID:            booking.ID,
			RequestedAmountCents: approved,
			ApprovedAmountCents:  &approved,
			Reason:               req.Reason,
			Status:               models.RefundStatusAutoApproved,
			ResolvedBy:           &resolver,
		}
		if err := s.refunds.Create(ctx, request); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record refund request")
		}
		if err := s.processRefund(ctx, request, payment, booking, approved); err != nil {
			return request, err
		}
		return request, nil
	}
}

// ResolveRefundInput is an administrator's verdict on a pending request.
type ResolveRefundInput struct {
	Approve     bool   `json:"approve"`
	AmountCents int64  `json:"amount_cents" validate:"omitempty,gt=0"`
	Notes       string `json:"notes" validate:"omitempty,max=1000"`
}

// ResolveRefund applies an administrator decision to a request in review. A
// FAILED request may be re-approved to retry the processor call.
func (s *PaymentService) ResolveRefund(ctx context.Context, claims *models.JWTClaims, requestID string, req ResolveRefundInput) (*models.RefundRequest, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid resolution")
	}

	// The request row stays locked until the verdict commits, so two
	// administrators racing on the same request cannot both approve it.
	tx, err := s.payments.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open transaction")
	}
	defer tx.Rollback()

	request, err := s.refunds.FindByIDForUpdate(ctx, tx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "refund request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load refund request")
	}
	switch request.Status {
	case models.RefundStatusPendingReview, models.RefundStatusFailed:
	default:
		return nil, appErrors.Clone(appErrors.ErrConflict, "refund request is already resolved")
	}

	payment, err := s.payments.FindByID(ctx, request.PaymentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}
	booking, err := s.bookings.FindByID(ctx, request.BookingID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load booking")
	}

	var notes *string
	if req.Notes != "" {
		notes = &req.Notes
	}

	if !req.Approve {
		if err := s.refunds.Resolve(ctx, tx, request.ID, models.RefundStatusRejected, nil, claims.UserID, notes); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve refund request")
		}
		if err := tx.Commit(); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit resolution")
		}
		request.Status = models.RefundStatusRejected
		request.ResolvedBy = &claims.UserID
		request.AdminNotes = notes
		return request, nil
	}

	amount := req.AmountCents
	if amount == 0 {
		amount = request.RequestedAmountCents
	}
	if amount > payment.TotalCents-payment.RefundedCents {
		return nil, appErrors.Clone(appErrors.ErrValidation, "approved amount exceeds the refundable balance")
	}

	if err := s.refunds.Resolve(ctx, tx, request.ID, models.RefundStatusApproved, &amount, claims.UserID, notes); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve refund request")
	}
	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit resolution")
	}
	request.Status = models.RefundStatusApproved
	request.ApprovedAmountCents = &amount
	request.ResolvedBy = &claims.UserID
	request.AdminNotes = notes

	if err := s.processRefund(ctx, request, payment, booking, amount); err != nil {
		return request, err
	}
	return request, nil
}

// processRefund executes the processor refund and writes back payment and
// booking state. A processor failure parks the request in FAILED without
// touching payment or booking; an administrator can retry.
func (s *PaymentService) processRefund(ctx context.Context, request *models.RefundRequest, payment *models.Payment, booking *models.Booking, amountCents int64) error {
	refund, err := s.cp.CreateRefund(ctx, payment.CPPaymentIntentID, amountCents)
	if err != nil {
		if markErr := s.refunds.MarkFailed(ctx, request.ID); markErr != nil {
			s.logger.Error("failed to park refund request", zap.String("request_id", request.ID), zap.Error(markErr))
		}
		request.Status = models.RefundStatusFailed
		return err
	}

	status := models.PaymentStatusPartiallyRefunded
	if payment.RefundedCents+amountCents >= payment.TotalCents {
		status = models.PaymentStatusRefunded
	}

	tx, err := s.payments.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open transaction")
	}
	defer tx.Rollback()

	if err := s.refunds.MarkProcessed(ctx, tx, request.ID, refund.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record processed refund")
	}
	if err := s.payments.RecordRefund(ctx, tx, payment.ID, amountCents, status); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record refund on payment")
	}
	if booking.Status != models.BookingStatusCompleted {
		if err := s.machine.ApplyRefundTx(ctx, tx, booking.ID); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit refund")
	}

	request.Status = models.RefundStatusProcessed
	request.CPRefundID = &refund.ID
	if s.notify != nil {
		s.notify.Notify(notifier.TemplateRefundProcessed, payment.StudentID, map[string]string{
			"booking_id": booking.ID,
			"amount":     money.Format(amountCents, payment.Currency),
		})
	}
	s.logger.Info("refund processed",
		zap.String("request_id", request.ID),
		zap.String("payment_id", payment.ID),
		zap.Int64("amount_cents", amountCents))
	return nil
}

// ListMethods returns the student's saved card references.
func (s *PaymentService) ListMethods(ctx context.Context, claims *models.JWTClaims) ([]models.PaymentMethod, error) {
	methods, err := s.payments.ListMethodsByStudent(ctx, claims.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list payment methods")
	}
	return methods, nil
}

// GetReceipt renders a PDF receipt for a settled payment, visible to the
// payer, the teacher, and administrators.
func (s *PaymentService) GetReceipt(ctx context.Context, claims *models.JWTClaims, paymentID string) ([]byte, error) {
	payment, err := s.payments.FindByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}
	booking, err := s.bookings.FindByID(ctx, payment.BookingID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load booking")
	}
	if claims.Role != models.RoleAdmin && claims.UserID != booking.StudentID && claims.UserID != booking.TeacherID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not a participant of this payment")
	}
	switch payment.Status {
	case models.PaymentStatusSucceeded, models.PaymentStatusRefunded, models.PaymentStatusPartiallyRefunded:
	default:
		return nil, appErrors.Clone(appErrors.ErrConflict, "receipt is only available for settled payments")
	}

	gig, err := s.gigs.FindByID(ctx, booking.GigID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load gig")
	}
	teacher, err := s.parties.FindByID(ctx, booking.TeacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	student, err := s.parties.FindStudentByID(ctx, booking.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	pdf, err := export.RenderReceiptPDF(export.Receipt{
		PaymentID:    payment.ID,
		BookingID:    booking.ID,
		StudentName:  student.DisplayName,
		TeacherName:  teacher.DisplayName,
		GigTitle:     gig.Title,
		SessionStart: booking.StartTime,
		SessionEnd:   booking.EndTime,
		AmountCents:  payment.AmountCents,
		FeeCents:     payment.PlatformFeeCents,
		TotalCents:   payment.TotalCents,
		Currency:     payment.Currency,
		PaidAt:       payment.UpdatedAt,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render receipt")
	}
	return pdf, nil
}

// sendReceiptNotices tells both participants the session is paid for. The
// teacher's id lives on the booking, not the payment.
func (s *PaymentService) sendReceiptNotices(ctx context.Context, payment *models.Payment) {
	if s.notify == nil {
		return
	}
	params := map[string]string{
		"booking_id": payment.BookingID,
		"total":      money.Format(payment.TotalCents, payment.Currency),
	}
	s.notify.Notify(notifier.TemplatePaymentSucceeded, payment.StudentID, params)

	booking, err := s.bookings.FindByID(ctx, payment.BookingID)
	if err != nil {
		s.logger.Warn("could not notify teacher of payment",
			zap.String("booking_id", payment.BookingID), zap.Error(err))
		return
	}
	s.notify.Notify(notifier.TemplatePaymentSucceeded, booking.TeacherID, params)
}
