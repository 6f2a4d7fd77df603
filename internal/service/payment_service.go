package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"course-service/internal/gateway"
	"course-service/internal/models"
	"course-service/internal/store"
	"course-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PaymentConfig tunes the reconciliation flow
type PaymentConfig struct {
	Currency        string
	RedirectURL     string
	VerifyWait      time.Duration
	LinkLockTTL     time.Duration
	WebhookDedupTTL time.Duration
}

// PaymentService creates payment links and reconciles gateway webhooks into
// payments, enrollments and invoices
type PaymentService struct {
	repo       Repository
	keys       KeyStore
	gateway    gateway.Client
	publisher  EventPublisher
	background *Background
	cfg        PaymentConfig
	logger     *zap.Logger
	now        func() time.Time
}

// NewPaymentService creates a new payment service
func NewPaymentService(
	repo Repository,
	keys KeyStore,
	gw gateway.Client,
	publisher EventPublisher,
	background *Background,
	cfg PaymentConfig,
) *PaymentService {
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	if cfg.LinkLockTTL <= 0 {
		cfg.LinkLockTTL = 30 * time.Second
	}
	if cfg.WebhookDedupTTL <= 0 {
		cfg.WebhookDedupTTL = 48 * time.Hour
	}
	return &PaymentService{
		repo:       repo,
		keys:       keys,
		gateway:    gw,
		publisher:  publisher,
		background: background,
		cfg:        cfg,
		logger:     util.GetLogger(),
		now:        time.Now,
	}
}

// CreatePaymentLink returns a checkout link for a paid course and records
// the correlated pending payment. An existing pending payment for the same
// pair is returned as is.
func (s *PaymentService) CreatePaymentLink(ctx context.Context, userID, courseID string) (*models.Payment, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.CreatePaymentLink")
	defer span.End()

	if courseID == "" {
		return nil, ErrValidation("Course ID is required")
	}

	course, err := s.repo.GetCourseByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound("Course not found")
		}
		return nil, fmt.Errorf("failed to get course: %w", err)
	}

	if !course.IsPaid() {
		util.PaymentLinkFailuresTotal.WithLabelValues("free_course").Inc()
		return nil, ErrValidation("This course is free")
	}
	if course.Price <= 0 {
		util.PaymentLinkFailuresTotal.WithLabelValues("invalid_price").Inc()
		return nil, ErrValidation("Course price must be greater than 0")
	}

	if _, err := s.repo.GetEnrollment(ctx, userID, courseID); err == nil {
		util.PaymentLinkFailuresTotal.WithLabelValues("already_enrolled").Inc()
		return nil, ErrConflict("Already enrolled in this course")
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to check enrollment: %w", err)
	}

	lockKey := fmt.Sprintf("payment-link:%s:%s", userID, courseID)
	token, ok, err := s.keys.AcquireLock(ctx, lockKey, s.cfg.LinkLockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire payment link lock: %w", err)
	}
	if !ok {
		util.PaymentLinkFailuresTotal.WithLabelValues("in_progress").Inc()
		return nil, ErrConflict("Payment link creation already in progress")
	}
	defer func() {
		if err := s.keys.ReleaseLock(context.Background(), lockKey, token); err != nil {
			s.logger.Warn("Failed to release payment link lock", zap.String("key", lockKey), zap.Error(err))
		}
	}()

	if _, err := s.repo.FindLatestPayment(ctx, userID, courseID, models.PaymentStatusCompleted); err == nil {
		util.PaymentLinkFailuresTotal.WithLabelValues("already_paid").Inc()
		return nil, ErrConflict("Payment already completed for this course")
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to check payments: %w", err)
	}

	if pending, err := s.repo.FindLatestPayment(ctx, userID, courseID, models.PaymentStatusPending); err == nil {
		s.logger.Info("Reusing pending payment link",
			zap.String("payment_id", pending.ID),
			zap.String("course_id", courseID))
		return pending, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to check payments: %w", err)
	}

	link, err := s.gateway.CreatePaymentLink(ctx, gateway.PaymentLinkRequest{
		ProductName:        course.Title,
		ProductDescription: course.Description,
		Amount:             course.Price,
		Currency:           s.cfg.Currency,
		RedirectURL:        s.redirectURL(courseID),
		Metadata: map[string]string{
			gateway.MetadataUserID:   userID,
			gateway.MetadataCourseID: courseID,
		},
	})
	if err != nil {
		util.PaymentLinkFailuresTotal.WithLabelValues("gateway").Inc()
		return nil, ErrUpstream(err, "Failed to create payment link")
	}

	payment := &models.Payment{
		ID:             uuid.NewString(),
		UserID:         userID,
		CourseID:       courseID,
		Amount:         course.Price,
		Status:         models.PaymentStatusPending,
		PaymentLinkRef: link.ID,
		PaymentLinkURL: link.URL,
	}
	if err := s.repo.CreatePayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}
	payment.CourseTitle = course.Title

	util.PaymentLinksCreatedTotal.Inc()
	s.logger.Info("Payment link created",
		zap.String("payment_id", payment.ID),
		zap.String("user_id", userID),
		zap.String("course_id", courseID))

	return payment, nil
}

func (s *PaymentService) redirectURL(courseID string) string {
	if s.cfg.RedirectURL == "" {
		return ""
	}
	sep := "?"
	if strings.Contains(s.cfg.RedirectURL, "?") {
		sep = "&"
	}
	return s.cfg.RedirectURL + sep + "courseId=" + courseID
}

// WebhookOutcome describes what a webhook delivery did
type WebhookOutcome string

const (
	WebhookCompleted WebhookOutcome = "completed"
	WebhookReplayed  WebhookOutcome = "replayed"
	WebhookExpired   WebhookOutcome = "expired"
	WebhookOrphan    WebhookOutcome = "orphan"
	WebhookNoop      WebhookOutcome = "noop"
	WebhookDuplicate WebhookOutcome = "duplicate"
	WebhookIgnored   WebhookOutcome = "ignored"
)

// HandleWebhook applies a gateway event. Deliveries are at-least-once and
// unordered; applying the same event any number of times has the effect of
// applying it once. Only unexpected failures are returned.
func (s *PaymentService) HandleWebhook(ctx context.Context, event *gateway.Event) (WebhookOutcome, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.HandleWebhook")
	defer span.End()

	kind := event.Kind.String()

	if event.ID != "" && event.Kind != gateway.KindUnknown {
		seen, err := s.keys.CheckIdempotencyKey(ctx, "webhook:"+event.ID)
		if err != nil {
			s.logger.Warn("Failed to check webhook dedup key", zap.String("event_id", event.ID), zap.Error(err))
		} else if seen {
			util.WebhookEventsTotal.WithLabelValues(kind, string(WebhookDuplicate)).Inc()
			s.logger.Info("Webhook event already processed", zap.String("event_id", event.ID))
			return WebhookDuplicate, nil
		}
	}

	var (
		outcome WebhookOutcome
		err     error
	)
	switch event.Kind {
	case gateway.KindCheckoutCompleted:
		outcome, err = s.completeCheckout(ctx, event)
	case gateway.KindCheckoutExpired:
		outcome, err = s.expireCheckout(ctx, event)
	default:
		s.logger.Info("Unhandled webhook event type", zap.String("type", event.RawType))
		outcome = WebhookIgnored
	}

	if err != nil {
		util.WebhookEventsTotal.WithLabelValues(kind, "error").Inc()
		return "", err
	}
	util.WebhookEventsTotal.WithLabelValues(kind, string(outcome)).Inc()

	if event.ID != "" && event.Kind != gateway.KindUnknown {
		if err := s.keys.SetIdempotencyKey(ctx, "webhook:"+event.ID, string(outcome), s.cfg.WebhookDedupTTL); err != nil {
			s.logger.Warn("Failed to mark webhook processed", zap.String("event_id", event.ID), zap.Error(err))
		}
	}
	return outcome, nil
}

func (s *PaymentService) completeCheckout(ctx context.Context, event *gateway.Event) (WebhookOutcome, error) {
	start := time.Now()
	defer func() {
		util.ReconciliationLatency.Observe(time.Since(start).Seconds())
	}()

	res, err := s.repo.CompletePaymentTx(ctx, store.CompletePaymentParams{
		UserID:             event.UserID,
		CourseID:           event.CourseID,
		ExternalPaymentRef: event.ExternalPaymentRef,
		Currency:           strings.ToUpper(s.cfg.Currency),
		NewID:              uuid.NewString,
		NewInvoiceID:       s.newInvoiceID,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			util.ReconciliationOrphansTotal.Inc()
			s.logger.Error("Captured payment has no open payment record; manual reconciliation required",
				zap.String("session_id", event.SessionID),
				zap.String("external_ref", event.ExternalPaymentRef),
				zap.String("user_id", event.UserID),
				zap.String("course_id", event.CourseID))
			return WebhookOrphan, nil
		}
		return "", fmt.Errorf("failed to reconcile payment: %w", err)
	}

	s.logger.Info("Payment reconciled",
		zap.String("payment_id", res.Payment.ID),
		zap.String("external_ref", event.ExternalPaymentRef),
		zap.Bool("transitioned", res.Transitioned),
		zap.Bool("enrollment_created", res.EnrollmentCreated),
		zap.Bool("invoice_created", res.InvoiceCreated))

	if res.Transitioned {
		util.PaymentsCompletedTotal.Inc()
	}
	if res.EnrollmentCreated {
		util.EnrollmentsCreatedTotal.WithLabelValues(models.EnrollmentSourcePayment).Inc()
		enrollmentEvent := &models.EnrollmentCreatedEvent{
			EnrollmentID: res.Enrollment.ID,
			CourseID:     res.Enrollment.CourseID,
			StudentID:    res.Enrollment.StudentID,
			Source:       models.EnrollmentSourcePayment,
		}
		s.background.Go(ctx, "publish_enrollment_created", func(ctx context.Context) error {
			return s.publisher.PublishEnrollmentCreated(ctx, enrollmentEvent)
		})
	}
	if res.InvoiceCreated {
		util.InvoicesIssuedTotal.Inc()
		paymentEvent := &models.PaymentCompletedEvent{
			PaymentID:          res.Payment.ID,
			UserID:             res.Payment.UserID,
			CourseID:           res.Payment.CourseID,
			Amount:             res.Payment.Amount,
			ExternalPaymentRef: res.Payment.ExternalPaymentRef,
			InvoiceID:          res.Invoice.InvoiceID,
		}
		s.background.Go(ctx, "publish_payment_completed", func(ctx context.Context) error {
			return s.publisher.PublishPaymentCompleted(ctx, paymentEvent)
		})
	}

	if res.Transitioned || res.EnrollmentCreated || res.InvoiceCreated {
		return WebhookCompleted, nil
	}
	return WebhookReplayed, nil
}

func (s *PaymentService) expireCheckout(ctx context.Context, event *gateway.Event) (WebhookOutcome, error) {
	payment, err := s.repo.FailPendingPayment(ctx, event.UserID, event.CourseID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Info("No pending payment for expired checkout",
				zap.String("session_id", event.SessionID),
				zap.String("user_id", event.UserID),
				zap.String("course_id", event.CourseID))
			return WebhookNoop, nil
		}
		return "", fmt.Errorf("failed to expire payment: %w", err)
	}

	util.PaymentsFailedTotal.Inc()
	s.logger.Info("Payment marked as failed", zap.String("payment_id", payment.ID))

	// the link would otherwise keep accepting money for a failed payment
	if linkID := payment.PaymentLinkRef; linkID != "" {
		s.background.Go(ctx, "deactivate_payment_link", func(ctx context.Context) error {
			return s.gateway.DeactivatePaymentLink(ctx, linkID)
		})
	}
	return WebhookExpired, nil
}

func (s *PaymentService) newInvoiceID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("INV-%d-%s", s.now().UnixMilli(), suffix)
}

// VerifyEnrollment confirms a paid enrollment after checkout. If the
// payment is still pending the webhook may be in flight, so it waits once
// and rechecks.
func (s *PaymentService) VerifyEnrollment(ctx context.Context, userID, courseID string) (*models.Enrollment, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.VerifyEnrollment")
	defer span.End()

	if courseID == "" {
		return nil, ErrValidation("Course ID is required")
	}

	completed, err := s.hasPayment(ctx, userID, courseID, models.PaymentStatusCompleted)
	if err != nil {
		return nil, err
	}

	if !completed {
		pending, err := s.hasPayment(ctx, userID, courseID, models.PaymentStatusPending)
		if err != nil {
			return nil, err
		}
		if !pending {
			util.VerifyEnrollmentWaitsTotal.WithLabelValues("no_payment").Inc()
			return nil, ErrNotFound("No completed payment found for this course")
		}

		timer := time.NewTimer(s.cfg.VerifyWait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		completed, err = s.hasPayment(ctx, userID, courseID, models.PaymentStatusCompleted)
		if err != nil {
			return nil, err
		}
		if !completed {
			util.VerifyEnrollmentWaitsTotal.WithLabelValues("still_pending").Inc()
			return nil, ErrNotFound("No completed payment found for this course")
		}
		util.VerifyEnrollmentWaitsTotal.WithLabelValues("completed_after_wait").Inc()
	}

	enrollment, err := s.repo.GetEnrollment(ctx, userID, courseID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound("Enrollment not found")
		}
		return nil, fmt.Errorf("failed to get enrollment: %w", err)
	}
	return enrollment, nil
}

func (s *PaymentService) hasPayment(ctx context.Context, userID, courseID, status string) (bool, error) {
	_, err := s.repo.FindLatestPayment(ctx, userID, courseID, status)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, store.ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("failed to check payments: %w", err)
	}
}

// ListUserPayments returns the user's payments with course titles
func (s *PaymentService) ListUserPayments(ctx context.Context, userID string) ([]models.Payment, error) {
	payments, err := s.repo.ListPaymentsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return payments, nil
}

// ListUserInvoices returns the invoices issued to the user
func (s *PaymentService) ListUserInvoices(ctx context.Context, userID string) ([]models.Invoice, error) {
	invoices, err := s.repo.ListInvoicesByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	return invoices, nil
}

// GetPayment returns one of the user's payments
func (s *PaymentService) GetPayment(ctx context.Context, userID, paymentID string) (*models.Payment, error) {
	payment, err := s.repo.GetPaymentByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound("Payment not found")
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	if payment.UserID != userID {
		return nil, ErrForbidden("Unauthorized")
	}
	return payment, nil
}
