package service

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"course-service/internal/broker"
	"course-service/internal/models"
	"course-service/internal/store"
	"course-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	maxNotificationLimit = 50
	messagePreviewLength = 50
)

// NotificationService persists per-user notifications and turns course
// activity events into them
type NotificationService struct {
	repo     Repository
	keys     KeyStore
	limit    int
	dedupTTL time.Duration
	logger   *zap.Logger
}

// NewNotificationService creates a new notification service. keys may be nil,
// in which case redelivered events are not deduplicated.
func NewNotificationService(repo Repository, keys KeyStore, listLimit int, dedupTTL time.Duration) *NotificationService {
	if listLimit <= 0 || listLimit > maxNotificationLimit {
		listLimit = maxNotificationLimit
	}
	return &NotificationService{
		repo:     repo,
		keys:     keys,
		limit:    listLimit,
		dedupTTL: dedupTTL,
		logger:   util.GetLogger(),
	}
}

func validNotificationType(t string) bool {
	switch t {
	case models.NotificationCourseEnrollment, models.NotificationVideoUpload,
		models.NotificationNewMessage, models.NotificationCourseCreation:
		return true
	}
	return false
}

// Create persists a notification. Failures are logged and swallowed; the
// caller gets nil.
func (s *NotificationService) Create(ctx context.Context, userID, notificationType, message string, courseID *string) *models.Notification {
	ctx, span := util.StartSpan(ctx, "NotificationService.Create")
	defer span.End()

	if userID == "" || !validNotificationType(notificationType) {
		s.logger.Error("Refusing to create invalid notification",
			zap.String("user_id", userID),
			zap.String("type", notificationType))
		util.NotificationsFailedTotal.WithLabelValues(notificationType).Inc()
		return nil
	}

	n := &models.Notification{
		ID:       uuid.NewString(),
		UserID:   userID,
		Type:     notificationType,
		Message:  message,
		CourseID: courseID,
	}
	if err := s.repo.CreateNotification(ctx, n); err != nil {
		s.logger.Error("Failed to create notification",
			zap.String("user_id", userID),
			zap.String("type", notificationType),
			zap.Error(err))
		util.NotificationsFailedTotal.WithLabelValues(notificationType).Inc()
		return nil
	}

	util.NotificationsCreatedTotal.WithLabelValues(notificationType).Inc()
	return n
}

// List returns the user's most recent notifications, newest first. A limit
// of zero or above the configured bound uses the bound.
func (s *NotificationService) List(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	ctx, span := util.StartSpan(ctx, "NotificationService.List")
	defer span.End()

	if limit <= 0 || limit > s.limit {
		limit = s.limit
	}
	notifications, err := s.repo.ListNotificationsByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return notifications, nil
}

// MarkRead marks one of the user's notifications as read
func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID string) (*models.Notification, error) {
	ctx, span := util.StartSpan(ctx, "NotificationService.MarkRead")
	defer span.End()

	n, err := s.repo.GetNotificationByID(ctx, notificationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound("Notification not found")
		}
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	if n.UserID != userID {
		return nil, ErrForbidden("Unauthorized")
	}

	if !n.Read {
		if err := s.repo.MarkNotificationRead(ctx, notificationID); err != nil {
			return nil, fmt.Errorf("failed to mark notification read: %w", err)
		}
		n.Read = true
	}
	return n, nil
}

// MarkAllRead marks every unread notification of the user as read and
// returns the refreshed list
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) ([]models.Notification, error) {
	ctx, span := util.StartSpan(ctx, "NotificationService.MarkAllRead")
	defer span.End()

	if err := s.repo.MarkAllNotificationsRead(ctx, userID); err != nil {
		return nil, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return s.List(ctx, userID, 0)
}

// UnreadCount counts the user's unread notifications
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	count, err := s.repo.CountUnreadNotifications(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

func (s *NotificationService) displayName(ctx context.Context, userID, fallback string) string {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil || user.Name == "" {
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("Failed to resolve user name", zap.String("user_id", userID), zap.Error(err))
		}
		return fallback
	}
	return user.Name
}

// NotifyTutorOnEnrollment tells the course tutor a student enrolled
func (s *NotificationService) NotifyTutorOnEnrollment(ctx context.Context, courseID, studentID string) error {
	course, err := s.repo.GetCourseByID(ctx, courseID)
	if err != nil {
		return fmt.Errorf("failed to load course: %w", err)
	}

	name := s.displayName(ctx, studentID, "A student")
	s.Create(ctx, course.TutorID, models.NotificationCourseEnrollment,
		fmt.Sprintf("%s has enrolled in your course: %s", name, course.Title), &course.ID)
	return nil
}

// NotifyStudentsOnVideoUpload tells every enrolled student about a new video
func (s *NotificationService) NotifyStudentsOnVideoUpload(ctx context.Context, courseID, videoTitle string) error {
	course, err := s.repo.GetCourseByID(ctx, courseID)
	if err != nil {
		return fmt.Errorf("failed to load course: %w", err)
	}

	students, err := s.repo.ListEnrolledStudentIDs(ctx, courseID)
	if err != nil {
		return fmt.Errorf("failed to list enrolled students: %w", err)
	}

	message := fmt.Sprintf("New video \"%s\" uploaded to your course: %s", videoTitle, course.Title)
	for _, studentID := range students {
		s.Create(ctx, studentID, models.NotificationVideoUpload, message, &course.ID)
	}
	return nil
}

// NotifyOfflineOnMessage notifies course members that were not connected to
// the room when a message was broadcast. The sender is never notified.
func (s *NotificationService) NotifyOfflineOnMessage(ctx context.Context, courseID, senderID, senderName, content string, online []string) error {
	course, err := s.repo.GetCourseByID(ctx, courseID)
	if err != nil {
		return fmt.Errorf("failed to load course: %w", err)
	}

	students, err := s.repo.ListEnrolledStudentIDs(ctx, courseID)
	if err != nil {
		return fmt.Errorf("failed to list enrolled students: %w", err)
	}

	skip := make(map[string]struct{}, len(online)+1)
	skip[senderID] = struct{}{}
	for _, id := range online {
		skip[id] = struct{}{}
	}

	if senderName == "" {
		senderName = s.displayName(ctx, senderID, "Someone")
	}
	message := fmt.Sprintf("New message from %s in course: %s: \"%s\"", senderName, course.Title, preview(content))

	recipients := append([]string{course.TutorID}, students...)
	for _, userID := range recipients {
		if _, ok := skip[userID]; ok {
			continue
		}
		skip[userID] = struct{}{}
		s.Create(ctx, userID, models.NotificationNewMessage, message, &course.ID)
	}
	return nil
}

// NotifyTutorOnCourseCreated confirms course creation to its tutor
func (s *NotificationService) NotifyTutorOnCourseCreated(ctx context.Context, courseID string) error {
	course, err := s.repo.GetCourseByID(ctx, courseID)
	if err != nil {
		return fmt.Errorf("failed to load course: %w", err)
	}

	s.Create(ctx, course.TutorID, models.NotificationCourseCreation,
		fmt.Sprintf("Your course \"%s\" has been created", course.Title), &course.ID)
	return nil
}

func preview(content string) string {
	if utf8.RuneCountInString(content) <= messagePreviewLength {
		return content
	}
	runes := []rune(content)
	return string(runes[:messagePreviewLength]) + "..."
}

// RegisterHandlers routes course events to notifications
func (s *NotificationService) RegisterHandlers(h *broker.EventHandler) {
	h.OnEnrollmentCreated(func(ctx context.Context, e *models.EnrollmentCreatedEvent) error {
		return s.once(ctx, e.BaseEvent, func(ctx context.Context) error {
			return s.NotifyTutorOnEnrollment(ctx, e.CourseID, e.StudentID)
		})
	})
	h.OnVideoUploaded(func(ctx context.Context, e *models.VideoUploadedEvent) error {
		return s.once(ctx, e.BaseEvent, func(ctx context.Context) error {
			return s.NotifyStudentsOnVideoUpload(ctx, e.CourseID, e.VideoTitle)
		})
	})
	h.OnMessageSent(func(ctx context.Context, e *models.MessageSentEvent) error {
		return s.once(ctx, e.BaseEvent, func(ctx context.Context) error {
			return s.NotifyOfflineOnMessage(ctx, e.CourseID, e.SenderID, e.SenderName, e.Content, e.OnlineUserIDs)
		})
	})
	h.OnCourseCreated(func(ctx context.Context, e *models.CourseCreatedEvent) error {
		return s.once(ctx, e.BaseEvent, func(ctx context.Context) error {
			return s.NotifyTutorOnCourseCreated(ctx, e.CourseID)
		})
	})
	h.OnPaymentCompleted(func(ctx context.Context, e *models.PaymentCompletedEvent) error {
		s.logger.Info("Payment completed",
			zap.String("payment_id", e.PaymentID),
			zap.String("user_id", e.UserID),
			zap.String("course_id", e.CourseID),
			zap.String("invoice_id", e.InvoiceID))
		return nil
	})
}

// once runs fn unless the event was already handled
func (s *NotificationService) once(ctx context.Context, event models.BaseEvent, fn func(ctx context.Context) error) error {
	ctx, span := util.StartSpan(ctx, "NotificationService.Handle"+event.EventType)
	defer span.End()

	if s.keys == nil || event.EventID == "" {
		return fn(ctx)
	}

	key := "event:" + event.EventID
	seen, err := s.keys.CheckIdempotencyKey(ctx, key)
	if err != nil {
		s.logger.Warn("Failed to check event dedup key", zap.String("event_id", event.EventID), zap.Error(err))
	} else if seen {
		s.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	if err := fn(ctx); err != nil {
		return err
	}

	if err := s.keys.SetIdempotencyKey(ctx, key, event.EventType, s.dedupTTL); err != nil {
		s.logger.Error("Failed to mark event processed", zap.String("event_id", event.EventID), zap.Error(err))
	}
	return nil
}
