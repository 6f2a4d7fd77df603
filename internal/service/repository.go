package service

import (
	"context"
	"time"

	"course-service/internal/models"
	"course-service/internal/store"
)

// CourseRepository is implemented by store.Store and store.Memory
type CourseRepository interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	CreateCourse(ctx context.Context, course *models.Course) error
	GetCourseByID(ctx context.Context, id string) (*models.Course, error)
	CreateVideo(ctx context.Context, video *models.Video) error
}

type EnrollmentRepository interface {
	CreateEnrollment(ctx context.Context, enrollment *models.Enrollment) error
	GetEnrollment(ctx context.Context, studentID, courseID string) (*models.Enrollment, error)
	ListEnrollmentsByStudent(ctx context.Context, studentID string) ([]models.StudentEnrollment, error)
	ListEnrollmentsByCourse(ctx context.Context, courseID string) ([]models.CourseEnrollment, error)
	ListEnrolledStudentIDs(ctx context.Context, courseID string) ([]string, error)
}

type PaymentRepository interface {
	CreatePayment(ctx context.Context, payment *models.Payment) error
	GetPaymentByID(ctx context.Context, id string) (*models.Payment, error)
	ListPaymentsByUser(ctx context.Context, userID string) ([]models.Payment, error)
	FindLatestPayment(ctx context.Context, userID, courseID, status string) (*models.Payment, error)
	FailPendingPayment(ctx context.Context, userID, courseID string) (*models.Payment, error)
	CompletePaymentTx(ctx context.Context, params store.CompletePaymentParams) (*store.Reconciliation, error)
	GetInvoice(ctx context.Context, userID, courseID, externalRef string) (*models.Invoice, error)
	ListInvoicesByUser(ctx context.Context, userID string) ([]models.Invoice, error)
}

type NotificationRepository interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	GetNotificationByID(ctx context.Context, id string) (*models.Notification, error)
	ListNotificationsByUser(ctx context.Context, userID string, limit int) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) error
	CountUnreadNotifications(ctx context.Context, userID string) (int64, error)
}

type MessageRepository interface {
	CreateMessage(ctx context.Context, msg *models.Message) error
	ListMessagesByCourse(ctx context.Context, courseID string, q store.MessageQuery) ([]models.ChatMessage, error)
}

// Repository is everything the services persist
type Repository interface {
	CourseRepository
	EnrollmentRepository
	PaymentRepository
	NotificationRepository
	MessageRepository
}

// KeyStore provides idempotency keys and short-lived locks. Implemented by
// redisclient.Client and store.Memory.
type KeyStore interface {
	SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	CheckIdempotencyKey(ctx context.Context, key string) (bool, error)
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// EventPublisher is implemented by broker.EventPublisher
type EventPublisher interface {
	PublishEnrollmentCreated(ctx context.Context, event *models.EnrollmentCreatedEvent) error
	PublishVideoUploaded(ctx context.Context, event *models.VideoUploadedEvent) error
	PublishMessageSent(ctx context.Context, event *models.MessageSentEvent) error
	PublishCourseCreated(ctx context.Context, event *models.CourseCreatedEvent) error
	PublishPaymentCompleted(ctx context.Context, event *models.PaymentCompletedEvent) error
}
