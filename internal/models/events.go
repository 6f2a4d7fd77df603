package models

import "time"

// Event types carried on the course-events topic
const (
	EventTypeEnrollmentCreated = "ENROLLMENT_CREATED"
	EventTypeVideoUploaded     = "VIDEO_UPLOADED"
	EventTypeMessageSent       = "MESSAGE_SENT"
	EventTypeCourseCreated     = "COURSE_CREATED"
	EventTypePaymentCompleted  = "PAYMENT_COMPLETED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	TraceID   string    `json:"trace_id,omitempty"`
}

// EnrollmentCreatedEvent is published once a new enrollment row exists
type EnrollmentCreatedEvent struct {
	BaseEvent
	EnrollmentID string `json:"enrollment_id"`
	CourseID     string `json:"course_id"`
	StudentID    string `json:"student_id"`
	Source       string `json:"source"`
}

// VideoUploadedEvent is published when a tutor adds a video to a course
type VideoUploadedEvent struct {
	BaseEvent
	CourseID   string `json:"course_id"`
	VideoID    string `json:"video_id"`
	VideoTitle string `json:"video_title"`
}

// MessageSentEvent is published after a chat message was persisted and broadcast.
// OnlineUserIDs are the users that had a live connection in the room at broadcast time.
type MessageSentEvent struct {
	BaseEvent
	CourseID      string   `json:"course_id"`
	MessageID     string   `json:"message_id"`
	SenderID      string   `json:"sender_id"`
	SenderName    string   `json:"sender_name"`
	Content       string   `json:"content"`
	OnlineUserIDs []string `json:"online_user_ids"`
}

// CourseCreatedEvent is published when a tutor creates a course
type CourseCreatedEvent struct {
	BaseEvent
	CourseID string `json:"course_id"`
	TutorID  string `json:"tutor_id"`
	Title    string `json:"title"`
}

// PaymentCompletedEvent is published after a webhook completed a payment
type PaymentCompletedEvent struct {
	BaseEvent
	PaymentID          string `json:"payment_id"`
	UserID             string `json:"user_id"`
	CourseID           string `json:"course_id"`
	Amount             int64  `json:"amount"`
	ExternalPaymentRef string `json:"external_payment_ref"`
	InvoiceID          string `json:"invoice_id,omitempty"`
}
