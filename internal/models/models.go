package models

import "time"

// User is read-only here; accounts are owned by the auth service.
type User struct {
	ID    string `db:"id" json:"id"`
	Name  string `db:"name" json:"name"`
	Email string `db:"email" json:"email,omitempty"`
}

// Course represents a tutor's course. Price is in minor currency units.
type Course struct {
	ID          string    `db:"id" json:"id"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	TutorID     string    `db:"tutor_id" json:"tutor_id"`
	PaymentType string    `db:"payment_type" json:"payment_type"`
	Price       int64     `db:"price" json:"price"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// IsPaid reports whether enrollment requires a completed payment
func (c *Course) IsPaid() bool {
	return c.PaymentType == CoursePaymentPaid
}

// Video is a lecture attached to a course. The file itself lives in external storage.
type Video struct {
	ID         string    `db:"id" json:"id"`
	CourseID   string    `db:"course_id" json:"course_id"`
	Title      string    `db:"title" json:"title"`
	VideoURL   string    `db:"video_url" json:"video_url"`
	Transcript string    `db:"transcript" json:"transcript"`
	Position   int       `db:"position" json:"position"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Payment tracks one payment-link checkout for a (user, course) pair
type Payment struct {
	ID                 string    `db:"id" json:"id"`
	UserID             string    `db:"user_id" json:"user_id"`
	CourseID           string    `db:"course_id" json:"course_id"`
	Amount             int64     `db:"amount" json:"amount"`
	Status             string    `db:"status" json:"status"`
	ExternalPaymentRef string    `db:"external_payment_ref" json:"external_payment_ref,omitempty"`
	PaymentLinkRef     string    `db:"payment_link_ref" json:"payment_link_ref"`
	PaymentLinkURL     string    `db:"payment_link_url" json:"payment_link_url"`
	CourseTitle        string    `db:"course_title" json:"course_title,omitempty"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// Enrollment grants a student access to a course. Unique per (student, course).
type Enrollment struct {
	ID        string    `db:"id" json:"id"`
	StudentID string    `db:"student_id" json:"student_id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// StudentEnrollment is an enrollment joined with its course
type StudentEnrollment struct {
	Enrollment
	Course Course `db:"course" json:"course"`
}

// CourseEnrollment is an enrollment joined with the enrolled student
type CourseEnrollment struct {
	Enrollment
	Student User `db:"student" json:"student"`
}

// Invoice is issued once per completed payment
type Invoice struct {
	ID                 string    `db:"id" json:"id"`
	InvoiceID          string    `db:"invoice_id" json:"invoice_id"`
	UserID             string    `db:"user_id" json:"user_id"`
	CourseID           string    `db:"course_id" json:"course_id"`
	Amount             int64     `db:"amount" json:"amount"`
	Currency           string    `db:"currency" json:"currency"`
	ExternalPaymentRef string    `db:"external_payment_ref" json:"external_payment_ref"`
	Status             string    `db:"status" json:"status"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
}

// Message is a persisted chat message in a course room
type Message struct {
	ID        string    `db:"id" json:"id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Content   string    `db:"content" json:"content"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// MessageSender is the resolved author of a chat message
type MessageSender struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ChatMessage is a message with its sender resolved, as sent to clients
type ChatMessage struct {
	ID        string        `json:"id"`
	CourseID  string        `json:"course_id"`
	User      MessageSender `json:"user"`
	Content   string        `json:"content"`
	CreatedAt time.Time     `json:"created_at"`
}

// Notification is a persistent per-user notice. Only Read ever changes.
type Notification struct {
	ID          string    `db:"id" json:"id"`
	UserID      string    `db:"user_id" json:"user_id"`
	Type        string    `db:"type" json:"type"`
	Message     string    `db:"message" json:"message"`
	CourseID    *string   `db:"course_id" json:"course_id,omitempty"`
	CourseTitle *string   `db:"course_title" json:"course_title,omitempty"`
	Read        bool      `db:"read" json:"read"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Course payment types
const (
	CoursePaymentFree = "free"
	CoursePaymentPaid = "paid"
)

// Payment statuses
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
)

// Invoice statuses
const (
	InvoiceStatusCompleted = "completed"
)

// Notification types
const (
	NotificationCourseEnrollment = "course_enrollment"
	NotificationVideoUpload      = "video_upload"
	NotificationNewMessage       = "new_message"
	NotificationCourseCreation   = "course_creation"
)

// Enrollment sources, used for metrics and events
const (
	EnrollmentSourceDirect  = "direct"
	EnrollmentSourcePayment = "payment"
)
