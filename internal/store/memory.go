package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"course-service/internal/models"

	"github.com/google/uuid"
)

// Memory is an in-process store with the same uniqueness rules as the
// Postgres schema. It backs DATABASE_DRIVER=memory and the service tests.
// It also stands in for Redis idempotency keys and locks.
type Memory struct {
	mu sync.Mutex

	users         map[string]models.User
	courses       map[string]models.Course
	videos        map[string][]models.Video
	payments      []*models.Payment
	enrollments   []*models.Enrollment
	invoices      []*models.Invoice
	messages      []*models.Message
	notifications []*models.Notification

	keys  map[string]time.Time
	locks map[string]memoryLock

	now func() time.Time
}

type memoryLock struct {
	token   string
	expires time.Time
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		users:   make(map[string]models.User),
		courses: make(map[string]models.Course),
		videos:  make(map[string][]models.Video),
		keys:    make(map[string]time.Time),
		locks:   make(map[string]memoryLock),
		now:     time.Now,
	}
}

func (m *Memory) tick() time.Time {
	return m.now().UTC()
}

// PutUser registers a user profile
func (m *Memory) PutUser(user models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
}

func (m *Memory) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return &user, nil
}

func (m *Memory) CreateCourse(ctx context.Context, course *models.Course) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.courses[course.ID]; ok {
		return ErrDuplicate
	}
	course.CreatedAt = m.tick()
	m.courses[course.ID] = *course
	return nil
}

func (m *Memory) GetCourseByID(ctx context.Context, id string) (*models.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	course, ok := m.courses[id]
	if !ok {
		return nil, fmt.Errorf("course %s: %w", id, ErrNotFound)
	}
	return &course, nil
}

func (m *Memory) CreateVideo(ctx context.Context, video *models.Video) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	video.Position = len(m.videos[video.CourseID])
	video.CreatedAt = m.tick()
	m.videos[video.CourseID] = append(m.videos[video.CourseID], *video)
	return nil
}

// Payments

func (m *Memory) CreatePayment(ctx context.Context, payment *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	payment.CreatedAt = m.tick()
	payment.UpdatedAt = payment.CreatedAt
	p := *payment
	m.payments = append(m.payments, &p)
	return nil
}

func (m *Memory) withCourseTitle(p *models.Payment) models.Payment {
	out := *p
	if c, ok := m.courses[p.CourseID]; ok {
		out.CourseTitle = c.Title
	}
	return out
}

func (m *Memory) GetPaymentByID(ctx context.Context, id string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.ID == id {
			out := m.withCourseTitle(p)
			return &out, nil
		}
	}
	return nil, fmt.Errorf("payment %s: %w", id, ErrNotFound)
}

func (m *Memory) ListPaymentsByUser(ctx context.Context, userID string) ([]models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Payment{}
	for i := len(m.payments) - 1; i >= 0; i-- {
		if m.payments[i].UserID == userID {
			out = append(out, m.withCourseTitle(m.payments[i]))
		}
	}
	return out, nil
}

// latestPayment returns the newest payment for the pair accepted by match
func (m *Memory) latestPayment(userID, courseID string, match func(*models.Payment) bool) *models.Payment {
	for i := len(m.payments) - 1; i >= 0; i-- {
		p := m.payments[i]
		if p.UserID == userID && p.CourseID == courseID && match(p) {
			return p
		}
	}
	return nil
}

func (m *Memory) FindLatestPayment(ctx context.Context, userID, courseID, status string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.latestPayment(userID, courseID, func(p *models.Payment) bool { return p.Status == status })
	if p == nil {
		return nil, fmt.Errorf("payment for course %s: %w", courseID, ErrNotFound)
	}
	out := *p
	return &out, nil
}

func (m *Memory) FailPendingPayment(ctx context.Context, userID, courseID string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.latestPayment(userID, courseID, func(p *models.Payment) bool {
		return p.Status == models.PaymentStatusPending
	})
	if p == nil {
		return nil, fmt.Errorf("pending payment for course %s: %w", courseID, ErrNotFound)
	}
	p.Status = models.PaymentStatusFailed
	p.UpdatedAt = m.tick()
	out := *p
	return &out, nil
}

func (m *Memory) CompletePaymentTx(ctx context.Context, params CompletePaymentParams) (*Reconciliation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	open := func(p *models.Payment) bool {
		return p.Status == models.PaymentStatusPending || p.Status == models.PaymentStatusCompleted
	}
	// Same preference order as the SQL: matching ref, then pending, then newest.
	payment := m.latestPayment(params.UserID, params.CourseID, func(p *models.Payment) bool {
		return open(p) && p.ExternalPaymentRef == params.ExternalPaymentRef
	})
	if payment == nil {
		payment = m.latestPayment(params.UserID, params.CourseID, func(p *models.Payment) bool {
			return p.Status == models.PaymentStatusPending
		})
	}
	if payment == nil {
		payment = m.latestPayment(params.UserID, params.CourseID, open)
	}
	if payment == nil {
		return nil, fmt.Errorf("open payment for course %s: %w", params.CourseID, ErrNotFound)
	}

	result := &Reconciliation{}
	if payment.Status == models.PaymentStatusPending {
		payment.Status = models.PaymentStatusCompleted
		payment.ExternalPaymentRef = params.ExternalPaymentRef
		payment.UpdatedAt = m.tick()
		result.Transitioned = true
	}
	p := *payment
	result.Payment = &p

	enrollment := m.findEnrollment(params.UserID, params.CourseID)
	if enrollment == nil {
		enrollment = &models.Enrollment{
			ID:        params.NewID(),
			StudentID: params.UserID,
			CourseID:  params.CourseID,
			CreatedAt: m.tick(),
		}
		m.enrollments = append(m.enrollments, enrollment)
		result.EnrollmentCreated = true
	}
	e := *enrollment
	result.Enrollment = &e

	invoice := m.findInvoice(params.UserID, params.CourseID, params.ExternalPaymentRef)
	if invoice == nil {
		invoice = &models.Invoice{
			ID:                 params.NewID(),
			InvoiceID:          params.NewInvoiceID(),
			UserID:             params.UserID,
			CourseID:           params.CourseID,
			Amount:             payment.Amount,
			Currency:           params.Currency,
			ExternalPaymentRef: params.ExternalPaymentRef,
			Status:             models.InvoiceStatusCompleted,
			CreatedAt:          m.tick(),
		}
		m.invoices = append(m.invoices, invoice)
		result.InvoiceCreated = true
	}
	inv := *invoice
	result.Invoice = &inv

	return result, nil
}

func (m *Memory) findInvoice(userID, courseID, ref string) *models.Invoice {
	for _, inv := range m.invoices {
		if inv.UserID == userID && inv.CourseID == courseID && inv.ExternalPaymentRef == ref {
			return inv
		}
	}
	return nil
}

func (m *Memory) GetInvoice(ctx context.Context, userID, courseID, externalRef string) (*models.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv := m.findInvoice(userID, courseID, externalRef)
	if inv == nil {
		return nil, fmt.Errorf("invoice for payment %s: %w", externalRef, ErrNotFound)
	}
	out := *inv
	return &out, nil
}

func (m *Memory) ListInvoicesByUser(ctx context.Context, userID string) ([]models.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Invoice{}
	for i := len(m.invoices) - 1; i >= 0; i-- {
		if m.invoices[i].UserID == userID {
			out = append(out, *m.invoices[i])
		}
	}
	return out, nil
}

// Enrollments

func (m *Memory) findEnrollment(studentID, courseID string) *models.Enrollment {
	for _, e := range m.enrollments {
		if e.StudentID == studentID && e.CourseID == courseID {
			return e
		}
	}
	return nil
}

func (m *Memory) CreateEnrollment(ctx context.Context, enrollment *models.Enrollment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findEnrollment(enrollment.StudentID, enrollment.CourseID) != nil {
		return ErrDuplicate
	}
	enrollment.CreatedAt = m.tick()
	e := *enrollment
	m.enrollments = append(m.enrollments, &e)
	return nil
}

func (m *Memory) GetEnrollment(ctx context.Context, studentID, courseID string) (*models.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.findEnrollment(studentID, courseID)
	if e == nil {
		return nil, fmt.Errorf("enrollment for course %s: %w", courseID, ErrNotFound)
	}
	out := *e
	return &out, nil
}

func (m *Memory) ListEnrollmentsByStudent(ctx context.Context, studentID string) ([]models.StudentEnrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.StudentEnrollment{}
	for i := len(m.enrollments) - 1; i >= 0; i-- {
		e := m.enrollments[i]
		if e.StudentID != studentID {
			continue
		}
		course, ok := m.courses[e.CourseID]
		if !ok {
			continue
		}
		out = append(out, models.StudentEnrollment{Enrollment: *e, Course: course})
	}
	return out, nil
}

func (m *Memory) ListEnrollmentsByCourse(ctx context.Context, courseID string) ([]models.CourseEnrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.CourseEnrollment{}
	for _, e := range m.enrollments {
		if e.CourseID != courseID {
			continue
		}
		student := m.users[e.StudentID]
		student.ID = e.StudentID
		out = append(out, models.CourseEnrollment{Enrollment: *e, Student: student})
	}
	return out, nil
}

func (m *Memory) ListEnrolledStudentIDs(ctx context.Context, courseID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := []string{}
	for _, e := range m.enrollments {
		if e.CourseID == courseID {
			ids = append(ids, e.StudentID)
		}
	}
	return ids, nil
}

// Notifications

func (m *Memory) CreateNotification(ctx context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n.CreatedAt = m.tick()
	stored := *n
	m.notifications = append(m.notifications, &stored)
	return nil
}

func (m *Memory) withCourse(n *models.Notification) models.Notification {
	out := *n
	if n.CourseID != nil {
		if c, ok := m.courses[*n.CourseID]; ok {
			title := c.Title
			out.CourseTitle = &title
		}
	}
	return out
}

func (m *Memory) GetNotificationByID(ctx context.Context, id string) (*models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.notifications {
		if n.ID == id {
			out := m.withCourse(n)
			return &out, nil
		}
	}
	return nil, fmt.Errorf("notification %s: %w", id, ErrNotFound)
}

func (m *Memory) ListNotificationsByUser(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Notification{}
	for i := len(m.notifications) - 1; i >= 0 && len(out) < limit; i-- {
		if m.notifications[i].UserID == userID {
			out = append(out, m.withCourse(m.notifications[i]))
		}
	}
	return out, nil
}

func (m *Memory) MarkNotificationRead(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.notifications {
		if n.ID == id {
			n.Read = true
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) MarkAllNotificationsRead(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.notifications {
		if n.UserID == userID {
			n.Read = true
		}
	}
	return nil
}

func (m *Memory) CountUnreadNotifications(ctx context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, n := range m.notifications {
		if n.UserID == userID && !n.Read {
			count++
		}
	}
	return count, nil
}

// Messages

func (m *Memory) CreateMessage(ctx context.Context, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg.CreatedAt = m.tick()
	stored := *msg
	m.messages = append(m.messages, &stored)
	return nil
}

func (m *Memory) ListMessagesByCourse(ctx context.Context, courseID string, q MessageQuery) ([]models.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	page := []models.ChatMessage{}
	for i := len(m.messages) - 1; i >= 0; i-- {
		msg := m.messages[i]
		if msg.CourseID != courseID {
			continue
		}
		if !q.Before.IsZero() && !msg.CreatedAt.Before(q.Before) {
			continue
		}
		page = append(page, toChatMessage(*msg, m.users[msg.UserID].Name))
		if q.Limit > 0 && len(page) == q.Limit {
			break
		}
	}
	// collected newest first
	for i, j := 0, len(page)-1; i < j; i, j = i+1, j-1 {
		page[i], page[j] = page[j], page[i]
	}
	return page, nil
}

// Idempotency keys and locks

func (m *Memory) SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = m.now().Add(ttl)
	return nil
}

func (m *Memory) CheckIdempotencyKey(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	expires, ok := m.keys[key]
	return ok && m.now().Before(expires), nil
}

func (m *Memory) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.locks[key]; ok && m.now().Before(l.expires) {
		return "", false, nil
	}
	token := uuid.NewString()
	m.locks[key] = memoryLock{token: token, expires: m.now().Add(ttl)}
	return token, true, nil
}

func (m *Memory) ReleaseLock(ctx context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.locks[key]; ok && l.token == token {
		delete(m.locks, key)
	}
	return nil
}
