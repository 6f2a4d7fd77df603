package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"course-service/internal/broker"
	"course-service/internal/chat"
	"course-service/internal/gateway"
	"course-service/internal/models"
	"course-service/internal/store"

	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	calls atomic.Int32
	err   error

	mu          sync.Mutex
	deactivated []string
}

func (g *fakeGateway) DeactivatePaymentLink(ctx context.Context, linkID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deactivated = append(g.deactivated, linkID)
	return nil
}

func (g *fakeGateway) deactivatedLinks() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.deactivated...)
}

func (g *fakeGateway) CreatePaymentLink(ctx context.Context, req gateway.PaymentLinkRequest) (*gateway.PaymentLink, error) {
	n := g.calls.Add(1)
	if g.err != nil {
		return nil, g.err
	}
	return &gateway.PaymentLink{
		ID:  fmt.Sprintf("plink_%d", n),
		URL: fmt.Sprintf("https://pay.example/plink_%d", n),
	}, nil
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f fakeTranscriber) Transcribe(ctx context.Context, videoURL string) (string, error) {
	return f.text, f.err
}

type harness struct {
	repo          *store.Memory
	background    *Background
	hub           *chat.Hub
	gateway       *fakeGateway
	notifications *NotificationService
	chat          *ChatService
	payments      *PaymentService
	enrollments   *EnrollmentService
	courses       *CourseService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	repo := store.NewMemory()
	background := NewBackground(time.Second)
	notifications := NewNotificationService(repo, repo, 50, time.Hour)

	handler := broker.NewEventHandler()
	notifications.RegisterHandlers(handler)
	publisher := broker.NewEventPublisher(broker.NewLocalPublisher(handler.HandleMessage))

	hub := chat.NewHub()
	gw := &fakeGateway{}

	h := &harness{
		repo:          repo,
		background:    background,
		hub:           hub,
		gateway:       gw,
		notifications: notifications,
		chat:          NewChatService(repo, hub, publisher, background),
		payments: NewPaymentService(repo, repo, gw, publisher, background, PaymentConfig{
			Currency:        "usd",
			VerifyWait:      50 * time.Millisecond,
			LinkLockTTL:     time.Minute,
			WebhookDedupTTL: time.Hour,
		}),
		enrollments: NewEnrollmentService(repo, publisher, background),
		courses:     NewCourseService(repo, fakeTranscriber{text: "transcript"}, publisher, background),
	}
	t.Cleanup(background.Wait)
	return h
}

func (h *harness) course(t *testing.T, id, tutorID, paymentType string, price int64) *models.Course {
	t.Helper()
	c := &models.Course{ID: id, Title: "Course " + id, TutorID: tutorID, PaymentType: paymentType, Price: price}
	require.NoError(t, h.repo.CreateCourse(context.Background(), c))
	return c
}

func (h *harness) user(id, name string) {
	h.repo.PutUser(models.User{ID: id, Name: name})
}

func completedEvent(id, userID, courseID, ref string) *gateway.Event {
	return &gateway.Event{
		ID:                 id,
		Kind:               gateway.KindCheckoutCompleted,
		RawType:            "checkout.session.completed",
		UserID:             userID,
		CourseID:           courseID,
		ExternalPaymentRef: ref,
	}
}

// countingRepo records payment lookups
type countingRepo struct {
	*store.Memory
	mu             sync.Mutex
	paymentLookups int
}

func (r *countingRepo) FindLatestPayment(ctx context.Context, userID, courseID, status string) (*models.Payment, error) {
	r.mu.Lock()
	r.paymentLookups++
	r.mu.Unlock()
	return r.Memory.FindLatestPayment(ctx, userID, courseID, status)
}
