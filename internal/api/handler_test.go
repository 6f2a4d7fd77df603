package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"course-service/internal/auth"
	"course-service/internal/broker"
	"course-service/internal/chat"
	"course-service/internal/gateway"
	"course-service/internal/models"
	"course-service/internal/service"
	"course-service/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const webhookSecret = "whsec_test"

type stubGateway struct{}

func (stubGateway) CreatePaymentLink(ctx context.Context, req gateway.PaymentLinkRequest) (*gateway.PaymentLink, error) {
	return &gateway.PaymentLink{ID: "plink_1", URL: "https://pay.example/plink_1"}, nil
}

func (stubGateway) DeactivatePaymentLink(ctx context.Context, linkID string) error {
	return nil
}

type failingCheck struct{}

func (failingCheck) Ping(ctx context.Context) error {
	return fmt.Errorf("connection refused")
}

type testServer struct {
	router     *gin.Engine
	repo       *store.Memory
	validator  *auth.Validator
	background *service.Background
}

func newTestServer(t *testing.T, checks map[string]Checker) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := store.NewMemory()
	background := service.NewBackground(time.Second)
	notifications := service.NewNotificationService(repo, repo, 50, time.Hour)
	handler := broker.NewEventHandler()
	notifications.RegisterHandlers(handler)
	publisher := broker.NewEventPublisher(broker.NewLocalPublisher(handler.HandleMessage))
	hub := chat.NewHub()
	validator := auth.NewValidator("test-secret", "")

	svc := Services{
		Payments: service.NewPaymentService(repo, repo, stubGateway{}, publisher, background, service.PaymentConfig{
			Currency:   "usd",
			VerifyWait: 10 * time.Millisecond,
		}),
		Enrollments:   service.NewEnrollmentService(repo, publisher, background),
		Notifications: notifications,
		Chat:          service.NewChatService(repo, hub, publisher, background),
		Courses:       service.NewCourseService(repo, nil, publisher, background),
	}

	router := gin.New()
	NewHandler(svc, hub, validator, Options{WebhookSecret: webhookSecret, Checks: checks}).SetupRoutes(router)
	t.Cleanup(hub.Close)
	t.Cleanup(background.Wait)

	return &testServer{router: router, repo: repo, validator: validator, background: background}
}

func (s *testServer) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := s.validator.IssueToken(userID, "student", time.Hour)
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, method, path, userID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+s.token(t, userID))
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) webhook(t *testing.T, payload []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/payments/webhook", bytes.NewReader(payload))
	if signature != "" {
		req.Header.Set(signatureHeader, signature)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func sign(payload []byte) string {
	ts := time.Now().Unix()
	return fmt.Sprintf("t=%d,v1=%s", ts, gateway.Sign(payload, webhookSecret, ts))
}

func checkoutPayload(eventID, userID, courseID string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": %q,
		"type": "checkout.session.completed",
		"data": {"object": {"id": "cs_1", "payment_intent": "pi_1", "metadata": {"userId": %q, "courseId": %q}}}
	}`, eventID, userID, courseID))
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
}

func TestRequiresAuthentication(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodGet, "/api/notifications", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/notifications", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHealthAndReadiness(t *testing.T) {
	s := newTestServer(t, nil)
	w := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	s = newTestServer(t, map[string]Checker{"redis": failingCheck{}})
	w = s.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "redis")
}

func TestEnrollFreeCourse(t *testing.T) {
	s := newTestServer(t, nil)
	s.repo.PutUser(models.User{ID: "s1", Name: "Ada"})

	w := s.do(t, http.MethodPost, "/api/courses", "tutor", map[string]interface{}{"title": "Intro to Go"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var course models.Course
	decode(t, w, &course)
	assert.Equal(t, models.CoursePaymentFree, course.PaymentType)

	w = s.do(t, http.MethodPost, "/api/enrollment", "s1", map[string]string{"courseId": course.ID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/enrollment", "s1", map[string]string{"courseId": course.ID})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, "/api/enrollment", "s1", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/enrollment/course/"+course.ID, "s1", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	s.background.Wait()
	w = s.do(t, http.MethodGet, "/api/notifications/unread-count", "tutor", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var count struct {
		Count int64 `json:"count"`
	}
	decode(t, w, &count)
	assert.Equal(t, int64(2), count.Count)

	w = s.do(t, http.MethodPut, "/api/notifications/read-all", "tutor", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []models.Notification
	decode(t, w, &list)
	require.Len(t, list, 2)
	assert.True(t, list[0].Read)
}

func TestPaidCourseCheckoutFlow(t *testing.T) {
	s := newTestServer(t, nil)
	ctx := context.Background()
	require.NoError(t, s.repo.CreateCourse(ctx, &models.Course{
		ID: "c1", Title: "Advanced Go", TutorID: "tutor", PaymentType: models.CoursePaymentPaid, Price: 4900,
	}))

	w := s.do(t, http.MethodPost, "/api/enrollment", "s1", map[string]string{"courseId": "c1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/payments/create", "s1", map[string]string{"courseId": "c1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var link struct {
		PaymentLink string `json:"paymentLink"`
		PaymentID   string `json:"paymentId"`
	}
	decode(t, w, &link)
	assert.Equal(t, "https://pay.example/plink_1", link.PaymentLink)

	w = s.do(t, http.MethodPost, "/api/payments/verify-enrollment", "s1", map[string]string{"courseId": "c1"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	payload := checkoutPayload("evt_1", "s1", "c1")
	for i := 0; i < 3; i++ {
		w = s.webhook(t, payload, sign(payload))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodPost, "/api/payments/verify-enrollment", "s1", map[string]string{"courseId": "c1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "enrollmentId")

	w = s.do(t, http.MethodGet, "/api/payments/user", "s1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var payments []models.Payment
	decode(t, w, &payments)
	require.Len(t, payments, 1)
	assert.Equal(t, models.PaymentStatusCompleted, payments[0].Status)
	assert.Equal(t, "Advanced Go", payments[0].CourseTitle)

	w = s.do(t, http.MethodGet, "/api/payments/invoices", "s1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var invoices []models.Invoice
	decode(t, w, &invoices)
	require.Len(t, invoices, 1)
	assert.Equal(t, "USD", invoices[0].Currency)

	w = s.do(t, http.MethodGet, "/api/payments/"+link.PaymentID, "s2", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	ids, err := s.repo.ListEnrolledStudentIDs(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, ids)
}

func TestWebhookRejections(t *testing.T) {
	s := newTestServer(t, nil)
	payload := checkoutPayload("evt_1", "s1", "c1")

	w := s.webhook(t, payload, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.webhook(t, payload, "t=1,v1=deadbeef")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	bad := []byte(`{"id":"evt_2"`)
	w = s.webhook(t, bad, sign(bad))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	noMeta := []byte(`{"id":"evt_3","type":"checkout.session.completed","data":{"object":{"id":"cs_1"}}}`)
	w = s.webhook(t, noMeta, sign(noMeta))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	other := []byte(`{"id":"evt_4","type":"customer.created","data":{"object":{}}}`)
	w = s.webhook(t, other, sign(other))
	assert.Equal(t, http.StatusOK, w.Code)

	// no payment for the pair: acknowledged as an orphan
	w = s.webhook(t, payload, sign(payload))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "orphan")
}

func TestChatHistoryQuery(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodGet, "/api/chat/c1?limit=abc", "s1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/chat/c1?before=yesterday", "s1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/chat/c1", "s1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestWebsocketChat(t *testing.T) {
	s := newTestServer(t, nil)
	s.repo.PutUser(models.User{ID: "u1", Name: "Ada"})

	srv := httptest.NewServer(s.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + s.token(t, "u1")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	type frame struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	read := func() frame {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var f frame
		require.NoError(t, conn.ReadJSON(&f))
		return f
	}

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type": chat.FrameJoinRoom,
		"data": map[string]string{"courseId": "c1"},
	}))
	assert.Equal(t, chat.FrameJoined, read().Type)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type": chat.FrameSendMessage,
		"data": map[string]string{"courseId": "c1", "userId": "u2", "message": "spoofed"},
	}))
	assert.Equal(t, chat.FrameError, read().Type)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type": chat.FrameSendMessage,
		"data": map[string]string{"courseId": "c1", "userId": "u1", "message": "hello"},
	}))
	f := read()
	require.Equal(t, chat.FrameMessage, f.Type)
	var msg models.ChatMessage
	require.NoError(t, json.Unmarshal(f.Data, &msg))
	assert.Equal(t, "hello", msg.Content)
	assert.Equal(t, "Ada", msg.User.Name)

	w := s.do(t, http.MethodGet, "/api/chat/c1", "u1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history []models.ChatMessage
	decode(t, w, &history)
	require.Len(t, history, 1)
	assert.Equal(t, msg.ID, history[0].ID)
}

func TestWebsocketRequiresToken(t *testing.T) {
	s := newTestServer(t, nil)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://app.example.com/"})

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, check(req), "no origin header")

	req.Header.Set("Origin", "https://app.example.com")
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, check(req))

	assert.True(t, originChecker(nil)(req))
}
