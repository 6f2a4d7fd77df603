package store

import (
	"context"
	"os"
	"sync"
	"testing"

	"course-service/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("Integration test - set TEST_DATABASE_URL")
	}

	store, err := NewStore(url)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func seedPaidCourse(t *testing.T, store *Store) *models.Course {
	t.Helper()
	course := &models.Course{
		ID:          uuid.NewString(),
		Title:       "Distributed Systems",
		Description: "Consensus and replication",
		TutorID:     uuid.NewString(),
		PaymentType: models.CoursePaymentPaid,
		Price:       4900,
	}
	require.NoError(t, store.CreateCourse(context.Background(), course))
	return course
}

func TestCreateEnrollmentDuplicate(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	course := seedPaidCourse(t, store)
	studentID := uuid.NewString()

	err := store.CreateEnrollment(ctx, &models.Enrollment{ID: uuid.NewString(), StudentID: studentID, CourseID: course.ID})
	require.NoError(t, err)

	err = store.CreateEnrollment(ctx, &models.Enrollment{ID: uuid.NewString(), StudentID: studentID, CourseID: course.ID})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestCompletePaymentTxConcurrent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	course := seedPaidCourse(t, store)
	userID := uuid.NewString()

	require.NoError(t, store.CreatePayment(ctx, &models.Payment{
		ID:       uuid.NewString(),
		UserID:   userID,
		CourseID: course.ID,
		Amount:   course.Price,
		Status:   models.PaymentStatusPending,
	}))

	params := CompletePaymentParams{
		UserID:             userID,
		CourseID:           course.ID,
		ExternalPaymentRef: "pi_" + uuid.NewString(),
		Currency:           "usd",
		NewID:              uuid.NewString,
		NewInvoiceID:       func() string { return "INV-" + uuid.NewString() },
	}

	const deliveries = 8
	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		transitioned int
		enrolled     int
		invoiced     int
	)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := store.CompletePaymentTx(ctx, params)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if res.Transitioned {
				transitioned++
			}
			if res.EnrollmentCreated {
				enrolled++
			}
			if res.InvoiceCreated {
				invoiced++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, transitioned)
	assert.Equal(t, 1, enrolled)
	assert.Equal(t, 1, invoiced)

	ids, err := store.ListEnrolledStudentIDs(ctx, course.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{userID}, ids)

	paid, err := store.FindLatestPayment(ctx, userID, course.ID, models.PaymentStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, params.ExternalPaymentRef, paid.ExternalPaymentRef)

	invoices, err := store.ListInvoicesByUser(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, invoices, 1)
}

func TestCompletePaymentTxWithoutPayment(t *testing.T) {
	store := openTestStore(t)
	course := seedPaidCourse(t, store)

	_, err := store.CompletePaymentTx(context.Background(), CompletePaymentParams{
		UserID:             uuid.NewString(),
		CourseID:           course.ID,
		ExternalPaymentRef: "pi_orphan",
		NewID:              uuid.NewString,
		NewInvoiceID:       uuid.NewString,
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFailPendingPayment(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	course := seedPaidCourse(t, store)
	userID := uuid.NewString()

	require.NoError(t, store.CreatePayment(ctx, &models.Payment{
		ID: uuid.NewString(), UserID: userID, CourseID: course.ID, Amount: course.Price, Status: models.PaymentStatusPending,
	}))

	failed, err := store.FailPendingPayment(ctx, userID, course.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, failed.Status)

	_, err = store.FailPendingPayment(ctx, userID, course.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNotificationsMarkAllRead(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	course := seedPaidCourse(t, store)
	userID := uuid.NewString()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.CreateNotification(ctx, &models.Notification{
			ID: uuid.NewString(), UserID: userID, Type: models.NotificationVideoUpload,
			Message: "New video", CourseID: &course.ID,
		}))
	}

	count, err := store.CountUnreadNotifications(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	list, err := store.ListNotificationsByUser(ctx, userID, 50)
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.NotNil(t, list[0].CourseTitle)
	assert.Equal(t, course.Title, *list[0].CourseTitle)

	require.NoError(t, store.MarkAllNotificationsRead(ctx, userID))
	count, err = store.CountUnreadNotifications(ctx, userID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestListMessagesByCourseOrder(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	courseID := uuid.NewString()

	var ids []string
	for _, content := range []string{"first", "second", "third"} {
		msg := &models.Message{ID: uuid.NewString(), CourseID: courseID, UserID: uuid.NewString(), Content: content}
		require.NoError(t, store.CreateMessage(ctx, msg))
		ids = append(ids, msg.ID)
	}

	all, err := store.ListMessagesByCourse(ctx, courseID, MessageQuery{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, m := range all {
		assert.Equal(t, ids[i], m.ID)
	}

	page, err := store.ListMessagesByCourse(ctx, courseID, MessageQuery{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "second", page[0].Content)
	assert.Equal(t, "third", page[1].Content)
}
