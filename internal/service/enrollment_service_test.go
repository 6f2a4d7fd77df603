package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"course-service/internal/broker"
	"course-service/internal/models"
	"course-service/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnrollFreeCourseSkipsPayments(t *testing.T) {
	repo := &countingRepo{Memory: store.NewMemory()}
	background := NewBackground(time.Second)
	defer background.Wait()
	publisher := broker.NewEventPublisher(broker.NewLocalPublisher(nil))
	svc := NewEnrollmentService(repo, publisher, background)

	require.NoError(t, repo.CreateCourse(context.Background(), &models.Course{
		ID: "free", Title: "Free", TutorID: "tutor", PaymentType: models.CoursePaymentFree,
	}))

	enrollment, err := svc.Enroll(context.Background(), "s1", "free")
	require.NoError(t, err)
	assert.Equal(t, "s1", enrollment.StudentID)

	_, err = svc.Enroll(context.Background(), "s1", "free")
	assert.Equal(t, KindConflict, KindOf(err))

	assert.Zero(t, repo.paymentLookups)
}

func TestEnrollValidation(t *testing.T) {
	h := newHarness(t)
	h.course(t, "paid", "tutor", models.CoursePaymentPaid, 4900)

	_, err := h.enrollments.Enroll(context.Background(), "s1", "")
	assert.Equal(t, KindValidation, KindOf(err))

	_, err = h.enrollments.Enroll(context.Background(), "s1", "missing")
	assert.Equal(t, KindNotFound, KindOf(err))

	_, err = h.enrollments.Enroll(context.Background(), "s1", "paid")
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestEnrollPaidCourseAfterPayment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.course(t, "paid", "tutor", models.CoursePaymentPaid, 4900)
	require.NoError(t, h.repo.CreatePayment(ctx, &models.Payment{
		ID: "p1", UserID: "s1", CourseID: "paid", Amount: 4900, Status: models.PaymentStatusCompleted,
	}))

	enrollment, err := h.enrollments.Enroll(ctx, "s1", "paid")
	require.NoError(t, err)
	assert.Equal(t, "paid", enrollment.CourseID)
}

func TestEnrollNotifiesTutor(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.user("s1", "Grace")
	h.course(t, "free", "tutor", models.CoursePaymentFree, 0)

	_, err := h.enrollments.Enroll(ctx, "s1", "free")
	require.NoError(t, err)
	h.background.Wait()

	list, err := h.notifications.List(ctx, "tutor", 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.NotificationCourseEnrollment, list[0].Type)
	assert.Equal(t, "Grace has enrolled in your course: Course free", list[0].Message)
	require.NotNil(t, list[0].CourseTitle)
	assert.Equal(t, "Course free", *list[0].CourseTitle)
}

func TestConcurrentEnrollAndWebhookSingleEnrollment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.course(t, "paid", "tutor", models.CoursePaymentPaid, 4900)

	_, err := h.payments.CreatePaymentLink(ctx, "s1", "paid")
	require.NoError(t, err)

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := h.payments.HandleWebhook(ctx, completedEvent("", "s1", "paid", "pi_1"))
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := h.enrollments.Enroll(ctx, "s1", "paid")
			if err != nil {
				kind := KindOf(err)
				assert.True(t, kind == KindConflict || kind == KindValidation, "unexpected error %v", err)
			}
		}()
	}
	wg.Wait()

	ids, err := h.repo.ListEnrolledStudentIDs(ctx, "paid")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, ids)
}

func TestListCourseEnrollmentsTutorOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.user("s1", "Grace")
	h.course(t, "free", "tutor", models.CoursePaymentFree, 0)
	_, err := h.enrollments.Enroll(ctx, "s1", "free")
	require.NoError(t, err)

	_, err = h.enrollments.ListCourseEnrollments(ctx, "s1", "free")
	assert.Equal(t, KindForbidden, KindOf(err))

	list, err := h.enrollments.ListCourseEnrollments(ctx, "tutor", "free")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Grace", list[0].Student.Name)

	mine, err := h.enrollments.ListStudentEnrollments(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "Course free", mine[0].Course.Title)
}
