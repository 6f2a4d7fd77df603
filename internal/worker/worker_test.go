package worker

import (
	"context"
	"testing"
	"time"

	"course-service/internal/broker"
	"course-service/internal/models"
	"course-service/internal/service"
	"course-service/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerRoutesEventsToNotifications(t *testing.T) {
	ctx := context.Background()
	repo := store.NewMemory()
	repo.PutUser(models.User{ID: "s1", Name: "Ada"})
	require.NoError(t, repo.CreateCourse(ctx, &models.Course{ID: "c1", Title: "Go", TutorID: "tutor", PaymentType: models.CoursePaymentFree}))

	notifications := service.NewNotificationService(repo, repo, 50, time.Hour)
	w := NewNotificationWorker(nil, notifications)
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	publisher := broker.NewEventPublisher(broker.NewLocalPublisher(w.Handler()))
	require.NoError(t, publisher.PublishEnrollmentCreated(ctx, &models.EnrollmentCreatedEvent{
		EnrollmentID: "e1",
		CourseID:     "c1",
		StudentID:    "s1",
		Source:       models.EnrollmentSourceDirect,
	}))
	require.NoError(t, publisher.PublishCourseCreated(ctx, &models.CourseCreatedEvent{CourseID: "c1", TutorID: "tutor", Title: "Go"}))

	list, err := notifications.List(ctx, "tutor", 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, models.NotificationCourseCreation, list[0].Type)
	assert.Equal(t, "Ada has enrolled in your course: Go", list[1].Message)
}
