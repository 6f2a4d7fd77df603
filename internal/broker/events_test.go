package broker

import (
	"context"
	"errors"
	"testing"

	"course-service/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalRoundTripRoutesByType(t *testing.T) {
	handler := NewEventHandler()

	var gotEnrollment *models.EnrollmentCreatedEvent
	var gotMessage *models.MessageSentEvent
	handler.OnEnrollmentCreated(func(ctx context.Context, e *models.EnrollmentCreatedEvent) error {
		gotEnrollment = e
		return nil
	})
	handler.OnMessageSent(func(ctx context.Context, e *models.MessageSentEvent) error {
		gotMessage = e
		return nil
	})

	var keys []string
	publisher := NewEventPublisher(NewLocalPublisher(func(ctx context.Context, msg kafka.Message) error {
		keys = append(keys, string(msg.Key))
		return handler.HandleMessage(ctx, msg)
	}))

	ctx := context.Background()
	require.NoError(t, publisher.PublishEnrollmentCreated(ctx, &models.EnrollmentCreatedEvent{
		EnrollmentID: "e1", CourseID: "c1", StudentID: "s1", Source: models.EnrollmentSourcePayment,
	}))
	require.NoError(t, publisher.PublishMessageSent(ctx, &models.MessageSentEvent{
		CourseID: "c1", MessageID: "m1", SenderID: "s1", Content: "hello", OnlineUserIDs: []string{"s1"},
	}))

	require.NotNil(t, gotEnrollment)
	assert.Equal(t, models.EventTypeEnrollmentCreated, gotEnrollment.EventType)
	assert.NotEmpty(t, gotEnrollment.EventID)
	assert.Equal(t, "s1", gotEnrollment.StudentID)
	assert.Equal(t, models.EnrollmentSourcePayment, gotEnrollment.Source)

	require.NotNil(t, gotMessage)
	assert.Equal(t, []string{"s1"}, gotMessage.OnlineUserIDs)
	assert.Equal(t, []string{"course-c1", "course-c1"}, keys)
}

func TestHandleMessageUnhandledAndUnregistered(t *testing.T) {
	handler := NewEventHandler()

	err := handler.HandleMessage(context.Background(), kafka.Message{Value: []byte(`{"event_type":"SOMETHING_ELSE"}`)})
	assert.NoError(t, err)

	err = handler.HandleMessage(context.Background(), kafka.Message{Value: []byte(`{"event_type":"VIDEO_UPLOADED"}`)})
	assert.NoError(t, err)
}

func TestHandleMessageErrors(t *testing.T) {
	handler := NewEventHandler()
	boom := errors.New("boom")
	handler.OnCourseCreated(func(ctx context.Context, e *models.CourseCreatedEvent) error { return boom })

	err := handler.HandleMessage(context.Background(), kafka.Message{Value: []byte(`not json`)})
	assert.Error(t, err)

	err = handler.HandleMessage(context.Background(), kafka.Message{Value: []byte(`{"event_type":"COURSE_CREATED","course_id":"c1"}`)})
	assert.ErrorIs(t, err, boom)
}
