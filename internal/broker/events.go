package broker

import (
	"context"
	"fmt"
	"time"

	"course-service/internal/models"
	"course-service/internal/util"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher stamps and publishes domain events. Every event is keyed by
// its course id.
type EventPublisher struct {
	producer Publisher
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer Publisher) *EventPublisher {
	return &EventPublisher{producer: producer}
}

func newBaseEvent(ctx context.Context, eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.NewString(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
		TraceID:   util.TraceID(ctx),
	}
}

func (ep *EventPublisher) publish(ctx context.Context, eventType, courseID string, event interface{}) error {
	err := ep.producer.PublishEvent(ctx, "course-"+courseID, event)
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	util.EventsPublishedTotal.WithLabelValues(eventType, outcome).Inc()
	return err
}

// PublishEnrollmentCreated publishes EnrollmentCreated event
func (ep *EventPublisher) PublishEnrollmentCreated(ctx context.Context, event *models.EnrollmentCreatedEvent) error {
	event.BaseEvent = newBaseEvent(ctx, models.EventTypeEnrollmentCreated)
	return ep.publish(ctx, event.EventType, event.CourseID, event)
}

// PublishVideoUploaded publishes VideoUploaded event
func (ep *EventPublisher) PublishVideoUploaded(ctx context.Context, event *models.VideoUploadedEvent) error {
	event.BaseEvent = newBaseEvent(ctx, models.EventTypeVideoUploaded)
	return ep.publish(ctx, event.EventType, event.CourseID, event)
}

// PublishMessageSent publishes MessageSent event
func (ep *EventPublisher) PublishMessageSent(ctx context.Context, event *models.MessageSentEvent) error {
	event.BaseEvent = newBaseEvent(ctx, models.EventTypeMessageSent)
	return ep.publish(ctx, event.EventType, event.CourseID, event)
}

// PublishCourseCreated publishes CourseCreated event
func (ep *EventPublisher) PublishCourseCreated(ctx context.Context, event *models.CourseCreatedEvent) error {
	event.BaseEvent = newBaseEvent(ctx, models.EventTypeCourseCreated)
	return ep.publish(ctx, event.EventType, event.CourseID, event)
}

// PublishPaymentCompleted publishes PaymentCompleted event
func (ep *EventPublisher) PublishPaymentCompleted(ctx context.Context, event *models.PaymentCompletedEvent) error {
	event.BaseEvent = newBaseEvent(ctx, models.EventTypePaymentCompleted)
	return ep.publish(ctx, event.EventType, event.CourseID, event)
}

// Close closes the underlying producer
func (ep *EventPublisher) Close() error {
	return ep.producer.Close()
}

// EventHandler handles incoming events
type EventHandler struct {
	onEnrollmentCreated func(context.Context, *models.EnrollmentCreatedEvent) error
	onVideoUploaded     func(context.Context, *models.VideoUploadedEvent) error
	onMessageSent       func(context.Context, *models.MessageSentEvent) error
	onCourseCreated     func(context.Context, *models.CourseCreatedEvent) error
	onPaymentCompleted  func(context.Context, *models.PaymentCompletedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnEnrollmentCreated registers a handler for EnrollmentCreated events
func (eh *EventHandler) OnEnrollmentCreated(handler func(context.Context, *models.EnrollmentCreatedEvent) error) {
	eh.onEnrollmentCreated = handler
}

// OnVideoUploaded registers a handler for VideoUploaded events
func (eh *EventHandler) OnVideoUploaded(handler func(context.Context, *models.VideoUploadedEvent) error) {
	eh.onVideoUploaded = handler
}

// OnMessageSent registers a handler for MessageSent events
func (eh *EventHandler) OnMessageSent(handler func(context.Context, *models.MessageSentEvent) error) {
	eh.onMessageSent = handler
}

// OnCourseCreated registers a handler for CourseCreated events
func (eh *EventHandler) OnCourseCreated(handler func(context.Context, *models.CourseCreatedEvent) error) {
	eh.onCourseCreated = handler
}

// OnPaymentCompleted registers a handler for PaymentCompleted events
func (eh *EventHandler) OnPaymentCompleted(handler func(context.Context, *models.PaymentCompletedEvent) error) {
	eh.onPaymentCompleted = handler
}

func dispatch[T any](ctx context.Context, raw []byte, handler func(context.Context, *T) error) error {
	if handler == nil {
		return nil
	}
	var event T
	if err := json.Unmarshal(raw, &event); err != nil {
		return fmt.Errorf("failed to unmarshal %T: %w", event, err)
	}
	return handler(ctx, &event)
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	logger := util.GetLogger()
	logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID),
		zap.String("trace_id", baseEvent.TraceID))

	switch baseEvent.EventType {
	case models.EventTypeEnrollmentCreated:
		return dispatch(ctx, msg.Value, eh.onEnrollmentCreated)
	case models.EventTypeVideoUploaded:
		return dispatch(ctx, msg.Value, eh.onVideoUploaded)
	case models.EventTypeMessageSent:
		return dispatch(ctx, msg.Value, eh.onMessageSent)
	case models.EventTypeCourseCreated:
		return dispatch(ctx, msg.Value, eh.onCourseCreated)
	case models.EventTypePaymentCompleted:
		return dispatch(ctx, msg.Value, eh.onPaymentCompleted)
	default:
		logger.Warn("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
