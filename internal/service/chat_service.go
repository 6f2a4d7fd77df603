package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"course-service/internal/chat"
	"course-service/internal/models"
	"course-service/internal/store"
	"course-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxMessageLength = 4000

// ChatService persists course chat messages and fans them out to the room
type ChatService struct {
	repo       Repository
	hub        *chat.Hub
	publisher  EventPublisher
	background *Background
	logger     *zap.Logger

	// roomLocks serialize persist+broadcast per course so delivery order
	// matches persistence order
	mu        sync.Mutex
	roomLocks map[string]*sync.Mutex
}

// NewChatService creates a new chat service
func NewChatService(repo Repository, hub *chat.Hub, publisher EventPublisher, background *Background) *ChatService {
	return &ChatService{
		repo:       repo,
		hub:        hub,
		publisher:  publisher,
		background: background,
		logger:     util.GetLogger(),
		roomLocks:  make(map[string]*sync.Mutex),
	}
}

func (s *ChatService) roomLock(courseID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.roomLocks[courseID]
	if !ok {
		l = &sync.Mutex{}
		s.roomLocks[courseID] = l
	}
	return l
}

// JoinRoom adds the connection to the course room
func (s *ChatService) JoinRoom(ctx context.Context, c *chat.Client, courseID string) error {
	courseID = strings.TrimSpace(courseID)
	if courseID == "" {
		return ErrValidation("Course ID is required")
	}
	if !s.hub.Join(c, courseID) {
		return ErrValidation("Connection is closed")
	}

	s.logger.Debug("Client joined room",
		zap.Uint64("client_id", c.ID()),
		zap.String("user_id", c.UserID()),
		zap.String("course_id", courseID))
	c.Reply(chat.Message{Type: chat.FrameJoined, Data: chat.JoinRoomFrame{CourseID: courseID}})
	return nil
}

// SendMessage handles a sendMessage frame. The author is always the
// authenticated user of the connection.
func (s *ChatService) SendMessage(ctx context.Context, c *chat.Client, frame chat.SendMessageFrame) error {
	if frame.UserID != "" && frame.UserID != c.UserID() {
		return ErrForbidden("Cannot send messages as another user")
	}
	_, err := s.Send(ctx, frame.CourseID, c.UserID(), frame.Message)
	return err
}

// Send persists a message, resolves its sender and broadcasts it to the
// room. Nothing is broadcast if the sender cannot be resolved.
func (s *ChatService) Send(ctx context.Context, courseID, userID, content string) (*models.ChatMessage, error) {
	ctx, span := util.StartSpan(ctx, "ChatService.Send")
	defer span.End()

	content = strings.TrimSpace(content)
	switch {
	case courseID == "":
		return nil, ErrValidation("Course ID is required")
	case userID == "":
		return nil, ErrValidation("User ID is required")
	case content == "":
		return nil, ErrValidation("Message is required")
	case len(content) > maxMessageLength:
		return nil, ErrValidation("Message exceeds %d bytes", maxMessageLength)
	}

	lock := s.roomLock(courseID)
	lock.Lock()
	defer lock.Unlock()

	msg := &models.Message{
		ID:       uuid.NewString(),
		CourseID: courseID,
		UserID:   userID,
		Content:  content,
	}
	if err := s.repo.CreateMessage(ctx, msg); err != nil {
		util.ChatMessagesTotal.WithLabelValues("persist_failed").Inc()
		return nil, fmt.Errorf("failed to save message: %w", err)
	}

	sender, err := s.repo.GetUserByID(ctx, userID)
	if err == nil && sender.Name == "" {
		err = fmt.Errorf("user %s has no name: %w", userID, store.ErrNotFound)
	}
	if err != nil {
		util.ChatMessagesTotal.WithLabelValues("sender_unresolved").Inc()
		s.logger.Error("Message saved but sender could not be resolved",
			zap.String("message_id", msg.ID),
			zap.String("user_id", userID),
			zap.Error(err))
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound("Sender not found")
		}
		return nil, fmt.Errorf("failed to resolve sender: %w", err)
	}

	out := &models.ChatMessage{
		ID:        msg.ID,
		CourseID:  msg.CourseID,
		User:      models.MessageSender{ID: sender.ID, Name: sender.Name},
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
	}
	delivered := s.hub.Broadcast(courseID, chat.Message{Type: chat.FrameMessage, Data: out})
	online := s.hub.OnlineUsers(courseID)
	util.ChatMessagesTotal.WithLabelValues("delivered").Inc()

	s.logger.Debug("Message broadcast",
		zap.String("message_id", msg.ID),
		zap.String("course_id", courseID),
		zap.Int("recipients", delivered))

	event := &models.MessageSentEvent{
		CourseID:      courseID,
		MessageID:     msg.ID,
		SenderID:      sender.ID,
		SenderName:    sender.Name,
		Content:       msg.Content,
		OnlineUserIDs: online,
	}
	s.background.Go(ctx, "publish_message_sent", func(ctx context.Context) error {
		return s.publisher.PublishMessageSent(ctx, event)
	})

	return out, nil
}

// HistoryQuery pages through a room's history. Zero values return everything.
type HistoryQuery struct {
	Limit  int
	Before time.Time
}

// History returns a room's messages in ascending persistence order
func (s *ChatService) History(ctx context.Context, courseID string, q HistoryQuery) ([]models.ChatMessage, error) {
	ctx, span := util.StartSpan(ctx, "ChatService.History")
	defer span.End()

	if strings.TrimSpace(courseID) == "" {
		return nil, ErrValidation("Invalid course ID")
	}
	if q.Limit < 0 {
		return nil, ErrValidation("limit must not be negative")
	}

	messages, err := s.repo.ListMessagesByCourse(ctx, courseID, store.MessageQuery{Limit: q.Limit, Before: q.Before})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	return messages, nil
}
