package store

import (
	"context"
	"time"

	"course-service/internal/models"
)

// MessageQuery bounds a history read. Zero values mean the full history.
type MessageQuery struct {
	Limit  int
	Before time.Time
}

type messageRow struct {
	models.Message
	UserName string `db:"user_name"`
}

// CreateMessage appends a chat message
func (s *Store) CreateMessage(ctx context.Context, msg *models.Message) error {
	return s.db.GetContext(ctx, &msg.CreatedAt, `
		INSERT INTO messages (id, course_id, user_id, content)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`, msg.ID, msg.CourseID, msg.UserID, msg.Content)
}

// ListMessagesByCourse returns a room's messages in persistence order with
// sender names resolved. With a limit, the newest matching page is returned,
// still in ascending order.
func (s *Store) ListMessagesByCourse(ctx context.Context, courseID string, q MessageQuery) ([]models.ChatMessage, error) {
	var before interface{}
	if !q.Before.IsZero() {
		before = q.Before
	}
	var limit interface{}
	if q.Limit > 0 {
		limit = q.Limit
	}

	rows := []messageRow{}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, course_id, user_id, content, created_at, user_name FROM (
			SELECT m.seq, m.id, m.course_id, m.user_id, m.content, m.created_at, COALESCE(u.name, '') AS user_name
			FROM messages m LEFT JOIN users u ON u.id = m.user_id
			WHERE m.course_id = $1 AND ($2::timestamptz IS NULL OR m.created_at < $2)
			ORDER BY m.seq DESC
			LIMIT $3
		) page
		ORDER BY seq ASC`, courseID, before, limit)
	if err != nil {
		return nil, err
	}

	out := make([]models.ChatMessage, 0, len(rows))
	for _, r := range rows {
		out = append(out, toChatMessage(r.Message, r.UserName))
	}
	return out, nil
}

func toChatMessage(m models.Message, userName string) models.ChatMessage {
	return models.ChatMessage{
		ID:        m.ID,
		CourseID:  m.CourseID,
		User:      models.MessageSender{ID: m.UserID, Name: userName},
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}
