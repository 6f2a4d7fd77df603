package store

import (
	"context"

	"course-service/internal/models"
)

// CreateNotification persists a notification
func (s *Store) CreateNotification(ctx context.Context, n *models.Notification) error {
	return s.db.GetContext(ctx, &n.CreatedAt, `
		INSERT INTO notifications (id, user_id, type, message, course_id, read)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`, n.ID, n.UserID, n.Type, n.Message, n.CourseID, n.Read)
}

// GetNotificationByID retrieves a notification regardless of owner
func (s *Store) GetNotificationByID(ctx context.Context, id string) (*models.Notification, error) {
	var n models.Notification
	err := s.db.GetContext(ctx, &n, `
		SELECT n.id, n.user_id, n.type, n.message, n.course_id, c.title AS course_title, n.read, n.created_at
		FROM notifications n LEFT JOIN courses c ON c.id = n.course_id
		WHERE n.id = $1`, id)
	if err != nil {
		return nil, notFound(err, "notification", id)
	}
	return &n, nil
}

// ListNotificationsByUser returns the newest notifications for a user
func (s *Store) ListNotificationsByUser(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	notifications := []models.Notification{}
	err := s.db.SelectContext(ctx, &notifications, `
		SELECT n.id, n.user_id, n.type, n.message, n.course_id, c.title AS course_title, n.read, n.created_at
		FROM notifications n LEFT JOIN courses c ON c.id = n.course_id
		WHERE n.user_id = $1
		ORDER BY n.created_at DESC, n.id DESC
		LIMIT $2`, userID, limit)
	return notifications, err
}

// MarkNotificationRead flips a single notification to read
func (s *Store) MarkNotificationRead(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE notifications SET read = TRUE WHERE id = $1", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkAllNotificationsRead flips every unread notification of a user to read
func (s *Store) MarkAllNotificationsRead(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET read = TRUE WHERE user_id = $1 AND read = FALSE", userID)
	return err
}

// CountUnreadNotifications counts a user's unread notifications
func (s *Store) CountUnreadNotifications(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read = FALSE", userID)
	return count, err
}
