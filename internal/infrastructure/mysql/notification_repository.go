package mysql

import (
	"context"
	"fmt"

	"auction-engine/internal/domain"
)

func (s *Store) SaveNotification(ctx context.Context, n domain.Notification) (domain.Notification, error) {
	if n.Receiver == "" {
		return domain.Notification{}, fmt.Errorf("save notification: receiver is required")
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = s.now()
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (receiver, content, created_at) VALUES (?, ?, ?)`,
		n.Receiver, n.Content, n.Timestamp)
	if err != nil {
		return domain.Notification{}, fmt.Errorf("insert notification: %w", err)
	}
	if n.ID, err = result.LastInsertId(); err != nil {
		return domain.Notification{}, fmt.Errorf("insert notification: %w", err)
	}
	return n, nil
}

func (s *Store) GetNotifications(ctx context.Context, receiver string) ([]domain.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, receiver, content, created_at
        FROM notifications
        WHERE receiver = ?
        ORDER BY id ASC`, receiver)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var notifications []domain.Notification
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.ID, &n.Receiver, &n.Content, &n.Timestamp); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}
