package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"mcsh-server/models"
)

const notificationColumns = "id, recipient_id, title, message, type, is_read, created_at"

var notificationList = listSpec{
	table:   "notifications",
	alias:   "n",
	columns: prefix("n", notificationColumns),
	sorts: map[string]string{
		"id":        "id",
		"createdAt": "created_at",
	},
	defaultSort: "id",
}

func scanNotification(row pgx.Row) (models.Notification, error) {
	var n models.Notification
	err := row.Scan(&n.ID, &n.RecipientID, &n.Title, &n.Message, &n.Type, &n.IsRead, &n.CreatedAt)
	return n, err
}

func (d *DB) CreateNotification(ctx context.Context, n models.Notification) (models.Notification, error) {
	created, err := scanNotification(d.pool.QueryRow(ctx, `
		INSERT INTO notifications (recipient_id, title, message, type)
		VALUES ($1, $2, $3, $4)
		RETURNING `+notificationColumns, n.RecipientID, n.Title, n.Message, n.Type))
	if err != nil {
		return created, fmt.Errorf("create notification: %w", mapErr(err))
	}
	return created, nil
}

func (d *DB) GetNotification(ctx context.Context, id int64) (models.Notification, error) {
	n, err := scanNotification(d.pool.QueryRow(ctx, "SELECT "+notificationColumns+" FROM notifications WHERE id = $1", id))
	if err != nil {
		return n, fmt.Errorf("get notification %d: %w", id, mapErr(err))
	}
	return n, nil
}

// ListNotifications returns a recipient's notifications, newest first by default.
func (d *DB) ListNotifications(ctx context.Context, recipientID int64, unreadOnly bool, opts models.ListOptions) (models.Page[models.Notification], error) {
	var w where
	w.add("n.recipient_id = ?", recipientID)
	if unreadOnly {
		w.add("n.is_read = FALSE")
	}
	p, err := listPage(ctx, d.pool, notificationList, &w, opts, scanNotification)
	return p, mapErr(err)
}

func (d *DB) MarkNotificationRead(ctx context.Context, id int64) (models.Notification, error) {
	n, err := scanNotification(d.pool.QueryRow(ctx,
		"UPDATE notifications SET is_read = TRUE WHERE id = $1 RETURNING "+notificationColumns, id))
	if err != nil {
		return n, fmt.Errorf("mark notification %d read: %w", id, mapErr(err))
	}
	return n, nil
}
