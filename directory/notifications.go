package directory

import (
	"context"

	"mcsh-server/apperr"
	"mcsh-server/db"
	"mcsh-server/models"
	"mcsh-server/policy"
)

// Notifications lists the caller's own notifications.
func (s *Service) Notifications(ctx context.Context, c models.Caller, unreadOnly bool, opts models.ListOptions) (models.Page[models.Notification], error) {
	if c.Anonymous() {
		return models.Page[models.Notification]{}, apperr.Unauthenticated()
	}
	p, err := s.store.ListNotifications(ctx, c.ID, unreadOnly, opts)
	return p, db.AppError(err, "Notification", nil)
}

func (s *Service) MarkNotificationRead(ctx context.Context, c models.Caller, id int64) (models.Notification, error) {
	if c.Anonymous() {
		return models.Notification{}, apperr.Unauthenticated()
	}
	n, err := s.store.GetNotification(ctx, id)
	if err != nil {
		return n, db.AppError(err, "Notification", id)
	}
	if err := s.policy.Authorize(ctx, c, policy.Update, policy.Resource{Kind: policy.KindNotification, OwnerID: n.RecipientID}); err != nil {
		return models.Notification{}, err
	}
	if n.IsRead {
		return n, nil
	}
	n, err = s.store.MarkNotificationRead(ctx, id)
	return n, db.AppError(err, "Notification", id)
}
