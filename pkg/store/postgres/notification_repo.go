package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/staffportal/staffportal/pkg/model"
	"github.com/staffportal/staffportal/pkg/store"
)

type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Create(ctx context.Context, notification *model.Notification) error {
	if notification.ID == uuid.Nil {
		notification.ID = uuid.New()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(notification).Error
}

func (r *NotificationRepository) ListUnread(ctx context.Context, userID, silo string) ([]model.Notification, error) {
	var notifications []model.Notification
	err := r.db.WithContext(ctx).
		Where("read = ? AND silo = ?", false, silo).
		Where(
			r.db.Where("audience = ? AND user_id = ?", model.AudienceUser, userID).
				Or("audience IN ?", []model.AudienceKind{model.AudienceTenant, model.AudienceApplicationWatchers}),
		).
		Order("created_at ASC").
		Find(&notifications).Error
	return notifications, err
}

func (r *NotificationRepository) MarkRead(ctx context.Context, id uuid.UUID, userID, silo string, readAt time.Time) (*model.Notification, error) {
	var notification model.Notification
	if err := r.db.WithContext(ctx).First(&notification, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	if !notification.VisibleTo(userID, silo) {
		return nil, store.ErrForbidden
	}
	if notification.Read {
		return &notification, nil
	}

	// The filters repeat the ownership check so a concurrent writer cannot
	// widen it, and read_at is only set on the first transition.
	err := r.db.WithContext(ctx).Model(&model.Notification{}).
		Where("id = ? AND silo = ? AND read = ?", id, silo, false).
		Where(
			r.db.Where("audience <> ?", model.AudienceUser).
				Or("user_id = ?", userID),
		).
		Updates(map[string]interface{}{
			"read":    true,
			"read_at": readAt,
		}).Error
	if err != nil {
		return nil, err
	}

	var updated model.Notification
	if err := r.db.WithContext(ctx).First(&updated, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &updated, nil
}
