// Package notification creates and reads in-app notification records.
// Delivery beyond the record itself (push, SMS, email) happens elsewhere.
package notification

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/staffportal/staffportal/pkg/metrics"
	"github.com/staffportal/staffportal/pkg/model"
	"github.com/staffportal/staffportal/pkg/store"
)

var ErrInvalidAudience = errors.New("invalid notification audience")

// Audience selects who sees a notification. Use the constructors below.
type Audience struct {
	Kind   model.AudienceKind
	UserID string
}

func ForUser(userID string) Audience {
	return Audience{Kind: model.AudienceUser, UserID: userID}
}

func ApplicationWatchers() Audience {
	return Audience{Kind: model.AudienceApplicationWatchers}
}

func Tenant() Audience {
	return Audience{Kind: model.AudienceTenant}
}

func (a Audience) validate(applicationID string) error {
	switch a.Kind {
	case model.AudienceUser:
		if strings.TrimSpace(a.UserID) == "" {
			return ErrInvalidAudience
		}
	case model.AudienceApplicationWatchers:
		if strings.TrimSpace(applicationID) == "" {
			return ErrInvalidAudience
		}
	case model.AudienceTenant:
	default:
		return ErrInvalidAudience
	}
	return nil
}

type Service struct {
	store  store.NotificationStore
	logger *zap.Logger
	now    func() time.Time
}

func NewService(notifications store.NotificationStore, logger *zap.Logger) *Service {
	return &Service{
		store:  notifications,
		logger: logger.Named("notification"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithStore returns a service writing through notifications, typically the
// store bound to a running transaction.
func (s *Service) WithStore(notifications store.NotificationStore) *Service {
	clone := *s
	clone.store = notifications
	return &clone
}

func (s *Service) Create(ctx context.Context, silo string, audience Audience, notificationType, message, applicationID string) (*model.Notification, error) {
	if err := audience.validate(applicationID); err != nil {
		return nil, err
	}

	n := &model.Notification{
		Audience:      audience.Kind,
		ApplicationID: applicationID,
		Silo:          silo,
		Type:          notificationType,
		Message:       message,
		CreatedAt:     s.now(),
	}
	if audience.Kind == model.AudienceUser {
		userID := audience.UserID
		n.UserID = &userID
	}

	if err := s.store.Create(ctx, n); err != nil {
		return nil, err
	}

	metrics.NotificationsCreated.WithLabelValues(string(audience.Kind), notificationType).Inc()
	s.logger.Debug("notification created",
		zap.String("id", n.ID.String()),
		zap.String("audience", string(audience.Kind)),
		zap.String("application_id", applicationID),
	)
	return n, nil
}

// ListUnreadByUser resolves audiences at read time: the user's own
// notifications plus tenant and application-watcher ones in the same silo.
func (s *Service) ListUnreadByUser(ctx context.Context, userID, silo string) ([]model.Notification, error) {
	return s.store.ListUnread(ctx, userID, silo)
}

// MarkRead is idempotent. Read state of shared notifications is shared.
// Notifications outside the caller's silo, or addressed to another user,
// fail with store.ErrForbidden.
func (s *Service) MarkRead(ctx context.Context, id uuid.UUID, userID, silo string) (*model.Notification, error) {
	n, err := s.store.MarkRead(ctx, id, userID, silo, s.now())
	if errors.Is(err, store.ErrForbidden) {
		s.logger.Warn("notification read denied",
			zap.String("id", id.String()),
			zap.String("user_id", userID),
			zap.String("silo", silo),
		)
	}
	return n, err
}
