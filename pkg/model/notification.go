package model

import (
	"time"

	"github.com/google/uuid"
)

// AudienceKind says who a notification is for. Fan-out is resolved at read time.
type AudienceKind string

const (
	AudienceUser                AudienceKind = "user"
	AudienceApplicationWatchers AudienceKind = "application_watchers"
	AudienceTenant              AudienceKind = "tenant"
)

const NotificationApplicationUpdate = "application_update"

type Notification struct {
	ID            uuid.UUID    `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Audience      AudienceKind `gorm:"type:varchar(32);not null;index"`
	UserID        *string      `gorm:"type:varchar(64);index"`
	ApplicationID string       `gorm:"type:varchar(64);index"`
	Silo          string       `gorm:"type:varchar(32);not null;index"`
	Type          string       `gorm:"type:varchar(64);not null"`
	Message       string       `gorm:"type:text;not null"`
	Read          bool         `gorm:"not null;default:false;index"`
	ReadAt        *time.Time
	CreatedAt     time.Time `gorm:"not null;index"`
}

func (Notification) TableName() string {
	return "notifications"
}

// VisibleTo reports whether userID in silo may see the notification.
func (n Notification) VisibleTo(userID, silo string) bool {
	if n.Silo != silo {
		return false
	}
	if n.Audience == AudienceUser {
		return n.UserID != nil && *n.UserID == userID
	}
	return true
}
