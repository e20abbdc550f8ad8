package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the minimal account projection the purchase subsystem needs:
// identity plus the optional push-notification channel token.
type User struct {
	ID          uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name        string     `gorm:"column:name;not null"`
	Email       string     `gorm:"column:email;not null"`
	NotifyToken *string    `gorm:"column:notify_token"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
