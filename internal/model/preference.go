package model

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// DefaultNotificationTime is the reminder time offered to users who have not
// saved preferences yet.
const DefaultNotificationTime = "18:00:00"

// NotificationPreference is the per-user reminder configuration.
type NotificationPreference struct {
	ID                   int64          `gorm:"primaryKey" json:"id"`
	UserID               string         `gorm:"uniqueIndex;size:36;not null" json:"user_id"`
	Enabled              bool           `gorm:"not null" json:"enabled"`
	NotificationTime     string         `gorm:"size:8;not null;index" json:"notification_time"` // HH:MM:SS
	Timezone             string         `gorm:"size:64;not null" json:"timezone"`
	PushSubscription     datatypes.JSON `json:"push_subscription"`
	LastNotificationSent *string        `gorm:"size:10" json:"last_notification_sent"` // YYYY-MM-DD
	CreatedAt            time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt            time.Time      `gorm:"not null" json:"updated_at"`
}

// Subscription decodes the stored push subscription. A NULL column yields nil.
func (p *NotificationPreference) Subscription() (*PushSubscription, error) {
	return DecodeSubscription(p.PushSubscription)
}

// SetSubscription encodes sub into the JSON column; nil clears it.
func (p *NotificationPreference) SetSubscription(sub *PushSubscription) error {
	raw, err := EncodeSubscription(sub)
	if err != nil {
		return err
	}
	p.PushSubscription = raw
	return nil
}

// DecodeSubscription parses a push_subscription column value.
func DecodeSubscription(raw datatypes.JSON) (*PushSubscription, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var sub PushSubscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, fmt.Errorf("decode push subscription: %w", err)
	}
	return &sub, nil
}

// EncodeSubscription renders sub for the push_subscription column.
func EncodeSubscription(sub *PushSubscription) (datatypes.JSON, error) {
	if sub == nil {
		return nil, nil
	}
	raw, err := json.Marshal(sub)
	if err != nil {
		return nil, fmt.Errorf("encode push subscription: %w", err)
	}
	return datatypes.JSON(raw), nil
}
