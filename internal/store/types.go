package store

import (
	"errors"

	"gorm.io/datatypes"

	"tiffin-tracker-backend/internal/model"
)

// ErrNotFound is returned when the addressed row does not exist for the user.
var ErrNotFound = errors.New("record not found")

// EligibilityQuery selects the users due for a reminder.
type EligibilityQuery struct {
	TargetTime string // HH:MM:SS, matched exactly against notification_time
	TargetDate string // YYYY-MM-DD, the day checked for an existing entry
	Timezone   string // restricts to users with this stored timezone when set
	// ExcludeNotified drops users whose last_notification_sent is already
	// TargetDate.
	ExcludeNotified bool
}

// EligibleUser is one row of the reminder eligibility query.
type EligibleUser struct {
	UserID           string
	PushSubscription datatypes.JSON
	HasEntryToday    bool
}

// Subscription decodes the user's push subscription, nil when absent.
func (u EligibleUser) Subscription() (*model.PushSubscription, error) {
	return model.DecodeSubscription(u.PushSubscription)
}

// EntryCounts carries the two meal counters of an entry write.
type EntryCounts struct {
	Afternoon int
	Evening   int
}

// EntrySummary aggregates entries over a date range.
type EntrySummary struct {
	Entries   int64 `json:"entries"`
	Afternoon int64 `json:"afternoon"`
	Evening   int64 `json:"evening"`
	Total     int64 `json:"total"`
}
