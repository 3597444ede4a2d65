package notification

import (
	"encoding/json"
	"time"
)

const (
	reminderTitle = "🍱 Tiffin Tracker Reminder"
	reminderBody  = "Don't forget to log your tiffins for today!"
)

// Payload is the JSON message the service worker turns into a notification.
type Payload struct {
	Title string      `json:"title"`
	Body  string      `json:"body"`
	Icon  string      `json:"icon"`
	Badge string      `json:"badge"`
	Data  PayloadData `json:"data"`
}

// PayloadData is handed to the notification click handler.
type PayloadData struct {
	URL       string `json:"url"`
	Timestamp int64  `json:"timestamp"` // Unix milliseconds
}

// reminderPayload renders the daily reminder sent to every eligible user.
func reminderPayload(icon, badge, url string, at time.Time) ([]byte, error) {
	return json.Marshal(Payload{
		Title: reminderTitle,
		Body:  reminderBody,
		Icon:  icon,
		Badge: badge,
		Data: PayloadData{
			URL:       url,
			Timestamp: at.UnixMilli(),
		},
	})
}
