package notification

import (
	"context"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(ctx context.Context, payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send encrypts payload for the subscription, signs it with the VAPID keys in
// options and posts it to the subscription endpoint.
func (s *WebPushSender) Send(ctx context.Context, payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotificationWithContext(ctx, payload, sub, options)
}
