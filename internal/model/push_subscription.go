package model

// PushKeys holds the client key material of a browser push subscription.
type PushKeys struct {
	P256DH string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// PushSubscription is the browser PushSubscription.toJSON() shape stored
// alongside a user's notification preferences.
type PushSubscription struct {
	Endpoint string   `json:"endpoint"`
	Keys     PushKeys `json:"keys"`
}

// Deliverable reports whether the subscription names a push endpoint.
func (s *PushSubscription) Deliverable() bool {
	return s != nil && s.Endpoint != ""
}

// Complete reports whether the subscription carries everything needed to
// encrypt a message for the browser.
func (s *PushSubscription) Complete() bool {
	return s.Deliverable() && s.Keys.P256DH != "" && s.Keys.Auth != ""
}
