// Package notify defines the local (on-device) notification contract. The
// chat store and the reminder checker raise these; the owning surface (the
// app foreground, or a dev client's stdout) decides how to show them.
package notify

import "context"

// LocalNotification is an immediate on-device notification.
type LocalNotification struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Notifier delivers local notifications.
type Notifier interface {
	Notify(ctx context.Context, n LocalNotification) error
}
