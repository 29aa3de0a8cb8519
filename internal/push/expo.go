// Package push wraps the Expo push gateway.
package push

import (
	"context"
	"fmt"

	expo "github.com/oliveroneill/exponent-server-sdk-golang/sdk"
	"go.uber.org/zap"
)

// Notification addresses one push to one device token.
type Notification struct {
	To    string
	Title string
	Body  string
	Data  map[string]string
}

// Gateway delivers batches of push notifications.
type Gateway interface {
	Send(ctx context.Context, notifications []Notification) error
}

// The Expo push API accepts at most 100 notifications per request.
const maxBatchSize = 100

// ExpoGateway sends notifications through Expo's push service.
type ExpoGateway struct {
	client *expo.PushClient
	logger *zap.Logger
}

// NewExpoGateway creates a gateway using the default Expo endpoint.
func NewExpoGateway(logger *zap.Logger) *ExpoGateway {
	return &ExpoGateway{
		client: expo.NewPushClient(nil),
		logger: logger,
	}
}

// Send publishes the notifications in batches of at most 100. A transport or
// gateway-level failure is returned; per-receipt delivery errors (stale
// tokens and the like) are logged and do not fail the batch.
func (g *ExpoGateway) Send(_ context.Context, notifications []Notification) error {
	for _, batch := range chunk(notifications, maxBatchSize) {
		messages := make([]expo.PushMessage, 0, len(batch))
		for _, n := range batch {
			token, err := expo.NewExponentPushToken(n.To)
			if err != nil {
				g.logger.Warn("invalid expo push token", zap.Error(err))
				continue
			}
			messages = append(messages, expo.PushMessage{
				To:       []expo.ExponentPushToken{token},
				Title:    n.Title,
				Body:     n.Body,
				Data:     n.Data,
				Sound:    "default",
				Priority: expo.DefaultPriority,
			})
		}
		if len(messages) == 0 {
			continue
		}

		responses, err := g.client.PublishMultiple(messages)
		if err != nil {
			return fmt.Errorf("publish push batch: %w", err)
		}
		for _, resp := range responses {
			if err := resp.ValidateResponse(); err != nil {
				g.logger.Warn("push receipt error",
					zap.Error(err),
					zap.String("status", resp.Status))
			}
		}
	}
	return nil
}

// chunk splits notifications into slices of at most size.
func chunk(notifications []Notification, size int) [][]Notification {
	var chunks [][]Notification
	for start := 0; start < len(notifications); start += size {
		end := start + size
		if end > len(notifications) {
			end = len(notifications)
		}
		chunks = append(chunks, notifications[start:end])
	}
	return chunks
}
