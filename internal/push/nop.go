package push

import (
	"context"

	"go.uber.org/zap"
)

// NopGateway drops all notifications. Used when push delivery is disabled
// in the config, so the rest of the system keeps its normal code paths.
type NopGateway struct {
	logger *zap.Logger
}

// NewNopGateway creates a gateway that logs and discards.
func NewNopGateway(logger *zap.Logger) *NopGateway {
	return &NopGateway{logger: logger}
}

// Send discards the batch.
func (g *NopGateway) Send(_ context.Context, notifications []Notification) error {
	g.logger.Debug("push disabled, dropping notifications", zap.Int("count", len(notifications)))
	return nil
}
