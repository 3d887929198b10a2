package client

import (
	"context"

	"go.uber.org/zap"

	"github.com/phroun/faderbank/internal/midi"
	"github.com/phroun/faderbank/internal/vu"
)

// VUCapture routes hardware control-change input into the meter engine.
// A strip that receives hardware samples becomes locally sourced: its
// meters ignore broadcasts and its peaks go out in the session's
// batched reports instead.
type VUCapture struct {
	input          midi.Input
	session        *Session
	meters         *vu.Engine
	defaultChannel int
	logger         *zap.Logger
}

// NewVUCapture creates a capture loop over the given input device.
func NewVUCapture(input midi.Input, session *Session, meters *vu.Engine, defaultChannel int, logger *zap.Logger) *VUCapture {
	return &VUCapture{
		input:          input,
		session:        session,
		meters:         meters,
		defaultChannel: defaultChannel,
		logger:         logger,
	}
}

// Run consumes input events until ctx is canceled or the device closes.
func (c *VUCapture) Run(ctx context.Context) {
	defer func() {
		if err := c.input.Close(); err != nil {
			c.logger.Warn("close midi input", zap.Error(err))
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-c.input.Events():
			if !ok {
				return
			}
			stripID, right, matched := midi.RouteVU(c.session.Strips(), ev, c.defaultChannel)
			if !matched {
				continue
			}
			c.meters.SetLocalSource(stripID, true)
			c.meters.CaptureLocal(stripID, ev.Value, right)
		}
	}
}
