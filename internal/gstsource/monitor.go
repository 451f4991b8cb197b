package gstsource

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
)

// errorCounters counts bus errors per category.
type errorCounters struct {
	network atomic.Uint64
	codec   atomic.Uint64
	auth    atomic.Uint64
	unknown atomic.Uint64
}

func (c *errorCounters) add(category ErrorCategory) {
	switch category {
	case ErrCategoryNetwork:
		c.network.Add(1)
	case ErrCategoryCodec:
		c.codec.Add(1)
	case ErrCategoryAuth:
		c.auth.Add(1)
	default:
		c.unknown.Add(1)
	}
}

// monitorBus polls the pipeline bus until ctx is cancelled (returns nil) or
// the pipeline fails (returns an error, which triggers a reconnect).
//
// Reaching PLAYING resets the reconnect state and marks the source playing.
func (s *Source) monitorBus(ctx context.Context, pipeline *gst.Pipeline) error {
	bus := pipeline.GetPipelineBus()
	started := time.Now()

	for {
		select {
		case <-ctx.Done():
			slog.Debug("gstsource: context cancelled, stopping bus monitor")
			return nil
		default:
		}

		// Short timeout keeps shutdown responsive.
		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageEOS:
			slog.Info("gstsource: end of stream received",
				"uri", s.uri,
				"uptime", time.Since(started),
				"frames_received", s.slot.received.Load(),
			)
			return fmt.Errorf("end of stream")

		case gst.MessageError:
			gerr := msg.ParseError()
			category := ClassifyGStreamerError(gerr)
			s.errors.add(category)

			slog.Error("gstsource: pipeline error",
				"error", gerr.Error(),
				"debug", gerr.DebugString(),
				"category", category.String(),
				"uri", s.uri,
				"uptime", time.Since(started),
				"frames_received", s.slot.received.Load(),
				"reconnects", s.reconnect.reconnects.Load(),
			)
			return fmt.Errorf("pipeline error [%s]: %s", category, gerr.Error())

		case gst.MessageStateChanged:
			if msg.Source() != pipeline.GetName() {
				continue
			}
			old, state := msg.ParseStateChanged()
			slog.Debug("gstsource: pipeline state changed", "from", old, "to", state)

			if state == gst.StatePlaying {
				s.playing.Store(true)
				s.reconnect.reset()
				slog.Info("gstsource: pipeline playing", "uri", s.uri)
			}
		}
	}
}
