// Package pipeline connects drivers to sessions: one feed per machine,
// pulling samples off the driver's channel and pushing them through the
// session's single-writer ingest path.
package pipeline

import (
	"context"
	"time"

	"github.com/roastwire/roastwire/internal/domain"
	"github.com/roastwire/roastwire/internal/ports"
)

const defaultFeedBuffer = 64

// RunFeed starts the driver and drains its sample stream into ingest
// until ctx is cancelled, then stops the driver. Driver lifecycle
// notifications are forwarded to onStatus so transport faults reach the
// channel instead of manifesting as a silent stream. Ingest latency is
// observed per sample so a slow fan-out shows up in the histogram before
// it shows up as dropped frames.
func RunFeed(ctx context.Context, drv ports.Driver, ingest func(*domain.Sample), onStatus func(ports.DriverStatus), pol ports.Policy, obs ports.Observability) error {
	buf := pol.FeedBuffer
	if buf <= 0 {
		buf = defaultFeedBuffer
	}
	ch := make(chan *domain.Sample, buf)

	if err := drv.Start(ch); err != nil {
		if obs != nil {
			obs.LogCritical("driver_start_failed", err, ports.Field{Key: "driver", Value: drv.Name()})
		}
		return err
	}

	status := drv.Status()

	go func() {
		defer func() {
			if err := drv.Stop(); err != nil && obs != nil {
				obs.LogError("driver_stop_failed", err, ports.Field{Key: "driver", Value: drv.Name()})
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case st, ok := <-status:
				if !ok {
					status = nil
					continue
				}
				if onStatus != nil {
					onStatus(st)
				}
			case s := <-ch:
				start := time.Now()
				ingest(s)
				if obs != nil {
					obs.IncCounter("roastwire_samples_streamed_total", 1)
					obs.ObserveLatency("roastwire_broadcast_latency_seconds", time.Since(start).Seconds())
				}
			}
		}
	}()

	return nil
}
