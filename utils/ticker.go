package utils

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
)

// TickerWorker returns a worker that calls fn every interval on clk until its context is
// cancelled.
func TickerWorker(clk clock.Clock, interval time.Duration, fn func(context.Context)) func(context.Context) {
	return func(ctx context.Context) {
		ticker := clk.Ticker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	}
}
