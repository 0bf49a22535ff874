package session

import (
	"context"
	"log"
	"time"

	"github.com/buildbarn/bb-disktest/pkg/clock"
	"github.com/buildbarn/bb-disktest/pkg/program"
	"github.com/dustin/go-humanize"
)

// progressReporter periodically logs the number of bytes processed by
// a pass, and the throughput that is achieved.
type progressReporter struct {
	clock      clock.Clock
	interval   time.Duration
	pass       pass
	deviceName string
	totalBytes int64
	state      *passState
	timeStart  time.Time
}

func formatThroughput(bytes int64, d time.Duration) string {
	if d <= 0 {
		return "0 B/s"
	}
	return humanize.IBytes(uint64(float64(bytes)/d.Seconds())) + "/s"
}

func (pr *progressReporter) run(ctx context.Context, siblingsGroup, dependenciesGroup program.Group) error {
	ticker, tickerChan := pr.clock.NewTicker(pr.interval)
	defer ticker.Stop()

	lastTime, lastBytes := pr.timeStart, int64(0)
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-tickerChan:
			bytes := pr.state.bytesProcessed.Load()
			current := formatThroughput(bytes-lastBytes, now.Sub(lastTime))
			average := formatThroughput(bytes, now.Sub(pr.timeStart))
			if pr.totalBytes <= 0 {
				// Writing until the medium is full.
				log.Printf(
					"%s pass of %#v: %s processed, current %s, average %s",
					pr.pass,
					pr.deviceName,
					humanize.IBytes(uint64(bytes)),
					current,
					average)
			} else {
				log.Printf(
					"%s pass of %#v: %s of %s processed (%.1f%%), current %s, average %s",
					pr.pass,
					pr.deviceName,
					humanize.IBytes(uint64(bytes)),
					humanize.IBytes(uint64(pr.totalBytes)),
					float64(bytes)*100/float64(pr.totalBytes),
					current,
					average)
			}
			lastTime, lastBytes = now, bytes
		}
	}
}
