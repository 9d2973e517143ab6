package resample

import (
	"context"
	"log"
	"time"

	"trading-barsv1/internal/model"
)

// maxReplayGap caps the pause between two replayed bars.
const maxReplayGap = 5 * time.Second

// Replay emits bars into outCh, pausing between bars in proportion to the gap
// between their end times. speed controls the playback rate: 1.0 = real-time,
// 10.0 = 10x, 0 = as fast as possible. Replay does not close outCh.
func Replay(ctx context.Context, bars []model.Bar, speed float64, outCh chan<- model.Bar) error {
	var prevEnd time.Time
	emitted := 0

	for _, b := range bars {
		if speed > 0 && !prevEnd.IsZero() {
			if gap := b.EndTime.Sub(prevEnd); gap > 0 {
				scaled := time.Duration(float64(gap) / speed)
				if scaled > maxReplayGap {
					scaled = maxReplayGap
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(scaled):
				}
			}
		}
		prevEnd = b.EndTime

		select {
		case <-ctx.Done():
			log.Printf("[replay] cancelled after %d bars", emitted)
			return ctx.Err()
		case outCh <- b:
			emitted++
		}
	}
	return nil
}
