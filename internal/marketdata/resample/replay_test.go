package resample

import (
	"context"
	"errors"
	"testing"
	"time"

	"trading-barsv1/internal/model"
)

func TestReplay_EmitsInOrder(t *testing.T) {
	bars := minuteBars(1, 2, 3)
	ch := make(chan model.Bar, len(bars))

	if err := Replay(context.Background(), bars, 0, ch); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	close(ch)

	i := 0
	for b := range ch {
		if !b.EndTime.Equal(bars[i].EndTime) {
			t.Errorf("expected bar %d end %s, got %s", i, bars[i].EndTime, b.EndTime)
		}
		i++
	}
	if i != len(bars) {
		t.Errorf("expected %d bars, got %d", len(bars), i)
	}
}

func TestReplay_PacesBySpeed(t *testing.T) {
	bars := minuteBars(1, 2, 3)
	ch := make(chan model.Bar, len(bars))

	// One minute between bars at 600x is 100ms.
	start := time.Now()
	if err := Replay(context.Background(), bars, 600, ch); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Errorf("expected paced replay to take at least 150ms, took %s", elapsed)
	}
}

func TestReplay_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan model.Bar) // unbuffered, never read

	done := make(chan error, 1)
	go func() { done <- Replay(ctx, minuteBars(1, 2), 0, ch) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("replay did not stop after cancel")
	}
}
