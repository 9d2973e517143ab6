package agg

import (
	"fmt"
	"strconv"
	"time"

	"trading-barsv1/internal/model"
	"trading-barsv1/internal/num"
)

// DefaultReversalAmount is the number of boxes a reversal needs by default.
const DefaultReversalAmount = 2

type direction int

const (
	dirNone direction = iota
	dirUp
	dirDown
)

// RenkoAggregator turns close-price movement into fixed-size bricks.
//
// A brick is emitted for every boxSize move in the current direction. The
// direction flips only after the close retraces reversalAmount boxes from the
// last brick. Bricks are never partial, so there is no trailing-window option.
// When one source bar produces several bricks, the volume, amount and trades
// accumulated since the previous brick go to the first of them and the rest
// carry zero.
type RenkoAggregator struct {
	boxSize        float64
	reversalAmount int
}

// NewRenkoAggregator creates a Renko aggregator. reversalAmount must be at least 1.
func NewRenkoAggregator(boxSize float64, reversalAmount int) (*RenkoAggregator, error) {
	if err := requirePositiveFinite(boxSize, "box size"); err != nil {
		return nil, err
	}
	if reversalAmount <= 0 {
		return nil, fmt.Errorf("%w: reversal amount must be greater than zero, got %d", ErrInvalidConfig, reversalAmount)
	}
	return &RenkoAggregator{boxSize: boxSize, reversalAmount: reversalAmount}, nil
}

func (a *RenkoAggregator) Name() string {
	return "renko_" + formatThreshold(a.boxSize) + "_x" + strconv.Itoa(a.reversalAmount)
}

// renkoState is the per-call brick state. It never outlives Aggregate.
type renkoState struct {
	box     num.Num
	zero    num.Num
	period  time.Duration
	dir     direction
	last    num.Num // close of the last brick, or of the first source bar
	nextEnd time.Time
	volume  num.Num
	amount  num.Num
	trades  int64
	emitted bool // a brick was already emitted from the current source bar
	bricks  []model.Bar
}

// accumulate adds a source bar to the pending pool.
func (s *renkoState) accumulate(b model.Bar) {
	if b.Volume != nil {
		s.volume = s.volume.Add(b.Volume)
	}
	if b.Amount != nil {
		s.amount = s.amount.Add(b.Amount)
	}
	s.trades += b.Trades
	s.emitted = false
}

// run emits bricks in direction d while price is at least one box beyond the
// last brick, and returns how many it emitted.
func (s *renkoState) run(d direction, price num.Num, sourceEnd time.Time) int {
	n := 0
	for {
		var next num.Num
		if d == dirUp {
			next = s.last.Add(s.box)
			if price.Cmp(next) < 0 {
				return n
			}
		} else {
			next = s.last.Sub(s.box)
			if price.Cmp(next) > 0 {
				return n
			}
		}
		s.emit(next, sourceEnd)
		s.dir = d
		n++
	}
}

func (s *renkoState) emit(closePrice num.Num, sourceEnd time.Time) {
	end := s.nextEnd
	if sourceEnd.After(end) {
		end = sourceEnd
	}

	volume, amount, trades := s.zero, s.zero, int64(0)
	if !s.emitted {
		volume, amount, trades = s.volume, s.amount, s.trades
		s.volume, s.amount, s.trades = s.zero, s.zero, 0
		s.emitted = true
	}

	open := s.last
	s.bricks = append(s.bricks, model.NewBar(s.period, end,
		open, num.Max(open, closePrice), num.Min(open, closePrice), closePrice, volume, amount, trades))
	s.last = closePrice
	s.nextEnd = end.Add(s.period)
}

// Aggregate converts contiguous, evenly spaced bars into Renko bricks. Every
// source bar must have a close price.
func (a *RenkoAggregator) Aggregate(bars []model.Bar) ([]model.Bar, error) {
	period, err := RequireEvenIntervals(bars)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return []model.Bar{}, nil
	}
	if bars[0].Close == nil {
		return nil, sourceDataError(0, "missing close price")
	}

	f := model.FactoryOf(bars[0])
	box := f.FromFloat(a.boxSize)
	reversal := box.MulInt(int64(a.reversalAmount))
	st := renkoState{
		box:     box,
		zero:    f.Zero(),
		period:  period,
		dir:     dirNone,
		last:    bars[0].Close,
		nextEnd: bars[0].EndTime,
		volume:  f.Zero(),
		amount:  f.Zero(),
		bricks:  make([]model.Bar, 0),
	}

	for i, b := range bars {
		price := b.Close
		if price == nil {
			return nil, sourceDataError(i, "missing close price")
		}
		st.accumulate(b)

		switch st.dir {
		case dirNone:
			if st.run(dirUp, price, b.EndTime) == 0 {
				st.run(dirDown, price, b.EndTime)
			}
		case dirUp:
			st.run(dirUp, price, b.EndTime)
			if price.Cmp(st.last.Sub(reversal)) <= 0 {
				st.run(dirDown, price, b.EndTime)
			}
		case dirDown:
			st.run(dirDown, price, b.EndTime)
			if price.Cmp(st.last.Add(reversal)) >= 0 {
				st.run(dirUp, price, b.EndTime)
			}
		}
	}
	return st.bricks, nil
}
