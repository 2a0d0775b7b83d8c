package splittable

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shaiso/Flume/internal/domain"
	"github.com/shaiso/Flume/internal/state"
)

// countFn выдаёт позиции [0, n) для элемента n.
type countFn struct {
	// perCall — сколько позиций заявлять за вызов (0 — без ограничения).
	perCall int64
	// delay — задержка ResumeAfter при добровольной остановке.
	delay time.Duration
	// watermarks — watermark, объявляемый на i-м вызове.
	watermarks []time.Time
	// parts — на сколько частей делить restriction (0 — не делить).
	parts int64
	// fail — ошибка, возвращаемая из ProcessElement.
	fail error

	mu    sync.Mutex
	calls int
}

func (f *countFn) InitialRestriction(element any) (Restriction, error) {
	n, ok := toInt64(element)
	if !ok {
		return nil, errors.New("element is not a number")
	}
	return OffsetRange{From: 0, To: n}, nil
}

func (f *countFn) NewTracker(r Restriction) (Tracker, error) {
	rng, ok := r.(OffsetRange)
	if !ok {
		return nil, ErrBadRestriction
	}
	return NewOffsetRangeTracker(rng), nil
}

func (f *countFn) ProcessElement(_ context.Context, pc *ProcessContext, tracker Tracker) (Continuation, error) {
	f.mu.Lock()
	call := f.calls
	f.calls++
	f.mu.Unlock()

	if f.fail != nil {
		return Continuation{}, f.fail
	}

	rng := tracker.CurrentRestriction().(OffsetRange)
	var claimed int64
	for pos := rng.From; ; pos++ {
		if f.perCall > 0 && claimed == f.perCall {
			cont := ResumeAfter(f.delay)
			if call < len(f.watermarks) {
				cont = cont.WithWatermark(f.watermarks[call])
			}
			return cont, nil
		}
		if !tracker.TryClaim(pos) {
			return Done(), nil
		}
		pc.Output(pos)
		claimed++
	}
}

func (f *countFn) RestrictionCoder() RestrictionCoder {
	return JSONCoder[OffsetRange]{}
}

// splittingCountFn дополнительно делит restriction на части.
type splittingCountFn struct {
	countFn
}

func (f *splittingCountFn) SplitRestriction(_ any, r Restriction) ([]Restriction, error) {
	rng := r.(OffsetRange)
	if f.parts <= 0 {
		return nil, nil
	}
	size := (rng.Size() + f.parts - 1) / f.parts
	out := make([]Restriction, 0)
	for _, p := range rng.Split(size) {
		out = append(out, p)
	}
	return out, nil
}

// fakeClock — управляемые часы processing time.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.After(c.now) {
		c.now = t
	}
}

func seedItem(key string, n int64, windows ...domain.Window) domain.KeyedWorkItem {
	wv := domain.TimestampedValue(
		ElementAndRestriction{Element: n, Restriction: OffsetRange{From: 0, To: n}},
		time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	)
	if len(windows) > 0 {
		wv.Windows = windows
	}
	return domain.ElementsWorkItem(key, wv)
}

// runToCompletion повторяет resume-циклы, пока work item не завершится.
func runToCompletion(t require.TestingT, p *Processor, b state.Backend, clock *fakeClock, seed domain.KeyedWorkItem) ([]domain.WindowedValue, []Result) {
	ctx := context.Background()

	var outputs []domain.WindowedValue
	var results []Result
	emit := func(wv domain.WindowedValue) { outputs = append(outputs, wv) }

	item := seed
	for i := 0; i < 100000; i++ {
		res, err := p.ProcessElement(ctx, item, emit)
		require.NoError(t, err)
		results = append(results, res)

		if res.Phase == domain.PhaseComplete {
			return outputs, results
		}

		clock.Set(res.ResumeAt)
		fired, err := b.FireDueTimers(ctx, clock.Now())
		require.NoError(t, err)
		require.Len(t, fired, 1)

		item = domain.TimersWorkItem(seed.Key, fired[0].Timer)
	}

	require.Fail(t, "work item did not complete")
	return nil, nil
}

func positions(t require.TestingT, outputs []domain.WindowedValue) []int64 {
	out := make([]int64, 0, len(outputs))
	for _, wv := range outputs {
		n, ok := toInt64(wv.Value)
		require.True(t, ok, "output %v is not a position", wv.Value)
		out = append(out, n)
	}
	return out
}
