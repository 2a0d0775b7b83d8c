package splittable

import (
	"fmt"
	"math"
)

// OffsetRange — полуинтервал позиций [From, To).
type OffsetRange struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

// Size возвращает количество позиций.
func (r OffsetRange) Size() int64 {
	if r.To <= r.From {
		return 0
	}
	return r.To - r.From
}

// IsEmpty возвращает true для пустого диапазона.
func (r OffsetRange) IsEmpty() bool {
	return r.Size() == 0
}

// String возвращает "[from, to)".
func (r OffsetRange) String() string {
	return fmt.Sprintf("[%d, %d)", r.From, r.To)
}

// Split делит диапазон на части не больше size позиций.
func (r OffsetRange) Split(size int64) []OffsetRange {
	if size <= 0 || r.IsEmpty() {
		return []OffsetRange{r}
	}

	parts := make([]OffsetRange, 0, (r.Size()+size-1)/size)
	for from := r.From; from < r.To; from += size {
		to := from + size
		if to > r.To || to < from {
			to = r.To
		}
		parts = append(parts, OffsetRange{From: from, To: to})
	}
	return parts
}

// OffsetRangeTracker — Tracker для OffsetRange.
//
// Позиции заявляются строго по возрастанию. Попытка заявить позицию
// за концом диапазона разрешена и возвращает false.
type OffsetRangeTracker struct {
	rng           OffsetRange
	lastClaimed   int64
	lastAttempted int64
	attempted     bool
	claimed       bool
	err           error
}

// NewOffsetRangeTracker создаёт tracker для диапазона.
func NewOffsetRangeTracker(r OffsetRange) *OffsetRangeTracker {
	return &OffsetRangeTracker{rng: r}
}

// CurrentRestriction возвращает текущий диапазон.
func (t *OffsetRangeTracker) CurrentRestriction() Restriction {
	return t.rng
}

// Range возвращает текущий диапазон без приведения типов.
func (t *OffsetRangeTracker) Range() OffsetRange {
	return t.rng
}

// TryClaim заявляет позицию (int, int64).
func (t *OffsetRangeTracker) TryClaim(position any) bool {
	if t.err != nil {
		return false
	}

	pos, ok := toInt64(position)
	if !ok {
		t.err = fmt.Errorf("%w: %T", ErrBadPosition, position)
		return false
	}

	if t.attempted && pos <= t.lastAttempted {
		t.err = fmt.Errorf("%w: claim %d after %d", ErrNonMonotonicClaim, pos, t.lastAttempted)
		return false
	}
	if pos < t.rng.From {
		t.err = fmt.Errorf("%w: claim %d in %s", ErrClaimBeforeStart, pos, t.rng)
		return false
	}

	t.attempted = true
	t.lastAttempted = pos

	if pos >= t.rng.To {
		return false
	}

	t.claimed = true
	t.lastClaimed = pos
	return true
}

// Checkpoint урезает диапазон до [From, lastAttempted+1) и возвращает
// остаток [lastAttempted+1, To). Без единой попытки остаток — весь диапазон.
func (t *OffsetRangeTracker) Checkpoint() (Restriction, error) {
	if t.err != nil {
		return nil, t.err
	}

	splitPos := t.rng.From
	if t.attempted {
		splitPos = t.lastAttempted + 1
	}

	if splitPos >= t.rng.To {
		return nil, nil
	}

	residual := OffsetRange{From: splitPos, To: t.rng.To}
	t.rng = OffsetRange{From: t.rng.From, To: splitPos}
	return residual, nil
}

// CheckDone проверяет, что последняя попытка дошла до конца диапазона.
func (t *OffsetRangeTracker) CheckDone() error {
	if t.err != nil {
		return t.err
	}
	if t.rng.IsEmpty() {
		return nil
	}
	if !t.attempted || t.lastAttempted < t.rng.To-1 {
		next := t.rng.From
		if t.attempted {
			next = t.lastAttempted + 1
		}
		return fmt.Errorf("%w: work in [%d, %d) was not attempted", ErrUnfinishedRange, next, t.rng.To)
	}
	return nil
}

// Progress возвращает выполненную и оставшуюся работу.
func (t *OffsetRangeTracker) Progress() (done, remaining float64) {
	if !t.attempted {
		return 0, float64(t.rng.Size())
	}

	left := t.rng.To - t.lastAttempted
	if left < 0 {
		left = 0
	}
	return float64(t.rng.Size() - left), float64(left)
}

// LastClaimed возвращает последнюю заявленную позицию.
func (t *OffsetRangeTracker) LastClaimed() (int64, bool) {
	return t.lastClaimed, t.claimed
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	default:
		return 0, false
	}
}
