package state

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shaiso/Flume/internal/domain"
)

type cellKey struct {
	target    domain.StepAndKey
	namespace string
	cell      string
}

type holdKey struct {
	target    domain.StepAndKey
	namespace string
}

type timerKey struct {
	target    domain.StepAndKey
	namespace string
	timerID   string
}

// Memory — in-process Backend. Используется по умолчанию и в тестах.
type Memory struct {
	mu     sync.Mutex
	cells  map[cellKey][]byte
	holds  map[holdKey]time.Time
	timers map[timerKey]FiredTimer
	closed bool
}

// NewMemory создаёт пустое in-memory хранилище.
func NewMemory() *Memory {
	return &Memory{
		cells:  make(map[cellKey][]byte),
		holds:  make(map[holdKey]time.Time),
		timers: make(map[timerKey]FiredTimer),
	}
}

// Read читает ячейку.
func (m *Memory) Read(_ context.Context, target domain.StepAndKey, namespace, cell string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, false, ErrClosed
	}

	data, ok := m.cells[cellKey{target, namespace, cell}]
	if !ok {
		return nil, false, nil
	}

	out := make([]byte, len(data))
	copy(out, data)
	return out, true, nil
}

// Hold возвращает watermark hold.
func (m *Memory) Hold(_ context.Context, target domain.StepAndKey, namespace string) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return time.Time{}, false, ErrClosed
	}

	hold, ok := m.holds[holdKey{target, namespace}]
	return hold, ok, nil
}

// Commit атомарно применяет мутацию под общим мьютексом.
func (m *Memory) Commit(_ context.Context, target domain.StepAndKey, namespace string, mut Mutation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	for _, cell := range mut.Clears {
		delete(m.cells, cellKey{target, namespace, cell})
	}

	for cell, data := range mut.Writes {
		stored := make([]byte, len(data))
		copy(stored, data)
		m.cells[cellKey{target, namespace, cell}] = stored
	}

	hk := holdKey{target, namespace}
	if mut.ClearHold {
		delete(m.holds, hk)
	}
	if mut.AddHold != nil {
		if cur, ok := m.holds[hk]; !ok || mut.AddHold.Before(cur) {
			m.holds[hk] = *mut.AddHold
		}
	}

	if mut.SetTimer != nil {
		timer := *mut.SetTimer
		m.timers[timerKey{target, timer.Namespace, timer.TimerID}] = FiredTimer{Target: target, Timer: timer}
	}

	return nil
}

// FireDueTimers удаляет и возвращает созревшие таймеры.
func (m *Memory) FireDueTimers(_ context.Context, now time.Time) ([]FiredTimer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	var due []FiredTimer
	for k, ft := range m.timers {
		if !ft.Timer.FireAt.After(now) {
			due = append(due, ft)
			delete(m.timers, k)
		}
	}

	sortFired(due)
	return due, nil
}

// PendingTimers возвращает количество установленных таймеров.
func (m *Memory) PendingTimers(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrClosed
	}
	return len(m.timers), nil
}

// Close закрывает хранилище. Повторный вызов безопасен.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

// sortFired упорядочивает таймеры по времени, затем по адресату.
func sortFired(timers []FiredTimer) {
	sort.Slice(timers, func(i, j int) bool {
		a, b := timers[i], timers[j]
		if !a.Timer.FireAt.Equal(b.Timer.FireAt) {
			return a.Timer.FireAt.Before(b.Timer.FireAt)
		}
		return a.Target.String() < b.Target.String()
	})
}
