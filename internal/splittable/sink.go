package splittable

import (
	"sync"
	"time"

	"github.com/shaiso/Flume/internal/domain"
)

// DefaultMaxOutputs — потолок выходов одного вызова.
const DefaultMaxOutputs = 10000

// OutputSink штампует выходы метаданными элемента и считает их.
//
// При достижении maxOutputs onCeiling вызывается ровно один раз.
// Функция может выдать ещё немного результатов после этого:
// остановить её может только tracker.
type OutputSink struct {
	mu         sync.Mutex
	element    domain.WindowedValue
	emit       func(domain.WindowedValue)
	maxOutputs int
	onCeiling  func()
	count      int
	reached    bool
}

// NewOutputSink создаёт sink. maxOutputs <= 0 означает DefaultMaxOutputs.
func NewOutputSink(element domain.WindowedValue, maxOutputs int, emit func(domain.WindowedValue), onCeiling func()) *OutputSink {
	if maxOutputs <= 0 {
		maxOutputs = DefaultMaxOutputs
	}
	return &OutputSink{
		element:    element,
		emit:       emit,
		maxOutputs: maxOutputs,
		onCeiling:  onCeiling,
	}
}

// Output выдаёт значение с timestamp'ом, окнами и pane элемента.
func (s *OutputSink) Output(v any) {
	s.OutputWithTimestamp(v, s.element.Timestamp)
}

// OutputWithTimestamp выдаёт значение с заданным timestamp'ом.
func (s *OutputSink) OutputWithTimestamp(v any, ts time.Time) {
	out := s.element.WithValue(v)
	out.Timestamp = ts
	s.emit(out)

	s.mu.Lock()
	s.count++
	fire := !s.reached && s.count >= s.maxOutputs
	if fire {
		s.reached = true
	}
	s.mu.Unlock()

	if fire && s.onCeiling != nil {
		s.onCeiling()
	}
}

// Count возвращает количество выданных элементов.
func (s *OutputSink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// CeilingReached возвращает true, если потолок был достигнут.
func (s *OutputSink) CeilingReached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reached
}
