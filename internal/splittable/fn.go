package splittable

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shaiso/Flume/internal/domain"
)

// Fn — обязательные возможности splittable функции.
type Fn interface {
	// InitialRestriction описывает всю работу над элементом.
	InitialRestriction(element any) (Restriction, error)

	// NewTracker создаёт tracker для restriction.
	NewTracker(r Restriction) (Tracker, error)

	// ProcessElement выполняет часть работы. Функция заявляет позиции
	// через tracker и выдаёт результаты через ProcessContext.
	ProcessElement(ctx context.Context, pc *ProcessContext, tracker Tracker) (Continuation, error)

	// RestrictionCoder кодирует остатки для хранения между вызовами.
	RestrictionCoder() RestrictionCoder
}

// RestrictionSplitter — опциональная возможность: начальное разбиение.
// Без неё restriction не делится.
type RestrictionSplitter interface {
	SplitRestriction(element any, r Restriction) ([]Restriction, error)
}

// ElementDecoder — опциональная возможность: восстановление элемента
// из JSON при resume. Без неё используется json.Unmarshal в any.
type ElementDecoder interface {
	DecodeElement(data []byte) (any, error)
}

// ElementAndRestriction — пара, которую Splitter отдаёт в группировку.
type ElementAndRestriction struct {
	Element     any         `json:"element"`
	Restriction Restriction `json:"restriction"`
}

// DefaultSplit возвращает restriction без разбиения.
func DefaultSplit(_ any, r Restriction) ([]Restriction, error) {
	return []Restriction{r}, nil
}

// splitRestriction вызывает RestrictionSplitter, если он есть.
func splitRestriction(fn Fn, element any, r Restriction) ([]Restriction, error) {
	if s, ok := fn.(RestrictionSplitter); ok {
		return s.SplitRestriction(element, r)
	}
	return DefaultSplit(element, r)
}

// decodeElement восстанавливает значение элемента.
func decodeElement(fn Fn, data []byte) (any, error) {
	if d, ok := fn.(ElementDecoder); ok {
		return d.DecodeElement(data)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// ProcessContext — окружение одного вызова ProcessElement.
type ProcessContext struct {
	element domain.WindowedValue
	sink    *OutputSink
}

// NewProcessContext создаёт окружение вызова для элемента и sink'а.
func NewProcessContext(element domain.WindowedValue, sink *OutputSink) *ProcessContext {
	return &ProcessContext{element: element, sink: sink}
}

// Element возвращает значение элемента.
func (c *ProcessContext) Element() any { return c.element.Value }

// Timestamp возвращает timestamp элемента.
func (c *ProcessContext) Timestamp() time.Time { return c.element.Timestamp }

// Windows возвращает окна элемента.
func (c *ProcessContext) Windows() []domain.Window {
	out := make([]domain.Window, len(c.element.Windows))
	copy(out, c.element.Windows)
	return out
}

// Pane возвращает pane элемента.
func (c *ProcessContext) Pane() domain.Pane { return c.element.Pane }

// Output выдаёт результат с метаданными элемента.
func (c *ProcessContext) Output(v any) { c.sink.Output(v) }

// OutputWithTimestamp выдаёт результат с другим timestamp'ом.
func (c *ProcessContext) OutputWithTimestamp(v any, ts time.Time) {
	c.sink.OutputWithTimestamp(v, ts)
}

// Continuation — решение функции после вызова.
type Continuation struct {
	resume       bool
	delay        time.Duration
	watermark    time.Time
	hasWatermark bool
}

// Done — работа над restriction закончена.
func Done() Continuation {
	return Continuation{}
}

// ResumeAfter — продолжить остаток не раньше чем через delay.
func ResumeAfter(delay time.Duration) Continuation {
	if delay < 0 {
		delay = 0
	}
	return Continuation{resume: true, delay: delay}
}

// WithWatermark объявляет нижнюю границу timestamp'ов будущих выходов.
func (c Continuation) WithWatermark(t time.Time) Continuation {
	c.watermark = t
	c.hasWatermark = true
	return c
}

// ShouldResume возвращает true, если функция просит продолжения.
func (c Continuation) ShouldResume() bool { return c.resume }

// Delay возвращает задержку перед продолжением.
func (c Continuation) Delay() time.Duration { return c.delay }

// Watermark возвращает объявленный watermark.
func (c Continuation) Watermark() (time.Time, bool) {
	return c.watermark, c.hasWatermark
}
