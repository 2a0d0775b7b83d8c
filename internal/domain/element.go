package domain

import "time"

// Window — окно, которому принадлежит элемент.
//
// Глобальное окно покрывает всю ось времени. Splittable стадии не
// инспектируют окна, а только переносят их на выход.
type Window struct {
	// Start — начало окна (включительно).
	Start time.Time `json:"start"`

	// End — конец окна (исключительно).
	End time.Time `json:"end"`

	// Global — true для глобального окна.
	Global bool `json:"global,omitempty"`
}

// MinTimestamp и MaxTimestamp — границы времени событий.
// Обе представимы в JSON (год в диапазоне [0,9999]) и в timestamptz.
var (
	MinTimestamp = time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC)
	MaxTimestamp = time.Date(9999, time.December, 31, 23, 59, 59, 0, time.UTC)
)

// GlobalWindow возвращает глобальное окно.
func GlobalWindow() Window {
	return Window{Start: MinTimestamp, End: MaxTimestamp, Global: true}
}

// Equal сравнивает окна.
func (w Window) Equal(other Window) bool {
	if w.Global || other.Global {
		return w.Global == other.Global
	}
	return w.Start.Equal(other.Start) && w.End.Equal(other.End)
}

// PaneTiming — момент срабатывания pane относительно watermark.
type PaneTiming string

const (
	PaneEarly   PaneTiming = "EARLY"
	PaneOnTime  PaneTiming = "ON_TIME"
	PaneLate    PaneTiming = "LATE"
	PaneUnknown PaneTiming = "UNKNOWN"
)

// Pane — метаданные pane, в котором элемент был произведён.
type Pane struct {
	IsFirst bool       `json:"is_first"`
	IsLast  bool       `json:"is_last"`
	Timing  PaneTiming `json:"timing"`
	Index   int64      `json:"index"`
}

// NoFiringPane — pane по умолчанию для элементов без trigger'ов.
func NoFiringPane() Pane {
	return Pane{IsFirst: true, IsLast: true, Timing: PaneUnknown}
}

// WindowedValue — конверт элемента: значение, timestamp, окна и pane.
//
// После создания WindowedValue не изменяется. With* методы возвращают копию.
type WindowedValue struct {
	Value     any       `json:"value"`
	Timestamp time.Time `json:"timestamp"`
	Windows   []Window  `json:"windows"`
	Pane      Pane      `json:"pane"`
}

// ValueInGlobalWindow создаёт элемент в глобальном окне с нулевым timestamp'ом.
func ValueInGlobalWindow(v any) WindowedValue {
	return WindowedValue{
		Value:     v,
		Timestamp: MinTimestamp,
		Windows:   []Window{GlobalWindow()},
		Pane:      NoFiringPane(),
	}
}

// TimestampedValue создаёт элемент в глобальном окне с заданным timestamp'ом.
func TimestampedValue(v any, ts time.Time) WindowedValue {
	wv := ValueInGlobalWindow(v)
	wv.Timestamp = ts
	return wv
}

// WithValue возвращает копию с другим значением и теми же метаданными.
func (wv WindowedValue) WithValue(v any) WindowedValue {
	windows := make([]Window, len(wv.Windows))
	copy(windows, wv.Windows)
	return WindowedValue{
		Value:     v,
		Timestamp: wv.Timestamp,
		Windows:   windows,
		Pane:      wv.Pane,
	}
}

// KV — пара ключ/значение. Ключ всегда строковый: grouping и serial lanes
// сравнивают ключи по закодированному представлению.
type KV struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}
