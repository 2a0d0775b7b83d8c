package domain

import "time"

// TimeDomain — шкала времени таймера.
type TimeDomain string

const (
	// EventTime — таймер по watermark.
	EventTime TimeDomain = "EVENT_TIME"

	// ProcessingTime — таймер по системным часам.
	ProcessingTime TimeDomain = "PROCESSING_TIME"
)

// TimerData — один таймер work item'а.
type TimerData struct {
	// Namespace — пространство состояния, в котором выставлен таймер.
	Namespace string `json:"namespace"`

	// TimerID — идентификатор таймера внутри namespace.
	// Повторная установка с тем же ID заменяет таймер.
	TimerID string `json:"timer_id"`

	// FireAt — момент срабатывания.
	FireAt time.Time `json:"fire_at"`

	// Domain — шкала времени.
	Domain TimeDomain `json:"domain"`
}

// KeyedWorkItem — доставка work item'а в Resumable Element Processor.
//
// Ровно одна из форм:
//   - seed: Elements не пуст, Timers пуст;
//   - resume: ровно один элемент в Timers, Elements пуст.
//
// Остальные комбинации processor отклоняет как нарушение контракта.
type KeyedWorkItem struct {
	Key      string          `json:"key"`
	Elements []WindowedValue `json:"elements,omitempty"`
	Timers   []TimerData     `json:"timers,omitempty"`
}

// ElementsWorkItem создаёт seed-доставку.
func ElementsWorkItem(key string, elements ...WindowedValue) KeyedWorkItem {
	return KeyedWorkItem{Key: key, Elements: elements}
}

// TimersWorkItem создаёт resume-доставку.
func TimersWorkItem(key string, timers ...TimerData) KeyedWorkItem {
	return KeyedWorkItem{Key: key, Timers: timers}
}

// StepAndKey — пара (стадия, ключ). Выбирает serial lane и адресует состояние.
type StepAndKey struct {
	StageID string `json:"stage_id"`
	Key     string `json:"key"`
}

// String возвращает "stage/key".
func (sk StepAndKey) String() string {
	return sk.StageID + "/" + sk.Key
}
