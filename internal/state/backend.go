package state

import (
	"context"
	"time"

	"github.com/shaiso/Flume/internal/domain"
)

// GlobalNamespace — namespace состояния для seed-доставок.
const GlobalNamespace = "global"

// Ячейки состояния work item'а.
const (
	// CellElement — закодированный элемент (пишется один раз при seed).
	CellElement = "element"

	// CellRestriction — закодированный остаток работы.
	CellRestriction = "restriction"
)

// Mutation — набор изменений, применяемый к одному (target, namespace) атомарно.
//
// Порядок применения: Clears, Writes, ClearHold, AddHold, SetTimer.
// Либо применяется всё, либо ничего.
type Mutation struct {
	// Writes — ячейки для записи (cell → данные).
	Writes map[string][]byte

	// Clears — ячейки для удаления.
	Clears []string

	// AddHold — добавить watermark hold. Hold накапливает минимум.
	AddHold *time.Time

	// ClearHold — снять watermark hold.
	ClearHold bool

	// SetTimer — установить processing-time таймер.
	// Таймер с тем же (namespace, TimerID) заменяется.
	SetTimer *domain.TimerData
}

// IsEmpty возвращает true, если мутация ничего не меняет.
func (m Mutation) IsEmpty() bool {
	return len(m.Writes) == 0 && len(m.Clears) == 0 &&
		m.AddHold == nil && !m.ClearHold && m.SetTimer == nil
}

// FiredTimer — сработавший таймер вместе с адресатом.
type FiredTimer struct {
	Target domain.StepAndKey `json:"target"`
	Timer  domain.TimerData  `json:"timer"`
}

// Backend — хранилище состояния и таймеров.
//
// Все методы потокобезопасны. Взаимоисключение по (stage, key)
// обеспечивают serial lanes, а не backend.
type Backend interface {
	// Read читает ячейку. ok=false, если ячейка не записана.
	Read(ctx context.Context, target domain.StepAndKey, namespace, cell string) (data []byte, ok bool, err error)

	// Hold возвращает текущий watermark hold.
	Hold(ctx context.Context, target domain.StepAndKey, namespace string) (hold time.Time, ok bool, err error)

	// Commit атомарно применяет мутацию.
	Commit(ctx context.Context, target domain.StepAndKey, namespace string, m Mutation) error

	// FireDueTimers удаляет и возвращает таймеры с FireAt <= now,
	// упорядоченные по времени срабатывания.
	FireDueTimers(ctx context.Context, now time.Time) ([]FiredTimer, error)

	// PendingTimers возвращает количество установленных таймеров.
	PendingTimers(ctx context.Context) (int, error)

	// Close освобождает ресурсы.
	Close() error
}
