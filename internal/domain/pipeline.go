package domain

// StageKind — тип стадии pipeline.
type StageKind string

const (
	// KindCreate — корневая стадия, элементы выдаёт RootFn.
	KindCreate StageKind = "create"

	// KindParDo — поэлементное преобразование DoFn.
	KindParDo StageKind = "par_do"

	// KindGroupByKey — группировка KV по ключу. Выход keyed.
	KindGroupByKey StageKind = "group_by_key"

	// KindSplit — splittable стадия: restriction, split, уникальный ключ.
	KindSplit StageKind = "split"

	// KindGroupIntoKeyedWorkItems — группировка пар по уникальному ключу
	// в KeyedWorkItem. Выход keyed.
	KindGroupIntoKeyedWorkItems StageKind = "group_into_keyed_work_items"

	// KindProcess — Resumable Element Processor.
	KindProcess StageKind = "process"
)

// IsRoot возвращает true для стадий без входов.
func (k StageKind) IsRoot() bool {
	return k == KindCreate
}

// NeedsFn возвращает true, если стадия вызывает пользовательскую функцию.
func (k StageKind) NeedsFn() bool {
	switch k {
	case KindCreate, KindParDo, KindSplit, KindProcess:
		return true
	default:
		return false
	}
}

// PipelineSpec — декларативное описание pipeline (JSON).
//
// Стадии ссылаются на функции по имени из реестра transforms.
type PipelineSpec struct {
	// Name — имя pipeline.
	Name string `json:"name,omitempty"`

	// Description — описание назначения.
	Description string `json:"description,omitempty"`

	// Stages — стадии в произвольном порядке. Порядок выполнения
	// определяется входами.
	Stages []StageDef `json:"stages"`
}

// StageDef — определение стадии.
type StageDef struct {
	// ID — уникальный идентификатор стадии. Он же ID выходной коллекции.
	ID string `json:"id"`

	// Name — человекочитаемое имя.
	Name string `json:"name,omitempty"`

	// Kind — тип стадии.
	Kind StageKind `json:"kind"`

	// Inputs — ID стадий, чьи выходы потребляет эта стадия.
	Inputs []string `json:"inputs,omitempty"`

	// Fn — имя зарегистрированной функции.
	Fn string `json:"fn,omitempty"`

	// Config — параметры функции (например, count для create).
	Config map[string]any `json:"config,omitempty"`
}
