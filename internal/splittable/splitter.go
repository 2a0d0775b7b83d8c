package splittable

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/shaiso/Flume/internal/domain"
)

// Splitter превращает элемент в набор keyed пар (уникальный ключ, элемент+restriction).
//
// Каждая пара получает свежий UUIDv4: дальнейшая группировка по нему
// даёт каждой паре собственный serial lane и собственное состояние.
type Splitter struct {
	fn     Fn
	newKey func() string
}

// NewSplitter создаёт Splitter для функции.
func NewSplitter(fn Fn) *Splitter {
	return &Splitter{fn: fn, newKey: uuid.NewString}
}

// InitialRestriction вызывает функцию для начальной restriction.
func (s *Splitter) InitialRestriction(element any) (r Restriction, err error) {
	defer recoverFn("initial_restriction", &err)

	r, err = s.fn.InitialRestriction(element)
	if err != nil {
		return nil, &FnError{Op: "initial_restriction", Err: err}
	}
	return r, nil
}

// SplitRestriction делит restriction. Ноль частей — нарушение контракта.
func (s *Splitter) SplitRestriction(element any, r Restriction) (parts []Restriction, err error) {
	defer recoverFn("split_restriction", &err)

	parts, err = splitRestriction(s.fn, element, r)
	if err != nil {
		return nil, &FnError{Op: "split_restriction", Err: err}
	}
	if len(parts) == 0 {
		return nil, ErrEmptySplit
	}
	return parts, nil
}

// AssignKey присваивает паре новый уникальный ключ.
func (s *Splitter) AssignKey(pair ElementAndRestriction) (string, ElementAndRestriction) {
	return s.newKey(), pair
}

// Split выполняет полный шаг для одного элемента: restriction, split, ключи.
//
// Выходы — KV{уникальный ключ, ElementAndRestriction} с метаданными входа.
func (s *Splitter) Split(wv domain.WindowedValue) ([]domain.WindowedValue, error) {
	r, err := s.InitialRestriction(wv.Value)
	if err != nil {
		return nil, err
	}

	parts, err := s.SplitRestriction(wv.Value, r)
	if err != nil {
		return nil, err
	}

	out := make([]domain.WindowedValue, 0, len(parts))
	for _, part := range parts {
		key, pair := s.AssignKey(ElementAndRestriction{Element: wv.Value, Restriction: part})
		out = append(out, wv.WithValue(domain.KV{Key: key, Value: pair}))
	}

	return out, nil
}

// GroupIntoKeyedWorkItems группирует пары строго по ключу.
//
// Окна входа не учитываются: результат выдаётся сразу, в глобальном окне.
// Копии одной пары в разных окнах попадают в один work item.
// Порядок work item'ов соответствует первому появлению ключа.
func GroupIntoKeyedWorkItems(kvs []domain.WindowedValue) ([]domain.KeyedWorkItem, error) {
	index := make(map[string]int)
	items := make([]domain.KeyedWorkItem, 0)

	for _, wv := range kvs {
		kv, ok := wv.Value.(domain.KV)
		if !ok {
			return nil, fmt.Errorf("group into keyed work items: expected KV, got %T", wv.Value)
		}

		i, seen := index[kv.Key]
		if !seen {
			i = len(items)
			index[kv.Key] = i
			items = append(items, domain.KeyedWorkItem{Key: kv.Key})
		}

		items[i].Elements = append(items[i].Elements, wv.WithValue(kv.Value))
	}

	return items, nil
}

// recoverFn превращает панику пользовательской функции в FnError.
func recoverFn(op string, err *error) {
	if r := recover(); r != nil {
		*err = &FnError{Op: op, Err: fmt.Errorf("panic: %v", r)}
	}
}
