package domain

import (
	"time"

	"github.com/google/uuid"
)

// Bundle — зафиксированная (committed) пачка элементов одной коллекции.
//
// Коллекция идентифицируется ID стадии, которая её производит.
// Keyed bundle дополнительно несёт ключ: все элементы принадлежат ему.
// После Commit bundle неизменяем и может безопасно читаться из разных горутин.
type Bundle struct {
	id          string
	collection  string
	key         string
	keyed       bool
	elements    []WindowedValue
	committedAt time.Time
}

// ID возвращает уникальный идентификатор bundle.
func (b Bundle) ID() string { return b.id }

// Collection возвращает ID коллекции (производящей стадии).
func (b Bundle) Collection() string { return b.collection }

// Key возвращает ключ bundle и признак его наличия.
func (b Bundle) Key() (string, bool) { return b.key, b.keyed }

// Elements возвращает копию списка элементов.
func (b Bundle) Elements() []WindowedValue {
	out := make([]WindowedValue, len(b.elements))
	copy(out, b.elements)
	return out
}

// Len возвращает количество элементов.
func (b Bundle) Len() int { return len(b.elements) }

// IsEmpty возвращает true для bundle без элементов.
func (b Bundle) IsEmpty() bool { return len(b.elements) == 0 }

// CommittedAt возвращает время фиксации.
func (b Bundle) CommittedAt() time.Time { return b.committedAt }

// UncommittedBundle — bundle в процессе наполнения.
//
// Не потокобезопасен: принадлежит одному evaluator'у на время обработки.
type UncommittedBundle struct {
	collection string
	key        string
	keyed      bool
	elements   []WindowedValue
	committed  bool
}

// NewBundle создаёт пустой bundle для коллекции без ключа.
func NewBundle(collection string) *UncommittedBundle {
	return &UncommittedBundle{collection: collection}
}

// NewKeyedBundle создаёт пустой bundle для коллекции с ключом.
func NewKeyedBundle(collection, key string) *UncommittedBundle {
	return &UncommittedBundle{collection: collection, key: key, keyed: true}
}

// Add добавляет элемент. После Commit вызов паникует.
func (u *UncommittedBundle) Add(wv WindowedValue) *UncommittedBundle {
	if u.committed {
		panic("domain: add to committed bundle " + u.collection)
	}
	u.elements = append(u.elements, wv)
	return u
}

// Len возвращает количество добавленных элементов.
func (u *UncommittedBundle) Len() int { return len(u.elements) }

// Commit фиксирует bundle и возвращает его неизменяемую версию.
func (u *UncommittedBundle) Commit(now time.Time) Bundle {
	u.committed = true
	elements := make([]WindowedValue, len(u.elements))
	copy(elements, u.elements)
	return Bundle{
		id:          uuid.NewString(),
		collection:  u.collection,
		key:         u.key,
		keyed:       u.keyed,
		elements:    elements,
		committedAt: now,
	}
}
