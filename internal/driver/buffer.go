package driver

import (
	"fmt"

	"github.com/shaiso/Flume/internal/domain"
)

// groupBuffer копит входы одной стадии group_by_key до окончания
// работы всех её предков.
type groupBuffer struct {
	// input — коллекция, от имени которой сбрасываются bundle'ы.
	input string

	// ancestors — стадии выше по потоку.
	ancestors map[string]bool

	// waitsOnTimers — среди предков есть стадия process.
	waitsOnTimers bool

	keys    []string
	values  map[string][]domain.WindowedValue
	flushed bool
}

func newGroupBuffer(input string, ancestors map[string]bool, waitsOnTimers bool) *groupBuffer {
	return &groupBuffer{
		input:         input,
		ancestors:     ancestors,
		waitsOnTimers: waitsOnTimers,
		values:        make(map[string][]domain.WindowedValue),
	}
}

// add раскладывает элементы bundle'а по ключам в порядке появления.
func (b *groupBuffer) add(bundle domain.Bundle) error {
	if b.flushed {
		return fmt.Errorf("%w: bundle %s", ErrLateData, bundle.ID())
	}

	for _, wv := range bundle.Elements() {
		kv, ok := wv.Value.(domain.KV)
		if !ok {
			return fmt.Errorf("%w: got %T", ErrNotKV, wv.Value)
		}
		if _, seen := b.values[kv.Key]; !seen {
			b.keys = append(b.keys, kv.Key)
		}
		b.values[kv.Key] = append(b.values[kv.Key], wv)
	}
	return nil
}

// take отдаёт накопленные данные и помечает буфер сброшенным.
func (b *groupBuffer) take() ([]string, map[string][]domain.WindowedValue) {
	keys, values := b.keys, b.values
	b.keys = nil
	b.values = nil
	b.flushed = true
	return keys, values
}
