package transforms

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shaiso/Flume/internal/splittable"
)

// Registry — реестр пользовательских функций по имени.
//
// Стадии pipeline ссылаются на функции через StageDef.Fn.
// Потокобезопасен.
type Registry struct {
	mu         sync.RWMutex
	roots      map[string]RootFactory
	dos        map[string]DoFactory
	splittable map[string]SplittableFactory
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		roots:      make(map[string]RootFactory),
		dos:        make(map[string]DoFactory),
		splittable: make(map[string]SplittableFactory),
	}
}

// DefaultRegistry создаёт реестр со всеми встроенными функциями.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.RegisterRoot("range", NewRange)
	r.RegisterRoot("keyed_range", NewKeyedRange)
	r.RegisterDo("identity", NewIdentity)
	r.RegisterDo("explode_values", NewExplodeValues)
	r.RegisterDo("count_values", NewCountValues)
	r.RegisterSplittable("count_to", NewCountTo)

	return r
}

// RegisterRoot регистрирует источник. Существующая запись перезаписывается.
func (r *Registry) RegisterRoot(name string, f RootFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roots[name] = f
}

// RegisterDo регистрирует DoFn.
func (r *Registry) RegisterDo(name string, f DoFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dos[name] = f
}

// RegisterSplittable регистрирует splittable функцию.
func (r *Registry) RegisterSplittable(name string, f SplittableFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.splittable[name] = f
}

// Root создаёт источник по имени.
func (r *Registry) Root(name string, cfg map[string]any) (RootFn, error) {
	r.mu.RLock()
	f, ok := r.roots[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: root %s", ErrFnNotFound, name)
	}
	return f(cfg)
}

// Do создаёт DoFn по имени.
func (r *Registry) Do(name string, cfg map[string]any) (DoFn, error) {
	r.mu.RLock()
	f, ok := r.dos[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: do %s", ErrFnNotFound, name)
	}
	return f(cfg)
}

// Splittable создаёт splittable функцию по имени.
func (r *Registry) Splittable(name string, cfg map[string]any) (splittable.Fn, error) {
	r.mu.RLock()
	f, ok := r.splittable[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: splittable %s", ErrFnNotFound, name)
	}
	return f(cfg)
}

// HasRoot проверяет, зарегистрирован ли источник.
func (r *Registry) HasRoot(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.roots[name]
	return ok
}

// HasDo проверяет, зарегистрирована ли DoFn.
func (r *Registry) HasDo(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.dos[name]
	return ok
}

// HasSplittable проверяет, зарегистрирована ли splittable функция.
func (r *Registry) HasSplittable(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.splittable[name]
	return ok
}

// Names возвращает отсортированные имена всех функций с префиксом вида.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.roots)+len(r.dos)+len(r.splittable))
	for n := range r.roots {
		names = append(names, "root/"+n)
	}
	for n := range r.dos {
		names = append(names, "do/"+n)
	}
	for n := range r.splittable {
		names = append(names, "splittable/"+n)
	}
	sort.Strings(names)
	return names
}
