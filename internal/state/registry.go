package state

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Имена встроенных backend'ов.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config — параметры подключения к backend'ам.
type Config struct {
	// RedisAddr — адрес Redis (host:port).
	RedisAddr string

	// RedisPrefix — префикс ключей Redis.
	RedisPrefix string

	// DBURL — строка подключения PostgreSQL.
	DBURL string

	// Scope — идентификатор pipeline, которым помечаются строки в PostgreSQL.
	Scope string
}

// Opener открывает backend по конфигурации.
type Opener func(ctx context.Context, cfg Config) (Backend, error)

// Registry — реестр backend'ов по имени.
//
// Registry владеет открытыми backend'ами: Close закрывает их все.
type Registry struct {
	mu      sync.RWMutex
	openers map[string]Opener
	opened  []Backend
}

// NewRegistry создаёт реестр с memory и redis backend'ами.
func NewRegistry() *Registry {
	r := &Registry{
		openers: make(map[string]Opener),
	}

	r.Register(BackendMemory, func(context.Context, Config) (Backend, error) {
		return NewMemory(), nil
	})
	r.Register(BackendRedis, func(ctx context.Context, cfg Config) (Backend, error) {
		return OpenRedis(ctx, cfg.RedisAddr, cfg.RedisPrefix)
	})

	return r
}

// Register регистрирует opener. Повторная регистрация заменяет предыдущий.
func (r *Registry) Register(name string, opener Opener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.openers[name] = opener
}

// Has проверяет, зарегистрирован ли backend.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.openers[name]
	return ok
}

// Names возвращает отсортированный список имён.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.openers))
	for name := range r.openers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open открывает backend и запоминает его для Close.
func (r *Registry) Open(ctx context.Context, name string, cfg Config) (Backend, error) {
	r.mu.RLock()
	opener, ok := r.openers[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, name)
	}

	backend, err := opener(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", name, err)
	}

	r.mu.Lock()
	r.opened = append(r.opened, backend)
	r.mu.Unlock()

	return backend, nil
}

// Close закрывает все открытые backend'ы в обратном порядке.
func (r *Registry) Close() error {
	r.mu.Lock()
	opened := r.opened
	r.opened = nil
	r.mu.Unlock()

	var errs []error
	for i := len(opened) - 1; i >= 0; i-- {
		if err := opened[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
