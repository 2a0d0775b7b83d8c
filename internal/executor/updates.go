package executor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/Flume/internal/evaluator"
)

// UpdateKind — тип видимого обновления pipeline.
type UpdateKind string

const (
	// UpdateException — сбой пользовательского кода.
	UpdateException UpdateKind = "exception"

	// UpdateError — сбой исполнителя или хранилища.
	UpdateError UpdateKind = "error"

	// UpdateCancelled — pipeline отменён.
	UpdateCancelled UpdateKind = "cancelled"

	// UpdateCompleted — вся работа выполнена.
	UpdateCompleted UpdateKind = "completed"
)

// Update — видимое обновление состояния pipeline.
type Update struct {
	PipelineID string
	Kind       UpdateKind
	Err        error
	At         time.Time
}

// IsFailure возвращает true для exception и error.
func (u Update) IsFailure() bool {
	return u.Kind == UpdateException || u.Kind == UpdateError
}

// MessageReceiver — канал завершения, в который driver сообщает итог.
type MessageReceiver interface {
	Failed(err error)
	Cancelled()
	Completed()
}

// UpdateObserver получает копию каждого обновления (например, mq.Publisher).
// Вызывается синхронно и не должен блокироваться надолго.
type UpdateObserver interface {
	OnUpdate(u Update)
}

// updateQueue — неограниченная очередь видимых обновлений.
//
// Ошибки всех опубликованных обновлений копятся в failures и не
// удаляются при чтении очереди: их видит каждый ожидающий.
type updateQueue struct {
	pipelineID string

	mu        sync.Mutex
	items     []Update
	failures  []error
	signal    chan struct{}
	observers []UpdateObserver
	logger    *slog.Logger
}

func newUpdateQueue(pipelineID string, observers []UpdateObserver, logger *slog.Logger) *updateQueue {
	return &updateQueue{
		pipelineID: pipelineID,
		signal:     make(chan struct{}, 1),
		observers:  observers,
		logger:     logger,
	}
}

// Failed публикует сбой: exception для пользовательского кода, иначе error.
func (q *updateQueue) Failed(err error) {
	kind := UpdateError
	if evaluator.IsUserCode(err) {
		kind = UpdateException
	}
	q.offer(Update{Kind: kind, Err: err, At: time.Now()})
}

// Cancelled публикует отмену.
func (q *updateQueue) Cancelled() {
	q.offer(Update{Kind: UpdateCancelled, At: time.Now()})
}

// Completed публикует успешное завершение.
func (q *updateQueue) Completed() {
	q.offer(Update{Kind: UpdateCompleted, At: time.Now()})
}

func (q *updateQueue) offer(u Update) {
	u.PipelineID = q.pipelineID

	q.mu.Lock()
	q.items = append(q.items, u)
	if u.Err != nil {
		q.failures = append(q.failures, u.Err)
	}
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}

	for _, obs := range q.observers {
		q.notify(obs, u)
	}
}

func (q *updateQueue) notify(obs UpdateObserver, u Update) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("update observer panicked", "kind", u.Kind, "error", r)
		}
	}()
	obs.OnUpdate(u)
}

// tryNext ждёт обновление не дольше timeout. Ошибка — только от ctx.
func (q *updateQueue) tryNext(ctx context.Context, timeout time.Duration) (Update, bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			u := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return u, true, nil
		}
		q.mu.Unlock()

		select {
		case <-q.signal:
		case <-timer.C:
			return Update{}, false, nil
		case <-ctx.Done():
			return Update{}, false, ctx.Err()
		}
	}
}

// failure возвращает накопленные сбои: первый как есть, несколько
// как PipelineError. Порядок — порядок публикации.
func (q *updateQueue) failure() error {
	q.mu.Lock()
	errs := append([]error(nil), q.failures...)
	q.mu.Unlock()
	return chainFailures(errs)
}

// drain забирает все накопленные обновления.
func (q *updateQueue) drain() []Update {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.items
	q.items = nil
	return out
}
