package executor

import (
	"context"
	"sync/atomic"

	"github.com/shaiso/Flume/internal/domain"
	"github.com/shaiso/Flume/internal/engine"
)

// CompletionCallback получает итог обработки bundle'а.
type CompletionCallback interface {
	HandleResult(input domain.Bundle, node *engine.Node, outputs []domain.Bundle)
	HandleError(input domain.Bundle, node *engine.Node, err error)
}

// TransformExecutor — замыкание над (bundle, стадия, callback).
//
// Run выполняет evaluator не больше одного раза: повторные вызовы
// ничего не делают.
type TransformExecutor struct {
	ctx       context.Context
	evaluator Evaluator
	bundle    domain.Bundle
	node      *engine.Node
	callback  CompletionCallback
	onDone    func()

	ran atomic.Bool
}

// NewTransformExecutor создаёт TransformExecutor. onDone вызывается
// после callback'а (может быть nil).
func NewTransformExecutor(ctx context.Context, ev Evaluator, bundle domain.Bundle, node *engine.Node, cb CompletionCallback, onDone func()) *TransformExecutor {
	return &TransformExecutor{
		ctx:       ctx,
		evaluator: ev,
		bundle:    bundle,
		node:      node,
		callback:  cb,
		onDone:    onDone,
	}
}

// Run обрабатывает bundle и сообщает итог callback'у.
func (t *TransformExecutor) Run() {
	if !t.ran.CompareAndSwap(false, true) {
		return
	}
	if t.onDone != nil {
		defer t.onDone()
	}

	outputs, err := t.evaluator.Evaluate(t.ctx, t.node, t.bundle)
	if err != nil {
		t.callback.HandleError(t.bundle, t.node, err)
		return
	}
	t.callback.HandleResult(t.bundle, t.node, outputs)
}
