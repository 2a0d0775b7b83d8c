package evaluator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shaiso/Flume/internal/domain"
	"github.com/shaiso/Flume/internal/engine"
	"github.com/shaiso/Flume/internal/splittable"
	"github.com/shaiso/Flume/internal/state"
	"github.com/shaiso/Flume/internal/transforms"
)

var testNow = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func buildGraph(t *testing.T, stages ...domain.StageDef) *engine.Graph {
	t.Helper()
	g, err := engine.BuildGraph(&domain.PipelineSpec{Name: "test", Stages: stages})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return g
}

func newTestRegistry(fns FnSource, backend state.Backend) *Registry {
	return NewRegistry(Config{
		Functions: fns,
		Backend:   backend,
		Now:       func() time.Time { return testNow },
	})
}

func elements(b domain.Bundle) []any {
	out := make([]any, 0, b.Len())
	for _, wv := range b.Elements() {
		out = append(out, wv.Value)
	}
	return out
}

// --- Registry Tests ---

func TestRegistry_Types(t *testing.T) {
	r := newTestRegistry(nil, nil)

	want := []domain.StageKind{
		domain.KindCreate,
		domain.KindGroupByKey,
		domain.KindGroupIntoKeyedWorkItems,
		domain.KindParDo,
		domain.KindProcess,
		domain.KindSplit,
	}

	types := r.Types()
	if len(types) != len(want) {
		t.Fatalf("expected %v, got %v", want, types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("type %d: expected %s, got %s", i, want[i], types[i])
		}
	}

	if _, err := r.Get("unknown"); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("expected ErrUnknownKind, got %v", err)
	}
}

func TestRegistry_Cleanup(t *testing.T) {
	r := newTestRegistry(nil, nil)

	var order []string
	errA := errors.New("a failed")
	errB := errors.New("b failed")

	r.OnCleanup(func() error { order = append(order, "a"); return errA })
	r.OnCleanup(func() error { order = append(order, "b"); return errB })
	r.OnCleanup(func() error { order = append(order, "c"); return nil })

	err := r.Cleanup()
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Errorf("expected both errors, got %v", err)
	}
	if strings.Join(order, ",") != "c,b,a" {
		t.Errorf("expected reverse order, got %v", order)
	}

	if err := r.Cleanup(); err != nil {
		t.Errorf("second cleanup should be a no-op, got %v", err)
	}
	if len(order) != 3 {
		t.Errorf("cleanups ran twice: %v", order)
	}
}

// --- Create Tests ---

func TestCreate_InitialInputs(t *testing.T) {
	g := buildGraph(t, domain.StageDef{
		ID: "read", Kind: domain.KindCreate, Fn: "range",
		Config: map[string]any{"count": 10},
	})
	r := newTestRegistry(transforms.DefaultRegistry(), nil)

	inputs, err := r.InitialInputs(context.Background(), g.Node("read"), 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(inputs) != 3 {
		t.Fatalf("expected 3 bundles, got %d", len(inputs))
	}

	sizes := []int{inputs[0].Len(), inputs[1].Len(), inputs[2].Len()}
	if sizes[0] != 4 || sizes[1] != 3 || sizes[2] != 3 {
		t.Errorf("expected round-robin 4/3/3, got %v", sizes)
	}
	if inputs[0].Collection() != RootCollection("read") {
		t.Errorf("unexpected collection %s", inputs[0].Collection())
	}

	out, err := r.Evaluate(context.Background(), g.Node("read"), inputs[1])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || out[0].Collection() != "read" || out[0].Len() != 3 {
		t.Errorf("unexpected outputs %v", out)
	}
	if _, keyed := out[0].Key(); keyed {
		t.Error("create output must not be keyed")
	}
}

func TestCreate_FewerElementsThanShards(t *testing.T) {
	g := buildGraph(t, domain.StageDef{
		ID: "read", Kind: domain.KindCreate, Fn: "range",
		Config: map[string]any{"count": 2},
	})
	r := newTestRegistry(transforms.DefaultRegistry(), nil)

	inputs, err := r.InitialInputs(context.Background(), g.Node("read"), 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(inputs) != 2 {
		t.Errorf("expected 2 bundles, got %d", len(inputs))
	}
}

func TestInitialInputs_NotRoot(t *testing.T) {
	g := buildGraph(t,
		domain.StageDef{ID: "read", Kind: domain.KindCreate, Fn: "range"},
		domain.StageDef{ID: "map", Kind: domain.KindParDo, Fn: "identity", Inputs: []string{"read"}},
	)
	r := newTestRegistry(transforms.DefaultRegistry(), nil)

	_, err := r.InitialInputs(context.Background(), g.Node("map"), 3)
	if !errors.Is(err, ErrNotRoot) {
		t.Errorf("expected ErrNotRoot, got %v", err)
	}
}

// --- ParDo Tests ---

func TestParDo_UserErrors(t *testing.T) {
	boom := errors.New("boom")

	fns := transforms.NewRegistry()
	fns.RegisterRoot("range", transforms.NewRange)
	fns.RegisterDo("fail", func(map[string]any) (transforms.DoFn, error) {
		return transforms.DoFunc(func(context.Context, domain.WindowedValue, func(any)) error {
			return boom
		}), nil
	})
	fns.RegisterDo("panic", func(map[string]any) (transforms.DoFn, error) {
		return transforms.DoFunc(func(context.Context, domain.WindowedValue, func(any)) error {
			panic("kaboom")
		}), nil
	})

	tests := []struct {
		name    string
		fn      string
		wantErr error
		wantMsg string
	}{
		{name: "returned error", fn: "fail", wantErr: boom},
		{name: "panic", fn: "panic", wantMsg: "panic: kaboom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := buildGraph(t,
				domain.StageDef{ID: "read", Kind: domain.KindCreate, Fn: "range"},
				domain.StageDef{ID: "map", Kind: domain.KindParDo, Fn: tt.fn, Inputs: []string{"read"}},
			)
			r := newTestRegistry(fns, nil)

			in := domain.NewBundle("read").Add(domain.ValueInGlobalWindow(1)).Commit(testNow)
			_, err := r.Evaluate(context.Background(), g.Node("map"), in)

			var uce *UserCodeError
			if !errors.As(err, &uce) {
				t.Fatalf("expected UserCodeError, got %v", err)
			}
			if uce.Stage != "map" {
				t.Errorf("expected stage map, got %s", uce.Stage)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
			if tt.wantMsg != "" && !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("expected %q in %q", tt.wantMsg, err.Error())
			}
		})
	}
}

func TestParDo_KeepsMetadata(t *testing.T) {
	g := buildGraph(t,
		domain.StageDef{ID: "read", Kind: domain.KindCreate, Fn: "range"},
		domain.StageDef{ID: "map", Kind: domain.KindParDo, Fn: "identity", Inputs: []string{"read"}},
	)
	r := newTestRegistry(transforms.DefaultRegistry(), nil)

	ts := testNow.Add(time.Minute)
	in := domain.NewKeyedBundle("read", "k").Add(domain.TimestampedValue("x", ts)).Commit(testNow)

	out, err := r.Evaluate(context.Background(), g.Node("map"), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(out) != 1 || out[0].Len() != 1 {
		t.Fatalf("unexpected outputs %v", out)
	}
	if _, keyed := out[0].Key(); keyed {
		t.Error("par_do output must not be keyed")
	}
	if !out[0].Elements()[0].Timestamp.Equal(ts) {
		t.Errorf("expected timestamp %v, got %v", ts, out[0].Elements()[0].Timestamp)
	}
}

// --- GroupByKey Tests ---

func TestGroupByKey(t *testing.T) {
	g := buildGraph(t,
		domain.StageDef{ID: "read", Kind: domain.KindCreate, Fn: "keyed_range"},
		domain.StageDef{ID: "gbk", Kind: domain.KindGroupByKey, Inputs: []string{"read"}},
	)
	r := newTestRegistry(transforms.DefaultRegistry(), nil)

	early := testNow.Add(-time.Hour)
	in := domain.NewKeyedBundle("read", "k").
		Add(domain.TimestampedValue(domain.KV{Key: "k", Value: 1}, testNow)).
		Add(domain.TimestampedValue(domain.KV{Key: "k", Value: 2}, early)).
		Commit(testNow)

	out, err := r.Evaluate(context.Background(), g.Node("gbk"), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 bundle, got %d", len(out))
	}

	key, keyed := out[0].Key()
	if !keyed || key != "k" {
		t.Errorf("expected keyed output for k, got %q (%v)", key, keyed)
	}

	wv := out[0].Elements()[0]
	kv := wv.Value.(domain.KV)
	values := kv.Value.([]any)
	if len(values) != 2 || values[0] != 1 || values[1] != 2 {
		t.Errorf("unexpected values %v", values)
	}
	if !wv.Timestamp.Equal(early) {
		t.Errorf("expected earliest timestamp, got %v", wv.Timestamp)
	}
}

func TestGroupByKey_Errors(t *testing.T) {
	g := buildGraph(t,
		domain.StageDef{ID: "read", Kind: domain.KindCreate, Fn: "keyed_range"},
		domain.StageDef{ID: "gbk", Kind: domain.KindGroupByKey, Inputs: []string{"read"}},
	)
	r := newTestRegistry(transforms.DefaultRegistry(), nil)

	tests := []struct {
		name   string
		bundle domain.Bundle
		want   error
	}{
		{
			name:   "unkeyed bundle",
			bundle: domain.NewBundle("read").Add(domain.ValueInGlobalWindow(domain.KV{Key: "k"})).Commit(testNow),
			want:   ErrUnkeyedBundle,
		},
		{
			name:   "not a KV",
			bundle: domain.NewKeyedBundle("read", "k").Add(domain.ValueInGlobalWindow(1)).Commit(testNow),
			want:   ErrNotKV,
		},
		{
			name:   "key mismatch",
			bundle: domain.NewKeyedBundle("read", "k").Add(domain.ValueInGlobalWindow(domain.KV{Key: "z"})).Commit(testNow),
			want:   ErrKeyMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Evaluate(context.Background(), g.Node("gbk"), tt.bundle)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if IsUserCode(err) {
				t.Error("grouping errors are not user code errors")
			}
		})
	}
}

// --- Splittable Stage Tests ---

func sdfGraph(t *testing.T, fn string, cfg map[string]any) *engine.Graph {
	return buildGraph(t,
		domain.StageDef{ID: "read", Kind: domain.KindCreate, Fn: "range"},
		domain.StageDef{ID: "split", Kind: domain.KindSplit, Fn: fn, Config: cfg, Inputs: []string{"read"}},
		domain.StageDef{ID: "group", Kind: domain.KindGroupIntoKeyedWorkItems, Inputs: []string{"split"}},
		domain.StageDef{ID: "process", Kind: domain.KindProcess, Fn: fn, Config: cfg, Inputs: []string{"group"}},
	)
}

func TestSplittableStages(t *testing.T) {
	g := sdfGraph(t, "count_to", map[string]any{"parts": 2})
	backend := state.NewMemory()
	r := newTestRegistry(transforms.DefaultRegistry(), backend)
	ctx := context.Background()

	in := domain.NewBundle("read").Add(domain.ValueInGlobalWindow(int64(4))).Commit(testNow)

	split, err := r.Evaluate(ctx, g.Node("split"), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(split) != 1 || split[0].Len() != 2 {
		t.Fatalf("expected one bundle with 2 pairs, got %v", split)
	}

	groups, err := r.Evaluate(ctx, g.Node("group"), split[0])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("expected one work item per key, got %d", len(groups))
	}

	var positions []any
	for _, b := range groups {
		key, keyed := b.Key()
		if !keyed {
			t.Fatal("work item bundles must be keyed")
		}
		item := b.Elements()[0].Value.(domain.KeyedWorkItem)
		if item.Key != key {
			t.Errorf("work item key %q differs from bundle key %q", item.Key, key)
		}

		out, err := r.Evaluate(ctx, g.Node("process"), b)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, ob := range out {
			positions = append(positions, elements(ob)...)
		}

		if _, ok, _ := backend.Read(ctx, domain.StepAndKey{StageID: "process", Key: key}, state.GlobalNamespace, state.CellElement); ok {
			t.Errorf("state for %s must be cleared after completion", key)
		}
	}

	if len(positions) != 4 {
		t.Errorf("expected 4 positions, got %v", positions)
	}
}

// emptySplitFn делит restriction на ноль частей.
type emptySplitFn struct {
	*transforms.CountTo
}

func (emptySplitFn) SplitRestriction(any, splittable.Restriction) ([]splittable.Restriction, error) {
	return nil, nil
}

func TestSplit_EmptySplitIsContractViolation(t *testing.T) {
	fns := transforms.NewRegistry()
	fns.RegisterSplittable("empty", func(map[string]any) (splittable.Fn, error) {
		return emptySplitFn{&transforms.CountTo{Parts: 1}}, nil
	})

	g := sdfGraph(t, "empty", nil)
	r := newTestRegistry(fns, state.NewMemory())

	in := domain.NewBundle("read").Add(domain.ValueInGlobalWindow(int64(4))).Commit(testNow)
	_, err := r.Evaluate(context.Background(), g.Node("split"), in)

	if !errors.Is(err, splittable.ErrEmptySplit) {
		t.Errorf("expected ErrEmptySplit, got %v", err)
	}
	if IsUserCode(err) {
		t.Error("empty split must not be reported as a user code error")
	}
}

func TestSplit_UserErrorIsUserCode(t *testing.T) {
	g := sdfGraph(t, "count_to", nil)
	r := newTestRegistry(transforms.DefaultRegistry(), state.NewMemory())

	in := domain.NewBundle("read").Add(domain.ValueInGlobalWindow("not a number")).Commit(testNow)
	_, err := r.Evaluate(context.Background(), g.Node("split"), in)

	if !IsUserCode(err) {
		t.Errorf("expected UserCodeError, got %v", err)
	}
}

func TestProcess_RequiresKeyedBundle(t *testing.T) {
	g := sdfGraph(t, "count_to", nil)
	r := newTestRegistry(transforms.DefaultRegistry(), state.NewMemory())

	in := domain.NewBundle("group").Add(domain.ValueInGlobalWindow(1)).Commit(testNow)
	_, err := r.Evaluate(context.Background(), g.Node("process"), in)
	if !errors.Is(err, ErrUnkeyedBundle) {
		t.Errorf("expected ErrUnkeyedBundle, got %v", err)
	}

	in = domain.NewKeyedBundle("group", "k").Add(domain.ValueInGlobalWindow(1)).Commit(testNow)
	_, err = r.Evaluate(context.Background(), g.Node("process"), in)
	if !errors.Is(err, ErrNotWorkItem) {
		t.Errorf("expected ErrNotWorkItem, got %v", err)
	}
}
