package engine

import (
	"errors"
	"testing"

	"github.com/shaiso/Flume/internal/domain"
)

func sdfSpec() *domain.PipelineSpec {
	return &domain.PipelineSpec{
		Name: "sdf",
		Stages: []domain.StageDef{
			{ID: "read", Kind: domain.KindCreate, Fn: "range"},
			{ID: "split", Kind: domain.KindSplit, Fn: "count_to", Inputs: []string{"read"}},
			{ID: "group", Kind: domain.KindGroupIntoKeyedWorkItems, Inputs: []string{"split"}},
			{ID: "process", Kind: domain.KindProcess, Fn: "count_to", Inputs: []string{"group"}},
		},
	}
}

func TestValidate_EmptyStages(t *testing.T) {
	tests := []struct {
		name string
		spec *domain.PipelineSpec
	}{
		{name: "nil spec", spec: nil},
		{name: "empty stages", spec: &domain.PipelineSpec{Stages: []domain.StageDef{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.spec)
			if !errors.Is(err, ErrEmptyStages) {
				t.Errorf("expected ErrEmptyStages, got %v", err)
			}
		})
	}
}

func TestValidate_StageErrors(t *testing.T) {
	tests := []struct {
		name    string
		stages  []domain.StageDef
		want    error
		stageID string
	}{
		{
			name:   "empty id",
			stages: []domain.StageDef{{ID: "", Kind: domain.KindCreate, Fn: "range"}},
			want:   ErrEmptyStageID,
		},
		{
			name: "duplicate id",
			stages: []domain.StageDef{
				{ID: "a", Kind: domain.KindCreate, Fn: "range"},
				{ID: "a", Kind: domain.KindCreate, Fn: "range"},
			},
			want:    ErrDuplicateStageID,
			stageID: "a",
		},
		{
			name:    "unknown kind",
			stages:  []domain.StageDef{{ID: "a", Kind: "flatten"}},
			want:    ErrUnknownStageKind,
			stageID: "a",
		},
		{
			name:    "missing fn",
			stages:  []domain.StageDef{{ID: "a", Kind: domain.KindCreate}},
			want:    ErrMissingFn,
			stageID: "a",
		},
		{
			name: "root with inputs",
			stages: []domain.StageDef{
				{ID: "a", Kind: domain.KindCreate, Fn: "range"},
				{ID: "b", Kind: domain.KindCreate, Fn: "range", Inputs: []string{"a"}},
			},
			want:    ErrRootWithInputs,
			stageID: "b",
		},
		{
			name:    "no inputs",
			stages:  []domain.StageDef{{ID: "a", Kind: domain.KindGroupByKey}},
			want:    ErrNoInputs,
			stageID: "a",
		},
		{
			name:    "self input",
			stages:  []domain.StageDef{{ID: "a", Kind: domain.KindGroupByKey, Inputs: []string{"a"}}},
			want:    ErrSelfInput,
			stageID: "a",
		},
		{
			name: "missing input",
			stages: []domain.StageDef{
				{ID: "a", Kind: domain.KindCreate, Fn: "range"},
				{ID: "b", Kind: domain.KindGroupByKey, Inputs: []string{"nope"}},
			},
			want:    ErrMissingInput,
			stageID: "b",
		},
		{
			name: "process reads unkeyed",
			stages: []domain.StageDef{
				{ID: "a", Kind: domain.KindCreate, Fn: "range"},
				{ID: "b", Kind: domain.KindProcess, Fn: "count_to", Inputs: []string{"a"}},
			},
			want:    ErrUnkeyedProcessInput,
			stageID: "b",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&domain.PipelineSpec{Stages: tt.stages})
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}

			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected ValidationError, got %T", err)
			}
			if vErr.StageID != tt.stageID {
				t.Errorf("expected stage %q, got %q", tt.stageID, vErr.StageID)
			}
		})
	}
}

func TestValidate_Cycle(t *testing.T) {
	spec := &domain.PipelineSpec{
		Stages: []domain.StageDef{
			{ID: "root", Kind: domain.KindCreate, Fn: "range"},
			{ID: "a", Kind: domain.KindParDo, Fn: "identity", Inputs: []string{"root", "b"}},
			{ID: "b", Kind: domain.KindParDo, Fn: "identity", Inputs: []string{"a"}},
		},
	}

	err := Validate(spec)
	if !errors.Is(err, ErrCyclicDependency) {
		t.Fatalf("expected ErrCyclicDependency, got %v", err)
	}
}

func TestValidate_ValidSpec(t *testing.T) {
	if err := Validate(sdfSpec()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParseSpec(t *testing.T) {
	data := []byte(`{
		"name": "gbk",
		"stages": [
			{"id": "read", "kind": "create", "fn": "keyed_range", "config": {"count": 100, "keys": 10}},
			{"id": "gbk", "kind": "group_by_key", "inputs": ["read"]},
			{"id": "explode", "kind": "par_do", "fn": "explode_values", "inputs": ["gbk"]}
		]
	}`)

	spec, err := ParseSpec(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if spec.Name != "gbk" {
		t.Errorf("expected name gbk, got %s", spec.Name)
	}
	if len(spec.Stages) != 3 {
		t.Fatalf("expected 3 stages, got %d", len(spec.Stages))
	}
	if spec.Stages[1].Kind != domain.KindGroupByKey {
		t.Errorf("expected group_by_key, got %s", spec.Stages[1].Kind)
	}
	if spec.Stages[0].Config["count"] != float64(100) {
		t.Errorf("expected count 100, got %v", spec.Stages[0].Config["count"])
	}
}

func TestParseSpec_InvalidJSON(t *testing.T) {
	_, err := ParseSpec([]byte(`{"stages": [`))
	if !errors.Is(err, ErrInvalidJSON) {
		t.Errorf("expected ErrInvalidJSON, got %v", err)
	}
}

func TestIsValidStageKind(t *testing.T) {
	for _, kind := range []domain.StageKind{"create", "par_do", "group_by_key", "split", "group_into_keyed_work_items", "process"} {
		if !IsValidStageKind(kind) {
			t.Errorf("expected %s to be valid", kind)
		}
	}
	if IsValidStageKind("window") {
		t.Error("window should not be valid")
	}
}
