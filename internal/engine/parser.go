package engine

import (
	"encoding/json"
	"fmt"

	"github.com/shaiso/Flume/internal/domain"
)

// Допустимые типы стадий.
var validStageKinds = map[domain.StageKind]bool{
	domain.KindCreate:                  true,
	domain.KindParDo:                   true,
	domain.KindGroupByKey:              true,
	domain.KindSplit:                   true,
	domain.KindGroupIntoKeyedWorkItems: true,
	domain.KindProcess:                 true,
}

// ParseSpec разбирает PipelineSpec из JSON и валидирует его.
func ParseSpec(data []byte) (*domain.PipelineSpec, error) {
	var spec domain.PipelineSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}

	if err := Validate(&spec); err != nil {
		return nil, err
	}

	return &spec, nil
}

// Validate выполняет полную валидацию PipelineSpec.
//
// Проверяет:
// - Наличие стадий
// - Уникальность ID стадий
// - Корректность типов стадий и наличие Fn
// - Валидность входов (inputs)
// - Отсутствие циклов (делегируется BuildGraph)
func Validate(spec *domain.PipelineSpec) error {
	if spec == nil || len(spec.Stages) == 0 {
		return ErrEmptyStages
	}

	stageIDs := make(map[string]bool)

	for i := range spec.Stages {
		if err := ValidateStage(&spec.Stages[i], stageIDs); err != nil {
			return err
		}
	}

	if err := validateInputs(spec.Stages, stageIDs); err != nil {
		return err
	}

	if _, err := BuildGraph(spec); err != nil {
		return err
	}

	return nil
}

// ValidateStage валидирует одну стадию.
// stageIDs — уже встреченные ID стадий (для проверки уникальности).
func ValidateStage(stage *domain.StageDef, stageIDs map[string]bool) error {
	if stage.ID == "" {
		return NewValidationError("", "id", "stage has empty ID", ErrEmptyStageID)
	}

	if stageIDs[stage.ID] {
		return NewValidationError(stage.ID, "id",
			fmt.Sprintf("duplicate stage ID: %s", stage.ID), ErrDuplicateStageID)
	}
	stageIDs[stage.ID] = true

	if !validStageKinds[stage.Kind] {
		return NewValidationError(stage.ID, "kind",
			fmt.Sprintf("unknown stage kind: %q", stage.Kind), ErrUnknownStageKind)
	}

	if stage.Kind.NeedsFn() && stage.Fn == "" {
		return NewValidationError(stage.ID, "fn",
			fmt.Sprintf("%s stage requires fn", stage.Kind), ErrMissingFn)
	}

	if stage.Kind.IsRoot() && len(stage.Inputs) > 0 {
		return NewValidationError(stage.ID, "inputs",
			"root stage cannot have inputs", ErrRootWithInputs)
	}

	if !stage.Kind.IsRoot() && len(stage.Inputs) == 0 {
		return NewValidationError(stage.ID, "inputs",
			fmt.Sprintf("%s stage requires inputs", stage.Kind), ErrNoInputs)
	}

	for _, in := range stage.Inputs {
		if in == stage.ID {
			return NewValidationError(stage.ID, "inputs",
				"stage reads itself", ErrSelfInput)
		}
	}

	return nil
}

// validateInputs проверяет, что все inputs ссылаются на существующие стадии.
func validateInputs(stages []domain.StageDef, stageIDs map[string]bool) error {
	kinds := make(map[string]domain.StageKind, len(stages))
	for i := range stages {
		kinds[stages[i].ID] = stages[i].Kind
	}

	for i := range stages {
		stage := &stages[i]

		for _, in := range stage.Inputs {
			if !stageIDs[in] {
				return NewValidationError(stage.ID, "inputs",
					fmt.Sprintf("reads unknown stage: %s", in), ErrMissingInput)
			}

			// Processor принимает только KeyedWorkItem
			if stage.Kind == domain.KindProcess && kinds[in] != domain.KindGroupIntoKeyedWorkItems {
				return NewValidationError(stage.ID, "inputs",
					fmt.Sprintf("reads %s stage %s", kinds[in], in), ErrUnkeyedProcessInput)
			}
		}
	}

	return nil
}

// IsValidStageKind проверяет, является ли тип стадии допустимым.
func IsValidStageKind(kind domain.StageKind) bool {
	return validStageKinds[kind]
}
