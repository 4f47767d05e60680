package core

import (
	"errors"

	"github.com/go-playground/validator/v10"

	"traindeck/internal/types"
)

// Validator wraps go-playground/validator and translates rule failures into
// the engine's error taxonomy.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a Validator using struct-tag rules.
func NewValidator() *Validator {
	return &Validator{
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// ValidateStruct checks dst against its validate tags. On failure it returns
// a 400 AppError whose details map lists each failing field and rule.
func (v *Validator) ValidateStruct(dst interface{}) error {
	err := v.validate.Struct(dst)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "validation could not run", err)
	}

	fields := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}

	appErr := types.NewAppError(
		types.ErrCodeValidationMissingField,
		"request failed validation",
		err,
	)
	appErr.Details = fields
	return appErr
}
