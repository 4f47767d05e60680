package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traindeck/internal/types"
)

type validatedRequest struct {
	Token    string `json:"token" validate:"required,min=8"`
	Platform string `json:"platform" validate:"required,oneof=android ios"`
}

func TestValidateStruct_Success(t *testing.T) {
	v := NewValidator()

	err := v.ValidateStruct(validatedRequest{
		Token:    "fcm-token-abcdef",
		Platform: "android",
	})
	require.NoError(t, err)
}

func TestValidateStruct_ReportsFailingFields(t *testing.T) {
	v := NewValidator()

	err := v.ValidateStruct(validatedRequest{
		Token:    "abc",
		Platform: "windows",
	})
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeValidationMissingField, appErr.Code)
	assert.Equal(t, "min", appErr.Details["Token"])
	assert.Equal(t, "oneof", appErr.Details["Platform"])
}
