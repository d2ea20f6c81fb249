package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorMessage(t *testing.T) {
	err := NewNotFoundError("PERSONA_NOT_FOUND", "persona does not exist")
	assert.Equal(t, "[PERSONA_NOT_FOUND] persona does not exist", err.Error())
	assert.Equal(t, http.StatusNotFound, err.StatusCode)
	assert.NotEmpty(t, err.Stack)
}

func TestFromErrorPassesThroughAppErrors(t *testing.T) {
	original := NewConflictError("DUPLICATE", "already exists")
	wrapped := fmt.Errorf("while handling request: %w", original)

	got := FromError(wrapped)
	assert.Equal(t, original.Code, got.Code)
	assert.Equal(t, http.StatusConflict, got.StatusCode)
}

func TestFromErrorWrapsUnknownErrors(t *testing.T) {
	got := FromError(errors.New("boom"))
	require.NotNil(t, got)
	assert.Equal(t, "INTERNAL_ERROR", got.Code)
	assert.Equal(t, http.StatusInternalServerError, got.StatusCode)
}

func TestIsMatchesByCode(t *testing.T) {
	target := NewBadRequestError("VALIDATION_ERROR", "bad input")
	same := fmt.Errorf("wrapped: %w", NewBadRequestError("VALIDATION_ERROR", "other message"))

	assert.True(t, Is(same, target))
	assert.False(t, Is(errors.New("plain"), target))
}

func TestWithDetails(t *testing.T) {
	err := NewBadRequestError("VALIDATION_ERROR", "bad input").
		WithDetails(map[string]string{"field": "content"})
	assert.NotNil(t, err.Details)
}
