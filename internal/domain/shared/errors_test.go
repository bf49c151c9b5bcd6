package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_IsMatchesByCode(t *testing.T) {
	err := NewNotFoundError("Product", 42)

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrPermissionDenied))
	assert.Equal(t, "Product with id 42 not found", err.Error())
}

func TestDomainError_WrapsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewStorageError("save product", cause)

	assert.ErrorIs(t, err, cause)
	assert.True(t, IsStorageError(err))
	assert.Contains(t, err.Error(), "connection reset")

	wrapped := fmt.Errorf("service: %w", err)
	assert.True(t, IsStorageError(wrapped))
	assert.Equal(t, CodeStorageError, ErrorCode(wrapped))
}

func TestErrorKindPredicates(t *testing.T) {
	tests := []struct {
		err   error
		check func(error) bool
	}{
		{NewNotFoundError("Product", "x"), IsNotFound},
		{NewPermissionDeniedError("no"), IsPermissionDenied},
		{NewQuotaExceededError("full"), IsQuotaExceeded},
		{NewInvalidArgumentError("bad"), IsInvalidArgument},
		{NewStorageError("op", errors.New("x")), IsStorageError},
		{NewPublishError("ProductCreated", errors.New("x")), IsPublishError},
		{NewConcurrentModificationError("Product", "x"), IsConcurrentModification},
	}
	for _, tt := range tests {
		assert.True(t, tt.check(tt.err), tt.err.Error())
	}
	assert.Empty(t, ErrorCode(errors.New("plain")))
	assert.False(t, IsNotFound(nil))
}
