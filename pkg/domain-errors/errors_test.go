package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	t.Run("direct code matches", func(t *testing.T) {
		err := New(CodeEditLocked, "document is not a draft")
		assert.True(t, HasCode(err, CodeEditLocked))
		assert.False(t, HasCode(err, CodeNotFound))
	})

	t.Run("wrapped code is found through the chain", func(t *testing.T) {
		inner := New(CodeConflict, "version already recorded")
		outer := Wrap(inner, CodeInternal, "issue failed")
		assert.True(t, HasCode(outer, CodeConflict))
		assert.True(t, HasCode(outer, CodeInternal))
	})

	t.Run("fmt-wrapped errors still match", func(t *testing.T) {
		err := fmt.Errorf("append revision: %w", New(CodeAlreadyIssued, "not a draft"))
		assert.True(t, HasCode(err, CodeAlreadyIssued))
	})

	t.Run("plain errors carry no code", func(t *testing.T) {
		assert.False(t, HasCode(errors.New("boom"), CodeInternal))
		assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	})
}

func TestErrorsIsMatchesByValue(t *testing.T) {
	t.Run("separate instances with the same code and message match", func(t *testing.T) {
		err := New(CodeUnauthorized, "invalid token")
		assert.ErrorIs(t, err, New(CodeUnauthorized, "invalid token"))
	})

	t.Run("message mismatch does not match", func(t *testing.T) {
		err := New(CodeUnauthorized, "invalid token")
		assert.NotErrorIs(t, err, New(CodeUnauthorized, "token has expired"))
	})

	t.Run("code mismatch does not match", func(t *testing.T) {
		err := New(CodeUnauthorized, "invalid token")
		assert.NotErrorIs(t, err, New(CodeForbidden, "invalid token"))
	})

	t.Run("empty target message matches any message of the code", func(t *testing.T) {
		err := New(CodeEditLocked, "document is not a draft")
		assert.ErrorIs(t, err, New(CodeEditLocked, ""))
	})

	t.Run("matches through wrapping", func(t *testing.T) {
		err := fmt.Errorf("issue: %w", New(CodeAlreadyIssued, "document has already been issued"))
		assert.ErrorIs(t, err, New(CodeAlreadyIssued, "document has already been issued"))
	})

	t.Run("plain errors never match", func(t *testing.T) {
		assert.NotErrorIs(t, New(CodeInternal, "boom"), errors.New("boom"))
	})
}

func TestWrap(t *testing.T) {
	t.Run("nil passes through", func(t *testing.T) {
		require.NoError(t, Wrap(nil, CodeInternal, "ignored"))
	})

	t.Run("cause is preserved", func(t *testing.T) {
		cause := errors.New("connection reset")
		err := Wrap(cause, CodeTimeout, "transaction aborted")
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, CodeTimeout, CodeOf(err))
		assert.Equal(t, "transaction aborted", MessageOf(err))
	})
}
