package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))

	err := New(KindTimeout, "timed out after %ds", 20)
	assert.Equal(t, KindTimeout, KindOf(err))

	// 被 fmt.Errorf 包装后依然能识别
	wrapped := fmt.Errorf("get fix: %w", err)
	assert.True(t, IsKind(wrapped, KindTimeout))
	assert.True(t, IsRetryable(wrapped))
}

func TestValidation_ListsAllFields(t *testing.T) {
	err := Validation([]FieldError{
		{Field: "name", Message: "too short"},
		{Field: "phone", Message: "invalid"},
	})
	assert.Equal(t, KindValidation, err.Kind)
	assert.False(t, err.Retryable)
	assert.Contains(t, err.Error(), "name: too short")
	assert.Contains(t, err.Error(), "phone: invalid")
}

func TestWrap_UnwrapsCause(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := Wrap(KindLedgerSubmission, cause, "submit alert").WithStage("submitting_ledger")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "submitting_ledger", err.Stage)
	assert.Equal(t, "submit alert: dial tcp: refused", err.Error())
}

func TestClone(t *testing.T) {
	orig := Validation([]FieldError{{Field: "phone", Message: "required"}})
	c := orig.Clone().WithStage("loading")

	assert.Equal(t, "loading", c.Stage)
	assert.Empty(t, orig.Stage)
	c.Fields[0].Message = "changed"
	assert.Equal(t, "required", orig.Fields[0].Message)
}
