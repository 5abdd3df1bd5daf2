package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainErrorFormat(t *testing.T) {
	err := NewDomainError("Tools.Get", ErrToolNotFound, "tool 'search'")
	assert.Equal(t, "Tools.Get: tool 'search': tool not found", err.Error())
}

func TestDomainErrorFormatNoDetail(t *testing.T) {
	err := NewDomainError("Generation.Run", ErrGenerationAborted, "")
	assert.Equal(t, "Generation.Run: chat generation aborted", err.Error())
}

func TestDomainErrorUnwrap(t *testing.T) {
	err := NewDomainError("PromptBuilder.RemoveMessage", ErrIndexOutOfRange, "index 4")
	assert.True(t, errors.Is(err, ErrIndexOutOfRange))
}

func TestDomainErrorAs(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewDomainError("Models.Get", ErrLLMNotFound, "gpt"))
	var de *DomainError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "Models.Get", de.Op)
}

func TestWrapOp(t *testing.T) {
	assert.NoError(t, WrapOp("noop", nil))

	err := WrapOp("storage.set", ErrInvalidInput)
	assert.EqualError(t, err, "storage.set: invalid input")
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

// --- ErrorCode tests ---

func TestErrorCodeOf_DirectSentinel(t *testing.T) {
	assert.Equal(t, CodeToolNotFound, ErrorCodeOf(ErrToolNotFound))
	assert.Equal(t, CodeAuthFailed, ErrorCodeOf(ErrAuthFailed))
	assert.Equal(t, CodeNotFound, ErrorCodeOf(ErrNotFound))
}

func TestErrorCodeOf_WrappedError(t *testing.T) {
	err := fmt.Errorf("generate: %w", ErrGenerationAborted)
	assert.Equal(t, CodeGenerationAborted, ErrorCodeOf(err))
}

func TestErrorCodeOf_SubSystem(t *testing.T) {
	tests := []struct {
		subsystem string
		sentinel  error
		want      ErrorCode
	}{
		{"plugin", ErrDuplicate, CodePluginDuplicate},
		{"tools", ErrDuplicate, CodeToolDuplicate},
		{"settings", ErrInvalidInput, CodeSettingInvalid},
		{"command", ErrNotFound, CodeCommandNotFound},
		{"unknown", ErrNotFound, CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.subsystem, func(t *testing.T) {
			err := NewSubSystemError(tt.subsystem, "op", tt.sentinel, "detail")
			assert.Equal(t, tt.want, ErrorCodeOf(err))
			assert.Equal(t, tt.want, err.Code())
		})
	}
}

func TestErrorCodeOf_SpecificBeatsCategory(t *testing.T) {
	err := fmt.Errorf("%w: %w", ErrNotFound, ErrChatNotFound)
	assert.Equal(t, CodeChatNotFound, ErrorCodeOf(err))
}

func TestErrorCodeOf_Unknown(t *testing.T) {
	assert.Equal(t, CodeUnknown, ErrorCodeOf(nil))
	assert.Equal(t, CodeUnknown, ErrorCodeOf(errors.New("boom")))
}
