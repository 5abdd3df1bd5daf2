package domain

import (
	"errors"
	"fmt"
)

// Category sentinels. Combine with NewSubSystemError for subsystem-specific codes.
var (
	ErrNotFound         = fmt.Errorf("not found")
	ErrDuplicate        = fmt.Errorf("duplicate")
	ErrTimeout          = fmt.Errorf("operation timed out")
	ErrPermissionDenied = fmt.Errorf("permission denied")
	ErrInvalidInput     = fmt.Errorf("invalid input")
	ErrProviderError    = fmt.Errorf("provider error")
)

// Sentinel errors for the domain layer.
var (
	ErrLLMNotFound        = fmt.Errorf("llm not found")
	ErrToolNotFound       = fmt.Errorf("tool not found")
	ErrChatNotFound       = fmt.Errorf("chat not found")
	ErrCapabilityMissing  = fmt.Errorf("llm capability missing")
	ErrIndexOutOfRange    = fmt.Errorf("index out of range")
	ErrInvalidTransition  = fmt.Errorf("invalid tool call transition")
	ErrGenerationAborted  = fmt.Errorf("chat generation aborted")
	ErrToolFailure        = fmt.Errorf("tool execution failed")
	ErrAuthFailed         = fmt.Errorf("authentication failed")
	ErrConfigLoad         = fmt.Errorf("failed to load configuration")
	ErrDecryption         = fmt.Errorf("decryption failed")
	ErrSettingUnknown     = fmt.Errorf("setting not registered")
	ErrCommandFailed      = fmt.Errorf("command failed")
	ErrNoConfirmer        = fmt.Errorf("no confirm dialog handler")
	ErrNoAuthorizer       = fmt.Errorf("no authorization prompter")
	ErrPluginNotActivated = fmt.Errorf("plugin not activated")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op        string // operation name (e.g., "Tools.Register")
	Err       error  // underlying sentinel or wrapped error
	Detail    string // human-readable detail
	SubSystem string // subsystem identifier (e.g., "plugin", "settings"); used for ErrorCode dispatch
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// NewSubSystemError creates a DomainError tagged with a subsystem for ErrorCode dispatch.
func NewSubSystemError(subsystem, op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail, SubSystem: subsystem}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ErrorCode is a machine-parseable error category for the frontend and metrics.
type ErrorCode string

const (
	CodeUnknown            ErrorCode = "UNKNOWN"
	CodeLLMNotFound        ErrorCode = "LLM_NOT_FOUND"
	CodeToolNotFound       ErrorCode = "TOOL_NOT_FOUND"
	CodeChatNotFound       ErrorCode = "CHAT_NOT_FOUND"
	CodeCapabilityMissing  ErrorCode = "CAPABILITY_MISSING"
	CodeIndexOutOfRange    ErrorCode = "INDEX_OUT_OF_RANGE"
	CodeInvalidTransition  ErrorCode = "INVALID_TRANSITION"
	CodeGenerationAborted  ErrorCode = "GENERATION_ABORTED"
	CodeToolFailure        ErrorCode = "TOOL_FAILURE"
	CodeAuthFailed         ErrorCode = "AUTH_FAILED"
	CodeConfigLoad         ErrorCode = "CONFIG_LOAD"
	CodeDecryption         ErrorCode = "DECRYPTION"
	CodeSettingUnknown     ErrorCode = "SETTING_UNKNOWN"
	CodeCommandFailed      ErrorCode = "COMMAND_FAILED"
	CodeNoConfirmer        ErrorCode = "NO_CONFIRMER"
	CodeNoAuthorizer       ErrorCode = "NO_AUTHORIZER"
	CodePluginNotActivated ErrorCode = "PLUGIN_NOT_ACTIVATED"

	// Subsystem-specific codes resolved through subSystemCodeMap.
	CodePluginNotFound    ErrorCode = "PLUGIN_NOT_FOUND"
	CodePluginDuplicate   ErrorCode = "PLUGIN_DUPLICATE"
	CodePluginPermission  ErrorCode = "PLUGIN_PERMISSION"
	CodeToolDuplicate     ErrorCode = "TOOL_DUPLICATE"
	CodeLLMDuplicate      ErrorCode = "LLM_DUPLICATE"
	CodeSettingDuplicate  ErrorCode = "SETTING_DUPLICATE"
	CodeSettingInvalid    ErrorCode = "SETTING_INVALID"
	CodeCommandNotFound   ErrorCode = "COMMAND_NOT_FOUND"
	CodeCommandDuplicate  ErrorCode = "COMMAND_DUPLICATE"
	CodePanelNotFound     ErrorCode = "CHAT_PANEL_NOT_FOUND"
	CodeUIDuplicate       ErrorCode = "UI_DUPLICATE"
	CodeToolArgsInvalid   ErrorCode = "TOOL_ARGUMENTS_INVALID"
	CodeAuthTimeout       ErrorCode = "AUTH_TIMEOUT"
	CodeDatabaseForbidden ErrorCode = "DATABASE_FORBIDDEN"

	// Category fallback codes.
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeDuplicate        ErrorCode = "DUPLICATE"
	CodeTimeout          ErrorCode = "TIMEOUT"
	CodePermissionDenied ErrorCode = "PERMISSION_DENIED"
	CodeInvalidInput     ErrorCode = "INVALID_INPUT"
	CodeProviderError    ErrorCode = "PROVIDER_ERROR"
)

var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:         CodeNotFound,
	ErrDuplicate:        CodeDuplicate,
	ErrTimeout:          CodeTimeout,
	ErrPermissionDenied: CodePermissionDenied,
	ErrInvalidInput:     CodeInvalidInput,
	ErrProviderError:    CodeProviderError,

	ErrLLMNotFound:        CodeLLMNotFound,
	ErrToolNotFound:       CodeToolNotFound,
	ErrChatNotFound:       CodeChatNotFound,
	ErrCapabilityMissing:  CodeCapabilityMissing,
	ErrIndexOutOfRange:    CodeIndexOutOfRange,
	ErrInvalidTransition:  CodeInvalidTransition,
	ErrGenerationAborted:  CodeGenerationAborted,
	ErrToolFailure:        CodeToolFailure,
	ErrAuthFailed:         CodeAuthFailed,
	ErrConfigLoad:         CodeConfigLoad,
	ErrDecryption:         CodeDecryption,
	ErrSettingUnknown:     CodeSettingUnknown,
	ErrCommandFailed:      CodeCommandFailed,
	ErrNoConfirmer:        CodeNoConfirmer,
	ErrNoAuthorizer:       CodeNoAuthorizer,
	ErrPluginNotActivated: CodePluginNotActivated,
}

// subSystemCodeMap maps (category sentinel, subsystem) pairs to specific codes.
var subSystemCodeMap = map[error]map[string]ErrorCode{
	ErrNotFound: {
		"plugin":  CodePluginNotFound,
		"command": CodeCommandNotFound,
		"ui":      CodePanelNotFound,
	},
	ErrDuplicate: {
		"plugin":   CodePluginDuplicate,
		"tools":    CodeToolDuplicate,
		"models":   CodeLLMDuplicate,
		"settings": CodeSettingDuplicate,
		"command":  CodeCommandDuplicate,
		"ui":       CodeUIDuplicate,
	},
	ErrPermissionDenied: {
		"plugin":   CodePluginPermission,
		"database": CodeDatabaseForbidden,
	},
	ErrInvalidInput: {
		"settings": CodeSettingInvalid,
		"tools":    CodeToolArgsInvalid,
	},
	ErrTimeout: {
		"auth": CodeAuthTimeout,
	},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code := de.Code(); code != CodeUnknown {
			return code
		}
	}

	// Specific sentinels first so that wrapped category sentinels don't shadow them.
	for sentinel, code := range errorCodeMap {
		if isCategory(sentinel) {
			continue
		}
		if errors.Is(err, sentinel) {
			return code
		}
	}
	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
// If SubSystem is set, checks the subSystemCodeMap for a specific code.
func (e *DomainError) Code() ErrorCode {
	if e.SubSystem != "" {
		if subsysMap, ok := subSystemCodeMap[e.Err]; ok {
			if code, ok := subsysMap[e.SubSystem]; ok {
				return code
			}
		}
	}
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	return CodeUnknown
}

func isCategory(err error) bool {
	switch err {
	case ErrNotFound, ErrDuplicate, ErrTimeout, ErrPermissionDenied, ErrInvalidInput, ErrProviderError:
		return true
	}
	return false
}
