package domain

import (
	"errors"
	"fmt"
)

// Category sentinels; use with NewSubSystemError for subsystem-specific errors.
var (
	ErrNotFound     = fmt.Errorf("not found")
	ErrDuplicate    = fmt.Errorf("duplicate")
	ErrTimeout      = fmt.Errorf("operation timed out")
	ErrLimitReached = fmt.Errorf("limit reached")
	ErrInvalidInput = fmt.Errorf("invalid input")
)

// Sentinel errors for the generation pipeline.
var (
	// Transport errors are terminal for the session; the consumer may retry
	// by starting a fresh one.
	ErrTransport = fmt.Errorf("stream transport failed")
	// ErrStreamError is reported when the producer sends an "error" event.
	ErrStreamError = fmt.Errorf("generation stream reported an error")
	// ErrInactivity is reported when a stream produced no event for too long.
	ErrInactivity = fmt.Errorf("stream inactivity timeout: %w", ErrTimeout)
	// ErrCancelled is reported when the consumer disconnected the session.
	ErrCancelled = fmt.Errorf("session cancelled")

	// ErrNotAuthenticated is reported (not raised as a session error) when no
	// credential is available to start a session.
	ErrNotAuthenticated      = fmt.Errorf("not authenticated")
	ErrCredentialUnavailable = fmt.Errorf("credential unavailable")

	// ErrUnknownFormat marks a parse whose top-level value matches neither
	// accepted document shape. Logged, never fatal.
	ErrUnknownFormat = fmt.Errorf("unknown document format")
	// ErrLayoutNotFound marks a resolution miss. Logged, never fatal.
	ErrLayoutNotFound = fmt.Errorf("layout not found")
	ErrRegistryFrozen = fmt.Errorf("layout registry is frozen")

	ErrSessionNotFound     = fmt.Errorf("session not found")
	ErrPresentationMissing = fmt.Errorf("presentation not found: %w", ErrNotFound)
	ErrStoreUnavailable    = fmt.Errorf("presentation store unavailable")

	ErrConfigLoad = fmt.Errorf("failed to load configuration")
	ErrDecryption = fmt.Errorf("decryption failed")
	ErrEncryption = fmt.Errorf("encryption operation failed")

	// Gateway / RPC errors.
	ErrAuthInvalid       = fmt.Errorf("authentication failed")
	ErrGatewayAuthFailed = fmt.Errorf("gateway: %w", ErrAuthInvalid)
	ErrRPCMethodNotFound = fmt.Errorf("rpc method not found")
	ErrRPCInvalidPayload = fmt.Errorf("rpc payload invalid")
	ErrRateLimit         = fmt.Errorf("rate limit exceeded")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op        string // operation name (e.g., "Controller.Start")
	Err       error  // underlying sentinel or wrapped error
	Detail    string // human-readable detail
	SubSystem string // subsystem identifier (e.g., "layout", "store"); used for ErrorCode dispatch
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

// IsRetryableError reports whether a fresh session may succeed where err failed.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrTransport) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrRateLimit)
}

// ErrorCode is a machine-parseable error category for monitoring and alerting.
type ErrorCode string

const (
	CodeUnknown            ErrorCode = "UNKNOWN"
	CodeTransport          ErrorCode = "TRANSPORT"
	CodeStreamError        ErrorCode = "STREAM_ERROR"
	CodeInactivity         ErrorCode = "INACTIVITY_TIMEOUT"
	CodeCancelled          ErrorCode = "CANCELLED"
	CodeNotAuthenticated   ErrorCode = "NOT_AUTHENTICATED"
	CodeCredentialUnavail  ErrorCode = "CREDENTIAL_UNAVAILABLE"
	CodeUnknownFormat      ErrorCode = "UNKNOWN_FORMAT"
	CodeLayoutNotFound     ErrorCode = "LAYOUT_NOT_FOUND"
	CodeRegistryFrozen     ErrorCode = "REGISTRY_FROZEN"
	CodeSessionNotFound    ErrorCode = "SESSION_NOT_FOUND"
	CodePresentationMissng ErrorCode = "PRESENTATION_NOT_FOUND"
	CodeStoreUnavailable   ErrorCode = "STORE_UNAVAILABLE"
	CodeConfigLoad         ErrorCode = "CONFIG_LOAD"
	CodeDecryption         ErrorCode = "DECRYPTION"
	CodeEncryption         ErrorCode = "ENCRYPTION"
	CodeAuthInvalid        ErrorCode = "AUTH_INVALID"
	CodeGatewayAuth        ErrorCode = "GATEWAY_AUTH"
	CodeRPCMethodNotFound  ErrorCode = "RPC_METHOD_NOT_FOUND"
	CodeRPCInvalidPayload  ErrorCode = "RPC_INVALID_PAYLOAD"
	CodeRateLimit          ErrorCode = "RATE_LIMIT"

	// Subsystem-specific codes used by subSystemCodeMap.
	CodeLayoutDuplicate ErrorCode = "LAYOUT_DUPLICATE"
	CodeLayoutKey       ErrorCode = "LAYOUT_KEY_INVALID"

	// Category error codes: fallback codes when no subsystem-specific code matches.
	CodeNotFound     ErrorCode = "NOT_FOUND"
	CodeDuplicate    ErrorCode = "DUPLICATE"
	CodeTimeout      ErrorCode = "TIMEOUT"
	CodeLimitReached ErrorCode = "LIMIT_REACHED"
	CodeInvalidInput ErrorCode = "INVALID_INPUT"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:     CodeNotFound,
	ErrDuplicate:    CodeDuplicate,
	ErrTimeout:      CodeTimeout,
	ErrLimitReached: CodeLimitReached,
	ErrInvalidInput: CodeInvalidInput,

	ErrTransport:             CodeTransport,
	ErrStreamError:           CodeStreamError,
	ErrInactivity:            CodeInactivity,
	ErrCancelled:             CodeCancelled,
	ErrNotAuthenticated:      CodeNotAuthenticated,
	ErrCredentialUnavailable: CodeCredentialUnavail,
	ErrUnknownFormat:         CodeUnknownFormat,
	ErrLayoutNotFound:        CodeLayoutNotFound,
	ErrRegistryFrozen:        CodeRegistryFrozen,
	ErrSessionNotFound:       CodeSessionNotFound,
	ErrPresentationMissing:   CodePresentationMissng,
	ErrStoreUnavailable:      CodeStoreUnavailable,
	ErrConfigLoad:            CodeConfigLoad,
	ErrDecryption:            CodeDecryption,
	ErrEncryption:            CodeEncryption,
	ErrAuthInvalid:           CodeAuthInvalid,
	ErrGatewayAuthFailed:     CodeGatewayAuth,
	ErrRPCMethodNotFound:     CodeRPCMethodNotFound,
	ErrRPCInvalidPayload:     CodeRPCInvalidPayload,
	ErrRateLimit:             CodeRateLimit,
}

// subSystemCodeMap maps (category sentinel, subsystem) pairs to specific ErrorCodes.
var subSystemCodeMap = map[error]map[string]ErrorCode{
	ErrNotFound: {
		"layout": CodeLayoutNotFound,
		"store":  CodePresentationMissng,
	},
	ErrDuplicate: {
		"layout": CodeLayoutDuplicate,
	},
	ErrInvalidInput: {
		"layout": CodeLayoutKey,
	},
	ErrTimeout: {
		"session": CodeInactivity,
	},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	// Fast path: direct sentinel lookup.
	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code := de.Code(); code != CodeUnknown {
			return code
		}
	}

	// Walk the error chain. Specific sentinels wrap category sentinels, so
	// prefer a non-category match when several apply.
	best := CodeUnknown
	for sentinel, code := range errorCodeMap {
		if !errors.Is(err, sentinel) {
			continue
		}
		if !isCategoryCode(code) {
			return code
		}
		best = code
	}
	return best
}

func isCategoryCode(c ErrorCode) bool {
	switch c {
	case CodeNotFound, CodeDuplicate, CodeTimeout, CodeLimitReached, CodeInvalidInput:
		return true
	}
	return false
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
