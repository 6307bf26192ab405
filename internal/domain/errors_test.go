package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainErrorFormat(t *testing.T) {
	err := NewDomainError("Registry.Register", ErrDuplicate, "standard:title-slide")
	want := "Registry.Register: standard:title-slide: duplicate"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorFormatNoDetail(t *testing.T) {
	err := NewDomainError("Controller.Start", ErrNotAuthenticated, "")
	want := "Controller.Start: not authenticated"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorUnwrap(t *testing.T) {
	err := NewDomainError("HTTPTransport.Open", ErrTransport, "HTTP 502")
	if !errors.Is(err, ErrTransport) {
		t.Error("errors.Is should match ErrTransport")
	}
}

func TestErrorCodeOf_DirectSentinel(t *testing.T) {
	assert.Equal(t, CodeTransport, ErrorCodeOf(ErrTransport))
	assert.Equal(t, CodeNotAuthenticated, ErrorCodeOf(ErrNotAuthenticated))
	assert.Equal(t, CodeLayoutNotFound, ErrorCodeOf(ErrLayoutNotFound))
	assert.Equal(t, CodeGatewayAuth, ErrorCodeOf(ErrGatewayAuthFailed))
}

func TestErrorCodeOf_WrappedSpecificBeatsCategory(t *testing.T) {
	wrapped := fmt.Errorf("session abc: %w", ErrInactivity)
	assert.Equal(t, CodeInactivity, ErrorCodeOf(wrapped))

	missing := fmt.Errorf("fetch: %w", ErrPresentationMissing)
	assert.Equal(t, CodePresentationMissng, ErrorCodeOf(missing))
}

func TestErrorCodeOf_UnknownAndNil(t *testing.T) {
	assert.Equal(t, CodeUnknown, ErrorCodeOf(fmt.Errorf("some random error")))
	assert.Equal(t, CodeUnknown, ErrorCodeOf(nil))
}

func TestAllSentinelsHaveCodes(t *testing.T) {
	require.NotEmpty(t, errorCodeMap)
	for sentinel, code := range errorCodeMap {
		assert.NotEmpty(t, code, "sentinel %v has empty code", sentinel)
		assert.NotEqual(t, CodeUnknown, code, "sentinel %v maps to UNKNOWN", sentinel)
	}
}

func TestErrorCodeOf_SubSystem(t *testing.T) {
	assert.Equal(t, CodeLayoutDuplicate, ErrorCodeOf(NewSubSystemError("layout", "Register", ErrDuplicate, "k")))
	assert.Equal(t, CodeLayoutKey, ErrorCodeOf(NewSubSystemError("layout", "Register", ErrInvalidInput, "k")))
	assert.Equal(t, CodeNotFound, ErrorCodeOf(NewSubSystemError("unknown", "Op", ErrNotFound, "")))
}

func TestWrapOp(t *testing.T) {
	assert.Nil(t, WrapOp("anything", nil))

	err := WrapOp("Manager.Get", ErrSessionNotFound)
	assert.Equal(t, "Manager.Get: session not found", err.Error())
	assert.True(t, errors.Is(err, ErrSessionNotFound))
	assert.Equal(t, CodeSessionNotFound, ErrorCodeOf(err))
}

func TestIsRetryableError(t *testing.T) {
	assert.True(t, IsRetryableError(fmt.Errorf("open: %w", ErrTransport)))
	assert.True(t, IsRetryableError(ErrInactivity))
	assert.True(t, IsRetryableError(ErrRateLimit))
	assert.False(t, IsRetryableError(ErrStreamError))
	assert.False(t, IsRetryableError(nil))
}
