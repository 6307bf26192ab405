package gateway

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deckstream/internal/domain"
	"deckstream/internal/infra/config"
)

func TestStaticTokenAuthValid(t *testing.T) {
	auth := NewStaticTokenAuth([]config.TokenConfig{{Token: "secret-123", Name: "editor"}})

	info, err := auth.Authenticate("secret-123")
	require.NoError(t, err)
	assert.Equal(t, "editor", info.Name)
}

func TestStaticTokenAuthInvalid(t *testing.T) {
	auth := NewStaticTokenAuth([]config.TokenConfig{{Token: "secret-123", Name: "editor"}})

	_, err := auth.Authenticate("wrong-token")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrGatewayAuthFailed))
}

func TestStaticTokenAuthSkipsEmptyTokens(t *testing.T) {
	auth := NewStaticTokenAuth([]config.TokenConfig{{Token: "", Name: "blank"}})

	_, err := auth.Authenticate("")
	assert.Error(t, err)
}

func TestAuthFromConfig(t *testing.T) {
	_, ok := AuthFromConfig(config.GatewayAuthConfig{}).(OpenAuth)
	assert.True(t, ok)

	a := AuthFromConfig(config.GatewayAuthConfig{Type: "static", Tokens: []config.TokenConfig{{Token: "t"}}})
	info, err := a.Authenticate("t")
	require.NoError(t, err)
	assert.Equal(t, "client", info.Name)
}

func TestRequestToken(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws?token=q", nil)
	assert.Equal(t, "q", requestToken(r))

	r = httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Authorization", "Bearer h")
	assert.Equal(t, "h", requestToken(r))

	r = httptest.NewRequest("GET", "/ws", nil)
	assert.Empty(t, requestToken(r))
}
