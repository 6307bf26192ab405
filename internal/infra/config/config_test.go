package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, 60*time.Second, cfg.Stream.InactivityTimeout)
	assert.Equal(t, "standard", cfg.Layouts.DefaultGroup)
	assert.Equal(t, "none", cfg.Store.Type)
	assert.Equal(t, "DECKSTREAM_TOKEN", cfg.Auth.TokenEnv)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.NoError(t, Validate(cfg))
}

func TestLoadNonExistentReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults().Stream.BaseURL, cfg.Stream.BaseURL)
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deckstream.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, `
stream:
  base_url: "https://slides.example.com"
  inactivity_timeout: 90s
auth:
  token_file: "/run/secrets/token"
store:
  type: sqlite
  path: /tmp/p.db
layouts:
  default_group: general
  synonyms:
    hero: title-slide
  generic_fallbacks: [content]
logger:
  level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://slides.example.com", cfg.Stream.BaseURL)
	assert.Equal(t, 90*time.Second, cfg.Stream.InactivityTimeout)
	assert.Equal(t, 4096, cfg.Stream.ReadBufferSize, "unset fields keep defaults")
	assert.Equal(t, "/run/secrets/token", cfg.Auth.TokenFile)
	assert.Equal(t, "sqlite", cfg.Store.Type)
	assert.Equal(t, "general", cfg.Layouts.DefaultGroup)
	assert.Equal(t, map[string]string{"hero": "title-slide"}, cfg.Layouts.Synonyms)
	assert.Equal(t, []string{"content"}, cfg.Layouts.GenericFallbacks)
	assert.Equal(t, "debug", cfg.Logger.Level)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "stream: [unclosed")
	_, err := Load(path)
	assert.ErrorContains(t, err, "parse config")
}

func TestLoadInsecurePermissions(t *testing.T) {
	path := writeConfig(t, "logger:\n  level: info\n")
	require.NoError(t, os.Chmod(path, 0666))
	_, err := Load(path)
	assert.ErrorContains(t, err, "insecure permissions")
}

func TestLoadValidationFailure(t *testing.T) {
	path := writeConfig(t, "store:\n  type: redis\n")
	_, err := Load(path)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors, 1)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DECKSTREAM_BASE_URL", "http://gen:9000")
	t.Setenv("DECKSTREAM_LOGGER_LEVEL", "debug")
	t.Setenv("DECKSTREAM_INACTIVITY_TIMEOUT", "5s")
	t.Setenv("DECKSTREAM_TRACER_ENABLED", "true")
	t.Setenv("DECKSTREAM_STORE_TYPE", "http")
	t.Setenv("DECKSTREAM_GATEWAY_TOKENS", "a, b,")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)

	assert.Equal(t, "http://gen:9000", cfg.Stream.BaseURL)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, 5*time.Second, cfg.Stream.InactivityTimeout)
	assert.True(t, cfg.Tracer.Enabled)
	assert.Equal(t, "http", cfg.Store.Type)
	assert.Equal(t, "static", cfg.Gateway.Auth.Type)
	require.Len(t, cfg.Gateway.Auth.Tokens, 2)
	assert.Equal(t, "b", cfg.Gateway.Auth.Tokens[1].Token)
}

func TestEnvOverrideBadDurationIgnored(t *testing.T) {
	t.Setenv("DECKSTREAM_INACTIVITY_TIMEOUT", "soon")
	cfg := Defaults()
	ApplyEnvOverrides(cfg)
	assert.Equal(t, 60*time.Second, cfg.Stream.InactivityTimeout)
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, ".env.local")
	second := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(first, []byte("DECKSTREAM_TEST_A=local\n"), 0600))
	require.NoError(t, os.WriteFile(second, []byte("DECKSTREAM_TEST_A=base\nDECKSTREAM_TEST_B=base\n"), 0600))
	t.Setenv("DECKSTREAM_TEST_A", "")
	t.Setenv("DECKSTREAM_TEST_B", "")
	os.Unsetenv("DECKSTREAM_TEST_A")
	os.Unsetenv("DECKSTREAM_TEST_B")

	loaded := LoadEnvFiles(first, filepath.Join(dir, "missing"), second)
	assert.Equal(t, []string{first, second}, loaded)
	assert.Equal(t, "local", os.Getenv("DECKSTREAM_TEST_A"))
	assert.Equal(t, "base", os.Getenv("DECKSTREAM_TEST_B"))
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	enc, err := EncryptValue("sk-secret", "pass")
	require.NoError(t, err)
	plain, err := DecryptValue(enc, "pass")
	require.NoError(t, err)
	assert.Equal(t, "sk-secret", plain)

	_, err = DecryptValue(enc, "wrong")
	assert.Error(t, err)
}

func TestDecryptValueMalformed(t *testing.T) {
	for _, in := range []string{"nocolon", "zz:00", "00:zz", "00:00"} {
		_, err := DecryptValue(in, "pass")
		assert.Error(t, err, in)
	}
}

func TestLoadWithConfigKey(t *testing.T) {
	enc, err := EncryptValue("bearer-123", "k3y")
	require.NoError(t, err)
	gw, err := EncryptValue("gw-token", "k3y")
	require.NoError(t, err)

	path := writeConfig(t, `
auth:
  token: "enc:`+enc+`"
gateway:
  auth:
    type: static
    tokens:
      - name: ui
        token: "enc:`+gw+`"
`)
	t.Setenv("DECKSTREAM_CONFIG_KEY", "k3y")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "bearer-123", cfg.Auth.Token)
	assert.Equal(t, "gw-token", cfg.Gateway.Auth.Tokens[0].Token)
}

func TestLoadDecryptSecretsError(t *testing.T) {
	path := writeConfig(t, "auth:\n  token: \"enc:00:00\"\n")
	t.Setenv("DECKSTREAM_CONFIG_KEY", "k3y")
	_, err := Load(path)
	assert.ErrorContains(t, err, "auth.token")
}

func TestDecryptSecretsSkipsPlainValues(t *testing.T) {
	cfg := Defaults()
	cfg.Auth.Token = "plain"
	require.NoError(t, decryptSecrets(cfg, "k"))
	assert.Equal(t, "plain", cfg.Auth.Token)
}
