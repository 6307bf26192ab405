package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"relative base url", func(c *Config) { c.Stream.BaseURL = "/api" }, "stream.base_url"},
		{"zero timeout", func(c *Config) { c.Stream.InactivityTimeout = 0 }, "stream.inactivity_timeout"},
		{"zero read buffer", func(c *Config) { c.Stream.ReadBufferSize = 0 }, "stream.read_buffer_size"},
		{"tiny line limit", func(c *Config) { c.Stream.MaxLineBytes = 10 }, "stream.max_line_bytes"},
		{"rate without burst", func(c *Config) { c.Stream.ConnectBurst = 0 }, "stream.connect_burst"},
		{"unknown store", func(c *Config) { c.Store.Type = "redis" }, "store.type"},
		{"sqlite without path", func(c *Config) { c.Store.Type = "sqlite"; c.Store.Path = "" }, "store.path"},
		{"bad store url", func(c *Config) { c.Store.Type = "http"; c.Store.BaseURL = "ftp://x" }, "store.base_url"},
		{"group with colon", func(c *Config) { c.Layouts.DefaultGroup = "a:b" }, "layouts.default_group"},
		{"empty synonym", func(c *Config) { c.Layouts.Synonyms = map[string]string{"x": ""} }, "layouts.synonyms"},
		{"empty fallback", func(c *Config) { c.Layouts.GenericFallbacks = []string{""} }, "layouts.generic_fallbacks"},
		{"bad gateway addr", func(c *Config) { c.Gateway.Addr = "nohostport" }, "gateway.addr"},
		{"static without tokens", func(c *Config) { c.Gateway.Auth.Type = "static" }, "gateway.auth.tokens"},
		{"unknown auth type", func(c *Config) { c.Gateway.Auth.Type = "oauth" }, "gateway.auth.type"},
		{"bad log format", func(c *Config) { c.Logger.Format = "xml" }, "logger.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateAccumulates(t *testing.T) {
	cfg := Defaults()
	cfg.Stream.BaseURL = ""
	cfg.Gateway.Addr = ""
	cfg.Logger.Format = "xml"

	var ve *ValidationError
	require.True(t, errors.As(Validate(cfg), &ve))
	assert.Len(t, ve.Errors, 3)
	assert.True(t, ve.HasErrors())
}
