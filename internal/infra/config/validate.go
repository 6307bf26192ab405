package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateStream(cfg, ve)
	validateStore(cfg, ve)
	validateLayouts(cfg, ve)
	validateGateway(cfg, ve)
	validateLogger(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func validateStream(cfg *Config, ve *ValidationError) {
	s := cfg.Stream
	if !validURL(s.BaseURL) {
		ve.Add("stream.base_url %q must be an absolute http(s) URL", s.BaseURL)
	}
	if s.InactivityTimeout <= 0 {
		ve.Add("stream.inactivity_timeout must be > 0")
	}
	if s.ReadBufferSize <= 0 {
		ve.Add("stream.read_buffer_size must be > 0")
	}
	if s.MaxLineBytes < 1024 {
		ve.Add("stream.max_line_bytes must be >= 1024")
	}
	if s.ConnectRate < 0 {
		ve.Add("stream.connect_rate must be >= 0")
	}
	if s.ConnectRate > 0 && s.ConnectBurst <= 0 {
		ve.Add("stream.connect_burst must be > 0 when connect_rate is set")
	}
}

var validStoreTypes = map[string]bool{"none": true, "http": true, "sqlite": true}

func validateStore(cfg *Config, ve *ValidationError) {
	st := cfg.Store
	if !validStoreTypes[st.Type] {
		ve.Add("store.type %q is invalid (want none, http or sqlite)", st.Type)
		return
	}
	switch st.Type {
	case "http":
		if st.BaseURL != "" && !validURL(st.BaseURL) {
			ve.Add("store.base_url %q must be an absolute http(s) URL", st.BaseURL)
		}
	case "sqlite":
		if st.Path == "" {
			ve.Add("store.path is required for the sqlite store")
		}
	}
}

func validateLayouts(cfg *Config, ve *ValidationError) {
	l := cfg.Layouts
	if l.DefaultGroup == "" || strings.Contains(l.DefaultGroup, ":") {
		ve.Add("layouts.default_group %q must be a non-empty name without ':'", l.DefaultGroup)
	}
	for from, to := range l.Synonyms {
		if from == "" || to == "" {
			ve.Add("layouts.synonyms: empty layout id in %q -> %q", from, to)
		}
	}
	for i, id := range l.GenericFallbacks {
		if id == "" {
			ve.Add("layouts.generic_fallbacks[%d] is empty", i)
		}
	}
}

func validateGateway(cfg *Config, ve *ValidationError) {
	g := cfg.Gateway
	if g.Addr == "" {
		ve.Add("gateway.addr is required")
	} else if _, _, err := net.SplitHostPort(g.Addr); err != nil {
		ve.Add("gateway.addr %q is not a valid host:port", g.Addr)
	}
	switch g.Auth.Type {
	case "":
	case "static":
		if len(g.Auth.Tokens) == 0 {
			ve.Add("gateway.auth.tokens must not be empty for static auth")
		}
		for i, tok := range g.Auth.Tokens {
			if tok.Token == "" {
				ve.Add("gateway.auth.tokens[%d].token is empty", i)
			}
		}
	default:
		ve.Add("gateway.auth.type %q is invalid (want static or empty)", g.Auth.Type)
	}
	if g.RateLimit < 0 {
		ve.Add("gateway.rate_limit must be >= 0")
	}
}

var validLogFormats = map[string]bool{"text": true, "json": true, "": true}

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLogFormats[strings.ToLower(cfg.Logger.Format)] {
		ve.Add("logger.format %q is invalid (want text or json)", cfg.Logger.Format)
	}
}
