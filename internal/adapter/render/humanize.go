package render

import (
	"errors"
	"fmt"
	"strings"

	"deckstream/internal/domain"
)

// FriendlyError is a user-facing rendition of a session failure.
type FriendlyError struct {
	Title   string
	Message string
	Hints   []string
	Code    domain.ErrorCode
	Raw     string
}

// Format renders the error as indented plain text.
func (fe FriendlyError) Format(sym Symbols) string {
	var sb strings.Builder
	sb.WriteString(fe.Title)
	if fe.Message != "" {
		sb.WriteString("\n  ")
		sb.WriteString(fe.Message)
	}
	if len(fe.Hints) > 0 {
		sb.WriteString("\n  Suggestions:")
		for _, h := range fe.Hints {
			fmt.Fprintf(&sb, "\n    %s %s", sym.Bullet, h)
		}
	}
	return sb.String()
}

type errorPattern struct {
	match   func(err error) bool
	title   string
	message string
	hints   []string
}

var patterns = []errorPattern{
	{
		match:   is(domain.ErrNotAuthenticated, domain.ErrCredentialUnavailable),
		title:   "Not Signed In",
		message: "No credential was available to open the generation stream.",
		hints:   []string{"Set DECKSTREAM_TOKEN", "Set auth.token_file in config"},
	},
	{
		match:   is(domain.ErrInactivity),
		title:   "Stream Stalled",
		message: "The generator stopped sending events; the partial result was kept.",
		hints:   []string{"Start the session again", "Raise stream.inactivity_timeout"},
	},
	{
		match:   is(domain.ErrStreamError),
		title:   "Generation Failed",
		message: "The generator reported an error.",
	},
	{
		match:   is(domain.ErrRateLimit),
		title:   "Rate Limited",
		message: "Too many stream connections were opened.",
		hints:   []string{"Wait a moment before retrying", "Raise stream.connect_rate"},
	},
	{
		match:   is(domain.ErrPresentationMissing),
		title:   "Presentation Not Found",
		message: "The presentation does not exist in the store.",
	},
	{
		match:   is(domain.ErrStoreUnavailable),
		title:   "Store Unavailable",
		message: "The presentation could not be saved.",
		hints:   []string{"Check store.base_url or store.path"},
	},
	{
		match:   containsAny("401", "403", "unauthorized", "forbidden"),
		title:   "Authentication Failed",
		message: "The generator rejected the credential.",
		hints:   []string{"Check that the token has not expired"},
	},
	{
		match:   containsAny("circuit open"),
		title:   "Generator Unavailable",
		message: "Recent connections kept failing; new ones are paused.",
		hints:   []string{"Wait for the breaker timeout", "Check the generator service"},
	},
	{
		match:   containsAny("connection refused", "dial tcp", "no such host"),
		title:   "Connection Failed",
		message: "Could not reach the generator.",
		hints:   []string{"Verify stream.base_url", "Check that the service is running"},
	},
	{
		match:   is(domain.ErrTransport),
		title:   "Stream Interrupted",
		message: "The connection to the generator failed.",
		hints:   []string{"Start the session again"},
	},
}

// Humanize converts a session error into a FriendlyError.
func Humanize(err error) FriendlyError {
	if err == nil {
		return FriendlyError{Title: "Unknown Error", Code: domain.CodeUnknown}
	}
	for _, p := range patterns {
		if p.match(err) {
			return FriendlyError{
				Title:   p.title,
				Message: p.message,
				Hints:   p.hints,
				Code:    domain.ErrorCodeOf(err),
				Raw:     err.Error(),
			}
		}
	}
	return FriendlyError{
		Title:   "Unexpected Error",
		Message: err.Error(),
		Code:    domain.ErrorCodeOf(err),
		Raw:     err.Error(),
	}
}

// HumanizeMessage is Humanize for an error that only survived as text, such
// as Snapshot.Error. Sentinels are then matched by their message.
func HumanizeMessage(msg string) FriendlyError {
	if msg == "" {
		return FriendlyError{Title: "Unknown Error", Code: domain.CodeUnknown}
	}
	return Humanize(errors.New(msg))
}

func is(targets ...error) func(error) bool {
	return func(err error) bool {
		msg := err.Error()
		for _, t := range targets {
			if errors.Is(err, t) || strings.Contains(msg, t.Error()) {
				return true
			}
		}
		return false
	}
}

func containsAny(substrs ...string) func(error) bool {
	return func(err error) bool {
		lower := strings.ToLower(err.Error())
		for _, s := range substrs {
			if strings.Contains(lower, s) {
				return true
			}
		}
		return false
	}
}
