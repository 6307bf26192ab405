// Package transport opens generation streams over HTTP or from recorded files.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"deckstream/internal/domain"
	"deckstream/internal/infra/config"
	"deckstream/internal/infra/tracer"
)

const (
	outlinePath = "/api/v1/ppt/outlines/stream/"
	deckPath    = "/api/v1/ppt/presentation/stream/"

	maxErrorBody = 4096

	defaultCBMaxFailures uint32 = 5
	defaultCBTimeout            = 30 * time.Second
	defaultCBInterval           = 60 * time.Second
)

// StatusError is a non-2xx response to a stream request.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Body)
}

// clientFault reports whether the server rejected the request itself; such
// responses do not count against the circuit breaker.
func (e *StatusError) clientFault() bool {
	return e.Code < 500 && e.Code != http.StatusTooManyRequests
}

// HTTPTransport opens generation streams against the presentation API.
type HTTPTransport struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[*http.Response]
	limiter *rate.Limiter
	logger  *slog.Logger
}

// HTTPOption configures an HTTPTransport.
type HTTPOption func(*HTTPTransport)

// WithHTTPClient replaces the pooled client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(t *HTTPTransport) { t.client = c }
}

// NewHTTPTransport builds a transport from cfg. Connection attempts go
// through a circuit breaker and a rate limiter when configured.
func NewHTTPTransport(cfg config.StreamConfig, logger *slog.Logger, opts ...HTTPOption) *HTTPTransport {
	t := &HTTPTransport{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  NewHTTPClient(cfg),
		logger:  logger,
	}
	if cfg.ConnectRate > 0 {
		t.limiter = rate.NewLimiter(rate.Limit(cfg.ConnectRate), max(cfg.ConnectBurst, 1))
	}
	if cfg.CircuitBreaker.Enabled {
		t.breaker = newBreaker(t.baseURL, cfg.CircuitBreaker, logger)
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

func newBreaker(name string, cfg config.CircuitBreakerConfig, logger *slog.Logger) *gobreaker.CircuitBreaker[*http.Response] {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultCBMaxFailures
	}
	return gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "stream:" + name,
		MaxRequests: 1,
		Interval:    orDefault(cfg.Interval, defaultCBInterval),
		Timeout:     orDefault(cfg.Timeout, defaultCBTimeout),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			var se *StatusError
			if errors.As(err, &se) {
				return se.clientFault()
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
}

// StreamURL returns the endpoint that streams req's document.
func (t *HTTPTransport) StreamURL(req domain.StreamRequest) string {
	path := outlinePath
	if req.Kind == domain.KindDeck {
		path = deckPath
	}
	return t.baseURL + path + url.PathEscape(req.PresentationID)
}

// BreakerState returns the circuit state, or "disabled".
func (t *HTTPTransport) BreakerState() string {
	if t.breaker == nil {
		return "disabled"
	}
	return t.breaker.State().String()
}

// Open implements domain.StreamTransport.
func (t *HTTPTransport) Open(ctx context.Context, req domain.StreamRequest) (io.ReadCloser, error) {
	const op = "HTTPTransport.Open"
	ctx, span := tracer.StartSpan(ctx, "transport.open",
		trace.WithAttributes(
			tracer.StringAttr("presentation.id", req.PresentationID),
			tracer.StringAttr("session.kind", string(req.Kind)),
		),
	)
	defer span.End()

	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			tracer.RecordError(span, err)
			return nil, domain.NewDomainError(op, domain.ErrRateLimit, err.Error())
		}
	}

	connect := func() (*http.Response, error) { return t.connect(ctx, req) }
	var (
		resp *http.Response
		err  error
	)
	if t.breaker != nil {
		resp, err = t.breaker.Execute(connect)
	} else {
		resp, err = connect()
	}
	if err != nil {
		tracer.RecordError(span, err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, domain.NewDomainError(op, domain.ErrTransport, "circuit open: "+err.Error())
		}
		return nil, domain.NewDomainError(op, domain.ErrTransport, err.Error())
	}

	span.SetAttributes(tracer.IntAttr("http.status_code", resp.StatusCode))
	tracer.SetOK(span)
	t.logger.Debug("generation stream opened",
		"presentation_id", req.PresentationID,
		"kind", string(req.Kind),
		"status", resp.StatusCode,
	)
	return resp.Body, nil
}

func (t *HTTPTransport) connect(ctx context.Context, req domain.StreamRequest) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, t.StreamURL(req), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")
	if req.Credential != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Credential)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return resp, nil
}

var _ domain.StreamTransport = (*HTTPTransport)(nil)
