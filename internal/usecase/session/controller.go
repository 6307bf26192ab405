// Package session runs generation sessions: it opens the stream, feeds the
// frame parser, repairer and slide tracker in arrival order, and enforces
// the lifecycle and cancellation rules.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"

	"deckstream/internal/adapter/sse"
	"deckstream/internal/domain"
	"deckstream/internal/infra/tracer"
	"deckstream/internal/usecase/layout"
	"deckstream/internal/usecase/repair"
	"deckstream/internal/usecase/slidediff"
)

const (
	// DefaultInactivityTimeout closes a session whose producer went quiet.
	DefaultInactivityTimeout = 60 * time.Second
	defaultReadSize          = 4096
)

// Controller runs generation sessions for one consumer, one at a time.
// Starting a session tears down the previous one.
type Controller struct {
	transport  domain.StreamTransport
	creds      domain.CredentialProvider
	resolver   *layout.Resolver
	bus        domain.EventBus
	logger     *slog.Logger
	timeout    time.Duration
	readSize   int
	maxLine    int
	onComplete func(domain.SessionResult)

	mu   sync.Mutex
	snap domain.Snapshot
	cur  *run
}

// Option configures a Controller.
type Option func(*Controller)

// WithInactivityTimeout overrides DefaultInactivityTimeout.
func WithInactivityTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithOnComplete sets the completion callback. It runs synchronously on the
// session goroutine once per session that completes, closes or times out.
// It must not call Wait.
func WithOnComplete(fn func(domain.SessionResult)) Option {
	return func(c *Controller) { c.onComplete = fn }
}

// WithEventBus publishes lifecycle and progress events.
func WithEventBus(bus domain.EventBus) Option {
	return func(c *Controller) { c.bus = bus }
}

// WithResolver enables ResolveLayout.
func WithResolver(r *layout.Resolver) Option {
	return func(c *Controller) { c.resolver = r }
}

// WithReadSize sets the transport read buffer size.
func WithReadSize(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.readSize = n
		}
	}
}

// WithMaxLineBytes bounds a single pending stream line.
func WithMaxLineBytes(n int) Option {
	return func(c *Controller) { c.maxLine = n }
}

// NewController creates a Controller in the idle state.
func NewController(transport domain.StreamTransport, creds domain.CredentialProvider, logger *slog.Logger, opts ...Option) *Controller {
	c := &Controller{
		transport: transport,
		creds:     creds,
		logger:    logger,
		timeout:   DefaultInactivityTimeout,
		readSize:  defaultReadSize,
		snap:      idleSnapshot(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func idleSnapshot() domain.Snapshot {
	return domain.Snapshot{
		State:              domain.StateIdle,
		ActiveSlideIndex:   slidediff.None,
		HighestActiveIndex: slidediff.None,
	}
}

// run is one session. Everything below the body fields is owned by the
// session goroutine.
type run struct {
	id             string
	presentationID string
	kind           domain.SessionKind
	credential     string

	ctx    context.Context
	cancel context.CancelFunc
	span   trace.Span

	bodyMu sync.Mutex
	body   io.ReadCloser
	once   sync.Once

	parser   *sse.Parser
	repairer *repair.Repairer
	tracker  *slidediff.Tracker
	snap     domain.Snapshot
	payload  json.RawMessage

	done   chan struct{}
	result domain.SessionResult
	err    error
}

// disconnect aborts the transport read. Safe to call any number of times.
func (r *run) disconnect() {
	r.once.Do(func() {
		r.cancel()
		r.bodyMu.Lock()
		body := r.body
		r.bodyMu.Unlock()
		if body != nil {
			body.Close()
		}
	})
}

// attach stores the opened body. It reports false when the run was already
// disconnected; the caller then owns the body.
func (r *run) attach(body io.ReadCloser) bool {
	r.bodyMu.Lock()
	defer r.bodyMu.Unlock()
	if r.ctx.Err() != nil {
		return false
	}
	r.body = body
	return true
}

func (r *run) read(body io.Reader, size int, out chan<- []byte, errc chan<- error) {
	for {
		buf := make([]byte, size)
		n, err := body.Read(buf)
		if n > 0 {
			select {
			case out <- buf[:n]:
			case <-r.ctx.Done():
				return
			}
		}
		if err != nil {
			errc <- err
			return
		}
	}
}

func generateULID(t time.Time) string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// Start begins a session for presentationID, tearing down any open one.
// Without a credential the controller stays idle and the returned error
// wraps domain.ErrNotAuthenticated. Cancelling ctx cancels the session.
func (c *Controller) Start(ctx context.Context, presentationID string, kind domain.SessionKind) (domain.Snapshot, error) {
	const op = "Controller.Start"
	presentationID = strings.TrimSpace(presentationID)
	if presentationID == "" {
		return c.Snapshot(), domain.NewDomainError(op, domain.ErrInvalidInput, "presentation id required")
	}
	if kind == "" {
		kind = domain.KindOutline
	}
	if _, err := domain.ParseSessionKind(string(kind)); err != nil {
		return c.Snapshot(), domain.WrapOp(op, err)
	}

	c.mu.Lock()
	old := c.cur
	c.cur = nil
	c.snap = idleSnapshot()
	c.snap.PresentationID = presentationID
	c.snap.Kind = kind
	c.mu.Unlock()
	if old != nil {
		old.disconnect()
	}

	cred, err := c.credential(ctx)
	if err != nil {
		c.logger.Info("generation not started, no credential",
			"presentation_id", presentationID,
			"error", err,
		)
		return c.Snapshot(), domain.NewDomainError(op, domain.ErrNotAuthenticated, presentationID)
	}

	r := c.newRun(ctx, presentationID, kind, cred)
	if err := transition(domain.StateIdle, domain.StateConnecting); err != nil {
		r.cancel()
		r.span.End()
		return c.Snapshot(), err
	}
	r.snap.State = domain.StateConnecting

	c.mu.Lock()
	prev := c.cur
	c.cur = r
	c.snap = r.snap
	c.mu.Unlock()
	if prev != nil {
		prev.disconnect()
	}

	c.logger.Info("generation session started",
		"session_id", r.id,
		"presentation_id", presentationID,
		"kind", string(kind),
	)
	snap := r.snap
	c.publish(r, domain.EventSessionState, snap)
	go c.loop(r)
	return snap, nil
}

func (c *Controller) credential(ctx context.Context) (string, error) {
	if c.creds == nil {
		return "", domain.ErrCredentialUnavailable
	}
	cred, err := c.creds.Credential(ctx)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(cred) == "" {
		return "", domain.ErrCredentialUnavailable
	}
	return cred, nil
}

func (c *Controller) newRun(ctx context.Context, presentationID string, kind domain.SessionKind, cred string) *run {
	id := generateULID(time.Now())
	ctx, span := tracer.StartSpan(ctx, "session.run",
		trace.WithAttributes(
			tracer.StringAttr("session.id", id),
			tracer.StringAttr("presentation.id", presentationID),
			tracer.StringAttr("session.kind", string(kind)),
		),
	)
	ctx, cancel := context.WithCancel(ctx)
	return &run{
		id:             id,
		presentationID: presentationID,
		kind:           kind,
		credential:     cred,
		ctx:            ctx,
		cancel:         cancel,
		span:           span,
		parser:         sse.NewParser(sse.WithMaxLineBytes(c.maxLine)),
		repairer:       repair.New(c.logger.With("session_id", id)),
		tracker:        slidediff.New(),
		snap: domain.Snapshot{
			SessionID:          id,
			PresentationID:     presentationID,
			Kind:               kind,
			State:              domain.StateIdle,
			ActiveSlideIndex:   slidediff.None,
			HighestActiveIndex: slidediff.None,
		},
		done: make(chan struct{}),
	}
}

type openResult struct {
	body io.ReadCloser
	err  error
}

func closeWhenOpened(opened <-chan openResult) {
	if res := <-opened; res.body != nil {
		res.body.Close()
	}
}

func (c *Controller) loop(r *run) {
	defer close(r.done)
	defer r.parser.Release()
	defer r.span.End()

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	opened := make(chan openResult, 1)
	go func() {
		body, err := c.transport.Open(r.ctx, domain.StreamRequest{
			PresentationID: r.presentationID,
			Kind:           r.kind,
			Credential:     r.credential,
		})
		opened <- openResult{body: body, err: err}
	}()

	var body io.ReadCloser
	select {
	case <-r.ctx.Done():
		go closeWhenOpened(opened)
		c.finish(r, endCancel, domain.ErrCancelled)
		return
	case <-timer.C:
		go closeWhenOpened(opened)
		c.finish(r, endTimeout, domain.ErrInactivity)
		return
	case res := <-opened:
		switch {
		case res.err != nil && r.ctx.Err() != nil:
			c.finish(r, endCancel, domain.ErrCancelled)
			return
		case res.err != nil:
			c.finish(r, endTransport, res.err)
			return
		case !r.attach(res.body):
			res.body.Close()
			c.finish(r, endCancel, domain.ErrCancelled)
			return
		}
		body = res.body
	}

	chunks := make(chan []byte)
	readErr := make(chan error, 1)
	go r.read(body, c.readSize, chunks, readErr)

	for {
		select {
		case <-r.ctx.Done():
			c.finish(r, endCancel, domain.ErrCancelled)
			return
		case <-timer.C:
			c.finish(r, endTimeout, domain.ErrInactivity)
			return
		case err := <-readErr:
			reason, err := c.readFailure(r, err)
			c.finish(r, reason, err)
			return
		case chunk := <-chunks:
			for _, ev := range r.parser.Feed(chunk) {
				if r.ctx.Err() != nil {
					c.finish(r, endCancel, domain.ErrCancelled)
					return
				}
				timer.Reset(c.timeout)
				if reason, done, err := c.handle(r, ev); done {
					c.finish(r, reason, err)
					return
				}
			}
		}
	}
}

func (c *Controller) readFailure(r *run, err error) (endReason, error) {
	switch {
	case r.ctx.Err() != nil:
		return endCancel, domain.ErrCancelled
	case errors.Is(err, io.EOF) && r.snap.State == domain.StateStreaming:
		if r.parser.Pending() {
			c.logger.Warn("stream ended inside a frame, dropping it", "session_id", r.id)
		}
		return endEOF, nil
	case errors.Is(err, io.EOF):
		return endTransport, domain.NewDomainError("Controller.read", domain.ErrTransport, "stream ended before the first event")
	default:
		return endTransport, domain.NewDomainError("Controller.read", domain.ErrTransport, err.Error())
	}
}

// handle applies one event. done reports that the session reached a
// terminal event.
func (c *Controller) handle(r *run, ev domain.StreamEvent) (reason endReason, done bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			c.logger.Error("stream event handler panicked", "session_id", r.id, "panic", p)
			reason, done, err = 0, false, nil
		}
	}()

	p, decodeErr := domain.DecodePayload(ev)
	if decodeErr != nil {
		c.logger.Debug("ignoring malformed stream event",
			"session_id", r.id,
			"event", ev.Name,
			"error", decodeErr,
		)
		return 0, false, nil
	}
	if r.snap.State == domain.StateConnecting {
		c.setState(r, domain.StateStreaming)
	}

	switch p.Type {
	case domain.PayloadChunk:
		c.onChunk(r, p.Chunk)
	case domain.PayloadStatus:
		c.update(r, func(s *domain.Snapshot) { s.Status = p.Status })
		c.publish(r, domain.EventSessionProgress, r.snap)
	case domain.PayloadComplete:
		r.payload = p.Presentation
		return endComplete, true, nil
	case domain.PayloadClosing:
		return endClosing, true, nil
	case domain.PayloadError:
		detail := p.Detail
		if detail == "" {
			detail = "producer reported an error"
		}
		return endStreamError, true, domain.NewDomainError("Controller.handle", domain.ErrStreamError, detail)
	default:
		c.logger.Debug("ignoring stream event type", "session_id", r.id, "type", string(p.Type))
	}
	return 0, false, nil
}

func (c *Controller) onChunk(r *run, chunk string) {
	res := r.repairer.Accumulate(chunk)
	if res.Anomaly {
		c.publish(r, domain.EventFormatAnomaly, map[string]string{
			"locked": r.repairer.Shape().String(),
		})
	}
	switch res.Status {
	case repair.StatusParsed:
		active, highest := r.tracker.Observe(res.Document.AsSlides())
		c.update(r, func(s *domain.Snapshot) {
			s.Document = res.Document
			s.ActiveSlideIndex = active
			s.HighestActiveIndex = highest
		})
		c.publish(r, domain.EventSessionProgress, r.snap)
	case repair.StatusUnknownFormat:
		c.logger.Debug("partial document has unknown format",
			"session_id", r.id,
			"error", domain.ErrUnknownFormat,
		)
	}
}

// finish moves the run to its terminal state, tears down the transport and
// reports the result.
func (c *Controller) finish(r *run, reason endReason, err error) {
	r.disconnect()

	state := reason.state()
	if terr := transition(r.snap.State, state); terr != nil {
		c.logger.Error("unexpected session transition", "session_id", r.id, "error", terr)
	}
	doc, degenerate := c.finalDocument(r, reason)
	r.tracker.Reset()

	c.update(r, func(s *domain.Snapshot) {
		s.State = state
		s.Document = doc
		s.ActiveSlideIndex = r.tracker.Active()
		s.HighestActiveIndex = r.tracker.Highest()
		if err != nil {
			s.Error = err.Error()
		}
	})
	r.result = domain.SessionResult{Snapshot: r.snap, Presentation: r.payload, Degenerate: degenerate}
	r.err = err

	slides := len(doc.AsSlides())
	r.span.SetAttributes(
		tracer.StringAttr("session.end", reason.String()),
		tracer.IntAttr("session.slides", slides),
	)
	if state == domain.StateErrored {
		tracer.RecordError(r.span, err)
		c.logger.Warn("generation session failed",
			"session_id", r.id,
			"presentation_id", r.presentationID,
			"reason", reason.String(),
			"error", err,
		)
	} else {
		tracer.SetOK(r.span)
		c.logger.Info("generation session ended",
			"session_id", r.id,
			"presentation_id", r.presentationID,
			"state", string(state),
			"reason", reason.String(),
			"slides", slides,
		)
	}

	c.publish(r, domain.EventSessionState, r.snap)
	c.publish(r, domain.EventSessionCompleted, r.result)

	if reason.notifies() && c.onComplete != nil {
		c.notify(r)
	}
}

func (c *Controller) notify(r *run) {
	defer func() {
		if p := recover(); p != nil {
			c.logger.Error("completion callback panicked", "session_id", r.id, "panic", p)
		}
	}()
	c.onComplete(r.result)
}

// finalDocument picks the document a terminal state reports. Terminal events
// re-parse the full buffer (or take the producer's payload); timeouts,
// cancellation and errors keep what was parsed so far.
func (c *Controller) finalDocument(r *run, reason endReason) (*domain.PartialDocument, bool) {
	if !reason.finalParse() {
		if reason == endTimeout {
			if res := r.repairer.Final(); res.Status == repair.StatusParsed {
				return res.Document, false
			}
		}
		return r.snap.Document, false
	}
	if reason == endComplete {
		if doc, ok := repair.FromPayload(r.payload, r.kind); ok {
			return doc, false
		}
	}
	if res := r.repairer.Final(); res.Status == repair.StatusParsed {
		return res.Document, false
	}
	if last := r.repairer.Last(); last != nil {
		return last, false
	}
	c.logger.Warn("no document shape detected, using raw text",
		"session_id", r.id,
		"bytes", len(r.repairer.Buffer()),
		"error", domain.ErrUnknownFormat,
	)
	return domain.RawTextDocument(r.repairer.Buffer()), true
}

func (c *Controller) setState(r *run, to domain.SessionState) {
	if err := transition(r.snap.State, to); err != nil {
		c.logger.Error("unexpected session transition", "session_id", r.id, "error", err)
		return
	}
	c.update(r, func(s *domain.Snapshot) { s.State = to })
	c.publish(r, domain.EventSessionState, r.snap)
}

// update mutates the run snapshot and mirrors it to the controller while the
// run is current.
func (c *Controller) update(r *run, fn func(*domain.Snapshot)) {
	fn(&r.snap)
	c.mu.Lock()
	if c.cur == r {
		c.snap = r.snap
	}
	c.mu.Unlock()
}

func (c *Controller) publish(r *run, t domain.EventType, payload any) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(context.WithoutCancel(r.ctx), domain.NewEvent(t, r.id, payload))
}

// Snapshot returns the current reactive value.
func (c *Controller) Snapshot() domain.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Cancel disconnects the current session. It is a no-op when nothing is
// running and safe to call repeatedly.
func (c *Controller) Cancel() {
	c.mu.Lock()
	r := c.cur
	c.mu.Unlock()
	if r != nil {
		r.disconnect()
	}
}

// Wait blocks until the current session ends. The error is nil for a
// complete or closed stream, and otherwise the reason the session ended
// (domain.ErrCancelled, domain.ErrInactivity, or a transport/stream error).
func (c *Controller) Wait(ctx context.Context) (domain.SessionResult, error) {
	c.mu.Lock()
	r := c.cur
	c.mu.Unlock()
	if r == nil {
		return domain.SessionResult{Snapshot: c.Snapshot()}, domain.WrapOp("Controller.Wait", domain.ErrSessionNotFound)
	}
	select {
	case <-r.done:
		return r.result, r.err
	case <-ctx.Done():
		return domain.SessionResult{}, ctx.Err()
	}
}

// ResolveLayout resolves a slide layout against the controller's registry.
// It returns nil when no resolver is configured or nothing matches.
func (c *Controller) ResolveLayout(layoutID, group string) *layout.Entry {
	if c.resolver == nil {
		return nil
	}
	return c.resolver.Resolve(layoutID, group)
}
