package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deckstream/internal/domain"
	"deckstream/internal/usecase/repair"
)

type fakeBody struct {
	*io.PipeReader
	closes atomic.Int32
}

func (b *fakeBody) Close() error {
	b.closes.Add(1)
	return b.PipeReader.Close()
}

type fakeTransport struct {
	mu      sync.Mutex
	err     error
	reqs    []domain.StreamRequest
	bodies  []*fakeBody
	writers []*io.PipeWriter
}

func (f *fakeTransport) Open(_ context.Context, req domain.StreamRequest) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	pr, pw := io.Pipe()
	b := &fakeBody{PipeReader: pr}
	f.bodies = append(f.bodies, b)
	f.writers = append(f.writers, pw)
	return b, nil
}

func (f *fakeTransport) opened() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

func (f *fakeTransport) stream(t *testing.T, i int) (*io.PipeWriter, *fakeBody) {
	t.Helper()
	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return len(f.writers) > i
	}, time.Second, time.Millisecond)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writers[i], f.bodies[i]
}

type staticCreds struct {
	token string
	err   error
}

func (s staticCreds) Credential(context.Context) (string, error) { return s.token, s.err }

func frame(t *testing.T, payload map[string]any) []byte {
	t.Helper()
	b, err := json.Marshal(payload)
	require.NoError(t, err)
	return []byte("event: response\ndata: " + string(b) + "\n\n")
}

func sendChunk(t *testing.T, w io.Writer, chunk string) {
	t.Helper()
	_, err := w.Write(frame(t, map[string]any{"type": "chunk", "chunk": chunk}))
	require.NoError(t, err)
}

func send(t *testing.T, w io.Writer, payload map[string]any) {
	t.Helper()
	_, err := w.Write(frame(t, payload))
	require.NoError(t, err)
}

type callbacks struct {
	mu      sync.Mutex
	results []domain.SessionResult
}

func (c *callbacks) record(res domain.SessionResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, res)
}

func (c *callbacks) all() []domain.SessionResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.SessionResult(nil), c.results...)
}

func newTestController(tr *fakeTransport, cb *callbacks, opts ...Option) *Controller {
	opts = append([]Option{WithOnComplete(cb.record)}, opts...)
	return NewController(tr, staticCreds{token: "tok"}, slog.Default(), opts...)
}

func waitResult(t *testing.T, c *Controller) (domain.SessionResult, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.Wait(ctx)
}

func TestCompleteScenario(t *testing.T) {
	tr := &fakeTransport{}
	cb := &callbacks{}
	c := newTestController(tr, cb)

	snap, err := c.Start(context.Background(), "p1", domain.KindOutline)
	require.NoError(t, err)
	assert.Equal(t, domain.StateConnecting, snap.State)
	assert.NotEmpty(t, snap.SessionID)

	w, body := tr.stream(t, 0)
	assert.Equal(t, "tok", tr.reqs[0].Credential)

	sendChunk(t, w, `{"sli`)
	require.Eventually(t, func() bool { return c.Snapshot().State == domain.StateStreaming }, time.Second, time.Millisecond)

	sendChunk(t, w, `des":[{"content":"Intro`)
	require.Eventually(t, func() bool {
		doc := c.Snapshot().Document
		return doc != nil && len(doc.Slides) == 1 && doc.Slides[0].Content == "Intro"
	}, time.Second, time.Millisecond)
	snap = c.Snapshot()
	assert.Equal(t, 0, snap.ActiveSlideIndex)
	assert.Equal(t, 0, snap.HighestActiveIndex)

	sendChunk(t, w, `"}]}`)
	final := json.RawMessage(`{"outlines":{"slides":[{"content":"Intro"},{"content":"Agenda"}]}}`)
	send(t, w, map[string]any{"type": "complete", "presentation": final})

	res, err := waitResult(t, c)
	require.NoError(t, err)
	assert.Equal(t, domain.StateComplete, res.State)
	want, ok := repair.FromPayload(final, domain.KindOutline)
	require.True(t, ok)
	assert.Equal(t, want, res.Document)
	assert.JSONEq(t, string(final), string(res.Presentation))
	assert.Equal(t, -1, res.ActiveSlideIndex)
	assert.Equal(t, -1, res.HighestActiveIndex)
	assert.False(t, res.Degenerate)

	require.Len(t, cb.all(), 1)
	assert.Equal(t, domain.StateComplete, cb.all()[0].State)
	assert.Equal(t, int32(1), body.closes.Load())
	assert.Equal(t, domain.StateComplete, c.Snapshot().State)
}

func TestCompleteWithoutPayloadParsesBuffer(t *testing.T) {
	tr := &fakeTransport{}
	cb := &callbacks{}
	c := newTestController(tr, cb)
	_, err := c.Start(context.Background(), "p1", domain.KindDeck)
	require.NoError(t, err)

	w, _ := tr.stream(t, 0)
	sendChunk(t, w, `{"slides":[{"content":{"title":"A"},"layout":"title-slide"},{"content":"B`)
	send(t, w, map[string]any{"type": "complete"})

	res, err := waitResult(t, c)
	require.NoError(t, err)
	require.Len(t, res.Document.Slides, 2)
	assert.Equal(t, "title-slide", res.Document.Slides[0].Layout)
	assert.Equal(t, "B", res.Document.Slides[1].Content)
	assert.Equal(t, domain.KindDeck, tr.reqs[0].Kind)
}

func TestDeckCompleteUsesPresentationSlides(t *testing.T) {
	tr := &fakeTransport{}
	cb := &callbacks{}
	c := newTestController(tr, cb)
	_, err := c.Start(context.Background(), "p1", domain.KindDeck)
	require.NoError(t, err)

	w, _ := tr.stream(t, 0)
	sendChunk(t, w, `{"slides":[{"content":{"title":"Draft"},"layout":"title-slide"}`)
	final := json.RawMessage(`{"id":"p1","title":"Quarterly",` +
		`"outlines":{"slides":[{"content":"# Intro"},{"content":"# Numbers"}]},` +
		`"slides":[` +
		`{"id":"s1","index":0,"layout":"standard:title-slide","layout_group":"standard","content":{"title":"Quarterly"}},` +
		`{"id":"s2","index":1,"layout":"standard:bullet-list-layout","layout_group":"standard","content":{"title":"Numbers","bullets":["Up"]}}]}`)
	send(t, w, map[string]any{"type": "complete", "presentation": final})

	res, err := waitResult(t, c)
	require.NoError(t, err)
	assert.Equal(t, domain.StateComplete, res.State)
	require.NotNil(t, res.Document)
	require.Len(t, res.Document.Slides, 2)
	assert.Equal(t, "standard:title-slide", res.Document.Slides[0].Layout)
	assert.Equal(t, "standard:bullet-list-layout", res.Document.Slides[1].Layout)
	assert.Equal(t, "standard", res.Document.Slides[1].LayoutGroup)
	assert.Equal(t, "s2", res.Document.Slides[1].ID)
	assert.Equal(t, map[string]any{"title": "Quarterly"}, res.Document.Slides[0].Data)
	assert.JSONEq(t, string(final), string(res.Presentation))

	require.Len(t, cb.all(), 1)
	assert.Equal(t, "standard:title-slide", cb.all()[0].Document.Slides[0].Layout)
}

func TestInactivityTimeout(t *testing.T) {
	tr := &fakeTransport{}
	cb := &callbacks{}
	c := newTestController(tr, cb, WithInactivityTimeout(80*time.Millisecond))

	_, err := c.Start(context.Background(), "p1", domain.KindOutline)
	require.NoError(t, err)
	w, body := tr.stream(t, 0)
	sendChunk(t, w, `{"slides":[{"content":"Par`)

	res, err := waitResult(t, c)
	assert.True(t, errors.Is(err, domain.ErrInactivity))
	assert.Equal(t, domain.StateClosed, res.State)
	require.NotNil(t, res.Document)
	assert.Equal(t, "Par", res.Document.Slides[0].Content)

	c.Cancel()
	assert.Equal(t, int32(1), body.closes.Load(), "disconnect must close the transport exactly once")

	calls := cb.all()
	require.Len(t, calls, 1)
	assert.Equal(t, domain.StateClosed, calls[0].State)
	assert.Equal(t, "Par", calls[0].Document.Slides[0].Content)
}

func TestInactivityTimeoutResetByEvents(t *testing.T) {
	tr := &fakeTransport{}
	cb := &callbacks{}
	c := newTestController(tr, cb, WithInactivityTimeout(150*time.Millisecond))

	_, err := c.Start(context.Background(), "p1", domain.KindOutline)
	require.NoError(t, err)
	w, _ := tr.stream(t, 0)
	for i := 0; i < 5; i++ {
		sendChunk(t, w, " ")
		time.Sleep(50 * time.Millisecond)
	}
	assert.Equal(t, domain.StateStreaming, c.Snapshot().State)
	send(t, w, map[string]any{"type": "closing"})

	res, err := waitResult(t, c)
	require.NoError(t, err)
	assert.Equal(t, domain.StateClosed, res.State)
}

func TestNotAuthenticatedStaysIdle(t *testing.T) {
	tr := &fakeTransport{}
	cb := &callbacks{}
	c := NewController(tr, staticCreds{err: domain.ErrCredentialUnavailable}, slog.Default(), WithOnComplete(cb.record))

	snap, err := c.Start(context.Background(), "p1", domain.KindOutline)
	assert.True(t, errors.Is(err, domain.ErrNotAuthenticated))
	assert.Equal(t, domain.StateIdle, snap.State)
	assert.Equal(t, domain.StateIdle, c.Snapshot().State)
	assert.Equal(t, 0, tr.opened())
	assert.Empty(t, cb.all())

	_, err = c.Wait(context.Background())
	assert.True(t, errors.Is(err, domain.ErrSessionNotFound))

	c = NewController(tr, nil, slog.Default())
	_, err = c.Start(context.Background(), "p1", domain.KindOutline)
	assert.True(t, errors.Is(err, domain.ErrNotAuthenticated))
}

func TestStartValidation(t *testing.T) {
	c := newTestController(&fakeTransport{}, &callbacks{})
	_, err := c.Start(context.Background(), "  ", domain.KindOutline)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	_, err = c.Start(context.Background(), "p1", domain.SessionKind("slides"))
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}

func TestCancelIsIdempotent(t *testing.T) {
	tr := &fakeTransport{}
	cb := &callbacks{}
	c := newTestController(tr, cb)

	c.Cancel() // nothing running
	_, err := c.Start(context.Background(), "p1", domain.KindOutline)
	require.NoError(t, err)
	w, body := tr.stream(t, 0)
	sendChunk(t, w, `{"outline":"draft`)
	require.Eventually(t, func() bool { return c.Snapshot().Document != nil }, time.Second, time.Millisecond)

	c.Cancel()
	c.Cancel()
	res, err := waitResult(t, c)
	assert.True(t, errors.Is(err, domain.ErrCancelled))
	assert.Equal(t, domain.StateClosed, res.State)
	assert.Equal(t, "draft", res.Document.Outline)
	c.Cancel()

	assert.Equal(t, int32(1), body.closes.Load())
	assert.Empty(t, cb.all(), "cancel does not fire the completion callback")
}

func TestContextCancelClosesSession(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestController(tr, &callbacks{})
	ctx, cancel := context.WithCancel(context.Background())
	_, err := c.Start(ctx, "p1", domain.KindOutline)
	require.NoError(t, err)
	tr.stream(t, 0)

	cancel()
	res, err := waitResult(t, c)
	assert.True(t, errors.Is(err, domain.ErrCancelled))
	assert.Equal(t, domain.StateClosed, res.State)
}

func TestStreamErrorEvent(t *testing.T) {
	tr := &fakeTransport{}
	cb := &callbacks{}
	c := newTestController(tr, cb)
	_, err := c.Start(context.Background(), "p1", domain.KindOutline)
	require.NoError(t, err)

	w, body := tr.stream(t, 0)
	send(t, w, map[string]any{"type": "error", "detail": "model overloaded"})

	res, err := waitResult(t, c)
	assert.True(t, errors.Is(err, domain.ErrStreamError))
	assert.ErrorContains(t, err, "model overloaded")
	assert.Equal(t, domain.StateErrored, res.State)
	assert.Contains(t, res.Error, "model overloaded")
	assert.Equal(t, int32(1), body.closes.Load())
	assert.Empty(t, cb.all())
}

func TestTransportErrorIsTerminal(t *testing.T) {
	tr := &fakeTransport{err: domain.NewDomainError("HTTPTransport.Open", domain.ErrTransport, "HTTP 502: bad gateway")}
	c := newTestController(tr, &callbacks{})
	_, err := c.Start(context.Background(), "p1", domain.KindOutline)
	require.NoError(t, err)

	res, err := waitResult(t, c)
	assert.True(t, errors.Is(err, domain.ErrTransport))
	assert.True(t, domain.IsRetryableError(err))
	assert.Equal(t, domain.StateErrored, res.State)
	assert.Contains(t, res.Error, "HTTP 502")
}

func TestEOFBeforeFirstEventIsTransportError(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestController(tr, &callbacks{})
	_, err := c.Start(context.Background(), "p1", domain.KindOutline)
	require.NoError(t, err)
	w, _ := tr.stream(t, 0)
	w.Close()

	res, err := waitResult(t, c)
	assert.True(t, errors.Is(err, domain.ErrTransport))
	assert.Equal(t, domain.StateErrored, res.State)
}

func TestEOFAfterEventsClosesWithFinalParse(t *testing.T) {
	tr := &fakeTransport{}
	cb := &callbacks{}
	c := newTestController(tr, cb)
	_, err := c.Start(context.Background(), "p1", domain.KindOutline)
	require.NoError(t, err)
	w, _ := tr.stream(t, 0)
	sendChunk(t, w, `{"slides":[{"content":"a"},{"content":"b"}]}`)
	w.Close()

	res, err := waitResult(t, c)
	require.NoError(t, err)
	assert.Equal(t, domain.StateClosed, res.State)
	assert.Len(t, res.Document.Slides, 2)
	assert.Len(t, cb.all(), 1)
}

func TestClosingWithoutShapeIsDegenerate(t *testing.T) {
	tr := &fakeTransport{}
	cb := &callbacks{}
	c := newTestController(tr, cb)
	_, err := c.Start(context.Background(), "p1", domain.KindOutline)
	require.NoError(t, err)
	w, _ := tr.stream(t, 0)
	sendChunk(t, w, "Here is your outline: intro, body, end")
	send(t, w, map[string]any{"type": "closing"})

	res, err := waitResult(t, c)
	require.NoError(t, err)
	assert.Equal(t, domain.StateClosed, res.State)
	assert.True(t, res.Degenerate)
	require.Len(t, res.Document.Slides, 1)
	assert.Equal(t, "Here is your outline: intro, body, end", res.Document.Slides[0].Content)
}

func TestCompleteWithNothingReceived(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestController(tr, &callbacks{})
	_, err := c.Start(context.Background(), "p1", domain.KindOutline)
	require.NoError(t, err)
	w, _ := tr.stream(t, 0)
	send(t, w, map[string]any{"type": "complete"})

	res, err := waitResult(t, c)
	require.NoError(t, err)
	assert.True(t, res.Degenerate)
	assert.Equal(t, "No outline content received", res.Document.Slides[0].Content)
}

func TestStatusAndMalformedEvents(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestController(tr, &callbacks{})
	_, err := c.Start(context.Background(), "p1", domain.KindOutline)
	require.NoError(t, err)
	w, _ := tr.stream(t, 0)

	_, err = w.Write([]byte(": ping\n\ndata: not json\n\n"))
	require.NoError(t, err)
	assert.Equal(t, domain.StateConnecting, c.Snapshot().State)

	send(t, w, map[string]any{"type": "status", "status": "Generating presentation outlines..."})
	require.Eventually(t, func() bool {
		return c.Snapshot().Status == "Generating presentation outlines..."
	}, time.Second, time.Millisecond)
	assert.Equal(t, domain.StateStreaming, c.Snapshot().State)
	c.Cancel()
}

func TestStartTearsDownPreviousSession(t *testing.T) {
	tr := &fakeTransport{}
	cb := &callbacks{}
	c := newTestController(tr, cb)

	_, err := c.Start(context.Background(), "p1", domain.KindOutline)
	require.NoError(t, err)
	_, first := tr.stream(t, 0)

	snap, err := c.Start(context.Background(), "p2", domain.KindOutline)
	require.NoError(t, err)
	assert.Equal(t, "p2", snap.PresentationID)
	require.Eventually(t, func() bool { return first.closes.Load() == 1 }, time.Second, time.Millisecond)

	w, _ := tr.stream(t, 1)
	send(t, w, map[string]any{"type": "closing"})
	res, err := waitResult(t, c)
	require.NoError(t, err)
	assert.Equal(t, "p2", res.PresentationID)
	assert.Equal(t, "p2", c.Snapshot().PresentationID)
	assert.Len(t, cb.all(), 1)
}

func TestActiveIndexNeverRegressesWhileStreaming(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestController(tr, &callbacks{})
	_, err := c.Start(context.Background(), "p1", domain.KindOutline)
	require.NoError(t, err)
	w, _ := tr.stream(t, 0)

	doc := `{"slides":[{"content":"one"},{"content":"two"},{"content":"three"}]}`
	prev := -1
	for i := 0; i < len(doc); i += 3 {
		end := min(i+3, len(doc))
		sendChunk(t, w, doc[i:end])
		snap := c.Snapshot()
		require.GreaterOrEqual(t, snap.ActiveSlideIndex, prev)
		require.GreaterOrEqual(t, snap.HighestActiveIndex, snap.ActiveSlideIndex)
		prev = snap.ActiveSlideIndex
	}
	require.Eventually(t, func() bool { return c.Snapshot().ActiveSlideIndex == 2 }, time.Second, time.Millisecond)
	c.Cancel()
}

func TestCallbackPanicIsRecovered(t *testing.T) {
	tr := &fakeTransport{}
	c := NewController(tr, staticCreds{token: "t"}, slog.Default(), WithOnComplete(func(domain.SessionResult) {
		panic("consumer bug")
	}))
	_, err := c.Start(context.Background(), "p1", domain.KindOutline)
	require.NoError(t, err)
	w, _ := tr.stream(t, 0)
	send(t, w, map[string]any{"type": "closing"})

	res, err := waitResult(t, c)
	require.NoError(t, err)
	assert.Equal(t, domain.StateClosed, res.State)
}
