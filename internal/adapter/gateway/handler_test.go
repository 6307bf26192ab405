package gateway

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deckstream/internal/domain"
	"deckstream/internal/usecase/layout"
)

// --- handler test doubles ---

type fakeSessions struct {
	mu        sync.Mutex
	snaps     map[string]domain.Snapshot
	cancelled []string
	startErr  error
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{snaps: make(map[string]domain.Snapshot)}
}

func (f *fakeSessions) Start(id string, kind domain.SessionKind) (domain.Snapshot, error) {
	if f.startErr != nil {
		return domain.Snapshot{}, f.startErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	snap := domain.Snapshot{SessionID: "sess-" + id, PresentationID: id, Kind: kind, State: domain.StateConnecting}
	f.snaps[id] = snap
	return snap, nil
}

func (f *fakeSessions) Cancel(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.snaps[id]
	if !ok {
		return domain.WrapOp("Manager.Cancel", domain.ErrSessionNotFound)
	}
	snap.State = domain.StateClosed
	f.snaps[id] = snap
	f.cancelled = append(f.cancelled, id)
	return nil
}

func (f *fakeSessions) Snapshot(id string) (domain.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.snaps[id]
	if !ok {
		return domain.Snapshot{}, domain.WrapOp("Manager.Snapshot", domain.ErrSessionNotFound)
	}
	return snap, nil
}

func (f *fakeSessions) Wait(ctx context.Context, id string) (domain.SessionResult, error) {
	snap, err := f.Snapshot(id)
	if err != nil {
		return domain.SessionResult{}, err
	}
	snap.State = domain.StateComplete
	return domain.SessionResult{Snapshot: snap}, nil
}

func (f *fakeSessions) List() []domain.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Snapshot, 0, len(f.snaps))
	for _, s := range f.snaps {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PresentationID < out[j].PresentationID })
	return out
}

func testResolver(t *testing.T, keys ...string) *layout.Resolver {
	t.Helper()
	reg := layout.NewRegistry()
	for _, k := range keys {
		require.NoError(t, reg.Register(k, func(d map[string]any) (domain.RenderedSlide, error) {
			title, _ := d["title"].(string)
			return domain.RenderedSlide{Title: title}, nil
		}, layout.WithName("Test "+k)))
	}
	reg.Freeze()
	return layout.NewResolver(reg, quietLogger())
}

func newHandlerDeps(t *testing.T) (HandlerDeps, *fakeSessions) {
	t.Helper()
	sessions := newFakeSessions()
	return HandlerDeps{
		Sessions: sessions,
		Resolver: testResolver(t, "standard:title-slide", "standard:heading-bullet-image-description-layout"),
		Bus:      &testBus{},
		Logger:   quietLogger(),
	}, sessions
}

func call(t *testing.T, h RPCHandler, payload string) (json.RawMessage, error) {
	t.Helper()
	var raw json.RawMessage
	if payload != "" {
		raw = json.RawMessage(payload)
	}
	return h(context.Background(), &ClientInfo{Name: "tester"}, raw)
}

// --- session ---

func TestSessionStartHandler(t *testing.T) {
	deps, sessions := newHandlerDeps(t)

	out, err := call(t, sessionStartHandler(deps), `{"presentation_id":" p1 ","kind":"presentation"}`)
	require.NoError(t, err)

	var snap domain.Snapshot
	require.NoError(t, json.Unmarshal(out, &snap))
	assert.Equal(t, "p1", snap.PresentationID)
	assert.Equal(t, domain.KindDeck, snap.Kind)
	assert.Equal(t, domain.StateConnecting, snap.State)
	assert.Len(t, sessions.List(), 1)
}

func TestSessionStartDefaultsToOutline(t *testing.T) {
	deps, _ := newHandlerDeps(t)

	out, err := call(t, sessionStartHandler(deps), `{"presentation_id":"p1"}`)
	require.NoError(t, err)
	var snap domain.Snapshot
	require.NoError(t, json.Unmarshal(out, &snap))
	assert.Equal(t, domain.KindOutline, snap.Kind)
}

func TestSessionStartValidation(t *testing.T) {
	deps, _ := newHandlerDeps(t)
	h := sessionStartHandler(deps)

	_, err := call(t, h, "")
	assert.ErrorIs(t, err, domain.ErrRPCInvalidPayload)

	_, err = call(t, h, `{not json`)
	assert.ErrorIs(t, err, domain.ErrRPCInvalidPayload)

	_, err = call(t, h, `{"presentation_id":"  "}`)
	assert.ErrorIs(t, err, domain.ErrRPCInvalidPayload)

	_, err = call(t, h, `{"presentation_id":"p1","kind":"poster"}`)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSessionStartPropagatesError(t *testing.T) {
	deps, sessions := newHandlerDeps(t)
	sessions.startErr = domain.NewDomainError("Controller.Start", domain.ErrNotAuthenticated, "p1")

	_, err := call(t, sessionStartHandler(deps), `{"presentation_id":"p1"}`)
	assert.Equal(t, domain.CodeNotAuthenticated, domain.ErrorCodeOf(err))
}

func TestSessionCancelAndSnapshot(t *testing.T) {
	deps, sessions := newHandlerDeps(t)
	_, err := call(t, sessionStartHandler(deps), `{"presentation_id":"p1"}`)
	require.NoError(t, err)

	out, err := call(t, sessionCancelHandler(deps), `{"presentation_id":"p1"}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"cancelled":true}`, string(out))
	assert.Equal(t, []string{"p1"}, sessions.cancelled)

	out, err = call(t, sessionSnapshotHandler(deps), `{"presentation_id":"p1"}`)
	require.NoError(t, err)
	var snap domain.Snapshot
	require.NoError(t, json.Unmarshal(out, &snap))
	assert.Equal(t, domain.StateClosed, snap.State)
}

func TestSessionUnknownPresentation(t *testing.T) {
	deps, _ := newHandlerDeps(t)

	_, err := call(t, sessionCancelHandler(deps), `{"presentation_id":"nope"}`)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	_, err = call(t, sessionSnapshotHandler(deps), `{"presentation_id":"nope"}`)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSessionWaitAndList(t *testing.T) {
	deps, _ := newHandlerDeps(t)
	_, err := call(t, sessionStartHandler(deps), `{"presentation_id":"b"}`)
	require.NoError(t, err)
	_, err = call(t, sessionStartHandler(deps), `{"presentation_id":"a"}`)
	require.NoError(t, err)

	out, err := call(t, sessionWaitHandler(deps), `{"presentation_id":"a","timeout_ms":500}`)
	require.NoError(t, err)
	var res domain.SessionResult
	require.NoError(t, json.Unmarshal(out, &res))
	assert.Equal(t, domain.StateComplete, res.State)

	out, err = call(t, sessionListHandler(deps), "")
	require.NoError(t, err)
	var list []domain.Snapshot
	require.NoError(t, json.Unmarshal(out, &list))
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].PresentationID)
}

// --- layout ---

func TestLayoutListHandler(t *testing.T) {
	deps, _ := newHandlerDeps(t)

	out, err := call(t, layoutListHandler(deps), "")
	require.NoError(t, err)
	var list []layoutInfo
	require.NoError(t, json.Unmarshal(out, &list))
	require.Len(t, list, 2)
	for _, l := range list {
		assert.Equal(t, "standard", l.Group)
		assert.Equal(t, "Test "+l.Key, l.Name)
	}
}

func TestLayoutResolveHandler(t *testing.T) {
	deps, _ := newHandlerDeps(t)
	h := layoutResolveHandler(deps)

	out, err := call(t, h, `{"layout_id":"cards-slide","group":"nonexistent-group"}`)
	require.NoError(t, err)
	var resp layoutResolveResponse
	require.NoError(t, json.Unmarshal(out, &resp))
	require.True(t, resp.Found)
	assert.Equal(t, "standard:heading-bullet-image-description-layout", resp.Layout.Key)
	assert.Equal(t, layout.StageSynonym, resp.Trace.Stage)
	assert.NotEmpty(t, resp.Trace.Tried)
}

func TestLayoutResolveMiss(t *testing.T) {
	deps, _ := newHandlerDeps(t)
	deps.Resolver = testResolver(t, "other:thing")

	out, err := call(t, layoutResolveHandler(deps), `{"layout_id":"totally-unknown-id"}`)
	require.NoError(t, err)
	var resp layoutResolveResponse
	require.NoError(t, json.Unmarshal(out, &resp))
	assert.False(t, resp.Found)
	assert.Nil(t, resp.Layout)
	assert.Equal(t, layout.StageMiss, resp.Trace.Stage)
}

func TestLayoutRenderHandler(t *testing.T) {
	deps, _ := newHandlerDeps(t)
	h := layoutRenderHandler(deps)

	out, err := call(t, h, `{"layout_id":"intro-slide","data":{"title":"Hello"}}`)
	require.NoError(t, err)
	var slide domain.RenderedSlide
	require.NoError(t, json.Unmarshal(out, &slide))
	assert.Equal(t, "Hello", slide.Title)
	assert.Equal(t, "standard:title-slide", slide.LayoutKey)

	deps.Resolver = testResolver(t, "other:thing")
	_, err = call(t, layoutRenderHandler(deps), `{"layout_id":"x"}`)
	assert.Equal(t, domain.CodeLayoutNotFound, domain.ErrorCodeOf(err))
}

func TestRegisterDefaultHandlers(t *testing.T) {
	deps, _ := newHandlerDeps(t)
	srv := NewServer(&testBus{}, newTestAuth(), "127.0.0.1:0", quietLogger())
	RegisterDefaultHandlers(srv, deps)

	methods := srv.Methods()
	sort.Strings(methods)
	assert.Equal(t, []string{
		"layout.list", "layout.render", "layout.resolve",
		"session.cancel", "session.list", "session.snapshot", "session.start", "session.wait",
	}, methods)

	deps.Resolver = nil
	srv = NewServer(&testBus{}, newTestAuth(), "127.0.0.1:0", quietLogger())
	RegisterDefaultHandlers(srv, deps)
	assert.Len(t, srv.Methods(), 5)
}

func TestSessionRPCOverWebSocket(t *testing.T) {
	deps, _ := newHandlerDeps(t)
	srv := NewServer(&testBus{}, newTestAuth(), "127.0.0.1:0", quietLogger())
	RegisterDefaultHandlers(srv, deps)
	runServer(t, srv)

	ws := dialWS(t, srv.BoundAddr(), "test-token")
	resp := roundTrip(t, ws, Frame{
		Type:    FrameTypeRequest,
		ID:      7,
		Method:  "session.start",
		Payload: json.RawMessage(`{"presentation_id":"p9","kind":"deck"}`),
	})
	require.Empty(t, resp.Error)

	var snap domain.Snapshot
	require.NoError(t, json.Unmarshal(resp.Payload, &snap))
	assert.Equal(t, "p9", snap.PresentationID)
}
