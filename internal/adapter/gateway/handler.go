package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"deckstream/internal/domain"
	"deckstream/internal/usecase/layout"
)

// Sessions is the session surface the gateway drives.
type Sessions interface {
	Start(presentationID string, kind domain.SessionKind) (domain.Snapshot, error)
	Cancel(presentationID string) error
	Snapshot(presentationID string) (domain.Snapshot, error)
	Wait(ctx context.Context, presentationID string) (domain.SessionResult, error)
	List() []domain.Snapshot
}

// HandlerDeps holds dependencies needed by RPC handlers.
type HandlerDeps struct {
	Sessions Sessions
	Resolver *layout.Resolver // can be nil: layout methods are not registered
	Bus      domain.EventBus
	Logger   *slog.Logger
}

// RegisterRESTHandlers registers the status and metrics endpoints.
func RegisterRESTHandlers(s *Server, deps HandlerDeps) *Metrics {
	startTime := time.Now()
	metrics := &Metrics{}

	if deps.Bus != nil {
		deps.Bus.SubscribeAll(func(_ context.Context, e domain.Event) {
			metrics.observe(e)
		})
	}

	authMiddleware := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if _, err := s.auth.Authenticate(requestToken(r)); err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next(w, r)
		}
	}

	s.RegisterHTTPRoute("/api/v1/status", authMiddleware(statusHandler(deps, startTime, metrics)))
	s.RegisterHTTPRoute("/metrics", authMiddleware(metricsHandler(deps, startTime, metrics)))
	return metrics
}

// RegisterDefaultHandlers registers every built-in RPC handler on the server.
func RegisterDefaultHandlers(s *Server, deps HandlerDeps) {
	s.RegisterHandler("session.start", sessionStartHandler(deps))
	s.RegisterHandler("session.cancel", sessionCancelHandler(deps))
	s.RegisterHandler("session.snapshot", sessionSnapshotHandler(deps))
	s.RegisterHandler("session.wait", sessionWaitHandler(deps))
	s.RegisterHandler("session.list", sessionListHandler(deps))

	if deps.Resolver != nil {
		s.RegisterHandler("layout.list", layoutListHandler(deps))
		s.RegisterHandler("layout.resolve", layoutResolveHandler(deps))
		s.RegisterHandler("layout.render", layoutRenderHandler(deps))
	}
}

// decode unmarshals payload into v, mapping failures to ErrRPCInvalidPayload.
func decode(payload json.RawMessage, v any) error {
	if len(payload) == 0 {
		return domain.ErrRPCInvalidPayload
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return domain.ErrRPCInvalidPayload
	}
	return nil
}

// --- session ---

type sessionRequest struct {
	PresentationID string `json:"presentation_id"`
	Kind           string `json:"kind,omitempty"`
	TimeoutMS      int    `json:"timeout_ms,omitempty"`
}

func (r *sessionRequest) validate() error {
	r.PresentationID = strings.TrimSpace(r.PresentationID)
	if r.PresentationID == "" {
		return domain.ErrRPCInvalidPayload
	}
	return nil
}

func sessionStartHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, client *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var req sessionRequest
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		if err := req.validate(); err != nil {
			return nil, err
		}
		if req.Kind == "" {
			req.Kind = string(domain.KindOutline)
		}
		kind, err := domain.ParseSessionKind(req.Kind)
		if err != nil {
			return nil, err
		}

		snap, err := deps.Sessions.Start(req.PresentationID, kind)
		if err != nil {
			return nil, err
		}
		deps.Logger.Info("session started via gateway",
			"presentation_id", req.PresentationID,
			"kind", string(kind),
			"client", client.Name,
			"state", string(snap.State),
		)
		return json.Marshal(snap)
	}
}

func sessionCancelHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, client *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var req sessionRequest
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		if err := req.validate(); err != nil {
			return nil, err
		}
		if err := deps.Sessions.Cancel(req.PresentationID); err != nil {
			return nil, err
		}
		return json.Marshal(map[string]bool{"cancelled": true})
	}
}

func sessionSnapshotHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, client *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var req sessionRequest
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		if err := req.validate(); err != nil {
			return nil, err
		}
		snap, err := deps.Sessions.Snapshot(req.PresentationID)
		if err != nil {
			return nil, err
		}
		return json.Marshal(snap)
	}
}

func sessionWaitHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, client *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var req sessionRequest
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		if err := req.validate(); err != nil {
			return nil, err
		}
		if req.TimeoutMS > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutMS)*time.Millisecond)
			defer cancel()
		}
		res, err := deps.Sessions.Wait(ctx, req.PresentationID)
		if err != nil {
			return nil, err
		}
		return json.Marshal(res)
	}
}

func sessionListHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, client *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		return json.Marshal(deps.Sessions.List())
	}
}

// --- layout ---

type layoutInfo struct {
	Key         string `json:"key"`
	Group       string `json:"group"`
	LayoutID    string `json:"layout_id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

func infoOf(e *layout.Entry) layoutInfo {
	return layoutInfo{
		Key:         e.Key,
		Group:       e.Group,
		LayoutID:    e.LayoutID,
		Name:        e.Name,
		Description: e.Description,
	}
}

func layoutListHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, client *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		entries := deps.Resolver.Registry().Entries()
		out := make([]layoutInfo, 0, len(entries))
		for _, e := range entries {
			out = append(out, infoOf(e))
		}
		return json.Marshal(out)
	}
}

type layoutRequest struct {
	LayoutID string         `json:"layout_id"`
	Group    string         `json:"group,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

type layoutResolveResponse struct {
	Found  bool         `json:"found"`
	Layout *layoutInfo  `json:"layout,omitempty"`
	Trace  layout.Trace `json:"trace"`
}

func layoutResolveHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, client *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var req layoutRequest
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		e, trace := deps.Resolver.ResolveTrace(req.LayoutID, req.Group)
		resp := layoutResolveResponse{Found: e != nil, Trace: trace}
		if e != nil {
			info := infoOf(e)
			resp.Layout = &info
		}
		return json.Marshal(resp)
	}
}

func layoutRenderHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, client *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var req layoutRequest
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		e := deps.Resolver.ResolveContext(ctx, "", req.LayoutID, req.Group)
		if e == nil {
			return nil, domain.NewSubSystemError("layout", "layout.render", domain.ErrNotFound, req.LayoutID)
		}
		slide, err := e.Render(req.Data)
		if err != nil {
			return nil, err
		}
		return json.Marshal(slide)
	}
}
