package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"deckstream/internal/domain"
)

const maxResponseBody = 10 << 20

// HTTPStore talks to the presentation API. Concurrent fetches of the same
// presentation share one request.
type HTTPStore struct {
	baseURL string
	client  *http.Client
	creds   domain.CredentialProvider
	logger  *slog.Logger
	group   singleflight.Group
}

// NewHTTPStore creates an HTTPStore. creds may be nil for unauthenticated APIs.
func NewHTTPStore(baseURL string, client *http.Client, creds domain.CredentialProvider, timeout time.Duration, logger *slog.Logger) *HTTPStore {
	if client == nil {
		client = &http.Client{}
	}
	if timeout > 0 {
		c := *client
		c.Timeout = timeout
		client = &c
	}
	return &HTTPStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		creds:   creds,
		logger:  logger,
	}
}

// Fetch implements domain.PresentationStore.
func (s *HTTPStore) Fetch(ctx context.Context, id string) (*domain.Presentation, error) {
	v, err, shared := s.group.Do(id, func() (any, error) {
		return s.fetch(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.logger.Debug("presentation fetch coalesced", "presentation_id", id)
	}
	cp := *v.(*domain.Presentation)
	return &cp, nil
}

func (s *HTTPStore) fetch(ctx context.Context, id string) (*domain.Presentation, error) {
	const op = "HTTPStore.Fetch"
	body, status, err := s.do(ctx, http.MethodGet, "/api/v1/ppt/presentation/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, domain.NewSubSystemError("store", op, domain.ErrStoreUnavailable, err.Error())
	}
	switch {
	case status == http.StatusNotFound:
		return nil, domain.NewSubSystemError("store", op, domain.ErrPresentationMissing, id)
	case status < 200 || status > 299:
		return nil, domain.NewSubSystemError("store", op, domain.ErrStoreUnavailable, fmt.Sprintf("HTTP %d: %s", status, body))
	}

	var meta struct {
		ID        string    `json:"id"`
		Title     string    `json:"title"`
		UpdatedAt string `json:"updated_at"`
	}
	if err := json.Unmarshal(body, &meta); err != nil {
		return nil, domain.NewSubSystemError("store", op, domain.ErrStoreUnavailable, "decode: "+err.Error())
	}
	if meta.ID == "" {
		meta.ID = id
	}
	p := &domain.Presentation{ID: meta.ID, Title: meta.Title, Data: body}
	if t, err := time.Parse(time.RFC3339Nano, meta.UpdatedAt); err == nil {
		p.UpdatedAt = t
	}
	return p, nil
}

// Update implements domain.PresentationStore. The request body is the
// document object with the presentation id set.
func (s *HTTPStore) Update(ctx context.Context, p *domain.Presentation) error {
	const op = "HTTPStore.Update"
	doc := map[string]json.RawMessage{}
	if len(p.Data) > 0 {
		if err := json.Unmarshal(p.Data, &doc); err != nil {
			return domain.NewSubSystemError("store", op, domain.ErrInvalidInput, "document is not an object")
		}
	}
	id, _ := json.Marshal(p.ID)
	doc["id"] = id
	payload, err := json.Marshal(doc)
	if err != nil {
		return domain.NewSubSystemError("store", op, domain.ErrInvalidInput, err.Error())
	}

	body, status, err := s.do(ctx, http.MethodPatch, "/api/v1/ppt/presentation/update", payload)
	if err != nil {
		return domain.NewSubSystemError("store", op, domain.ErrStoreUnavailable, err.Error())
	}
	if status < 200 || status > 299 {
		return domain.NewSubSystemError("store", op, domain.ErrStoreUnavailable, fmt.Sprintf("HTTP %d: %s", status, body))
	}
	return nil
}

func (s *HTTPStore) do(ctx context.Context, method, path string, payload []byte) ([]byte, int, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.creds != nil {
		if tok, err := s.creds.Credential(ctx); err == nil {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	return bytes.TrimSpace(body), resp.StatusCode, nil
}

var _ domain.PresentationStore = (*HTTPStore)(nil)
