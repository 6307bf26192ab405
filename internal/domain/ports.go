package domain

import (
	"context"
	"encoding/json"
	"time"
)

// CredentialProvider supplies the bearer credential used to open streams.
// It returns ErrCredentialUnavailable when no credential exists yet.
type CredentialProvider interface {
	Credential(ctx context.Context) (string, error)
}

// Presentation is a persisted presentation document. Data is opaque to this
// module apart from the outline/slides shapes it produces.
type Presentation struct {
	ID        string          `json:"id"`
	Title     string          `json:"title,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	UpdatedAt time.Time       `json:"updated_at,omitempty"`
}

// PresentationStore is the persistence collaborator. It is only used after a
// session reached a terminal state.
type PresentationStore interface {
	Fetch(ctx context.Context, id string) (*Presentation, error)
	Update(ctx context.Context, p *Presentation) error
}
