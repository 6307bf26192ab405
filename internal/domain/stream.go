package domain

import (
	"context"
	"encoding/json"
	"io"
)

// DefaultEventName is the channel name of a frame that carried no "event:" line.
const DefaultEventName = "message"

// StreamEvent is one transport-level message decoded from a frame.
type StreamEvent struct {
	Name  string `json:"event"`
	Data  string `json:"data"`
	ID    string `json:"id,omitempty"`
	HasID bool   `json:"-"`
}

// PayloadType discriminates the JSON object carried in StreamEvent.Data.
type PayloadType string

const (
	PayloadChunk    PayloadType = "chunk"
	PayloadComplete PayloadType = "complete"
	PayloadClosing  PayloadType = "closing"
	PayloadError    PayloadType = "error"
	PayloadStatus   PayloadType = "status"
)

// StreamPayload is the decoded data of a generation stream event.
type StreamPayload struct {
	Type         PayloadType     `json:"type"`
	Chunk        string          `json:"chunk,omitempty"`
	Status       string          `json:"status,omitempty"`
	Detail       string          `json:"detail,omitempty"`
	Presentation json.RawMessage `json:"presentation,omitempty"`
}

// DecodePayload parses the data of a stream event. A payload without a type
// is rejected so that unrelated frames (keep-alives, comments) are skipped.
func DecodePayload(ev StreamEvent) (StreamPayload, error) {
	var p StreamPayload
	if err := json.Unmarshal([]byte(ev.Data), &p); err != nil {
		return StreamPayload{}, NewDomainError("DecodePayload", ErrInvalidInput, err.Error())
	}
	if p.Type == "" {
		return StreamPayload{}, NewDomainError("DecodePayload", ErrInvalidInput, "missing type")
	}
	return p, nil
}

// StreamRequest describes one generation stream to open.
type StreamRequest struct {
	PresentationID string
	Kind           SessionKind
	Credential     string
}

// StreamTransport opens the long-lived response body of a generation stream.
// Closing the returned body aborts the underlying read.
type StreamTransport interface {
	Open(ctx context.Context, req StreamRequest) (io.ReadCloser, error)
}
