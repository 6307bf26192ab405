// Package sse decodes server-sent event streams into domain.StreamEvent
// values independently of the transport that delivers the bytes.
package sse

import (
	"bytes"
	"strings"

	"github.com/valyala/bytebufferpool"

	"deckstream/internal/domain"
)

// DefaultMaxLineBytes bounds a single pending line. A complete-event line
// carries the whole presentation, so the bound is generous.
const DefaultMaxLineBytes = 8 << 20

// Parser is an incremental frame decoder. It is not safe for concurrent use;
// a session feeds it from a single goroutine.
type Parser struct {
	pending *bytebufferpool.ByteBuffer
	maxLine int

	// A chunk ended on '\r'; a leading '\n' in the next chunk belongs to it.
	skipLF bool
	// The current line overflowed maxLine and is dropped up to its terminator.
	discarding bool

	name    string
	data    []string
	hasData bool
	id      string
	hasID   bool
}

// Option configures a Parser.
type Option func(*Parser)

// WithMaxLineBytes overrides DefaultMaxLineBytes.
func WithMaxLineBytes(n int) Option {
	return func(p *Parser) {
		if n > 0 {
			p.maxLine = n
		}
	}
}

// NewParser creates a Parser.
func NewParser(opts ...Option) *Parser {
	p := &Parser{maxLine: DefaultMaxLineBytes}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Feed consumes one chunk and returns the frames it completed, in order.
// A trailing partial frame is retained for the next call.
func (p *Parser) Feed(chunk []byte) []domain.StreamEvent {
	if len(chunk) == 0 {
		return nil
	}
	if p.skipLF {
		p.skipLF = false
		if chunk[0] == '\n' {
			chunk = chunk[1:]
		}
	}
	if p.pending == nil {
		p.pending = bytebufferpool.Get()
	}
	p.pending.B = append(p.pending.B, chunk...)

	var out []domain.StreamEvent
	buf := p.pending.B
	start := 0
	for i := 0; i < len(buf); i++ {
		c := buf[i]
		if c != '\n' && c != '\r' {
			continue
		}
		if p.discarding {
			p.discarding = false
		} else if ev, ok := p.line(buf[start:i]); ok {
			out = append(out, ev)
		}
		if c == '\r' {
			if i+1 < len(buf) {
				if buf[i+1] == '\n' {
					i++
				}
			} else {
				p.skipLF = true
			}
		}
		start = i + 1
	}

	rest := len(buf) - start
	if rest > p.maxLine {
		p.discarding = true
		rest = 0
		start = len(buf)
	}
	copy(buf, buf[start:])
	p.pending.B = buf[:rest]
	return out
}

// line applies one complete line to the frame being built. A blank line
// dispatches the frame.
func (p *Parser) line(l []byte) (domain.StreamEvent, bool) {
	if len(l) == 0 {
		return p.dispatch()
	}
	if l[0] == ':' {
		return domain.StreamEvent{}, false
	}

	field, value := l, []byte(nil)
	if i := bytes.IndexByte(l, ':'); i >= 0 {
		field, value = l[:i], l[i+1:]
		if len(value) > 0 && value[0] == ' ' {
			value = value[1:]
		}
	}

	switch string(field) {
	case "event":
		p.name = string(value)
	case "data":
		p.data = append(p.data, string(value))
		p.hasData = true
	case "id":
		if bytes.IndexByte(value, 0) < 0 {
			p.id = string(value)
			p.hasID = true
		}
	}
	return domain.StreamEvent{}, false
}

func (p *Parser) dispatch() (domain.StreamEvent, bool) {
	defer p.clearFrame()
	if !p.hasData {
		return domain.StreamEvent{}, false
	}
	ev := domain.StreamEvent{
		Name:  p.name,
		Data:  strings.Join(p.data, "\n"),
		ID:    p.id,
		HasID: p.hasID,
	}
	if ev.Name == "" {
		ev.Name = domain.DefaultEventName
	}
	return ev, true
}

func (p *Parser) clearFrame() {
	p.name = ""
	p.data = p.data[:0]
	p.hasData = false
	p.id = ""
	p.hasID = false
}

// Pending reports whether a partial frame is being held.
func (p *Parser) Pending() bool {
	return p.hasData || p.name != "" || p.hasID || (p.pending != nil && p.pending.Len() > 0)
}

// Reset discards any held partial frame.
func (p *Parser) Reset() {
	p.clearFrame()
	p.skipLF = false
	p.discarding = false
	if p.pending != nil {
		p.pending.Reset()
	}
}

// Release returns the pending buffer to the pool. The parser may be fed
// again afterwards; it acquires a fresh buffer.
func (p *Parser) Release() {
	p.Reset()
	if p.pending != nil {
		bytebufferpool.Put(p.pending)
		p.pending = nil
	}
}
