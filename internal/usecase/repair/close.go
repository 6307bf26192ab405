package repair

import "bytes"

// Close completes a truncated JSON text by appending the minimal closing
// tokens. Rules, applied to the state the text ends in:
//
//   - an unterminated string is closed; a dangling backslash or partial
//     \u escape at its end is dropped first
//   - a truncated literal is completed: t -> true, nul -> null,
//     1. -> 1.0, - -> -0, 1e -> 1e0
//   - an object key without a value gets :null, a colon without a value
//     gets null
//   - a trailing comma is removed
//   - open arrays and objects are closed innermost first
//
// Two edits are not appends: raw control characters inside strings are
// escaped, and anything after the first complete top-level value is
// dropped. Close reports false when the text holds no value yet or is
// malformed in a way appending cannot fix.
func Close(text string) (string, bool) {
	var s scanner
	return s.run(text)
}

type containerState uint8

const (
	expectKey   containerState = iota // object: key or '}'
	expectColon                       // object: after a key
	expectValue                       // object: after ':'; array: value or ']'
	expectNext                        // ',' or the closing bracket
)

type container struct {
	object bool
	state  containerState
}

type scanner struct {
	out   bytes.Buffer
	stack []container

	started bool // a top-level value has begun
	done    bool // the top-level value is complete

	inString    bool
	stringIsKey bool
	escapeAt    int // output offset of a pending backslash, -1 when none
	unicodeAt   int // output offset of an unfinished \u escape, -1 when none
	unicodeLeft int

	inLiteral bool
	literalAt int

	commaAt int // output offset of a comma not yet followed by a token, -1 when none
}

func (s *scanner) run(text string) (string, bool) {
	s.escapeAt, s.unicodeAt, s.commaAt = -1, -1, -1
	s.out.Grow(len(text) + 8)

	for i := 0; i < len(text) && !s.done; i++ {
		c := text[i]
		if s.inString {
			s.stringByte(c)
			continue
		}
		if s.inLiteral {
			if isLiteralByte(c) {
				s.out.WriteByte(c)
				continue
			}
			s.inLiteral = false
			s.valueDone()
			if s.done {
				break
			}
		}
		if isSpace(c) {
			s.out.WriteByte(c)
			continue
		}
		if !s.token(c) {
			return "", false
		}
	}
	if !s.started {
		return "", false
	}
	if s.done {
		return s.out.String(), true
	}
	if !s.finish() {
		return "", false
	}
	return s.out.String(), true
}

func (s *scanner) stringByte(c byte) {
	switch {
	case s.unicodeLeft > 0:
		s.unicodeLeft--
		if s.unicodeLeft == 0 {
			s.unicodeAt = -1
		}
		s.out.WriteByte(c)
	case s.escapeAt >= 0:
		if c == 'u' {
			s.unicodeAt = s.escapeAt
			s.unicodeLeft = 4
		}
		s.escapeAt = -1
		s.out.WriteByte(c)
	case c == '\\':
		s.escapeAt = s.out.Len()
		s.out.WriteByte(c)
	case c == '"':
		s.out.WriteByte(c)
		s.inString = false
		s.stringDone()
	case c < 0x20:
		s.out.WriteString(controlEscape(c))
	default:
		s.out.WriteByte(c)
	}
}

// token handles one significant byte outside strings and literals.
func (s *scanner) token(c byte) bool {
	top := s.top()
	switch c {
	case '{', '[':
		if !s.expectingValue() {
			return false
		}
		s.begin()
		state := expectValue
		if c == '{' {
			state = expectKey
		}
		s.stack = append(s.stack, container{object: c == '{', state: state})
	case '}', ']':
		if top == nil || top.object != (c == '}') {
			return false
		}
		if top.state == expectColon || (top.object && top.state == expectValue) {
			return false
		}
		if s.commaAt >= 0 {
			// Trailing comma before a close: drop it.
			s.truncateComma()
		}
		s.stack = s.stack[:len(s.stack)-1]
		s.out.WriteByte(c)
		s.valueDone()
		return true
	case '"':
		switch {
		case top != nil && top.object && top.state == expectKey:
			s.stringIsKey = true
		case s.expectingValue():
			s.stringIsKey = false
		default:
			return false
		}
		s.begin()
		s.inString = true
	case ':':
		if top == nil || !top.object || top.state != expectColon {
			return false
		}
		top.state = expectValue
	case ',':
		if top == nil || top.state != expectNext {
			return false
		}
		if top.object {
			top.state = expectKey
		} else {
			top.state = expectValue
		}
		s.out.WriteByte(c)
		s.commaAt = s.out.Len() - 1
		return true
	default:
		if !isLiteralStart(c) || !s.expectingValue() {
			return false
		}
		s.begin()
		s.inLiteral = true
		s.literalAt = s.out.Len()
	}
	s.commaAt = -1
	s.out.WriteByte(c)
	return true
}

func (s *scanner) begin() {
	s.started = true
	s.commaAt = -1
}

func (s *scanner) top() *container {
	if len(s.stack) == 0 {
		return nil
	}
	return &s.stack[len(s.stack)-1]
}

func (s *scanner) expectingValue() bool {
	top := s.top()
	if top == nil {
		return !s.started
	}
	return top.state == expectValue
}

func (s *scanner) stringDone() {
	if s.stringIsKey {
		s.stringIsKey = false
		s.top().state = expectColon
		return
	}
	s.valueDone()
}

func (s *scanner) valueDone() {
	top := s.top()
	if top == nil {
		s.done = true
		return
	}
	top.state = expectNext
}

func (s *scanner) truncateComma() {
	s.out.Truncate(s.commaAt)
	s.commaAt = -1
	if top := s.top(); top != nil {
		top.state = expectNext
	}
}

// finish appends the closing tokens for the state the input ended in.
func (s *scanner) finish() bool {
	if s.inString {
		switch {
		case s.unicodeAt >= 0:
			s.out.Truncate(s.unicodeAt)
		case s.escapeAt >= 0:
			s.out.Truncate(s.escapeAt)
		}
		s.out.WriteByte('"')
		s.inString = false
		s.stringDone()
	}
	if s.inLiteral {
		lit := s.out.Bytes()[s.literalAt:]
		suffix, ok := completeLiteral(lit)
		if !ok {
			return false
		}
		s.out.WriteString(suffix)
		s.inLiteral = false
		s.valueDone()
	}
	if s.commaAt >= 0 {
		s.truncateComma()
	}
	if top := s.top(); top != nil && top.object {
		switch top.state {
		case expectColon:
			s.out.WriteString(":null")
		case expectValue:
			s.out.WriteString("null")
		}
	}
	for i := len(s.stack) - 1; i >= 0; i-- {
		if s.stack[i].object {
			s.out.WriteByte('}')
		} else {
			s.out.WriteByte(']')
		}
	}
	s.stack = s.stack[:0]
	return true
}

var keywords = []string{"true", "false", "null"}

func completeLiteral(lit []byte) (string, bool) {
	for _, kw := range keywords {
		if len(lit) <= len(kw) && kw[:len(lit)] == string(lit) {
			return kw[len(lit):], true
		}
	}
	if len(lit) == 0 {
		return "", false
	}
	switch lit[len(lit)-1] {
	case '-', '+', '.', 'e', 'E':
		return "0", true
	}
	return "", true
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isLiteralStart(c byte) bool {
	return c == '-' || (c >= '0' && c <= '9') || c == 't' || c == 'f' || c == 'n'
}

func isLiteralByte(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
		c == '-' || c == '+' || c == '.'
}

const hexDigits = "0123456789abcdef"

func controlEscape(c byte) string {
	switch c {
	case '\n':
		return `\n`
	case '\r':
		return `\r`
	case '\t':
		return `\t`
	}
	return `\u00` + string([]byte{hexDigits[c>>4], hexDigits[c&0xf]})
}
