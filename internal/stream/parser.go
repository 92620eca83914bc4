// Package stream implements the streaming JSON reassembler described in
// spec.md §4.3: the upstream response is a single top-level JSON array
// whose elements may be split across arbitrary byte chunks. A conventional
// parser demands a complete buffer and cannot be used here, so this is a
// hand-rolled character-class state machine — flat, not recursive, O(n)
// time and O(1) state per byte, carried across Feed calls so no byte is
// rescanned once consumed.
//
// Grounded on original_source/src/streaming/parser.rs's StreamingJsonParser.
package stream

import (
	"encoding/json"
	"fmt"

	log "github.com/sirupsen/logrus"
)

const (
	initialBufferSize = 8 * 1024
	maxBufferSize     = 64 * 1024
)

// Parser reassembles complete top-level array elements from arbitrarily
// chunked bytes. Zero value is not usable; use New.
type Parser struct {
	buf []byte // unconsumed bytes seen so far
	pos int    // next byte in buf to examine

	inObject   bool // currently scanning inside a candidate object
	objStart   int  // index in buf where the current object began
	depth      int  // brace depth while inObject
	inString   bool
	escapeNext bool
}

// New returns a Parser with an empty internal buffer.
func New() *Parser {
	return &Parser{buf: make([]byte, 0, initialBufferSize)}
}

// Feed appends chunk to the internal buffer and extracts every complete
// top-level object it can find. Bytes that don't yet form a complete
// object remain buffered for the next call.
func (p *Parser) Feed(chunk []byte) []json.RawMessage {
	p.buf = append(p.buf, chunk...)
	out := p.scan()
	p.compact()
	return out
}

// Finish signals no more bytes are coming. It returns any remaining
// complete objects, or an error if the buffer holds an unrecoverable
// partial tail (an object that never closed).
func (p *Parser) Finish() ([]json.RawMessage, error) {
	out := p.scan()
	if p.inObject {
		pending := len(p.buf) - p.objStart
		p.reset()
		return out, fmt.Errorf("stream: unterminated object at end of stream (%d bytes pending)", pending)
	}
	p.reset()
	return out, nil
}

// scan advances p.pos through every newly-arrived byte exactly once,
// tracking brace depth / string state / escape state, and slices out each
// complete object as its closing brace is found.
func (p *Parser) scan() []json.RawMessage {
	var out []json.RawMessage
	for p.pos < len(p.buf) {
		b := p.buf[p.pos]

		if !p.inObject {
			switch b {
			case ' ', '\t', '\n', '\r', ',', '[', ']':
				// whitespace and array delimiters between elements: skip
			case '{':
				p.inObject = true
				p.objStart = p.pos
				p.depth = 1
				p.inString = false
				p.escapeNext = false
			default:
				// Unrecognized byte before any object; tolerate and skip.
				log.WithField("byte", b).Debug("stream: skipping noise byte outside object")
			}
			p.pos++
			continue
		}

		if p.escapeNext {
			p.escapeNext = false
			p.pos++
			continue
		}
		if p.inString {
			switch b {
			case '\\':
				p.escapeNext = true
			case '"':
				p.inString = false
			}
			p.pos++
			continue
		}
		switch b {
		case '"':
			p.inString = true
		case '{':
			p.depth++
		case '}':
			p.depth--
			if p.depth == 0 {
				raw := p.buf[p.objStart : p.pos+1]
				var parsed json.RawMessage
				if err := json.Unmarshal(raw, &parsed); err != nil {
					log.WithError(err).Warn("stream: dropping malformed chunk object")
				} else {
					cp := make(json.RawMessage, len(raw))
					copy(cp, raw)
					out = append(out, cp)
				}
				p.inObject = false
			}
		}
		p.pos++
	}
	return out
}

// compact drops the bytes already consumed (everything before the current
// object, or everything if no object is open) and reallocates at the
// initial size once the backing array has grown past the soft cap, so
// long-lived workers don't retain large allocations after a burst of big
// chunks.
func (p *Parser) compact() {
	keepFrom := p.pos
	if p.inObject {
		keepFrom = p.objStart
	}
	if keepFrom == 0 {
		return
	}

	remaining := len(p.buf) - keepFrom
	if cap(p.buf) > maxBufferSize && remaining < initialBufferSize {
		fresh := make([]byte, remaining, initialBufferSize)
		copy(fresh, p.buf[keepFrom:])
		p.buf = fresh
	} else {
		copy(p.buf, p.buf[keepFrom:])
		p.buf = p.buf[:remaining]
	}
	p.pos -= keepFrom
	if p.inObject {
		p.objStart -= keepFrom
	}
}

func (p *Parser) reset() {
	if cap(p.buf) > maxBufferSize {
		p.buf = make([]byte, 0, initialBufferSize)
	} else {
		p.buf = p.buf[:0]
	}
	p.pos = 0
	p.inObject = false
	p.objStart = 0
	p.depth = 0
	p.inString = false
	p.escapeNext = false
}
