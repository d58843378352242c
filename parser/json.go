// Copyright 2015 trivago GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package parser implements the incremental record extractor: it turns a
// stream of opaque byte chunks into Kafka record spans, one per top-level
// JSON object, without ever buffering a whole request body. Grounded on
// zz_http2k_parser_json.c's yajl_start_map/yajl_end_map callback pair,
// reworked onto encoding/json.Decoder's Token()/InputOffset() (the yajl
// callback equivalents don't exist in the stdlib, so the depth bookkeeping
// those callbacks did is reimplemented here by hand around Token()).
package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

// Span locates one record within a byte buffer the caller already owns
// (either the chunk just fed in, for the zero-copy case, or a Straddle
// buffer this package allocated itself).
type Span struct {
	Offset int
	Length int
}

// ErrMalformed wraps the underlying JSON (or, from XML.Feed, XML) syntax
// error for a request that must be aborted, never a straddle.
type ErrMalformed struct {
	Cause error
}

func (e *ErrMalformed) Error() string { return "malformed JSON: " + e.Cause.Error() }
func (e *ErrMalformed) Unwrap() error { return e.Cause }

// JSON is a per-session incremental JSON object extractor. Its zero value
// is ready to use (Idle state, no carry buffer).
type JSON struct {
	carry []byte // non-nil iff Straddling: always starts at the '{' of an unclosed top-level object
}

// Feed processes one chunk and reports:
//   - spans: zero-copy record spans into chunk itself, in order.
//   - straddle: non-nil if a top-level object that began in a previous
//     chunk closed during this one; it is a freshly allocated buffer
//     owned solely by this one record (mirrors the original's
//     zz_parse_end_json_map_split, which produces the carried object as
//     its own single message immediately rather than through the shared
//     per-chunk array).
//
// An empty chunk is a no-op (spec.md §4.2 tie-break). Malformed input
// returns *ErrMalformed together with the spans of any objects that closed
// earlier in the same chunk (nothing from the malformed object itself); the
// caller must terminate the request.
func (p *JSON) Feed(chunk []byte) (spans []Span, straddle []byte, err error) {
	if len(chunk) == 0 {
		return nil, nil, nil
	}

	rest := chunk

	if p.carry != nil {
		combined := make([]byte, 0, len(p.carry)+len(chunk))
		combined = append(combined, p.carry...)
		combined = append(combined, chunk...)

		closeOffset, closed, ferr := findFirstClose(combined)
		if ferr != nil {
			return nil, nil, &ErrMalformed{Cause: ferr}
		}
		if !closed {
			// Still open even after appending the whole new chunk: the
			// object now spans three or more chunks. Treat the combined
			// buffer as the new carry and consume nothing else this round.
			p.carry = combined
			return nil, nil, nil
		}

		straddle = combined[:closeOffset]
		consumedFromChunk := closeOffset - len(p.carry)
		p.carry = nil
		rest = chunk[consumedFromChunk:]
		spans, err = p.scanRest(rest, len(chunk)-len(rest))
		return spans, straddle, err
	}

	spans, err = p.scanRest(rest, 0)
	return spans, nil, err
}

// scanRest scans buf (a suffix of the original chunk starting at byte
// offset base within that chunk) for zero-copy top-level object spans,
// reported as absolute offsets into the original chunk. Any object left
// open at the end of buf becomes the new carry buffer.
func (p *JSON) scanRest(buf []byte, base int) ([]Span, error) {
	if len(buf) == 0 {
		return nil, nil
	}

	spans, trailingOpen, hasTrailingOpen, err := scanObjects(buf)
	for i := range spans {
		spans[i].Offset += base
	}
	if err != nil {
		return spans, &ErrMalformed{Cause: err}
	}

	if hasTrailingOpen {
		p.carry = append([]byte(nil), buf[trailingOpen:]...)
	}

	return spans, nil
}

// scanObjects walks buf, returning every top-level {...} span closed
// within it. If buf ends while a top-level object is still open,
// trailingOpen is the byte offset (within buf) of its opening brace and
// hasTrailingOpen is true. Nesting depth only tracks '{'/'}' — arrays
// never affect it, matching the original registering only
// yajl_start_map/yajl_end_map callbacks.
//
// Bytes that are not valid at the top level — a stray '}' before any
// object has opened, or trailing prose after one has closed — are
// tolerated one byte at a time rather than aborting the request: this
// mirrors stack_pos (an unsigned counter in the original) never
// underflowing enough to fire the emit path, generalized to every kind of
// top-level garbage since encoding/json.Decoder, unlike yajl, refuses to
// even tokenize a bare '}' out of context. A syntax error encountered
// while an object IS open is never tolerated; it aborts the request.
func scanObjects(buf []byte) (spans []Span, trailingOpen int, hasTrailingOpen bool, err error) {
	pos := 0
	depth := 0
	start := 0

	for pos < len(buf) {
		dec := json.NewDecoder(bytes.NewReader(buf[pos:]))
		restartedFrom := pos

		for {
			tok, terr := dec.Token()
			if terr == io.EOF {
				return spans, 0, false, nil
			}
			if terr != nil {
				if isTruncation(terr) {
					if depth > 0 {
						return spans, start, true, nil
					}
					return spans, 0, false, nil
				}
				if depth == 0 {
					skip := restartedFrom + int(dec.InputOffset()) + 1
					if skip <= pos {
						skip = pos + 1
					}
					pos = skip
					break // restart a fresh decoder from the advanced pos
				}
				return spans, 0, false, terr
			}

			delim, ok := tok.(json.Delim)
			if !ok {
				continue
			}

			switch delim {
			case '{':
				if depth == 0 {
					start = restartedFrom + int(dec.InputOffset()) - 1
				}
				depth++
			case '}':
				if depth > 0 {
					depth--
					if depth == 0 {
						spans = append(spans, Span{Offset: start, Length: restartedFrom + int(dec.InputOffset()) - start})
					}
				}
			}
		}
	}

	return spans, 0, false, nil
}

// findFirstClose scans buf (which must begin exactly at a '{') for the
// offset just past the matching close of that single outermost object,
// ignoring anything after it. Used only for the straddle-completion path,
// where only the carried object's closure matters this round.
func findFirstClose(buf []byte) (closeOffset int, found bool, err error) {
	dec := json.NewDecoder(bytes.NewReader(buf))
	depth := 0
	for {
		tok, terr := dec.Token()
		if terr == io.EOF {
			return 0, false, nil
		}
		if terr != nil {
			if isTruncation(terr) {
				return 0, false, nil
			}
			return 0, false, terr
		}

		delim, ok := tok.(json.Delim)
		if !ok {
			continue
		}

		switch delim {
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 {
					return int(dec.InputOffset()), true, nil
				}
			}
		}
	}
}

// isTruncation reports whether err reflects a document that simply ran
// out of bytes mid-structure (expected at a chunk boundary) rather than a
// genuine syntax error (which must abort the request).
func isTruncation(err error) bool {
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var syn *json.SyntaxError
	if errors.As(err, &syn) {
		return strings.Contains(syn.Error(), "unexpected end of JSON input")
	}
	return false
}

// Reset clears any in-flight straddle state (used when a session aborts).
func (p *JSON) Reset() {
	p.carry = nil
}

// Straddling reports whether an object carried over from a previous chunk
// is still open (for tests and diagnostics).
func (p *JSON) Straddling() bool {
	return p.carry != nil
}
