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

// Package session implements the per-request state bundle described by
// zz_http2k_decoder.h: a topic handle held for the whole request, a parser
// instance (JSON or XML), the batch built from the current chunk, and the
// counters needed to render the terminal response. One Session belongs to
// exactly one goroutine for its entire lifetime, matching net/http's
// goroutine-per-request model (see SPEC_FULL.md §5).
package session

import (
	"strconv"
	"strings"
	"time"

	"github.com/trivago/n2k-gateway/decodererr"
	"github.com/trivago/n2k-gateway/kafkasink"
	"github.com/trivago/n2k-gateway/parser"
	"github.com/trivago/n2k-gateway/topic"
)

// Format selects which incremental parser a session feeds chunks through.
type Format int

const (
	// FormatJSON is the default: one record per top-level JSON object.
	FormatJSON Format = iota
	// FormatXML transcodes each top-level XML element into one JSON record.
	FormatXML
)

// Vars carries the request-derived inputs NewSession needs: the URL path
// (used to extract the topic) and the authenticated consumer id, if any.
type Vars struct {
	Path     string // e.g. "/v1/topicA"
	Consumer string // authenticated username, "" if unauthenticated
	Format   Format
}

// jsonParser and xmlParser are the minimal surface Session needs from
// parser.JSON / parser.XML, kept as an interface so tests can substitute a
// fake without dragging in the real chunk-scanning state machine.
type jsonParser interface {
	Feed(chunk []byte) (spans []parser.Span, straddle []byte, err error)
	Reset()
}

type xmlParser interface {
	Feed(chunk []byte) (records [][]byte, err error)
	Reset()
}

// Session owns one request's topic handle, parser state, and response
// counters. Not safe for concurrent use: exactly one goroutine drives a
// Session for its whole lifetime.
type Session struct {
	registry *topic.Registry
	sink     *kafkasink.Sink
	handle   *topic.Handle

	format Format
	json   jsonParser
	xml    xmlParser

	queued  int
	errKind decodererr.Kind
	errMsg  string
}

// ErrNoTopic is returned by ExtractTopic (and wrapped by NewSession as a
// ResourceNotFound error) when the request path does not begin with the
// required /v1/ prefix or names no topic after it.
type ErrNoTopic struct{ Path string }

func (e *ErrNoTopic) Error() string { return "no topic in path: " + e.Path }

// ExtractTopic implements the URL contract from spec.md §4.5/§4.4: the
// topic is the path segment following "/v1/", and when a consumer id is
// present the effective topic becomes "<consumer>_<topic>".
func ExtractTopic(path, consumer string) (string, error) {
	const prefix = "/v1/"
	if !strings.HasPrefix(path, prefix) {
		return "", &ErrNoTopic{Path: path}
	}
	rest := path[len(prefix):]
	rest = strings.TrimSuffix(rest, "/")
	if rest == "" {
		return "", &ErrNoTopic{Path: path}
	}
	// Only the first segment names the topic; anything past a further
	// slash is ignored (the meraki validator path is handled separately,
	// before a Session is ever constructed).
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	if consumer != "" {
		rest = consumer + "_" + rest
	}
	return rest, nil
}

// NewSession extracts the topic from vars, acquires a topic handle from
// registry, and initializes the requested parser. now drives the
// registry's idle-handle bookkeeping.
func NewSession(registry *topic.Registry, sink *kafkasink.Sink, vars Vars, now time.Time) (*Session, error) {
	name, err := ExtractTopic(vars.Path, vars.Consumer)
	if err != nil {
		return nil, decodererr.Wrap(decodererr.ResourceNotFound, err, "no such resource: %s", vars.Path)
	}

	handle, err := registry.Get(name, now)
	if err != nil {
		return nil, decodererr.Wrap(decodererr.UnknownTopic, err, "topic %s unavailable", name)
	}

	s := &Session{
		registry: registry,
		sink:     sink,
		handle:   handle,
		format:   vars.Format,
	}
	switch vars.Format {
	case FormatXML:
		s.xml = &parser.XML{}
	default:
		s.json = &parser.JSON{}
	}
	return s, nil
}

// OnChunk feeds one chunk of request body through the session's parser,
// builds a batch from whatever records completed, flushes it to the sink,
// and accumulates the sink's accepted count. A malformed chunk aborts the
// session's remaining chunks: the caller must not feed it further chunks
// after an error.
func (s *Session) OnChunk(chunk []byte) error {
	topicName := s.handle.Name

	switch s.format {
	case FormatXML:
		records, err := s.xml.Feed(chunk)
		for _, rec := range records {
			s.produceOne(topicName, rec)
		}
		if err != nil {
			s.errKind = decodererr.InvalidRequest
			s.errMsg = err.Error()
			return err
		}
		return nil

	default:
		spans, straddle, err := s.json.Feed(chunk)

		if straddle != nil {
			s.produceOne(topicName, straddle)
		}

		if len(spans) > 0 {
			descs := make([]kafkasink.RecordDescriptor, len(spans))
			for i, sp := range spans {
				descs[i] = kafkasink.RecordDescriptor{Offset: sp.Offset, Length: sp.Length}
			}
			batch := kafkasink.NewBatch(topicName, chunk, descs)
			s.queued += s.sink.Produce(batch)
		}

		if err != nil {
			s.errKind = decodererr.InvalidRequest
			s.errMsg = err.Error()
			return err
		}
		return nil
	}
}

// ProduceLine produces chunk as a single opaque record, bypassing the
// JSON/XML parser entirely. Used by the line-protocol (Dumb) decoder,
// where each socket read is already its own record.
func (s *Session) ProduceLine(chunk []byte) {
	s.produceOne(s.handle.Name, chunk)
}

// produceOne flushes a single already-materialized record (the straddle
// record, or any XML record) as its own one-span batch, mirroring
// zz_parse_end_json_map_split's single-record produce path.
func (s *Session) produceOne(topicName string, rec []byte) {
	batch := kafkasink.NewBatch(topicName, rec, []kafkasink.RecordDescriptor{{Offset: 0, Length: len(rec)}})
	s.queued += s.sink.Produce(batch)
}

// Response renders the terminal response body for this session: JSON for
// the JSON/default branch, a small XML envelope for the XML branch.
// messages_queued is the number the sink accepted, not the number parsed
// (spec.md §4.4).
func (s *Session) Response() (body []byte, contentType string) {
	if s.format == FormatXML {
		var b strings.Builder
		b.WriteString("<result><messages_queued>")
		b.WriteString(strconv.Itoa(s.queued))
		b.WriteString("</messages_queued>")
		if s.errMsg != "" {
			b.WriteString("<xml_decoder_error>")
			b.WriteString(escapeXML(s.errMsg))
			b.WriteString("</xml_decoder_error>")
		}
		b.WriteString("</result>")
		return []byte(b.String()), "application/xml"
	}

	var b strings.Builder
	b.WriteString(`{"messages_queued":`)
	b.WriteString(strconv.Itoa(s.queued))
	b.WriteByte('}')
	if s.errMsg != "" {
		// Re-render with the diagnostic field; small enough not to merit
		// a json.Marshal round trip for the common error-free path above.
		b.Reset()
		b.WriteString(`{"messages_queued":`)
		b.WriteString(strconv.Itoa(s.queued))
		b.WriteString(`,"json_decoder_error":`)
		b.WriteString(strconv.Quote(s.errMsg))
		b.WriteByte('}')
	}
	return []byte(b.String()), "application/json"
}

// SetTransportError records a failure that happened outside the parser
// itself (e.g. a request body read error) so Response still reports it
// alongside whatever was already queued, per spec.md §6's dual-field
// contract. Only takes effect if the session has no error recorded yet.
func (s *Session) SetTransportError(kind decodererr.Kind, msg string) {
	if s.errMsg == "" {
		s.errKind = kind
		s.errMsg = msg
	}
}

// ErrKind reports the decodererr.Kind this session ended with, OK if none.
func (s *Session) ErrKind() decodererr.Kind { return s.errKind }

// MessagesQueued reports the number of records the sink accepted so far.
func (s *Session) MessagesQueued() int { return s.queued }

// Finish releases the parser state and the topic handle. Must be called
// exactly once, regardless of whether the session ended in error.
func (s *Session) Finish() {
	if s.json != nil {
		s.json.Reset()
	}
	if s.xml != nil {
		s.xml.Reset()
	}
	s.registry.Release(s.handle)
}

func escapeXML(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	return r.Replace(s)
}
