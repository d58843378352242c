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

// Package decoder implements the polymorphic decoder dispatch described by
// decoder_api.h, reworked onto a Go interface: a listener picks a Decoder
// variant per route (the line-protocol validator vs. the streaming
// ingesters) rather than switching on a C vtable.
package decoder

import (
	"time"

	"github.com/trivago/n2k-gateway/kafkasink"
	"github.com/trivago/n2k-gateway/session"
	"github.com/trivago/n2k-gateway/topic"
)

// Decoder mirrors decoder_api.h's lifecycle: obtain a Session for a new
// request, feed it chunks, and finalize it once the request ends.
type Decoder interface {
	// NewSession begins a session for one request.
	NewSession(registry *topic.Registry, sink *kafkasink.Sink, vars session.Vars, now time.Time) (*session.Session, error)
	// Callback feeds one chunk through s.
	Callback(s *session.Session, chunk []byte) error
	// Done finalizes s, releasing whatever resources it holds.
	Done(s *session.Session)
}

// StreamingJSON is the default decoder: one record per top-level JSON
// object, straddling chunk boundaries via parser.JSON.
type StreamingJSON struct{}

func (StreamingJSON) NewSession(registry *topic.Registry, sink *kafkasink.Sink, vars session.Vars, now time.Time) (*session.Session, error) {
	vars.Format = session.FormatJSON
	return session.NewSession(registry, sink, vars, now)
}

func (StreamingJSON) Callback(s *session.Session, chunk []byte) error {
	return s.OnChunk(chunk)
}

func (StreamingJSON) Done(s *session.Session) {
	s.Finish()
}

// StreamingXML transcodes each top-level XML element into one JSON record.
type StreamingXML struct{}

func (StreamingXML) NewSession(registry *topic.Registry, sink *kafkasink.Sink, vars session.Vars, now time.Time) (*session.Session, error) {
	vars.Format = session.FormatXML
	return session.NewSession(registry, sink, vars, now)
}

func (StreamingXML) Callback(s *session.Session, chunk []byte) error {
	return s.OnChunk(chunk)
}

func (StreamingXML) Done(s *session.Session) {
	s.Finish()
}

// Dumb is the line-protocol decoder used by the TCP/UDP socket listeners:
// it acquires a topic handle per connection (TCP) or datagram (UDP) and
// releases it in Done once that is handled, regardless of whether any
// produce succeeded (Open Question 4's disposition — this
// mirrors the original's documented, if surprising, correctness argument
// that the registry's own retained reference keeps the handle alive for
// any in-flight sink deliveries even after the session lets go of it).
type Dumb struct{}

func (Dumb) NewSession(registry *topic.Registry, sink *kafkasink.Sink, vars session.Vars, now time.Time) (*session.Session, error) {
	vars.Format = session.FormatJSON
	return session.NewSession(registry, sink, vars, now)
}

// Callback treats the entire chunk as one opaque record and produces it
// as-is: the line protocol has no internal structure to parse (spec.md
// §4.6's "stateless for the line protocol: each read is its own record").
func (Dumb) Callback(s *session.Session, chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}
	s.ProduceLine(chunk)
	return nil
}

// Done always releases the session's topic handle, even if Callback never
// ran or every produce attempt failed.
func (Dumb) Done(s *session.Session) {
	s.Finish()
}
