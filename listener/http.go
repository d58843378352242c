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

// Package listener implements the two transport front ends: HTTP (this
// file) and raw TCP/UDP sockets (socket.go). Grounded on
// consumer/http.go's requestHandler/withHeaders style and
// consumer/socket.go's accept+worker model, generalized from gollum's
// single-stream-per-message model to the streaming-chunk Session contract
// spec.md §4.4/§4.5 requires.
package listener

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/trivago/n2k-gateway/auth"
	"github.com/trivago/n2k-gateway/decoder"
	"github.com/trivago/n2k-gateway/decodererr"
	"github.com/trivago/n2k-gateway/kafkasink"
	"github.com/trivago/n2k-gateway/ratelimit"
	"github.com/trivago/n2k-gateway/session"
	"github.com/trivago/n2k-gateway/topic"
)

// readChunkSize bounds each Read off the request body, so a session never
// buffers a whole request (spec.md §4.5 step 2 streams chunk by chunk).
const readChunkSize = 32 * 1024

// inflateLogPeriod throttles inflate-error log lines to one per client
// every five minutes (spec.md §4.5 compression).
const inflateLogPeriod = 5 * time.Minute

// HTTP is the HTTP listener front end: one per configured "http" listener
// entry. It owns an *http.Server and dispatches POST bodies into Sessions
// and GET /v1/meraki/<token> into the validator; other methods get 405, and
// a POST outside /v1/ gets 404.
type HTTP struct {
	Registry *topic.Registry
	Sink     *kafkasink.Sink
	Auth     *auth.Htpasswd // nil disables Basic auth
	Log      logrus.FieldLogger

	limiter *ratelimit.Limiter
	server  *http.Server
}

// NewHTTP builds an HTTP front end bound to addr. tlsConfig may be nil for
// plaintext listeners (mutual TLS is enforced by the server's own
// handshake via ClientAuth, set on tlsConfig by auth.TLSConfig).
func NewHTTP(addr string, registry *topic.Registry, sink *kafkasink.Sink, htpasswd *auth.Htpasswd, tlsConfig *tls.Config, log logrus.FieldLogger) *HTTP {
	h := &HTTP{
		Registry: registry,
		Sink:     sink,
		Auth:     htpasswd,
		Log:      log,
		limiter:  ratelimit.New(inflateLogPeriod),
	}
	h.server = &http.Server{
		Addr:      addr,
		Handler:   http.HandlerFunc(h.ServeHTTP),
		TLSConfig: tlsConfig,
	}
	return h
}

// Serve blocks, accepting connections on listener ln. When the server was
// built with a non-nil tlsConfig, ln is wrapped so the handshake (and any
// client-certificate verification) happens before ServeHTTP ever runs.
func (h *HTTP) Serve(ln net.Listener) error {
	if h.server.TLSConfig != nil {
		ln = tls.NewListener(ln, h.server.TLSConfig)
	}
	return h.server.Serve(ln)
}

// Shutdown gracefully drains in-flight requests, waiting up to five
// seconds for them to finish.
func (h *HTTP) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return h.server.Shutdown(ctx)
}

// ServeHTTP implements the request lifecycle from spec.md §4.5.
func (h *HTTP) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/v1/meraki/") {
		h.serveValidator(w, r)
		return
	}

	switch r.Method {
	case http.MethodPost:
		h.servePost(w, r)
	case http.MethodGet:
		// GET is only meaningful for the validator route; anything else
		// under /v1/ with GET is a 405 per the method-allowed table.
		w.Header().Set("Allow", http.MethodPost)
		h.writeErr(w, decodererr.MethodNotAllowed, "GET not supported on this resource")
	default:
		w.Header().Set("Allow", http.MethodPost)
		h.writeErr(w, decodererr.MethodNotAllowed, "method not allowed")
	}
}

// serveValidator echoes <token> from /v1/meraki/<token> with 200, per
// spec.md §4.5 "GET handling" and concrete scenario 5. No Session and no
// Kafka record are involved.
func (h *HTTP) serveValidator(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.URL.Path, "/v1/meraki/")
	token = strings.TrimSuffix(token, "/")
	if token == "" {
		h.writeErr(w, decodererr.ResourceNotFound, "missing validator token")
		return
	}
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, token)
}

func (h *HTTP) servePost(w http.ResponseWriter, r *http.Request) {
	consumer := ""
	if h.Auth != nil {
		consumer = h.Auth.CheckAuth(r)
		if consumer == "" {
			h.Auth.RequireAuth(w, r)
			return
		}
	}

	format := session.FormatJSON
	if ct := r.Header.Get("Content-Type"); strings.Contains(ct, "xml") {
		format = session.FormatXML
	}

	dec := decoder.Decoder(decoder.StreamingJSON{})
	if format == session.FormatXML {
		dec = decoder.StreamingXML{}
	}

	sess, err := dec.NewSession(h.Registry, h.Sink, session.Vars{
		Path:     r.URL.Path,
		Consumer: consumer,
		Format:   format,
	}, time.Now())
	if err != nil {
		h.writeDecoderErr(w, err)
		return
	}
	defer dec.Done(sess)

	body, cleanup, err := h.wrapBody(r)
	if err != nil {
		h.writeErr(w, decodererr.InvalidRequest, "unsupported content-encoding: %v", err)
		return
	}
	if cleanup != nil {
		defer cleanup()
	}

	var queuedErr error
	for {
		// A fresh buffer per read: records carved from it are handed to the
		// sink zero-copy and must stay intact until delivered.
		buf := make([]byte, readChunkSize)
		n, readErr := body.Read(buf)
		if n > 0 && queuedErr == nil {
			if cbErr := dec.Callback(sess, buf[:n]); cbErr != nil {
				queuedErr = cbErr
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			if h.limiter.Allow(r.RemoteAddr, time.Now()) {
				h.Log.WithError(readErr).Warn("error reading request body")
			}
			if queuedErr == nil {
				queuedErr = decodererr.New(decodererr.GenericError, "reading body: %v", readErr)
				sess.SetTransportError(decodererr.GenericError, queuedErr.Error())
			}
			break
		}
	}

	// Render through Session.Response in both the success and error cases,
	// so the body always carries messages_queued alongside any diagnostic
	// (spec.md §6) — only the HTTP status differs on error.
	status := http.StatusOK
	if queuedErr != nil {
		kind := decodererr.GenericError
		if de, ok := queuedErr.(*decodererr.Error); ok {
			kind = de.Kind
		} else {
			kind = sess.ErrKind()
		}
		status = decoderErrStatus(kind)
	}

	respBody, contentType := sess.Response()
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	w.Write(respBody)
}

// wrapBody routes the request body through an incremental inflate stream
// when Content-Encoding asks for it (spec.md §4.5 compression).
func (h *HTTP) wrapBody(r *http.Request) (io.Reader, func(), error) {
	switch strings.ToLower(r.Header.Get("Content-Encoding")) {
	case "gzip":
		zr, err := gzip.NewReader(r.Body)
		if err != nil {
			return nil, nil, err
		}
		return zr, func() { zr.Close() }, nil
	case "deflate":
		fr := flate.NewReader(r.Body)
		return fr, func() { fr.Close() }, nil
	default:
		return r.Body, nil, nil
	}
}

// decoderErrStatus implements the exhaustive decoder-error -> HTTP mapping
// table from spec.md §4.5.
func decoderErrStatus(kind decodererr.Kind) int {
	switch kind {
	case decodererr.OK:
		return http.StatusOK
	case decodererr.BufferFull:
		return http.StatusServiceUnavailable
	case decodererr.InvalidRequest, decodererr.UnknownTopic, decodererr.UnknownPartition:
		return http.StatusBadRequest
	case decodererr.MsgTooLarge:
		return http.StatusRequestEntityTooLarge
	case decodererr.MethodNotAllowed:
		return http.StatusMethodNotAllowed
	case decodererr.ResourceNotFound:
		return http.StatusNotFound
	case decodererr.Unauthorized:
		return http.StatusUnauthorized
	case decodererr.Forbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func (h *HTTP) writeErr(w http.ResponseWriter, kind decodererr.Kind, format string, args ...interface{}) {
	e := decodererr.New(kind, format, args...)
	h.writeDecoderErr(w, e)
}

func (h *HTTP) writeDecoderErr(w http.ResponseWriter, err error) {
	kind := decodererr.GenericError
	if de, ok := err.(*decodererr.Error); ok {
		kind = de.Kind
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(decoderErrStatus(kind))
	io.WriteString(w, `{"json_decoder_error":`+quoteJSON(err.Error())+`}`)
}

func quoteJSON(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
