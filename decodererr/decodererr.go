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

// Package decodererr defines the error-kind taxonomy shared by the parser,
// session, kafkasink and listener packages. It mirrors decoder_api.h's
// enum decoder_callback_err rather than the original's split between
// several per-subsystem error types.
package decodererr

import "fmt"

// Kind is a decoder/sink error category, independent of the transport that
// eventually renders it (HTTP status, socket disconnect, ...).
type Kind int

const (
	// OK means no error; present so a Kind zero value is meaningful.
	OK Kind = iota
	// BufferFull means the producer queue is saturated.
	BufferFull
	// InvalidRequest means the bytes did not parse, or the method is
	// disallowed.
	InvalidRequest
	// UnknownTopic means the producer rejected the route.
	UnknownTopic
	// UnknownPartition means the producer rejected the partition.
	UnknownPartition
	// MsgTooLarge means the payload exceeds the producer's limit.
	MsgTooLarge
	// MethodNotAllowed means the HTTP method is not POST/GET as expected.
	MethodNotAllowed
	// ResourceNotFound means the URL falls outside the /v1/ namespace.
	ResourceNotFound
	// Unauthorized means credentials were missing or rejected.
	Unauthorized
	// Forbidden means the TLS client certificate was invalid.
	Forbidden
	// MemoryError means allocation failed or an invariant was violated
	// internally.
	MemoryError
	// GenericError is the catch-all for anything not classified above.
	GenericError
)

func (k Kind) String() string {
	switch k {
	case OK:
		return "ok"
	case BufferFull:
		return "buffer_full"
	case InvalidRequest:
		return "invalid_request"
	case UnknownTopic:
		return "unknown_topic"
	case UnknownPartition:
		return "unknown_partition"
	case MsgTooLarge:
		return "msg_too_large"
	case MethodNotAllowed:
		return "method_not_allowed"
	case ResourceNotFound:
		return "resource_not_found"
	case Unauthorized:
		return "unauthorized"
	case Forbidden:
		return "forbidden"
	case MemoryError:
		return "memory_error"
	default:
		return "generic_error"
	}
}

// Error wraps a Kind with an optional diagnostic message and cause, the
// string a session surfaces to the client on failure.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// New builds an *Error of kind with a formatted diagnostic message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error of kind, keeping cause for %w-style unwrapping.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Cause }
