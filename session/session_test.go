package session

import (
	"strings"
	"testing"

	"github.com/trivago/n2k-gateway/decodererr"
)

func TestExtractTopicRequiresV1Prefix(t *testing.T) {
	if _, err := ExtractTopic("/other/topicA", ""); err == nil {
		t.Fatalf("expected error for path outside /v1/")
	}
}

func TestExtractTopicPlain(t *testing.T) {
	got, err := ExtractTopic("/v1/topicA", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "topicA" {
		t.Fatalf("got %q, want topicA", got)
	}
}

func TestExtractTopicWithConsumerPrefix(t *testing.T) {
	got, err := ExtractTopic("/v1/topicA", "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "alice_topicA" {
		t.Fatalf("got %q, want alice_topicA", got)
	}
}

func TestExtractTopicTrailingSlash(t *testing.T) {
	got, err := ExtractTopic("/v1/topicA/", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "topicA" {
		t.Fatalf("got %q, want topicA", got)
	}
}

func TestExtractTopicEmptyAfterPrefix(t *testing.T) {
	if _, err := ExtractTopic("/v1/", ""); err == nil {
		t.Fatalf("expected error for empty topic segment")
	}
}

func TestExtractTopicIgnoresExtraSegments(t *testing.T) {
	got, err := ExtractTopic("/v1/topicA/extra", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "topicA" {
		t.Fatalf("got %q, want topicA", got)
	}
}

// spec.md §6: the response body must carry messages_queued alongside the
// diagnostic, not one or the other.
func TestResponseIncludesBothQueuedCountAndErrorJSON(t *testing.T) {
	s := &Session{queued: 3, errMsg: "malformed JSON: unexpected end of JSON input"}

	body, contentType := s.Response()
	if contentType != "application/json" {
		t.Fatalf("contentType = %q, want application/json", contentType)
	}
	got := string(body)
	if !strings.Contains(got, `"messages_queued":3`) {
		t.Fatalf("body = %q, missing messages_queued", got)
	}
	if !strings.Contains(got, `"json_decoder_error"`) {
		t.Fatalf("body = %q, missing json_decoder_error", got)
	}
}

func TestResponseIncludesBothQueuedCountAndErrorXML(t *testing.T) {
	s := &Session{format: FormatXML, queued: 2, errMsg: "bad markup"}

	body, contentType := s.Response()
	if contentType != "application/xml" {
		t.Fatalf("contentType = %q, want application/xml", contentType)
	}
	got := string(body)
	if !strings.Contains(got, `<messages_queued>2</messages_queued>`) {
		t.Fatalf("body = %q, missing messages_queued", got)
	}
	if !strings.Contains(got, `<xml_decoder_error>`) {
		t.Fatalf("body = %q, missing xml_decoder_error", got)
	}
}

func TestSetTransportErrorOnlySetsOnce(t *testing.T) {
	s := &Session{}
	s.SetTransportError(decodererr.GenericError, "first")
	s.SetTransportError(decodererr.InvalidRequest, "second")
	if s.errMsg != "first" {
		t.Fatalf("errMsg = %q, want first (first error wins)", s.errMsg)
	}
	if s.errKind != decodererr.GenericError {
		t.Fatalf("errKind = %v, want GenericError", s.errKind)
	}
}
