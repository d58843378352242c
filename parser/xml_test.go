package parser

import (
	"encoding/json"
	"testing"
)

func TestXMLFeedSingleElement(t *testing.T) {
	var p XML
	records, err := p.Feed([]byte(`<event client="abc"><a>5</a></event>`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(records[0], &decoded); err != nil {
		t.Fatalf("record is not valid JSON: %v (%s)", err, records[0])
	}
	if decoded["tag"] != "event" {
		t.Fatalf("tag = %v, want event", decoded["tag"])
	}
	attrs, _ := decoded["attributes"].(map[string]interface{})
	if attrs["client"] != "abc" {
		t.Fatalf("attributes.client = %v, want abc", attrs["client"])
	}
	children, _ := decoded["children"].([]interface{})
	if len(children) != 1 {
		t.Fatalf("got %d children, want 1", len(children))
	}
}

func TestXMLFeedTwoTopLevelElements(t *testing.T) {
	var p XML
	records, err := p.Feed([]byte(`<a>1</a><b>2</b>`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
}

// spec.md §8: an element closed earlier in the chunk must still be
// delivered even though a later element in the same chunk is malformed.
func TestXMLFeedValidPrefixSurvivesTrailingMalformed(t *testing.T) {
	var p XML
	records, err := p.Feed([]byte(`<a>1</a><b></c>`))
	if err == nil {
		t.Fatalf("expected malformed error")
	}
	if _, ok := err.(*ErrMalformed); !ok {
		t.Fatalf("error type = %T, want *ErrMalformed", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1 (the already-closed prefix)", len(records))
	}
}

func TestXMLFeedStraddlingElement(t *testing.T) {
	var p XML
	records, err := p.Feed([]byte(`<event><fiel`))
	if err != nil {
		t.Fatalf("chunk1: unexpected error: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("chunk1: expected zero records, got %d", len(records))
	}
	if !p.Straddling() {
		t.Fatalf("parser should be Straddling after chunk1")
	}

	records, err = p.Feed([]byte(`d>x</field></event>`))
	if err != nil {
		t.Fatalf("chunk2: unexpected error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("chunk2: got %d records, want 1", len(records))
	}
	if p.Straddling() {
		t.Fatalf("parser should be Idle once the element closes")
	}
}
