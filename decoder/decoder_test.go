package decoder

import "testing"

// The three variants only need to satisfy Decoder; this pins that they do
// at compile time and that construction is free (no hidden global state).
func TestVariantsImplementDecoder(t *testing.T) {
	var variants = []Decoder{StreamingJSON{}, StreamingXML{}, Dumb{}}
	if len(variants) != 3 {
		t.Fatalf("expected 3 decoder variants")
	}
}
