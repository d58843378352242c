package listener

import (
	"net/http"
	"testing"

	"github.com/trivago/n2k-gateway/decodererr"
)

func TestDecoderErrStatusMapping(t *testing.T) {
	cases := []struct {
		kind decodererr.Kind
		want int
	}{
		{decodererr.OK, http.StatusOK},
		{decodererr.BufferFull, http.StatusServiceUnavailable},
		{decodererr.InvalidRequest, http.StatusBadRequest},
		{decodererr.UnknownTopic, http.StatusBadRequest},
		{decodererr.UnknownPartition, http.StatusBadRequest},
		{decodererr.MsgTooLarge, http.StatusRequestEntityTooLarge},
		{decodererr.MethodNotAllowed, http.StatusMethodNotAllowed},
		{decodererr.ResourceNotFound, http.StatusNotFound},
		{decodererr.Unauthorized, http.StatusUnauthorized},
		{decodererr.Forbidden, http.StatusForbidden},
		{decodererr.MemoryError, http.StatusInternalServerError},
		{decodererr.GenericError, http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := decoderErrStatus(c.kind); got != c.want {
			t.Errorf("decoderErrStatus(%v) = %d, want %d", c.kind, got, c.want)
		}
	}
}

func TestQuoteJSONEscapesQuotesAndBackslashes(t *testing.T) {
	got := quoteJSON(`bad "input" \ here`)
	want := `"bad \"input\" \\ here"`
	if got != want {
		t.Fatalf("quoteJSON = %s, want %s", got, want)
	}
}
