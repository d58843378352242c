package kafkasink

import (
	"testing"

	"github.com/Shopify/sarama"

	"github.com/trivago/n2k-gateway/decodererr"
)

// TestMapSinkErrorSicTransposition pins the two transposed error mappings
// from spec.md §4.7 / §9 Open Question 1 exactly as specified, however
// backwards they look.
func TestMapSinkErrorSicTransposition(t *testing.T) {
	if got := mapSinkError(sarama.ErrMessageSizeTooLarge); got != decodererr.UnknownTopic {
		t.Fatalf("ErrMessageSizeTooLarge: got %v, want UnknownTopic (sic)", got)
	}
	if got := mapSinkError(sarama.ErrUnknownTopicOrPartition); got != decodererr.MsgTooLarge {
		t.Fatalf("ErrUnknownTopicOrPartition: got %v, want MsgTooLarge (sic)", got)
	}
}

func TestMapSinkErrorDefault(t *testing.T) {
	if got := mapSinkError(sarama.ErrOutOfBrokers); got != decodererr.BufferFull {
		t.Fatalf("ErrOutOfBrokers: got %v, want BufferFull", got)
	}
	if got := mapSinkError(sarama.ErrClosedClient); got != decodererr.GenericError {
		t.Fatalf("ErrClosedClient: got %v, want GenericError", got)
	}
}

func TestBatchSharedChunkRefcount(t *testing.T) {
	buf := []byte(`{"a":1}{"b":2}`)
	spans := []RecordDescriptor{{Offset: 0, Length: 7}, {Offset: 7, Length: 7}}
	b := NewBatch("events", buf, spans)

	if got := b.chunk.count(); got != 2 {
		t.Fatalf("fresh batch refcount = %d, want 2", got)
	}

	b.chunk.release()
	if got := b.chunk.count(); got != 1 {
		t.Fatalf("after one release refcount = %d, want 1", got)
	}

	b.chunk.release()
	if got := b.chunk.count(); got != 0 {
		t.Fatalf("after both releases refcount = %d, want 0", got)
	}
}

func TestNewBatchEmptyHasNoChunk(t *testing.T) {
	b := NewBatch("events", nil, nil)
	if b.chunk != nil {
		t.Fatalf("empty batch should carry no shared chunk")
	}
	if b.Len() != 0 {
		t.Fatalf("empty batch Len() = %d, want 0", b.Len())
	}
}
