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

package kafkasink

// RecordDescriptor is one record span carved out of a shared chunk buffer,
// grounded on the original's rd_kafka_message_t entries inside a
// kafka_message_array. Offset/Length index into the owning Batch's chunk.
type RecordDescriptor struct {
	Offset int
	Length int
}

// Batch is a single owner of zero or more record descriptors over at most
// one shared chunk buffer. Per REDESIGN FLAGS (cyclic batch/descriptor
// reach-back), a Batch never hands descriptors a back-pointer into itself;
// it holds the chunk once, and the Sink releases it once per record: on
// delivery, or when the record is not accepted for sending.
type Batch struct {
	Topic   string
	chunk   *sharedChunk
	records []RecordDescriptor
}

// NewBatch wraps buf as the backing storage for up to len(spans) records.
// Passing a nil buf is valid for an empty batch (a chunk that produced zero
// records, e.g. an empty request body).
func NewBatch(topic string, buf []byte, spans []RecordDescriptor) *Batch {
	b := &Batch{Topic: topic, records: spans}
	if len(spans) > 0 {
		b.chunk = newSharedChunk(buf, len(spans))
	}
	return b
}

// Len reports how many records this batch carries.
func (b *Batch) Len() int { return len(b.records) }

// payload returns the byte slice for record i, a view into the shared chunk.
func (b *Batch) payload(i int) []byte {
	r := b.records[i]
	return b.chunk.buf[r.Offset : r.Offset+r.Length]
}
