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

import "sync/atomic"

// sharedChunk is a chunk buffer shared between a parser's record spans and
// the sarama delivery callbacks that eventually consume them. Grounded on
// the original's kafka_message_array's payload_buffer, which is freed by
// kafka_message_array_internal_decref once the array's count reaches zero.
// Go's GC reclaims the backing []byte on its own; this wrapper exists only
// to make "released exactly once, no earlier than the last delivery" a
// property tests can observe (see the count accessor below).
type sharedChunk struct {
	buf      []byte
	refcount int32
}

// newSharedChunk wraps buf with an initial refcount of held, the number of
// record descriptors about to be carved from it. A Batch with zero records
// never calls this; held must be >= 1.
func newSharedChunk(buf []byte, held int) *sharedChunk {
	return &sharedChunk{buf: buf, refcount: int32(held)}
}

// release drops one reference. Once the count reaches zero the chunk is
// considered fully delivered (or permanently failed) and eligible for
// collection; nothing further needs to happen explicitly.
func (c *sharedChunk) release() {
	atomic.AddInt32(&c.refcount, -1)
}

// count reports the chunk's current reference count (tests only).
func (c *sharedChunk) count() int32 {
	return atomic.LoadInt32(&c.refcount)
}
