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

// Package topic implements the topic registry: a pool of refcounted Kafka
// topic handles keyed by name, LRU-evicted after an idle TTL. Grounded on
// the original's src/util/topic_database.c (hash table + LRU list under one
// lock) and generalized with container/list, the same idiom
// consumer/socket.go uses for its client list.
package topic

import (
	"container/list"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// IdleTTL is how long an unused topic handle survives before eviction.
const IdleTTL = 15 * time.Minute

// Producer is the subset of the Kafka client the registry needs in order to
// validate a topic name exists / is creatable. Implemented by kafkasink.Sink.
type Producer interface {
	// EnsureTopic returns an error if the topic cannot be produced to
	// (e.g. the broker refuses to auto-create it).
	EnsureTopic(name string) error
}

// Handle is a refcounted reference to one topic name. Callers obtained a
// Handle via Registry.Get must call Registry.Release exactly once when
// done with it.
type Handle struct {
	Name string

	refcount int64
	lastUse  time.Time
	elem     *list.Element // LRU list element, registry-owned
}

// Registry is the topic handle pool. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	byName   map[string]*Handle
	lru      *list.List // front = most recently used
	producer Producer
}

// New creates an empty registry backed by producer.
func New(producer Producer) *Registry {
	return &Registry{
		byName:   make(map[string]*Handle),
		lru:      list.New(),
		producer: producer,
	}
}

// ErrOutOfResources is returned when the underlying Kafka client refuses to
// create a new topic handle.
type ErrOutOfResources struct {
	Topic string
	Cause error
}

func (e *ErrOutOfResources) Error() string {
	return fmt.Sprintf("topic %q: out of resources: %v", e.Topic, e.Cause)
}

func (e *ErrOutOfResources) Unwrap() error { return e.Cause }

// Get returns a handle for name with its refcount incremented, creating one
// if absent. now drives both the handle's freshness timestamp and the
// sweep of idle handles that runs on every call.
func (r *Registry) Get(name string, now time.Time) (*Handle, error) {
	r.mu.RLock()
	h, ok := r.byName[name]
	r.mu.RUnlock()

	if !ok {
		// Construct outside the lock: EnsureTopic may block on broker
		// metadata and must never hold the registry lock while doing so.
		if err := r.producer.EnsureTopic(name); err != nil {
			return nil, &ErrOutOfResources{Topic: name, Cause: err}
		}

		r.mu.Lock()
		if existing, won := r.byName[name]; won {
			// Another goroutine inserted it first; our freshly built
			// handle is simply discarded (never entered the map, so
			// nothing needs releasing, unlike the original's explicit
			// topic_decref on the loser).
			h = existing
		} else {
			// refcount starts at 1: the registry's own slot reference,
			// held until eviction or Shutdown.
			h = &Handle{Name: name, refcount: 1}
			r.byName[name] = h
		}
		r.touchLocked(h, now)
		atomic.AddInt64(&h.refcount, 1)
		r.sweepLocked(now)
		r.mu.Unlock()
		return h, nil
	}

	r.mu.Lock()
	r.touchLocked(h, now)
	atomic.AddInt64(&h.refcount, 1)
	r.sweepLocked(now)
	r.mu.Unlock()
	return h, nil
}

// touchLocked refreshes lastUse and moves h to the front of the LRU list.
// Caller holds the write lock.
func (r *Registry) touchLocked(h *Handle, now time.Time) {
	h.lastUse = now
	if h.elem != nil {
		r.lru.Remove(h.elem)
	}
	h.elem = r.lru.PushFront(h)
}

// sweepLocked evicts handles idle beyond IdleTTL. Caller holds the write
// lock. Eviction only drops the registry's own reference (refcount-- );
// handles still held by live sessions survive until those release too.
func (r *Registry) sweepLocked(now time.Time) {
	cutoff := now.Add(-IdleTTL)
	for e := r.lru.Back(); e != nil; {
		h := e.Value.(*Handle)
		if !h.lastUse.Before(cutoff) {
			break
		}
		prev := e.Prev()
		r.lru.Remove(e)
		delete(r.byName, h.Name)
		r.releaseLocked(h)
		e = prev
	}
}

// Release decrements handle's refcount, destroying it once it reaches zero.
func (r *Registry) Release(h *Handle) {
	if h == nil {
		return
	}
	r.mu.Lock()
	r.releaseLocked(h)
	r.mu.Unlock()
}

func (r *Registry) releaseLocked(h *Handle) {
	if atomic.AddInt64(&h.refcount, -1) == 0 {
		// Nothing further to do: Go's GC reclaims h once the last
		// reference (registry's map entry, already removed, and the
		// caller's own pointer) is dropped. No rd_kafka_topic_destroy
		// equivalent is needed since sarama topics are just strings.
	}
}

// Refcount returns h's current refcount (for tests).
func (h *Handle) Refcount() int64 {
	return atomic.LoadInt64(&h.refcount)
}

// Shutdown drops the registry's own references to every handle. Safe to
// call while sessions still hold outstanding references: they keep their
// handles alive until they individually Release.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, h := range r.byName {
		delete(r.byName, name)
		r.releaseLocked(h)
	}
	r.lru.Init()
}

// Len reports the number of distinct topics currently tracked (for tests
// and metrics).
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}
