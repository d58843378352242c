// Copyright 2015-2018 trivago N.V.
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

package logging

import (
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

// HookBuffer implements logrus.Hook and pools log entries emitted during
// startup, before the final output writer (stdout, a log file) is known.
// Once a target is set, buffered entries are flushed and subsequent
// entries are relayed directly.
type HookBuffer struct {
	mu     sync.Mutex
	target io.Writer
	buffer []*logrus.Entry
}

// NewHookBuffer returns an empty HookBuffer.
func NewHookBuffer() *HookBuffer {
	return &HookBuffer{}
}

// Levels implements logrus.Hook.
func (b *HookBuffer) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire implements logrus.Hook.
func (b *HookBuffer) Fire(entry *logrus.Entry) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.target == nil {
		b.buffer = append(b.buffer, entry)
		return nil
	}
	return b.relay(entry)
}

// SetTarget sets the writer entries are relayed to and flushes anything
// buffered so far.
func (b *HookBuffer) SetTarget(w io.Writer) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.target = w
	for _, entry := range b.buffer {
		_ = b.relay(entry)
	}
	b.buffer = nil
}

func (b *HookBuffer) relay(entry *logrus.Entry) error {
	serialized, err := entry.Logger.Formatter.Format(entry)
	if err != nil {
		return err
	}
	_, err = b.target.Write(serialized)
	return err
}
