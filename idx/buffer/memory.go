// Copyright 2020 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package buffer

import "time"

// Memory is the append-only, size-or-time-bounded sequence of payload
// strings the change-capture loop accumulates between flushes (spec §3
// "In-memory Notify Buffer"). It is owned exclusively by the loop; no
// other component is permitted to read or mutate it directly (spec §9
// "Buffer ownership").
type Memory struct {
	payloads   []string
	size       int
	duration   time.Duration
	lastFlush  time.Time
}

// NewMemory builds a Memory buffer with the given flush thresholds.
func NewMemory(size int, duration time.Duration) *Memory {
	return &Memory{
		size:      size,
		duration:  duration,
		lastFlush: time.Now(),
	}
}

// Append adds payload to the tail of the buffer.
func (m *Memory) Append(payload string) {
	m.payloads = append(m.payloads, payload)
}

// Len returns the number of buffered payloads.
func (m *Memory) Len() int {
	return len(m.payloads)
}

// Snapshot returns the buffered payloads in insertion order, without
// clearing the buffer. The caller must call Clear only after the flush
// that consumed this snapshot has fully succeeded (spec §4.6 PROCESS).
func (m *Memory) Snapshot() []string {
	out := make([]string, len(m.payloads))
	copy(out, m.payloads)
	return out
}

// Clear empties the buffer and resets the flush clock.
func (m *Memory) Clear() {
	m.payloads = nil
	m.lastFlush = time.Now()
}

// ShouldFlush reports whether the buffer has crossed the size-or-time
// threshold (spec §3, §8 boundary behaviours): size strictly greater
// than the threshold, duration greater-than-or-equal. An empty buffer
// never flushes.
func (m *Memory) ShouldFlush(now time.Time) bool {
	if len(m.payloads) == 0 {
		return false
	}
	if len(m.payloads) > m.size {
		return true
	}
	return now.Sub(m.lastFlush) >= m.duration
}
