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

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEmptyBufferNeverFlushes(t *testing.T) {
	m := NewMemory(0, time.Hour)
	require.False(t, m.ShouldFlush(time.Now().Add(2*time.Hour)))
}

func TestSizeThresholdIsStrictlyGreaterThan(t *testing.T) {
	m := NewMemory(1, time.Hour)
	m.Append("a")
	require.False(t, m.ShouldFlush(time.Now()), "size == threshold must not flush")
	m.Append("b")
	require.True(t, m.ShouldFlush(time.Now()), "size > threshold must flush")
}

func TestDurationThresholdIsInclusive(t *testing.T) {
	m := NewMemory(100, time.Minute)
	m.Append("a")
	exactlyDue := m.lastFlush.Add(time.Minute)
	require.True(t, m.ShouldFlush(exactlyDue))
}

func TestSnapshotPreservesInsertionOrder(t *testing.T) {
	m := NewMemory(10, time.Hour)
	m.Append("A1")
	m.Append("A2")
	require.Equal(t, []string{"A1", "A2"}, m.Snapshot())
}

func TestClearResetsBufferAndClock(t *testing.T) {
	m := NewMemory(0, time.Hour)
	m.Append("a")
	beforeClear := time.Now()
	m.Clear()
	require.Equal(t, 0, m.Len())
	require.False(t, m.lastFlush.Before(beforeClear))
	require.False(t, m.ShouldFlush(time.Now()))
}
