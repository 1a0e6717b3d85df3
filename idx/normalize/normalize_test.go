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

package normalize

import (
	"testing"
	"time"

	"github.com/nealrout/daas-go-idx/idx/model"
	"github.com/stretchr/testify/require"
)

func TestBatchNormalisesTimestamp(t *testing.T) {
	loc := time.FixedZone("CEST", 2*60*60)
	ts := time.Date(2024, 6, 1, 12, 34, 56, 789123000, loc)

	b := model.NewBatch(
		[]model.Column{{Name: "updated_at", Type: model.ColumnTimestampTZ}},
		[][]interface{}{{ts}},
	)
	Batch(b)

	require.Equal(t, "2024-06-01T10:34:56.789Z", b.Rows[0][0])
}

func TestBatchNormalisesNullTimestamp(t *testing.T) {
	b := model.NewBatch(
		[]model.Column{{Name: "updated_at", Type: model.ColumnTimestampTZ}},
		[][]interface{}{{nil}},
	)
	Batch(b)

	require.Nil(t, b.Rows[0][0])
}

func TestCellParsesJSONArray(t *testing.T) {
	got := Cell(model.ColumnText, `["x","y"]`)
	require.Equal(t, []interface{}{"x", "y"}, got)
}

func TestCellLeavesNonArrayJSONUnchanged(t *testing.T) {
	require.Equal(t, "not json", Cell(model.ColumnText, "not json"))
	require.Equal(t, `{"a":1}`, Cell(model.ColumnText, `{"a":1}`))
}

func TestCellFlattensArrayColumn(t *testing.T) {
	got := Cell(model.ColumnArray, []string{"a", "b"})
	require.Equal(t, []interface{}{"a", "b"}, got)
}

func TestCellPassesNumericThrough(t *testing.T) {
	require.Equal(t, int64(42), Cell(model.ColumnInteger, int64(42)))
	require.Equal(t, 3.14, Cell(model.ColumnFloat, 3.14))
}

func TestBatchIsIdempotent(t *testing.T) {
	b := model.NewBatch(
		[]model.Column{
			{Name: "tags", Type: model.ColumnText},
			{Name: "name", Type: model.ColumnText},
		},
		[][]interface{}{{`["x","y"]`, "hello"}},
	)
	Batch(b)
	first := append([]interface{}{}, b.Rows[0]...)
	Batch(b)
	require.Equal(t, first, b.Rows[0])
}
