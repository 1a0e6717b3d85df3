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

// Package normalize implements the Row Normaliser (C2): safe, pure
// conversion of database scalar, timestamp, JSON, and array cells into
// the primitives, ISO-8601 strings, and flat sequences an index document
// is allowed to hold. No cell is ever left as a database-native temporal
// or JSON type once Batch has run.
package normalize

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/nealrout/daas-go-idx/idx/model"
)

// wireTimestampFormat is YYYY-MM-DDTHH:MM:SS.sssZ, millisecond precision,
// UTC, trailing Z (spec §3, §4.2, §6 wire format (d)).
const wireTimestampFormat = "2006-01-02T15:04:05.000Z"

// Batch normalises every cell of b in place and returns it, applying the
// four rules of spec §4.2 in order. Batch is idempotent: normalising an
// already-normalised batch is a no-op (spec §8 round-trip law), because
// none of the four rules matches a value that has already been through
// them.
func Batch(b *model.Batch) *model.Batch {
	if b == nil {
		return nil
	}
	for _, row := range b.Rows {
		for i, col := range b.Columns {
			if i >= len(row) {
				continue
			}
			row[i] = Cell(col.Type, row[i])
		}
	}
	return b
}

// Cell applies the normalisation rules to a single value of the given
// column type. It is exported so callers with row-of-map representations
// (spec §9, "Tabular batch") can normalise without building a Batch.
func Cell(colType model.ColumnType, value interface{}) interface{} {
	if value == nil {
		return nil
	}

	switch colType {
	case model.ColumnTimestampTZ:
		return normaliseTimestamp(value)
	case model.ColumnArray:
		return normaliseArray(value)
	}

	// Rule 2 applies to any text cell, not only ones flagged ColumnJSONText,
	// because the source's detection is "does it parse as a JSON array",
	// not a declared column type.
	if s, ok := value.(string); ok {
		if arr, ok := tryParseJSONArray(s); ok {
			return arr
		}
		return s
	}

	return value
}

// normaliseTimestamp converts t to UTC and formats it per the wire
// format. Non-time values pass through unchanged (defensive: a caller
// may mis-tag a column type, and silent pass-through matches the "parse
// failure is silent, not an error" spirit of spec §4.2 rule 2).
func normaliseTimestamp(value interface{}) interface{} {
	switch t := value.(type) {
	case time.Time:
		return t.UTC().Format(wireTimestampFormat)
	case *time.Time:
		if t == nil {
			return nil
		}
		return t.UTC().Format(wireTimestampFormat)
	default:
		return value
	}
}

// tryParseJSONArray reports whether s parses as JSON and the parsed value
// is an array; on success it returns the decoded slice. Parse failure,
// and successful parses of non-array JSON (objects, scalars), are both
// "not an array" and leave s untouched (spec §4.2 rule 2).
func tryParseJSONArray(s string) ([]interface{}, bool) {
	var arr []interface{}
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	if err := dec.Decode(&arr); err != nil {
		return nil, false
	}
	if dec.More() {
		// Trailing garbage after the array: not valid JSON as a whole.
		return nil, false
	}
	return normaliseJSONNumbers(arr), true
}

// normaliseJSONNumbers converts the top-level json.Number elements of an
// array (produced by UseNumber, which avoids silently widening every
// numeric array element to float64) to int64 when integral, else
// float64, so large integers keep their precision. Nested arrays and
// objects are returned as decoded, with their json.Number values kept.
func normaliseJSONNumbers(v interface{}) []interface{} {
	arr, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]interface{}, len(arr))
	for i, e := range arr {
		if n, ok := e.(json.Number); ok {
			if iv, err := n.Int64(); err == nil {
				out[i] = iv
				continue
			}
			if fv, err := n.Float64(); err == nil {
				out[i] = fv
				continue
			}
		}
		out[i] = e
	}
	return out
}

// normaliseArray flattens a homogeneous database array type (spec §4.2
// rule 3) into a []interface{}. Store-gateway drivers commonly surface
// Postgres arrays as pq.StringArray/pq.Int64Array or similar named
// slice types; reflection-free type switches cover the shapes this core
// needs without depending on the driver package here.
func normaliseArray(value interface{}) interface{} {
	switch a := value.(type) {
	case []string:
		out := make([]interface{}, len(a))
		for i, s := range a {
			out[i] = s
		}
		return out
	case []int64:
		out := make([]interface{}, len(a))
		for i, n := range a {
			out[i] = n
		}
		return out
	case []float64:
		out := make([]interface{}, len(a))
		for i, f := range a {
			out[i] = f
		}
		return out
	case []interface{}:
		return a
	default:
		return value
	}
}
