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

// Package model holds the data shapes shared by every stage of the
// pipeline: the columnar result of a stored-procedure call, the
// normalised index document, and the per-domain configuration binding.
package model

import "encoding/json"

// EncodeKeyedPayloads builds the JSON wire form {"<key>": [payload, ...]}
// used both by get_by_id (fetch key) and the acknowledgement procedure
// (event fetch key) — spec §6 wire formats (a) and (b). The two keys
// MUST NOT be conflated by callers (spec §4.5); this helper only shapes
// the envelope.
func EncodeKeyedPayloads(key string, payloads []string) (string, error) {
	if payloads == nil {
		payloads = []string{}
	}
	data, err := json.Marshal(map[string][]string{key: payloads})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ColumnType identifies the database-native type a Column carries before
// normalisation. After normalisation (see package normalize) every cell
// holds only a Go primitive, a []interface{}, or nil.
type ColumnType int

const (
	// ColumnUnknown is the zero value; treated as a pass-through text type.
	ColumnUnknown ColumnType = iota
	ColumnText
	ColumnInteger
	ColumnFloat
	ColumnTimestampTZ
	ColumnJSONText
	ColumnArray
)

// Column describes one named column of a Batch.
type Column struct {
	Name string
	Type ColumnType
}

// Batch is a columnar table: one Columns slice shared by every row, and
// one []interface{} per row holding a cell per column in the same order.
// It is the Go analogue of the source's pyarrow.Table, and of the
// teacher's RowChangedEvent in cdc/model — a transport-neutral shape that
// every pipeline stage reads and writes without knowing about SQL or
// HTTP.
type Batch struct {
	Columns []Column
	Rows    [][]interface{}
}

// NewBatch builds a Batch from column metadata and driver-scanned values.
func NewBatch(columns []Column, rows [][]interface{}) *Batch {
	return &Batch{Columns: columns, Rows: rows}
}

// Len returns the number of rows in the batch.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Rows)
}

// Document is a single normalised index document: field name to
// normalised scalar/array value. Its identity (which field is the key) is
// a property of the target collection's schema, not of this type.
type Document map[string]interface{}

// Documents converts every row of the batch into a Document, in row
// order. The batch MUST already be normalised (see package normalize);
// Documents performs no conversion of its own.
func (b *Batch) Documents() []Document {
	if b == nil {
		return nil
	}
	docs := make([]Document, 0, len(b.Rows))
	for _, row := range b.Rows {
		doc := make(Document, len(b.Columns))
		for i, col := range b.Columns {
			if i < len(row) {
				doc[col.Name] = row[i]
			}
		}
		docs = append(docs, doc)
	}
	return docs
}
