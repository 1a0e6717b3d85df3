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

// Package store implements the Store Gateway (C1): pooled connections to
// the relational store, invocation of named stored procedures, and
// tabular results with column metadata. Every exported method acquires
// its resources and releases them on all exit paths; none block
// indefinitely beyond the driver's own socket timeouts.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/pingcap/errors"

	"github.com/nealrout/daas-go-idx/idx/errkind"
	"github.com/nealrout/daas-go-idx/idx/model"
)

// ConnConfig is the {name, user, password, host, port, schema} tuple
// spec §4.1 resolves from configuration and the secret store.
type ConnConfig struct {
	Name     string
	User     string
	Password string
	Host     string
	Port     int
	Schema   string

	MaxOpenConns int
	MaxIdleConns int
}

// DSN renders the connection tuple as a lib/pq key=value connection
// string, shared by Open (pooled queries) and the raw LISTEN/NOTIFY
// connection the change-capture loop opens separately (spec §4.6).
func (c ConnConfig) DSN() string {
	var b strings.Builder
	fmt.Fprintf(&b, "host=%s port=%d dbname=%s user=%s password=%s sslmode=disable",
		c.Host, c.Port, c.Name, c.User, c.Password)
	if c.Schema != "" {
		fmt.Fprintf(&b, " search_path=%s", c.Schema)
	}
	return b.String()
}

// Gateway is a pooled handle to the relational store.
type Gateway struct {
	db *sql.DB
}

// Open dials the store using cfg and configures the connection pool.
func Open(cfg ConnConfig) (*Gateway, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, errkind.Connection(err, "open")
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	return &Gateway{db: db}, nil
}

// FromDB wraps an already-opened *sql.DB as a Gateway. It exists for
// tests and for callers that share a pool (e.g. sqlmock) the Gateway
// does not own.
func FromDB(db *sql.DB) *Gateway {
	return &Gateway{db: db}
}

// DB exposes the underlying pool. The notification listener does not use
// it; it dials its own connection from ConnConfig.DSN.
func (g *Gateway) DB() *sql.DB {
	return g.db
}

// Close releases the connection pool.
func (g *Gateway) Close() error {
	return g.db.Close()
}

// TimeWindow is the optional [start, end] pair for CallGetAll.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// CallGetAll invokes procedure with no window (procedure(NULL)) when
// window is nil, or with the windowed three-argument form
// (procedure(NULL, start, end)) otherwise (spec §4.1).
func (g *Gateway) CallGetAll(ctx context.Context, procedure string, window *TimeWindow) (*model.Batch, error) {
	if window == nil {
		return g.query(ctx, procedure, fmt.Sprintf("SELECT * FROM %s($1)", procedure), nil)
	}
	return g.query(ctx, procedure, fmt.Sprintf("SELECT * FROM %s($1, $2, $3)", procedure),
		nil, window.Start, window.End)
}

// CallGetByID invokes procedure(json_text, NULL) where json_text encodes
// {fetchKey: payloads} (spec §4.1, §6 wire format (a)).
func (g *Gateway) CallGetByID(ctx context.Context, procedure, fetchKey string, payloads []string) (*model.Batch, error) {
	jsonText, err := model.EncodeKeyedPayloads(fetchKey, payloads)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return g.query(ctx, procedure, fmt.Sprintf("SELECT * FROM %s($1, $2)", procedure), jsonText, nil)
}

// Call invokes an arbitrary procedure and returns its tabular result.
func (g *Gateway) Call(ctx context.Context, procedure string, args ...interface{}) (*model.Batch, error) {
	placeholders := make([]string, len(args))
	for i := range args {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	stmt := fmt.Sprintf("SELECT * FROM %s(%s)", procedure, strings.Join(placeholders, ", "))
	return g.query(ctx, procedure, stmt, args...)
}

// CallVoid invokes procedure for its side effect only and commits.
func (g *Gateway) CallVoid(ctx context.Context, procedure string, args ...interface{}) error {
	placeholders := make([]string, len(args))
	for i := range args {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	stmt := fmt.Sprintf("CALL %s(%s)", procedure, strings.Join(placeholders, ", "))

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return errkind.Connection(err, "begin")
	}
	if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
		_ = tx.Rollback()
		return errkind.Statement(err, procedure)
	}
	if err := tx.Commit(); err != nil {
		return errkind.Statement(err, procedure)
	}
	return nil
}

// query runs stmt and scans the result into a model.Batch, inferring a
// model.ColumnType per column from the driver's reported database type
// name so package normalize can dispatch correctly.
func (g *Gateway) query(ctx context.Context, procedure, stmt string, args ...interface{}) (*model.Batch, error) {
	conn, err := g.db.Conn(ctx)
	if err != nil {
		return nil, errkind.Connection(err, "acquire connection")
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, errkind.Statement(err, procedure)
	}
	defer rows.Close()

	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, errkind.Statement(err, procedure)
	}

	columns := make([]model.Column, len(colTypes))
	scanners := make([]scanShape, len(colTypes))
	for i, ct := range colTypes {
		columns[i] = model.Column{Name: ct.Name(), Type: classifyColumn(ct.DatabaseTypeName())}
		scanners[i] = newScanShape(columns[i].Type)
	}

	var resultRows [][]interface{}
	for rows.Next() {
		dest := make([]interface{}, len(scanners))
		for i, s := range scanners {
			dest[i] = s.dest()
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, errkind.Statement(err, procedure)
		}
		row := make([]interface{}, len(scanners))
		for i, s := range scanners {
			row[i] = s.value(dest[i])
		}
		resultRows = append(resultRows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errkind.Statement(err, procedure)
	}

	return model.NewBatch(columns, resultRows), nil
}

// classifyColumn maps a Postgres type name (as reported by lib/pq) to the
// ColumnType the normaliser dispatches on. Unrecognised types pass
// through as ColumnText, matching the source's "numeric and text cells
// pass through unchanged" default.
func classifyColumn(dbType string) model.ColumnType {
	switch strings.ToUpper(dbType) {
	case "TIMESTAMPTZ", "TIMESTAMP":
		return model.ColumnTimestampTZ
	case "INT2", "INT4", "INT8":
		return model.ColumnInteger
	case "FLOAT4", "FLOAT8", "NUMERIC":
		return model.ColumnFloat
	case "JSON", "JSONB":
		return model.ColumnJSONText
	case "_TEXT", "_VARCHAR":
		return model.ColumnArray
	default:
		return model.ColumnText
	}
}

// scanShape pairs a Scan destination with the conversion back to a plain
// interface{} value, so callers can treat every column uniformly.
type scanShape interface {
	dest() interface{}
	value(scanned interface{}) interface{}
}

func newScanShape(t model.ColumnType) scanShape {
	switch t {
	case model.ColumnTimestampTZ:
		return &nullTimeShape{}
	case model.ColumnInteger:
		return &nullInt64Shape{}
	case model.ColumnFloat:
		return &nullFloat64Shape{}
	case model.ColumnArray:
		return &stringArrayShape{}
	default:
		return &nullStringShape{}
	}
}

type nullTimeShape struct{ v sql.NullTime }

func (s *nullTimeShape) dest() interface{} { return &s.v }
func (s *nullTimeShape) value(interface{}) interface{} {
	if !s.v.Valid {
		return nil
	}
	return s.v.Time
}

type nullInt64Shape struct{ v sql.NullInt64 }

func (s *nullInt64Shape) dest() interface{} { return &s.v }
func (s *nullInt64Shape) value(interface{}) interface{} {
	if !s.v.Valid {
		return nil
	}
	return s.v.Int64
}

type nullFloat64Shape struct{ v sql.NullFloat64 }

func (s *nullFloat64Shape) dest() interface{} { return &s.v }
func (s *nullFloat64Shape) value(interface{}) interface{} {
	if !s.v.Valid {
		return nil
	}
	return s.v.Float64
}

type nullStringShape struct{ v sql.NullString }

func (s *nullStringShape) dest() interface{} { return &s.v }
func (s *nullStringShape) value(interface{}) interface{} {
	if !s.v.Valid {
		return nil
	}
	return s.v.String
}

type stringArrayShape struct{ v pq.StringArray }

func (s *stringArrayShape) dest() interface{} { return &s.v }
func (s *stringArrayShape) value(interface{}) interface{} {
	if s.v == nil {
		return nil
	}
	return []string(s.v)
}
