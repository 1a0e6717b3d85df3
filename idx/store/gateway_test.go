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

package store

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/nealrout/daas-go-idx/idx/errkind"
	"github.com/nealrout/daas-go-idx/idx/model"
)

func TestCallGetByIDBuildsKeyedPayload(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	g := FromDB(db)

	rows := sqlmock.NewRows([]string{"code", "updated_at"}).
		AddRow("A1", time.Date(2024, 6, 1, 10, 34, 56, 0, time.UTC))

	mock.ExpectQuery(`SELECT \* FROM get_asset_by_id\(\$1, \$2\)`).
		WithArgs(`{"code":["A1","A2"]}`, nil).
		WillReturnRows(rows)

	batch, err := g.CallGetByID(context.Background(), "get_asset_by_id", "code", []string{"A1", "A2"})
	require.NoError(t, err)
	require.Equal(t, 1, batch.Len())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCallGetAllUnwindowed(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	g := FromDB(db)

	mock.ExpectQuery(`SELECT \* FROM get_asset\(\$1\)`).
		WithArgs(nil).
		WillReturnRows(sqlmock.NewRows([]string{"code"}))

	_, err = g.CallGetAll(context.Background(), "get_asset", nil)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCallGetAllWindowed(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	g := FromDB(db)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT \* FROM get_asset\(\$1, \$2, \$3\)`).
		WithArgs(nil, start, end).
		WillReturnRows(sqlmock.NewRows([]string{"code"}))

	_, err = g.CallGetAll(context.Background(), "get_asset", &TimeWindow{Start: start, End: end})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCallVoidCommits(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	g := FromDB(db)

	mock.ExpectBegin()
	mock.ExpectExec(`CALL clean_index_override\(\$1\)`).WithArgs("ASSET").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err = g.CallVoid(context.Background(), "clean_index_override", "ASSET")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCallVoidRollsBackOnStatementError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	g := FromDB(db)

	mock.ExpectBegin()
	mock.ExpectExec(`CALL clean_index_override\(\$1\)`).WillReturnError(context.DeadlineExceeded)
	mock.ExpectRollback()

	err = g.CallVoid(context.Background(), "clean_index_override", "ASSET")
	require.Error(t, err)
	require.True(t, errkind.Is(err, errkind.ErrStatement))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClassifyColumn(t *testing.T) {
	require.Equal(t, model.ColumnTimestampTZ, classifyColumn("TIMESTAMPTZ"))
	require.Equal(t, model.ColumnArray, classifyColumn("_TEXT"))
	require.Equal(t, model.ColumnText, classifyColumn("BPCHAR"))
}
