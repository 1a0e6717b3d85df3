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

package idx

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nealrout/daas-go-idx/idx/errkind"
	"github.com/nealrout/daas-go-idx/pkg/config"
)

func TestResolveDomainUppercasesTrimsAndStripsQuotes(t *testing.T) {
	require.Equal(t, "ASSET", ResolveDomain(" 'asset' "))
}

func setEnv(t *testing.T, kv map[string]string) {
	t.Helper()
	for k, v := range kv {
		require.NoError(t, os.Setenv(k, v))
		k := k
		t.Cleanup(func() { _ = os.Unsetenv(k) })
	}
}

func TestBindDomainResolvesAllBoundKeys(t *testing.T) {
	setEnv(t, map[string]string{
		"DB_CHANNEL_ASSET":         "asset_changed",
		"DB_FUNC_GET_ASSET":        "get_asset",
		"DB_FUNC_GET_BY_ID_ASSET":  "get_asset_by_id",
		"IDX_FETCH_KEY_ASSET":      "code",
		"SOLR_COLLECTION_ASSET":    "asset",
		"IDX_BUFFER_SIZE_ASSET":    "10",
		"IDX_BUFFER_DURATION_ASSET": "30",
	})
	cfg, err := config.Load("")
	require.NoError(t, err)

	dc, err := BindDomain(cfg, "ASSET")
	require.NoError(t, err)
	require.Equal(t, "asset_changed", dc.ChannelName)
	require.Equal(t, "get_asset", dc.GetAllProcedure)
	require.Equal(t, "get_asset_by_id", dc.GetByIDProcedure)
	require.Equal(t, "code", dc.FetchKey)
	require.Equal(t, "asset", dc.CollectionName)
	require.Equal(t, 10, dc.BufferSize)
	require.Equal(t, 30e9, float64(dc.BufferDuration))
}

func TestBindDomainMissingKeyIsConfigurationError(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	_, err = BindDomain(cfg, "NOSUCHDOMAIN")
	require.Error(t, err)
	require.True(t, errkind.Is(err, errkind.ErrConfiguration))
}
