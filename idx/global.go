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
	"time"

	"github.com/nealrout/daas-go-idx/pkg/config"
)

// GlobalConfig is the process-wide configuration bound set from spec §6
// "Global keys" — independent of any one domain.
type GlobalConfig struct {
	SolrURL string

	GetEventBufferProcedure   string
	CleanEventBufferProcedure string
	EventFetchKey             string

	GetIndexOverrideProcedure   string
	CleanIndexOverrideProcedure string
	OverrideSourceTSField       string
	OverrideTargetTSField       string
	OverrideStepDays            int
	OverrideConcurrency         int

	BufferRetrySeconds int
}

// LoadGlobalConfig resolves every spec §6 global key from cfg.
func LoadGlobalConfig(cfg *config.Config) (*GlobalConfig, error) {
	g := &GlobalConfig{}
	var err error

	if g.SolrURL, err = cfg.MustGet("SOLR_URL"); err != nil {
		return nil, err
	}
	if g.GetEventBufferProcedure, err = cfg.MustGet("DB_FUNC_GET_EVENT_NOTIFICATION_BUFFER"); err != nil {
		return nil, err
	}
	if g.CleanEventBufferProcedure, err = cfg.MustGet("DB_FUNC_CLEAN_EVENT_NOTIFICATION_BUFFER"); err != nil {
		return nil, err
	}
	if g.EventFetchKey, err = cfg.MustGet("IDX_EVENT_FETCH_KEY"); err != nil {
		return nil, err
	}
	if g.GetIndexOverrideProcedure, err = cfg.MustGet("DB_FUNC_GET_INDEX_OVERRIDE"); err != nil {
		return nil, err
	}
	if g.CleanIndexOverrideProcedure, err = cfg.MustGet("DB_FUNC_CLEAN_INDEX_OVERRIDE"); err != nil {
		return nil, err
	}
	if g.OverrideSourceTSField, err = cfg.MustGet("DB_FIELD_INDEX_OVERRIDE_SOURCE_TS"); err != nil {
		return nil, err
	}
	if g.OverrideTargetTSField, err = cfg.MustGet("DB_FIELD_INDEX_OVERRIDE_TARGET_TS"); err != nil {
		return nil, err
	}

	stepDays, _, err := cfg.GetInt("IDX_OVERRIDE_TIMESTEP_DAY_SIZE")
	if err != nil {
		return nil, err
	}
	if stepDays <= 0 {
		stepDays = 7
	}
	g.OverrideStepDays = stepDays

	concurrency, _, err := cfg.GetInt("IDX_OVERRIDE_CONCURRENT_THREAD_COUNT")
	if err != nil {
		return nil, err
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	g.OverrideConcurrency = concurrency

	retrySeconds, _, err := cfg.GetInt("IDX_BUFFER_RETRY_SECONDS")
	if err != nil {
		return nil, err
	}
	if retrySeconds <= 0 {
		retrySeconds = 5
	}
	g.BufferRetrySeconds = retrySeconds

	return g, nil
}

// RetryDelay is IDX_BUFFER_RETRY_SECONDS as a duration (spec §4.6). The
// change-capture loop uses it as the maximum interval of its exponential
// BACKOFF (before jitter), and PqConnFactory as the listener's minimum
// reconnect interval.
func (g *GlobalConfig) RetryDelay() time.Duration {
	return time.Duration(g.BufferRetrySeconds) * time.Second
}

// StepDuration is the sub-window width (spec §3 "Sub-window").
func (g *GlobalConfig) StepDuration() time.Duration {
	return time.Duration(g.OverrideStepDays) * 24 * time.Hour
}
