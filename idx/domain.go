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

// Package idx is the core orchestration package: the Mode Entry / Domain
// Binder (C8), the Change-Capture Loop (C6), and the Override Reindex
// Planner (C7). Everything below this package is a leaf collaborator
// (store, normalize, sink, hook, buffer); idx is where they are wired
// together into the two run modes spec.md describes.
package idx

import (
	"strconv"
	"strings"
	"time"

	"github.com/pingcap/errors"

	"github.com/nealrout/daas-go-idx/idx/errkind"
	"github.com/nealrout/daas-go-idx/idx/model"
	"github.com/nealrout/daas-go-idx/pkg/config"
)

// ResolveDomain normalises a raw domain token the way the source does:
// uppercase, trimmed of surrounding whitespace, with stray single quotes
// stripped (spec §4.8, §6 "Environment").
func ResolveDomain(raw string) string {
	raw = strings.ToUpper(strings.TrimSpace(raw))
	return strings.ReplaceAll(raw, "'", "")
}

// BindDomain resolves the domain-scoped configuration set (spec §3,
// "Domain") by suffixing each global key name with "_"+domain. A missing
// required key is a Configuration error (spec §7) and must cause the
// caller to exit with a distinct, non-zero code (spec §6).
func BindDomain(cfg *config.Config, domain string) (*model.DomainConfig, error) {
	if domain == "" {
		return nil, errkind.Configuration("DOMAIN")
	}

	dc := &model.DomainConfig{Domain: domain}
	var err error

	if dc.ChannelName, err = mustGetSuffixed(cfg, "DB_CHANNEL", domain); err != nil {
		return nil, err
	}
	if dc.GetAllProcedure, err = mustGetSuffixed(cfg, "DB_FUNC_GET", domain); err != nil {
		return nil, err
	}
	if dc.GetByIDProcedure, err = mustGetSuffixed(cfg, "DB_FUNC_GET_BY_ID", domain); err != nil {
		return nil, err
	}
	if dc.FetchKey, err = mustGetSuffixed(cfg, "IDX_FETCH_KEY", domain); err != nil {
		return nil, err
	}
	if dc.CollectionName, err = mustGetSuffixed(cfg, "SOLR_COLLECTION", domain); err != nil {
		return nil, err
	}

	sizeKey := "IDX_BUFFER_SIZE_" + domain
	size, ok := cfg.Get(sizeKey)
	if !ok {
		return nil, errkind.Configuration(sizeKey)
	}
	dc.BufferSize, err = parsePositiveInt(sizeKey, size)
	if err != nil {
		return nil, err
	}

	durationKey := "IDX_BUFFER_DURATION_" + domain
	duration, ok := cfg.Get(durationKey)
	if !ok {
		return nil, errkind.Configuration(durationKey)
	}
	seconds, err := parsePositiveInt(durationKey, duration)
	if err != nil {
		return nil, err
	}
	dc.BufferDuration = time.Duration(seconds) * time.Second

	return dc, nil
}

func mustGetSuffixed(cfg *config.Config, prefix, domain string) (string, error) {
	key := prefix + "_" + domain
	v, ok := cfg.Get(key)
	if !ok {
		return "", errkind.Configuration(key)
	}
	return v, nil
}

func parsePositiveInt(key, value string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, errors.Annotatef(err, "configuration key %q is not an integer", key)
	}
	return n, nil
}
