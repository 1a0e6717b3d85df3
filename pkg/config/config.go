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

// Package config is the configuration/secret resolution collaborator
// spec.md names but keeps out of the core's scope. It loads a base TOML
// file (github.com/BurntSushi/toml, as the teacher's go.mod already
// pins) and overlays it with environment variables, which always win
// over values from the file.
// Secrets are resolved from the environment only, kept behind their own
// accessor so a later vault-backed resolver can replace just that path.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pingcap/errors"
)

// Config holds flattened string key/value configuration.
type Config struct {
	values map[string]string
}

// Load reads path (if it exists) as TOML into a flat string map. The
// environment is not copied in here: Get consults it first on every
// lookup, so env always wins (see package doc).
func Load(path string) (*Config, error) {
	values := make(map[string]string)

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			raw := make(map[string]interface{})
			if _, err := toml.DecodeFile(path, &raw); err != nil {
				return nil, errors.Annotatef(err, "decode config file %s", path)
			}
			flatten("", raw, values)
		}
	}

	return &Config{values: values}, nil
}

// flatten turns nested TOML tables into dotted keys (table.key) and
// scalar values into their string form. Keys keep the case they have in
// the file; no uppercasing is applied.
func flatten(prefix string, raw map[string]interface{}, out map[string]string) {
	for k, v := range raw {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch vv := v.(type) {
		case map[string]interface{}:
			flatten(key, vv, out)
		default:
			out[key] = toString(vv)
		}
	}
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// Get returns the value bound to key, preferring the environment
// variable of the same name over anything loaded from the config file.
func (c *Config) Get(key string) (string, bool) {
	if v, ok := os.LookupEnv(key); ok {
		return v, true
	}
	if c != nil {
		if v, ok := c.values[key]; ok {
			return v, true
		}
	}
	return "", false
}

// MustGet is Get, wrapped in a configuration-missing error instead of a
// boolean (spec §7, "Configuration missing").
func (c *Config) MustGet(key string) (string, error) {
	v, ok := c.Get(key)
	if !ok {
		return "", errors.Errorf("missing required configuration key %q", key)
	}
	return v, nil
}

// GetInt is Get, parsed as an integer.
func (c *Config) GetInt(key string) (int, bool, error) {
	v, ok := c.Get(key)
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, true, errors.Annotatef(err, "configuration key %q is not an integer", key)
	}
	return n, true, nil
}

// Secret resolves a named secret (DATABASE_USER, DATABASE_PASSWORD,
// SOLR_USER, SOLR_PASSWORD, ...). The current binding is environment-only;
// callers should not assume it will remain so.
func (c *Config) Secret(name string) (string, bool) {
	return os.LookupEnv(name)
}
