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

// Package util holds small ambient helpers shared by every binary:
// logging setup and zap field utilities. Nothing here is aware of the
// index/store domain.
package util

import (
	"context"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"
)

// Config describes how the process-wide logger should be initialised.
type Config struct {
	// Level is one of debug, info, warning, error.
	Level string
	// File is the path to write logs to. Empty means stderr only.
	File string
}

// Adjust fills in defaults for zero-valued fields.
func (cfg *Config) Adjust() {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
}

// InitLogger installs cfg as the process-wide pingcap/log logger.
func InitLogger(cfg *Config) error {
	logCfg := &log.Config{
		Level: cfg.Level,
		File:  log.FileLogConfig{Filename: cfg.File},
	}
	logger, props, err := log.InitLogger(logCfg)
	if err != nil {
		return errors.Trace(err)
	}
	log.ReplaceGlobals(logger, props)
	return nil
}

// ZapErrorFilter returns a zap.Error field for err, unless err matches one
// of filters (by direct equality or as the traced cause), in which case it
// returns a nil-valued error field so routine cancellations do not spam
// error-level logs.
func ZapErrorFilter(err error, filters ...error) zap.Field {
	cause := errors.Cause(err)
	for _, f := range filters {
		if cause == f || errors.Cause(cause) == f {
			return zap.Error(nil)
		}
	}
	return zap.Error(err)
}

// IsContextDone reports whether ctx has been cancelled or deadline-exceeded.
func IsContextDone(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
