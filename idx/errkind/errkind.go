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

// Package errkind classifies the error kinds spec'd for the core: a caller
// that needs to branch on "was this a lost connection" does so against
// these sentinels with errors.Cause, instead of string-matching driver
// errors.
package errkind

import "github.com/pingcap/errors"

// Sentinel error kinds. Concrete errors are produced by wrapping one of
// these with errors.Annotatef so the kind survives errors.Cause while the
// message still carries the offending procedure/channel/domain.
var (
	// ErrConfiguration marks a missing or invalid configuration key (C8).
	ErrConfiguration = errors.New("errkind: configuration missing")
	// ErrConnectionLost marks a recoverable loss of the store connection (C1, C6).
	ErrConnectionLost = errors.New("errkind: connection lost")
	// ErrStatement marks a failed stored-procedure invocation (C1).
	ErrStatement = errors.New("errkind: statement failed")
	// ErrUpsertFailed marks a failed index upsert (C3).
	ErrUpsertFailed = errors.New("errkind: upsert failed")
)

// Is reports whether err is, or wraps, kind.
func Is(err error, kind error) bool {
	return errors.Cause(err) == kind
}

// Connection wraps err as ErrConnectionLost, annotated with context.
func Connection(err error, context string) error {
	return errors.Annotatef(ErrConnectionLost, "%s: %v", context, err)
}

// Statement wraps err as ErrStatement, annotated with the procedure name.
func Statement(err error, procedure string) error {
	return errors.Annotatef(ErrStatement, "procedure %s: %v", procedure, err)
}

// Configuration wraps a missing-key condition as ErrConfiguration.
func Configuration(key string) error {
	return errors.Annotatef(ErrConfiguration, "missing required configuration key %q", key)
}
