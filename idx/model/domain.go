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

package model

import "time"

// DomainConfig is the bound set of per-domain configuration resolved by
// suffixing global configuration keys with the domain token (spec §3).
// It is the Go analogue of ChangeFeedDetail in the teacher's
// cdc/model/changefeed.go: a small, serialisable description of "what to
// run", handed down from the binder (C8) to the loop (C6) or planner
// (C7).
type DomainConfig struct {
	Domain string

	ChannelName      string
	GetAllProcedure  string
	GetByIDProcedure string
	FetchKey         string
	CollectionName   string

	BufferSize     int
	BufferDuration time.Duration
}

// Notification is a single row from the persistent notification buffer
// (spec §3, "Notification"). ID is opaque and used only for server-side
// bookkeeping; Payload is the stable external key of the changed row.
type Notification struct {
	ID      interface{}
	Channel string
	Payload string
}

// OverrideWindow is a pending full-refresh request scoped to a time
// window (spec §3, "Override Window").
type OverrideWindow struct {
	Domain   string
	SourceTS time.Time
	TargetTS time.Time
}

// SubWindow is one fixed-day slice of an OverrideWindow (spec §3,
// "Sub-window").
type SubWindow struct {
	Start time.Time
	End   time.Time
}
