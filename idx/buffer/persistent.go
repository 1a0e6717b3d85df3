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

// Package buffer implements the Event Buffer Protocol (C5) — a thin
// client over the store-side notification-buffer procedures — and the
// in-memory Notify Buffer the change-capture loop accumulates payloads
// into before a flush.
package buffer

import (
	"context"

	"github.com/pingcap/errors"

	"github.com/nealrout/daas-go-idx/idx/model"
)

// gateway is the subset of store.Gateway the persistent buffer needs.
// Defined locally so this package does not import idx/store just to
// accept a *store.Gateway, keeping the dependency direction the same
// shape as the teacher's cdc/sink.Sink interface (callers depend on a
// narrow interface, not a concrete type).
type gateway interface {
	Call(ctx context.Context, procedure string, args ...interface{}) (*model.Batch, error)
	CallVoid(ctx context.Context, procedure string, args ...interface{}) error
}

// Persistent wraps the two server-side notification-buffer procedures
// (spec §3 "Notification Buffer (server-side)", §4.5).
type Persistent struct {
	gw                  gateway
	getBufferProcedure  string
	cleanBufferProcedure string
	eventFetchKey       string
}

// NewPersistent binds procedure names resolved from global configuration
// (DB_FUNC_GET_EVENT_NOTIFICATION_BUFFER, DB_FUNC_CLEAN_EVENT_NOTIFICATION_BUFFER,
// IDX_EVENT_FETCH_KEY).
func NewPersistent(gw gateway, getBufferProcedure, cleanBufferProcedure, eventFetchKey string) *Persistent {
	return &Persistent{
		gw:                   gw,
		getBufferProcedure:   getBufferProcedure,
		cleanBufferProcedure: cleanBufferProcedure,
		eventFetchKey:        eventFetchKey,
	}
}

// DrainPending fetches every notification currently queued for channel,
// in fetch order (spec §4.5).
func (p *Persistent) DrainPending(ctx context.Context, channel string) ([]model.Notification, error) {
	batch, err := p.gw.Call(ctx, p.getBufferProcedure, channel)
	if err != nil {
		return nil, errors.Trace(err)
	}

	idIdx, channelIdx, payloadIdx := -1, -1, -1
	for i, col := range batch.Columns {
		switch col.Name {
		case "id":
			idIdx = i
		case "channel":
			channelIdx = i
		case "payload":
			payloadIdx = i
		}
	}
	if payloadIdx == -1 {
		return nil, errors.Errorf("%s: result has no payload column", p.getBufferProcedure)
	}

	notifications := make([]model.Notification, 0, len(batch.Rows))
	for _, row := range batch.Rows {
		n := model.Notification{Channel: channel}
		if idIdx != -1 && idIdx < len(row) {
			n.ID = row[idIdx]
		}
		if channelIdx != -1 && channelIdx < len(row) {
			if s, ok := row[channelIdx].(string); ok {
				n.Channel = s
			}
		}
		if payload, ok := row[payloadIdx].(string); ok {
			n.Payload = payload
		}
		notifications = append(notifications, n)
	}
	return notifications, nil
}

// Acknowledge removes every notification whose payload is in payloads
// from the persistent buffer for channel (spec §4.5, §6 wire format (b)).
// It uses the global event fetch key, never the per-domain fetch key
// (spec §4.5: these MUST NOT be conflated).
func (p *Persistent) Acknowledge(ctx context.Context, channel string, payloads []string) error {
	jsonText, err := model.EncodeKeyedPayloads(p.eventFetchKey, payloads)
	if err != nil {
		return errors.Trace(err)
	}
	return p.gw.CallVoid(ctx, p.cleanBufferProcedure, jsonText, channel)
}
