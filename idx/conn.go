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
	"context"
	"time"

	"github.com/lib/pq"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"

	"github.com/nealrout/daas-go-idx/idx/store"
)

// RawNotification is one event surfaced by a Conn: either a live NOTIFY
// payload, or a Lost marker meaning the underlying connection dropped and
// was re-established, so any notification emitted while it was down may
// have been missed (spec §4.6 CONNECT/RECOVER).
type RawNotification struct {
	Payload string
	Lost    bool
}

// Conn is the raw channel subscription the change-capture loop drives.
// It is an interface so the state machine can be tested without a live
// Postgres server.
type Conn interface {
	Notifications() <-chan RawNotification
	Close() error
}

// ConnFactory opens a fresh Conn subscribed to channel. It is called once
// per CONNECT attempt (spec §4.6 state CONNECT).
type ConnFactory func(ctx context.Context, channel string) (Conn, error)

// PqConnFactory builds a ConnFactory backed by github.com/lib/pq's
// Listener, the idiomatic Go client for Postgres LISTEN/NOTIFY (grounded
// on the cloudldap example in the retrieval pack). Listener already
// reconnects internally between minReconnectInterval (retryDelay) and
// maxReconnectInterval (capped at ten times that) and signals a possible
// gap by delivering a nil *pq.Notification on reconnect — translated
// here into RawNotification{Lost: true}.
func PqConnFactory(connCfg store.ConnConfig, retryDelay time.Duration) ConnFactory {
	minReconnectInterval := retryDelay
	maxReconnectInterval := retryDelay * 10
	return pqConnFactory(connCfg.DSN(), minReconnectInterval, maxReconnectInterval)
}

func pqConnFactory(dsn string, minReconnectInterval, maxReconnectInterval time.Duration) ConnFactory {
	return func(ctx context.Context, channel string) (Conn, error) {
		events := make(chan error, 1)
		reportErr := func(ev pq.ListenerEventType, err error) {
			if err != nil {
				select {
				case events <- err:
				default:
				}
			}
		}
		listener := pq.NewListener(dsn, minReconnectInterval, maxReconnectInterval, reportErr)
		if err := listener.Listen(channel); err != nil {
			_ = listener.Close()
			return nil, errors.Annotatef(err, "listen on channel %s", channel)
		}

		out := make(chan RawNotification)
		go func() {
			defer close(out)
			for n := range listener.Notify {
				if n == nil {
					out <- RawNotification{Lost: true}
					continue
				}
				out <- RawNotification{Payload: n.Extra}
			}
		}()

		return &pqConn{listener: listener, out: out}, nil
	}
}

type pqConn struct {
	listener *pq.Listener
	out      chan RawNotification
}

func (c *pqConn) Notifications() <-chan RawNotification { return c.out }

func (c *pqConn) Close() error {
	err := c.listener.Close()
	if err != nil {
		log.Warn("idx: error closing listener connection", zap.Error(err))
	}
	return err
}
