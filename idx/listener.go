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

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/nealrout/daas-go-idx/idx/metrics"
	"github.com/nealrout/daas-go-idx/idx/model"
	"github.com/nealrout/daas-go-idx/idx/normalize"
)

// state is one node of the Change-Capture Loop state machine (spec §4.6).
type state int

const (
	stateConnect state = iota
	stateRecover
	stateListen
	stateProcess
	stateBackoff
)

func (s state) String() string {
	switch s {
	case stateConnect:
		return "CONNECT"
	case stateRecover:
		return "RECOVER"
	case stateListen:
		return "LISTEN"
	case stateProcess:
		return "PROCESS"
	case stateBackoff:
		return "BACKOFF"
	default:
		return "UNKNOWN"
	}
}

// rowFetcher is the subset of store.Gateway the loop needs (spec §4.1
// call_get_by_id). Declared narrowly so this package does not import
// idx/store just to accept a *store.Gateway.
type rowFetcher interface {
	CallGetByID(ctx context.Context, procedure, fetchKey string, payloads []string) (*model.Batch, error)
}

// upserter is the subset of sink.Client the loop needs.
type upserter interface {
	Upsert(ctx context.Context, collection string, documents []model.Document) error
}

// hookApplier is the subset of hook.Registry the loop needs.
type hookApplier interface {
	Apply(domain string, batch *model.Batch) error
}

// eventBuffer is the subset of buffer.Persistent the loop needs.
type eventBuffer interface {
	DrainPending(ctx context.Context, channel string) ([]model.Notification, error)
	Acknowledge(ctx context.Context, channel string, payloads []string) error
}

// notifyBuffer is the subset of buffer.Memory the loop needs. An
// interface lets tests drive the state machine with a tiny fake and
// assert exactly the calls spec.md §8's invariants care about.
type notifyBuffer interface {
	Append(payload string)
	Len() int
	Snapshot() []string
	Clear()
	ShouldFlush(now time.Time) bool
}

// Loop implements the Change-Capture Loop (C6).
type Loop struct {
	Domain      string
	Channel     string
	GetByIDProc string
	FetchKey    string
	Collection  string

	Connect  ConnFactory
	Fetch    rowFetcher
	Sink     upserter
	Hooks    hookApplier
	Events   eventBuffer
	Buffer   notifyBuffer
	Now      func() time.Time
	Limiter  *rate.Limiter
	RetryMax time.Duration
}

// NewLoop builds a Loop with production defaults for Now and Limiter.
func NewLoop() *Loop {
	return &Loop{
		Now:     time.Now,
		Limiter: rate.NewLimiter(rate.Every(50*time.Millisecond), 1),
	}
}

// Run drives the state machine until ctx is cancelled. It does not
// normally return (spec §6, exit code 0 "listener does not normally
// terminate"); it returns ctx.Err() on cancellation.
func (l *Loop) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0 // never give up; BACKOFF always returns to CONNECT
	if l.RetryMax > 0 {
		bo.MaxInterval = l.RetryMax
	}

	var conn Conn
	st := stateConnect

	for {
		if ctx.Err() != nil {
			if conn != nil {
				_ = conn.Close()
			}
			return ctx.Err()
		}

		switch st {
		case stateConnect:
			c, err := l.Connect(ctx, l.Channel)
			if err != nil {
				log.Error("idx: connect failed", zap.String("domain", l.Domain), zap.Error(err))
				st = stateBackoff
				continue
			}
			conn = c
			bo.Reset()
			st = stateRecover

		case stateRecover:
			notifications, err := l.Events.DrainPending(ctx, l.Channel)
			if err != nil {
				log.Error("idx: recover failed", zap.String("domain", l.Domain), zap.Error(err))
				st = stateBackoff
				continue
			}
			for _, n := range notifications {
				l.Buffer.Append(n.Payload)
			}
			metrics.BufferDepth.WithLabelValues(l.Domain).Set(float64(l.Buffer.Len()))
			log.Info("idx: recovered buffered notifications",
				zap.String("domain", l.Domain), zap.Int("count", len(notifications)))
			st = stateListen

		case stateListen:
			next, err := l.listenOnce(ctx, conn)
			if err != nil {
				st = stateBackoff
				continue
			}
			st = next

		case stateProcess:
			keys := l.Buffer.Snapshot()
			if err := l.process(ctx, keys); err != nil {
				log.Error("idx: process failed, backing off without acknowledging",
					zap.String("domain", l.Domain), zap.Int("keys", len(keys)), zap.Error(err))
				metrics.FlushTotal.WithLabelValues(l.Domain, "error").Inc()
				st = stateBackoff
				continue
			}
			l.Buffer.Clear()
			metrics.BufferDepth.WithLabelValues(l.Domain).Set(float64(l.Buffer.Len()))
			metrics.FlushTotal.WithLabelValues(l.Domain, "ok").Inc()
			st = stateListen

		case stateBackoff:
			if conn != nil {
				_ = conn.Close()
				conn = nil
			}
			metrics.BufferDepth.WithLabelValues(l.Domain).Set(float64(l.Buffer.Len()))
			delay := bo.NextBackOff()
			log.Warn("idx: backing off", zap.String("domain", l.Domain), zap.Duration("delay", delay))
			if !sleepCtx(ctx, delay) {
				return ctx.Err()
			}
			st = stateConnect
		}
	}
}

// listenOnce waits for either a notification, a connection-lost signal,
// or the flush predicate becoming true, and reports which state to move
// to next. It rate-limits its own polling loop so LISTEN never busy-spins
// while staying responsive to ctx cancellation (spec §5).
func (l *Loop) listenOnce(ctx context.Context, conn Conn) (state, error) {
	for {
		if l.Buffer.ShouldFlush(l.Now()) {
			return stateProcess, nil
		}

		if err := l.Limiter.Wait(ctx); err != nil {
			return stateBackoff, err
		}

		select {
		case <-ctx.Done():
			return stateBackoff, ctx.Err()
		case n, ok := <-conn.Notifications():
			if !ok {
				return stateBackoff, errors.New("idx: notification channel closed")
			}
			if n.Lost {
				// Connection-level loss discards the in-memory buffer
				// (spec §4.6 BACKOFF); recovery re-fetches from the
				// persistent buffer on the next RECOVER.
				l.Buffer.Clear()
				return stateBackoff, errors.New("idx: connection lost")
			}
			log.Debug("idx: notification received", zap.String("domain", l.Domain), zap.String("payload", n.Payload))
			metrics.BufferDepth.WithLabelValues(l.Domain).Set(float64(l.Buffer.Len() + 1))
			l.Buffer.Append(n.Payload)
		default:
			if l.Buffer.ShouldFlush(l.Now()) {
				return stateProcess, nil
			}
		}
	}
}

// process implements PROCESS sub-steps 1-5 of spec §4.6, in order; Run
// performs step 6 (clearing the buffer) only after process succeeds.
// Any failure leaves the in-memory buffer and persistent buffer
// untouched, per spec §7's "never advance durable state past a failure".
func (l *Loop) process(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	flushID := uuid.New().String()
	start := time.Now()
	logger := log.L().With(zap.String("domain", l.Domain), zap.String("flush_id", flushID))
	defer func() {
		metrics.FlushDuration.WithLabelValues(l.Domain).Observe(time.Since(start).Seconds())
	}()

	batch, err := l.Fetch.CallGetByID(ctx, l.GetByIDProc, l.FetchKey, keys)
	if err != nil {
		return errors.Annotate(err, "fetch rows")
	}

	normalize.Batch(batch)

	if err := l.Hooks.Apply(l.Domain, batch); err != nil {
		return errors.Annotate(err, "apply business hook")
	}

	if err := l.Sink.Upsert(ctx, l.Collection, batch.Documents()); err != nil {
		return errors.Annotate(err, "upsert")
	}

	if err := l.Events.Acknowledge(ctx, l.Channel, keys); err != nil {
		return errors.Annotate(err, "acknowledge")
	}

	logger.Info("idx: flush complete", zap.Int("documents", batch.Len()))
	return nil
}

// sleepCtx sleeps for d or returns false early if ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
