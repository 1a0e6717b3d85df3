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

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nealrout/daas-go-idx/idx/metrics"
	"github.com/nealrout/daas-go-idx/idx/model"
	"github.com/nealrout/daas-go-idx/idx/normalize"
	"github.com/nealrout/daas-go-idx/idx/store"
)

// OverrideGateway is the subset of store.Gateway the planner needs. Each
// worker dials its own Gateway from a factory rather than sharing one
// handle, per spec §4.7's "each opens its own gateway connection".
type OverrideGateway interface {
	Call(ctx context.Context, procedure string, args ...interface{}) (*model.Batch, error)
	CallGetAll(ctx context.Context, procedure string, window *store.TimeWindow) (*model.Batch, error)
	CallVoid(ctx context.Context, procedure string, args ...interface{}) error
	Close() error
}

// GatewayFactory opens a fresh OverrideGateway for one sub-window worker.
type GatewayFactory func(ctx context.Context) (OverrideGateway, error)

// Planner implements the Override Reindex Planner (C7).
type Planner struct {
	Domain            *model.DomainConfig
	Global            *GlobalConfig
	OpenGateway       GatewayFactory
	Sink              upserter
	Hooks             hookApplier
	Concurrency       int
}

// Run executes spec §4.7 steps 1-5. It returns (false, nil) when there is
// no pending override for the domain, in which case the caller falls
// back to a single unwindowed get_all() refresh (spec §4.8).
func (p *Planner) Run(ctx context.Context) (bool, error) {
	gw, err := p.OpenGateway(ctx)
	if err != nil {
		return false, errors.Annotate(err, "open override gateway")
	}
	defer gw.Close()

	window, ok, err := p.readOverrideWindow(ctx, gw)
	if err != nil {
		return false, errors.Annotate(err, "read override window")
	}
	if !ok {
		return false, nil
	}

	subWindows := SubWindows(window.SourceTS, window.TargetTS, p.Global.StepDuration())
	log.Info("idx: override planner starting",
		zap.String("domain", p.Domain.Domain),
		zap.Time("source_ts", window.SourceTS),
		zap.Time("target_ts", window.TargetTS),
		zap.Int("sub_windows", len(subWindows)))

	concurrency := p.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	g, gctx := errgroup.WithContext(context.Background())
	sem := make(chan struct{}, concurrency)

	for _, sw := range subWindows {
		sw := sw
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			err := p.runSubWindow(gctx, sw)
			if err != nil {
				metrics.OverrideSubwindowTotal.WithLabelValues(p.Domain.Domain, "error").Inc()
				log.Error("idx: override sub-window failed",
					zap.String("domain", p.Domain.Domain),
					zap.Time("start", sw.Start), zap.Time("end", sw.End), zap.Error(err))
				return err
			}
			metrics.OverrideSubwindowTotal.WithLabelValues(p.Domain.Domain, "ok").Inc()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		// Do not archive the override: at least one sub-window must be
		// retried on the next full-refresh invocation (spec §4.7 step 4).
		return true, errors.Annotate(err, "one or more override sub-windows failed")
	}

	if err := gw.CallVoid(ctx, p.Global.CleanIndexOverrideProcedure, p.Domain.Domain); err != nil {
		return true, errors.Annotate(err, "archive override window")
	}
	log.Info("idx: override planner complete", zap.String("domain", p.Domain.Domain))
	return true, nil
}

// readOverrideWindow fetches and decodes the pending override record for
// the domain, if any (spec §4.7 step 1).
func (p *Planner) readOverrideWindow(ctx context.Context, gw OverrideGateway) (model.OverrideWindow, bool, error) {
	batch, err := gw.Call(ctx, p.Global.GetIndexOverrideProcedure, p.Domain.Domain)
	if err != nil {
		return model.OverrideWindow{}, false, errors.Trace(err)
	}
	if batch == nil || batch.Len() == 0 {
		return model.OverrideWindow{}, false, nil
	}

	sourceIdx, targetIdx := -1, -1
	for i, col := range batch.Columns {
		switch col.Name {
		case p.Global.OverrideSourceTSField:
			sourceIdx = i
		case p.Global.OverrideTargetTSField:
			targetIdx = i
		}
	}
	if sourceIdx == -1 || targetIdx == -1 {
		return model.OverrideWindow{}, false, errors.Errorf(
			"%s: result missing %s/%s columns",
			p.Global.GetIndexOverrideProcedure, p.Global.OverrideSourceTSField, p.Global.OverrideTargetTSField)
	}

	row := batch.Rows[0]
	sourceTS, ok := asTime(row[sourceIdx])
	if !ok {
		return model.OverrideWindow{}, false, errors.Errorf("%s: source ts column is not a timestamp", p.Global.GetIndexOverrideProcedure)
	}
	targetTS, ok := asTime(row[targetIdx])
	if !ok {
		return model.OverrideWindow{}, false, errors.Errorf("%s: target ts column is not a timestamp", p.Global.GetIndexOverrideProcedure)
	}

	return model.OverrideWindow{Domain: p.Domain.Domain, SourceTS: sourceTS, TargetTS: targetTS}, true, nil
}

func asTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	default:
		return time.Time{}, false
	}
}

// SubWindows slices [sourceTS, targetTS] into fixed-width sub-windows,
// preserving the source program's off-by-one behaviour verbatim (spec §9
// Open Question O1): the loop advances while sub_end <= target_ts and
// always emits the window that caused the predicate to first fail,
// including the source_ts == target_ts case, which emits exactly one
// sub-window of width step extending past target_ts.
func SubWindows(sourceTS, targetTS time.Time, step time.Duration) []model.SubWindow {
	var windows []model.SubWindow
	start := sourceTS
	for {
		end := start.Add(step)
		windows = append(windows, model.SubWindow{Start: start, End: end})
		if !end.Before(targetTS) && !end.Equal(targetTS) {
			break
		}
		start = end
	}
	return windows
}

// runSubWindow executes one worker task: fetch -> normalise -> hook ->
// upsert (spec §4.7 step 3). Each worker opens its own gateway, keeping
// workers fully independent (spec §4.7 "Concurrency contract").
func (p *Planner) runSubWindow(ctx context.Context, sw model.SubWindow) error {
	gw, err := p.OpenGateway(ctx)
	if err != nil {
		return errors.Annotate(err, "open sub-window gateway")
	}
	defer gw.Close()

	window := &store.TimeWindow{Start: sw.Start, End: sw.End}
	batch, err := gw.CallGetAll(ctx, p.Domain.GetAllProcedure, window)
	if err != nil {
		return errors.Annotate(err, "fetch sub-window rows")
	}
	if batch.Len() == 0 {
		return nil
	}

	normalize.Batch(batch)

	if err := p.Hooks.Apply(p.Domain.Domain, batch); err != nil {
		return errors.Annotate(err, "apply business hook")
	}

	if err := p.Sink.Upsert(ctx, p.Domain.CollectionName, batch.Documents()); err != nil {
		return errors.Annotate(err, "upsert sub-window batch")
	}
	return nil
}
