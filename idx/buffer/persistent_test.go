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

package buffer

import (
	"context"
	"testing"

	"github.com/pingcap/check"

	"github.com/nealrout/daas-go-idx/idx/model"
)

func TestPersistentSuite(t *testing.T) { check.TestingT(t) }

type persistentSuite struct{}

var _ = check.Suite(&persistentSuite{})

type fakeGateway struct {
	callResult  *model.Batch
	callErr     error
	voidErr     error
	lastVoidArg []interface{}
}

func (f *fakeGateway) Call(ctx context.Context, procedure string, args ...interface{}) (*model.Batch, error) {
	return f.callResult, f.callErr
}

func (f *fakeGateway) CallVoid(ctx context.Context, procedure string, args ...interface{}) error {
	f.lastVoidArg = args
	return f.voidErr
}

func (s *persistentSuite) TestDrainPendingExtractsPayloadColumn(c *check.C) {
	fg := &fakeGateway{
		callResult: model.NewBatch(
			[]model.Column{{Name: "id"}, {Name: "channel"}, {Name: "payload"}},
			[][]interface{}{
				{int64(10), "asset_changed", "B1"},
				{int64(11), "asset_changed", "B2"},
			},
		),
	}
	p := NewPersistent(fg, "get_event_notification_buffer", "clean_event_notification_buffer", "ids")

	notifications, err := p.DrainPending(context.Background(), "asset_changed")
	c.Assert(err, check.IsNil)
	c.Assert(notifications, check.HasLen, 2)
	c.Assert(notifications[0].Payload, check.Equals, "B1")
	c.Assert(notifications[1].Payload, check.Equals, "B2")
}

func (s *persistentSuite) TestAcknowledgeUsesEventFetchKeyNotFetchKey(c *check.C) {
	fg := &fakeGateway{}
	p := NewPersistent(fg, "get_event_notification_buffer", "clean_event_notification_buffer", "event_fetch_key")

	err := p.Acknowledge(context.Background(), "asset_changed", []string{"A1", "A2"})
	c.Assert(err, check.IsNil)
	c.Assert(fg.lastVoidArg, check.HasLen, 2)
	c.Assert(fg.lastVoidArg[0], check.Equals, `{"event_fetch_key":["A1","A2"]}`)
	c.Assert(fg.lastVoidArg[1], check.Equals, "asset_changed")
}
