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

// Package sink implements the Index Client (C3): a single-call,
// commit-on-write upsert of a batch of documents into a named search
// collection. There is no dedicated Go client library for this index in
// the example pack (see DESIGN.md); the wire contract (spec §6 (c)) is a
// plain JSON array posted over HTTP, so this package talks to it with
// net/http directly rather than inventing a bespoke client dependency.
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"

	"github.com/nealrout/daas-go-idx/idx/errkind"
	"github.com/nealrout/daas-go-idx/idx/model"
)

// upsertTimeout is the per-call timeout mandated by spec §4.3.
const upsertTimeout = 10 * time.Second

// Client upserts documents into one search collection over HTTP.
type Client struct {
	baseURL    string
	user       string
	password   string
	httpClient *http.Client
}

// NewClient builds a Client targeting baseURL (e.g. "https://solr.internal:8983/solr"),
// authenticating with user/password (spec §4.3, secrets SOLR_USER/SOLR_PASSWORD).
func NewClient(baseURL, user, password string) *Client {
	return &Client{
		baseURL:  baseURL,
		user:     user,
		password: password,
		httpClient: &http.Client{
			Timeout: upsertTimeout,
		},
	}
}

// Upsert posts documents to collection as a single commit-on-write batch
// (spec §4.3, §6 wire format (c)). An empty or nil slice is a no-op that
// logs a warning rather than returning an error. A response outside 2xx
// is reported as errkind.ErrUpsertFailed and a transport failure as
// errkind.ErrConnectionLost — the caller does not split the batch and
// retry individual documents.
func (c *Client) Upsert(ctx context.Context, collection string, documents []model.Document) error {
	if len(documents) == 0 {
		log.Warn("sink: no documents to upsert", zap.String("collection", collection))
		return nil
	}

	body, err := json.Marshal(documents)
	if err != nil {
		return errors.Trace(err)
	}

	url := fmt.Sprintf("%s/%s/update?commit=true", c.baseURL, collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errors.Trace(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.user != "" {
		req.SetBasicAuth(c.user, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errkind.Connection(err, fmt.Sprintf("upsert to %s", collection))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := ioutil.ReadAll(resp.Body)
		return errors.Annotatef(errkind.ErrUpsertFailed, "collection %s: status %d: %s",
			collection, resp.StatusCode, string(payload))
	}

	log.Info("sink: upserted documents", zap.String("collection", collection), zap.Int("count", len(documents)))
	return nil
}
