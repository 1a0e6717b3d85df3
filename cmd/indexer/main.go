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

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/pingcap/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nealrout/daas-go-idx/idx"
	"github.com/nealrout/daas-go-idx/idx/buffer"
	"github.com/nealrout/daas-go-idx/idx/errkind"
	"github.com/nealrout/daas-go-idx/idx/hook"
	"github.com/nealrout/daas-go-idx/idx/model"
	"github.com/nealrout/daas-go-idx/idx/normalize"
	"github.com/nealrout/daas-go-idx/idx/sink"
	"github.com/nealrout/daas-go-idx/idx/store"
	"github.com/nealrout/daas-go-idx/pkg/config"
	"github.com/nealrout/daas-go-idx/pkg/util"
)

var (
	domainFlag      string
	listenerFlag    bool
	fullFlag        bool
	configPathFlag  string
	metricsAddrFlag string
	logLevelFlag    string
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "indexer",
		Short: "Synchronises domain rows from the relational store into the search index",
		RunE:  run,
	}
	cmd.Flags().StringVarP(&domainFlag, "domain", "d", "", "domain to operate on (falls back to DOMAIN env var)")
	cmd.Flags().BoolVarP(&listenerFlag, "listener", "l", false, "run the change-capture listener (C6)")
	cmd.Flags().BoolVarP(&fullFlag, "full", "f", false, "run a full reindex (override planner, falling back to get_all)")
	cmd.Flags().StringVar(&configPathFlag, "config", "./config.toml", "path to the TOML base configuration file")
	cmd.Flags().StringVar(&metricsAddrFlag, "metrics-addr", ":2112", "address to serve /metrics on (empty disables)")
	cmd.Flags().StringVar(&logLevelFlag, "log-level", "info", "log level (debug, info, warn, error)")
	return cmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	if err := util.InitLogger(&util.Config{Level: logLevelFlag}); err != nil {
		return err
	}

	domain := domainFlag
	if domain == "" {
		domain = os.Getenv("DOMAIN")
	}
	domain = idx.ResolveDomain(domain)
	if domain == "" {
		log.Error("indexer: no domain supplied via -d or DOMAIN")
		os.Exit(1)
	}

	cfg, err := config.Load(configPathFlag)
	if err != nil {
		log.Error("indexer: failed to load configuration", zap.Error(err))
		os.Exit(1)
	}

	global, err := idx.LoadGlobalConfig(cfg)
	if err != nil {
		log.Error("indexer: missing global configuration", zap.Error(err))
		os.Exit(1)
	}

	domainCfg, err := idx.BindDomain(cfg, domain)
	if err != nil {
		log.Error("indexer: missing domain configuration", zap.String("domain", domain), zap.Error(err))
		os.Exit(1)
	}

	connCfg, err := loadConnConfig(cfg)
	if err != nil {
		log.Error("indexer: missing database configuration", zap.Error(err))
		os.Exit(1)
	}

	sinkUser, _ := cfg.Secret("SOLR_USER")
	sinkPassword, _ := cfg.Secret("SOLR_PASSWORD")
	sinkClient := sink.NewClient(global.SolrURL, sinkUser, sinkPassword)

	hooks := hook.NewRegistry()
	RegisterBusinessHooks(hooks)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go waitForSignal(cancel)

	if metricsAddrFlag != "" {
		go serveMetrics(metricsAddrFlag)
	}

	if fullFlag {
		if err := runFull(ctx, connCfg, global, domainCfg, sinkClient, hooks); err != nil {
			log.Error("indexer: full reindex failed", zap.String("domain", domain), zap.Error(err))
			os.Exit(1)
		}
	}

	if listenerFlag {
		if err := runListener(ctx, connCfg, global, domainCfg, sinkClient, hooks); err != nil && ctx.Err() == nil {
			log.Error("indexer: listener exited with error", zap.String("domain", domain), zap.Error(err))
			os.Exit(1)
		}
	}

	return nil
}

// loadConnConfig resolves the store connection tuple (spec §4.1). Host,
// port, name, and schema are ambient wiring (not part of spec.md's
// domain-scoped configuration table); host and port get local defaults,
// schema may be empty, and DATABASE_NAME is required. The credentials
// are secrets, resolved environment-only like every other secret
// (spec §6).
func loadConnConfig(cfg *config.Config) (store.ConnConfig, error) {
	name, err := cfg.MustGet("DATABASE_NAME")
	if err != nil {
		return store.ConnConfig{}, err
	}
	host, _ := cfg.Get("DATABASE_HOST")
	if host == "" {
		host = "127.0.0.1"
	}
	port := 5432
	if p, ok := cfg.Get("DATABASE_PORT"); ok {
		if n, err := strconv.Atoi(p); err == nil {
			port = n
		}
	}
	schema, _ := cfg.Get("DATABASE_SCHEMA")

	user, ok := cfg.Secret("DATABASE_USER")
	if !ok {
		return store.ConnConfig{}, errkind.Configuration("DATABASE_USER")
	}
	password, ok := cfg.Secret("DATABASE_PASSWORD")
	if !ok {
		return store.ConnConfig{}, errkind.Configuration("DATABASE_PASSWORD")
	}

	maxOpen := 10
	if v, ok, _ := cfg.GetInt("DATABASE_MAX_OPEN_CONNS"); ok {
		maxOpen = v
	}
	maxIdle := 2
	if v, ok, _ := cfg.GetInt("DATABASE_MAX_IDLE_CONNS"); ok {
		maxIdle = v
	}

	return store.ConnConfig{
		Name:         name,
		User:         user,
		Password:     password,
		Host:         host,
		Port:         port,
		Schema:       schema,
		MaxOpenConns: maxOpen,
		MaxIdleConns: maxIdle,
	}, nil
}

func runFull(ctx context.Context, connCfg store.ConnConfig, global *idx.GlobalConfig, domainCfg *model.DomainConfig, sinkClient *sink.Client, hooks *hook.Registry) error {
	open := func(ctx context.Context) (idx.OverrideGateway, error) {
		return store.Open(connCfg)
	}

	planner := &idx.Planner{
		Domain:      domainCfg,
		Global:      global,
		OpenGateway: open,
		Sink:        sinkClient,
		Hooks:       hooks,
		Concurrency: global.OverrideConcurrency,
	}

	ran, err := planner.Run(ctx)
	if err != nil {
		return err
	}
	if ran {
		log.Info("indexer: full reindex complete via override planner", zap.String("domain", domainCfg.Domain))
		return nil
	}

	log.Info("indexer: no override pending, running unwindowed get_all", zap.String("domain", domainCfg.Domain))
	return runUnwindowedRefresh(ctx, connCfg, domainCfg, sinkClient, hooks)
}

// runUnwindowedRefresh is the spec §4.8 fallback: a single get_all() call
// with no time window, used when no override record is pending.
func runUnwindowedRefresh(ctx context.Context, connCfg store.ConnConfig, domainCfg *model.DomainConfig, sinkClient *sink.Client, hooks *hook.Registry) error {
	gw, err := store.Open(connCfg)
	if err != nil {
		return err
	}
	defer gw.Close()

	batch, err := gw.CallGetAll(ctx, domainCfg.GetAllProcedure, nil)
	if err != nil {
		return err
	}
	if batch.Len() == 0 {
		return nil
	}

	normalize.Batch(batch)

	if err := hooks.Apply(domainCfg.Domain, batch); err != nil {
		return err
	}

	return sinkClient.Upsert(ctx, domainCfg.CollectionName, batch.Documents())
}

func runListener(ctx context.Context, connCfg store.ConnConfig, global *idx.GlobalConfig, domainCfg *model.DomainConfig, sinkClient *sink.Client, hooks *hook.Registry) error {
	gw, err := store.Open(connCfg)
	if err != nil {
		return err
	}
	defer gw.Close()

	events := buffer.NewPersistent(gw, global.GetEventBufferProcedure, global.CleanEventBufferProcedure, global.EventFetchKey)
	mem := buffer.NewMemory(domainCfg.BufferSize, domainCfg.BufferDuration)

	loop := idx.NewLoop()
	loop.Domain = domainCfg.Domain
	loop.Channel = domainCfg.ChannelName
	loop.GetByIDProc = domainCfg.GetByIDProcedure
	loop.FetchKey = domainCfg.FetchKey
	loop.Collection = domainCfg.CollectionName
	loop.Connect = idx.PqConnFactory(connCfg, global.RetryDelay())
	loop.Fetch = gw
	loop.Sink = sinkClient
	loop.Hooks = hooks
	loop.Events = events
	loop.Buffer = mem
	loop.RetryMax = global.RetryDelay()

	return loop.Run(ctx)
}

func waitForSignal(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	log.Info("indexer: shutdown signal received")
	cancel()
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Warn("indexer: metrics server stopped", zap.Error(err))
	}
}
