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

// Package hook implements the Business Hook Dispatcher (C4). The source
// resolves a per-domain transform by dynamic module import at runtime
// (business_logic.<domain>); Go has no equivalent of importlib, so this
// is a registry populated once at process start (spec §9) — the
// systems-language replacement the design notes call for.
package hook

import (
	"strings"
	"sync"

	"github.com/pingcap/log"
	"go.uber.org/zap"

	"github.com/nealrout/daas-go-idx/idx/model"
)

// Hook mutates a batch in place. Errors propagate to the caller; a hook
// is trusted code (spec §4.4, §7).
type Hook interface {
	Apply(batch *model.Batch) error
}

// HookFunc adapts a plain function to the Hook interface.
type HookFunc func(batch *model.Batch) error

// Apply implements Hook.
func (f HookFunc) Apply(batch *model.Batch) error { return f(batch) }

// Registry maps a lower-cased domain token to its Hook.
type Registry struct {
	mu    sync.RWMutex
	hooks map[string]Hook
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{hooks: make(map[string]Hook)}
}

// Register binds hook to domain (case-insensitive).
func (r *Registry) Register(domain string, hook Hook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[strings.ToLower(domain)] = hook
}

// Apply resolves the hook registered for domain and invokes it against
// batch. A missing hook is non-fatal: it is logged at warning level and
// Apply returns nil so the caller proceeds unchanged (spec §4.4, §7).
func (r *Registry) Apply(domain string, batch *model.Batch) error {
	r.mu.RLock()
	h, ok := r.hooks[strings.ToLower(domain)]
	r.mu.RUnlock()
	if !ok {
		log.Warn("hook: no business logic registered for domain, proceeding unchanged",
			zap.String("domain", domain))
		return nil
	}
	return h.Apply(batch)
}
