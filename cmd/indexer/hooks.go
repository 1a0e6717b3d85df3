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

import "github.com/nealrout/daas-go-idx/idx/hook"

// RegisterBusinessHooks is the one place per-domain transforms get bound
// into the process (spec §4.4, §9 "Dynamic module dispatch"). There are
// none shipped by default; deployments that need domain-specific
// post-fetch transforms add a hook.Register call here.
func RegisterBusinessHooks(registry *hook.Registry) {
}
