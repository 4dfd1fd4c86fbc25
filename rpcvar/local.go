// Copyright 2022 The SRPC Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rpcvar

import "sync"

// Local is the per-worker variable registry. A worker goroutine creates one
// Local, records into variables registered with it, and calls Close on exit.
//
// Only the owning worker records through a Local; other goroutines reach it
// exclusively through the Global read-side aggregation, which locks the
// Local's map while scanning it.
type Local struct {
	global    *Global
	slot      int
	closeOnce sync.Once

	mtx  sync.Mutex
	vars map[string]Var
}

// NewLocal creates a worker registry and registers it with g. The caller
// must call Close before the Local goes out of use.
func NewLocal(g *Global) *Local {
	l := &Local{global: g, vars: map[string]Var{}}
	l.slot = g.add(l)
	return l
}

// Add stores v under name unless the name is already present: the first
// writer for a name wins and later calls are no-ops, which is how the
// get-or-create race on first use resolves. The stored variable is returned
// either way.
func (l *Local) Add(name string, v Var) Var {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if cur, ok := l.vars[name]; ok {
		return cur
	}
	l.vars[name] = v
	return v
}

// Get returns the variable registered under name, or nil.
func (l *Local) Get(name string) Var {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return l.vars[name]
}

// Close removes the Local from the Global walk. It is idempotent. After
// Close, the worker's values no longer contribute to Find.
func (l *Local) Close() {
	l.closeOnce.Do(func() {
		l.global.del(l.slot)
	})
}
