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

import (
	"fmt"
	"sort"
	"sync"
)

// Global tracks every live Local registry of the process and aggregates
// across them on demand. It never owns the per-worker variables; a Local
// clears its slot on Close, so the walk cannot reach a torn-down registry.
type Global struct {
	mtx   sync.Mutex
	slots []*Local
	free  []int

	// dup is the synthetic registry holding externally computed variables
	// imported through Dup. Created lazily.
	dup *Local
}

// DefaultGlobal is the registry the runtime uses unless an explicit one is
// injected.
var DefaultGlobal = NewGlobal()

// NewGlobal returns an empty global registry.
func NewGlobal() *Global {
	return &Global{}
}

// add registers l and returns its slot index. O(1) amortized.
func (g *Global) add(l *Local) int {
	g.mtx.Lock()
	defer g.mtx.Unlock()
	if n := len(g.free); n > 0 {
		idx := g.free[n-1]
		g.free = g.free[:n-1]
		g.slots[idx] = l
		return idx
	}
	g.slots = append(g.slots, l)
	return len(g.slots) - 1
}

// del clears a slot. Called by Local.Close exactly once.
func (g *Global) del(slot int) {
	g.mtx.Lock()
	defer g.mtx.Unlock()
	g.slots[slot] = nil
	g.free = append(g.free, slot)
}

// Find aggregates the variable called name across every live Local. The
// first match seeds an accumulator with Create(true); every further match is
// folded in via Snapshot and Reduce. The scan order across workers is
// unspecified, which every kind's merge tolerates (summaries merge sum and
// count only, see SummaryVar).
//
// Find returns (nil, nil) when no worker has ever created the name: never
// recorded is a valid state, distinct from a zero value. A reduce failure
// (for example mismatched histogram buckets between workers) aborts the
// aggregation of this name and is returned as an error.
func (g *Global) Find(name string) (Var, error) {
	g.mtx.Lock()
	defer g.mtx.Unlock()

	var acc Var
	for _, l := range g.slots {
		if l == nil {
			continue
		}
		l.mtx.Lock()
		v, ok := l.vars[name]
		if !ok {
			l.mtx.Unlock()
			continue
		}
		if acc == nil {
			acc = v.Create(true)
			l.mtx.Unlock()
			continue
		}
		snap, err := v.Snapshot()
		l.mtx.Unlock()
		if err != nil {
			return nil, fmt.Errorf("snapshotting %q: %w", name, err)
		}
		if err := acc.Reduce(snap); err != nil {
			return nil, fmt.Errorf("reducing %q: %w", name, err)
		}
	}
	return acc, nil
}

// lookup returns the first registered variable with the given name, without
// copying data. Callers may only read its immutable configuration (for
// cloning via Create).
func (g *Global) lookup(name string) Var {
	g.mtx.Lock()
	defer g.mtx.Unlock()
	for _, l := range g.slots {
		if l == nil {
			continue
		}
		l.mtx.Lock()
		v := l.vars[name]
		l.mtx.Unlock()
		if v != nil {
			return v
		}
	}
	return nil
}

// Dup imports externally supplied name to variable associations into a
// synthetic registry that participates in the same Find walk. It is meant
// for values not recorded by any worker, such as process-level gauges; see
// ProcessVars. Later imports of the same name replace the earlier variable.
func (g *Global) Dup(vars map[string]Var) {
	g.mtx.Lock()
	if g.dup == nil {
		g.dup = &Local{vars: map[string]Var{}}
		g.slots = append(g.slots, g.dup)
	}
	dup := g.dup
	g.mtx.Unlock()

	dup.mtx.Lock()
	defer dup.mtx.Unlock()
	for name, v := range vars {
		dup.vars[name] = v
	}
}

// Names returns the sorted union of variable names across all live
// registries.
func (g *Global) Names() []string {
	g.mtx.Lock()
	defer g.mtx.Unlock()

	seen := map[string]bool{}
	for _, l := range g.slots {
		if l == nil {
			continue
		}
		l.mtx.Lock()
		for name := range l.vars {
			seen[name] = true
		}
		l.mtx.Unlock()
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Export aggregates every known variable and walks each aggregate through c,
// in ascending name order. The first aggregation error aborts the export.
func (g *Global) Export(c Collector) error {
	for _, name := range g.Names() {
		v, err := g.Find(name)
		if err != nil {
			return err
		}
		if v == nil {
			// The owning worker closed between Names and Find.
			continue
		}
		v.Collect(c)
	}
	return nil
}
