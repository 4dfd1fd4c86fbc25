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
	"math"
	"sort"
	"sync/atomic"
	"time"

	dto "github.com/prometheus/client_model/go"
	"google.golang.org/protobuf/proto"
)

// DefObjectives are the default summary quantile levels with their allowed
// rank error.
var DefObjectives = map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001}

const (
	// DefMaxAge is the default length of the observation window.
	DefMaxAge = 10 * time.Minute
	// DefAgeBuckets is the default number of sub-windows the observation
	// window is partitioned into.
	DefAgeBuckets = 5
)

// SummaryOpts carries the construction parameters of a SummaryVar. The zero
// value selects DefObjectives, DefMaxAge and DefAgeBuckets.
type SummaryOpts struct {
	// Objectives maps target quantile levels to their allowed rank error.
	Objectives map[float64]float64
	// MaxAge is how long an observation stays relevant for quantile
	// estimation.
	MaxAge time.Duration
	// AgeBuckets is the number of sub-windows used to expire observations
	// as they age out of MaxAge.
	AgeBuckets int
}

// SummaryVar tracks a running sum and count plus streaming quantile
// estimates over the last MaxAge of observations.
//
// Unlike counters and histograms, quantile estimates are not algebraically
// mergeable. Reduce therefore folds sum and count only; the quantile values
// of a cross-worker aggregate are those of the variable that seeded the
// accumulator (the first worker visited). Exporters that need exact
// cross-worker quantiles must use a histogram instead.
type SummaryVar struct {
	// sumBits and count have to go first in the struct to guarantee
	// alignment for atomic operations.
	// http://golang.org/pkg/sync/atomic/#pkg-note-BUG
	sumBits uint64
	count   uint64

	varBase

	objectives map[float64]float64
	quantiles  []float64 // sorted objective keys
	maxAge     time.Duration
	ageBuckets int

	window *TimeWindowQuantiles

	// frozen holds materialized quantile estimates for aggregates built by
	// Create(true); nil on live variables.
	frozen []float64
}

// NewSummary returns an unregistered summary. Use Factory.NewSummary to
// register one with a Local.
func NewSummary(name, help string, opts SummaryOpts) *SummaryVar {
	if len(opts.Objectives) == 0 {
		opts.Objectives = DefObjectives
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefMaxAge
	}
	if opts.AgeBuckets <= 0 {
		opts.AgeBuckets = DefAgeBuckets
	}
	quantiles := make([]float64, 0, len(opts.Objectives))
	for q := range opts.Objectives {
		quantiles = append(quantiles, q)
	}
	sort.Float64s(quantiles)
	return &SummaryVar{
		varBase:    varBase{name: name, help: help, typ: VarSummary},
		objectives: opts.Objectives,
		quantiles:  quantiles,
		maxAge:     opts.MaxAge,
		ageBuckets: opts.AgeBuckets,
		window:     NewTimeWindowQuantiles(opts.Objectives, opts.MaxAge, opts.AgeBuckets),
	}
}

// Observe adds a single observation to the summary.
func (s *SummaryVar) Observe(value float64) {
	for {
		oldBits := atomic.LoadUint64(&s.sumBits)
		newBits := math.Float64bits(math.Float64frombits(oldBits) + value)
		if atomic.CompareAndSwapUint64(&s.sumBits, oldBits, newBits) {
			break
		}
	}
	atomic.AddUint64(&s.count, 1)
	s.window.Insert(value)
}

// Sum returns the running total of observed values.
func (s *SummaryVar) Sum() float64 {
	return math.Float64frombits(atomic.LoadUint64(&s.sumBits))
}

// Count returns the total number of observations.
func (s *SummaryVar) Count() uint64 {
	return atomic.LoadUint64(&s.count)
}

// Quantile returns the estimated value of one quantile level over the
// current window, or NaN when the window is empty. On an aggregate built by
// Create(true) it returns the estimate frozen at aggregation time.
func (s *SummaryVar) Quantile(q float64) float64 {
	if s.frozen != nil {
		for i, level := range s.quantiles {
			if level == q {
				return s.frozen[i]
			}
		}
		return math.NaN()
	}
	if s.window.Count() == 0 {
		return math.NaN()
	}
	return s.window.Query(q)
}

// quantileValues materializes all configured quantile estimates in ascending
// level order.
func (s *SummaryVar) quantileValues() []float64 {
	if s.frozen != nil {
		vals := make([]float64, len(s.frozen))
		copy(vals, s.frozen)
		return vals
	}
	vals := make([]float64, len(s.quantiles))
	for i, q := range s.quantiles {
		vals[i] = s.Quantile(q)
	}
	return vals
}

func (s *SummaryVar) opts() SummaryOpts {
	return SummaryOpts{Objectives: s.objectives, MaxAge: s.maxAge, AgeBuckets: s.ageBuckets}
}

// Create implements Var. With withData set, the new variable carries the
// current sum, count and a frozen copy of the current quantile estimates;
// its window starts empty.
func (s *SummaryVar) Create(withData bool) Var {
	ns := NewSummary(s.name, s.help, s.opts())
	if withData {
		ns.sumBits = math.Float64bits(s.Sum())
		ns.count = s.Count()
		ns.frozen = s.quantileValues()
	}
	return ns
}

// Snapshot implements Var.
func (s *SummaryVar) Snapshot() ([]byte, error) {
	sum := &dto.Summary{
		SampleCount: proto.Uint64(s.Count()),
		SampleSum:   proto.Float64(s.Sum()),
	}
	vals := s.quantileValues()
	for i, q := range s.quantiles {
		sum.Quantile = append(sum.Quantile, &dto.Quantile{
			Quantile: proto.Float64(q),
			Value:    proto.Float64(vals[i]),
		})
	}
	fam := s.newFamily()
	fam.Metric = []*dto.Metric{{Summary: sum}}
	return proto.Marshal(fam)
}

// Reduce implements Var. Only sum and count are folded in; quantile
// estimates in the snapshot are ignored, see the type comment.
func (s *SummaryVar) Reduce(snapshot []byte) error {
	fam, err := s.decodeFamily(snapshot)
	if err != nil {
		return err
	}
	for _, m := range fam.GetMetric() {
		sum := m.GetSummary()
		for {
			oldBits := atomic.LoadUint64(&s.sumBits)
			newBits := math.Float64bits(math.Float64frombits(oldBits) + sum.GetSampleSum())
			if atomic.CompareAndSwapUint64(&s.sumBits, oldBits, newBits) {
				break
			}
		}
		atomic.AddUint64(&s.count, sum.GetSampleCount())
	}
	return nil
}

// Collect implements Var. Quantile levels are reported in ascending order.
func (s *SummaryVar) Collect(c Collector) {
	c.CollectSummaryBegin(s)
	vals := s.quantileValues()
	for i, q := range s.quantiles {
		c.CollectSummaryEach(s, q, vals[i])
	}
	c.CollectSummaryEnd(s, s.Sum(), s.Count())
}
