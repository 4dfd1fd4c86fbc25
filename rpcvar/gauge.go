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
	"sync/atomic"

	dto "github.com/prometheus/client_model/go"
	"google.golang.org/protobuf/proto"
)

// GaugeVar is a single value that can arbitrarily go up and down. Reducing
// two gauges sums their values.
type GaugeVar struct {
	// valBits contains the bits of the float64 value. It has to go first
	// in the struct to guarantee alignment for atomic operations.
	// http://golang.org/pkg/sync/atomic/#pkg-note-BUG
	valBits uint64

	varBase
}

// NewGauge returns an unregistered gauge. Use Factory.NewGauge to register
// one with a Local; the bare constructor exists for externally computed
// values fed through Global.Dup.
func NewGauge(name, help string) *GaugeVar {
	return &GaugeVar{varBase: varBase{name: name, help: help, typ: VarGauge}}
}

// Inc increments the gauge by 1.
func (g *GaugeVar) Inc() { g.Add(1) }

// Dec decrements the gauge by 1.
func (g *GaugeVar) Dec() { g.Add(-1) }

// Sub subtracts delta from the gauge.
func (g *GaugeVar) Sub(delta float64) { g.Add(-delta) }

// Set sets the gauge to value.
func (g *GaugeVar) Set(value float64) {
	atomic.StoreUint64(&g.valBits, math.Float64bits(value))
}

// Add adds delta to the gauge. delta may be negative.
func (g *GaugeVar) Add(delta float64) {
	for {
		oldBits := atomic.LoadUint64(&g.valBits)
		newBits := math.Float64bits(math.Float64frombits(oldBits) + delta)
		if atomic.CompareAndSwapUint64(&g.valBits, oldBits, newBits) {
			return
		}
	}
}

// Value returns the current value.
func (g *GaugeVar) Value() float64 {
	return math.Float64frombits(atomic.LoadUint64(&g.valBits))
}

// Create implements Var.
func (g *GaugeVar) Create(withData bool) Var {
	ng := NewGauge(g.name, g.help)
	if withData {
		ng.Set(g.Value())
	}
	return ng
}

// Snapshot implements Var.
func (g *GaugeVar) Snapshot() ([]byte, error) {
	fam := g.newFamily()
	fam.Metric = []*dto.Metric{{
		Gauge: &dto.Gauge{Value: proto.Float64(g.Value())},
	}}
	return proto.Marshal(fam)
}

// Reduce implements Var. The snapshot value is added to the gauge.
func (g *GaugeVar) Reduce(snapshot []byte) error {
	fam, err := g.decodeFamily(snapshot)
	if err != nil {
		return err
	}
	for _, m := range fam.GetMetric() {
		g.Add(m.GetGauge().GetValue())
	}
	return nil
}

// Collect implements Var.
func (g *GaugeVar) Collect(c Collector) {
	c.CollectGauge(g, g.Value())
}
