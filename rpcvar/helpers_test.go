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

import "time"

// recordingCollector captures everything a Var reports during Collect.
type recordingCollector struct {
	gauges       map[string]float64
	counters     map[string]map[string]float64
	counterOrder []string

	histBounds []float64
	histCum    []uint64
	histSum    float64
	histCount  uint64

	sumQuantiles []float64
	sumValues    []float64
	sumSum       float64
	sumCount     uint64

	begins, ends int
}

func newRecordingCollector() *recordingCollector {
	return &recordingCollector{
		gauges:   map[string]float64{},
		counters: map[string]map[string]float64{},
	}
}

func (r *recordingCollector) CollectGauge(v Var, value float64) {
	r.gauges[v.Name()] = value
}

func (r *recordingCollector) CollectCounterEach(v Var, label string, value float64) {
	m := r.counters[v.Name()]
	if m == nil {
		m = map[string]float64{}
		r.counters[v.Name()] = m
	}
	m[label] = value
	r.counterOrder = append(r.counterOrder, label)
}

func (r *recordingCollector) CollectHistogramBegin(v Var) { r.begins++ }

func (r *recordingCollector) CollectHistogramEach(v Var, upperBound float64, cumulativeCount uint64) {
	r.histBounds = append(r.histBounds, upperBound)
	r.histCum = append(r.histCum, cumulativeCount)
}

func (r *recordingCollector) CollectHistogramEnd(v Var, sum float64, count uint64) {
	r.histSum = sum
	r.histCount = count
	r.ends++
}

func (r *recordingCollector) CollectSummaryBegin(v Var) { r.begins++ }

func (r *recordingCollector) CollectSummaryEach(v Var, quantile, value float64) {
	r.sumQuantiles = append(r.sumQuantiles, quantile)
	r.sumValues = append(r.sumValues, value)
}

func (r *recordingCollector) CollectSummaryEnd(v Var, sum float64, count uint64) {
	r.sumSum = sum
	r.sumCount = count
	r.ends++
}

var _ Collector = (*recordingCollector)(nil)

// fakeClock drives TimeWindowQuantiles in tests.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

// rebase pins a window to the fake clock. Must be called before the first
// Insert.
func (c *fakeClock) rebase(w *TimeWindowQuantiles) {
	w.now = c.now
	w.nextRotate = c.t.Add(w.rotateInterval)
}

func mustSnapshot(v Var) []byte {
	snap, err := v.Snapshot()
	if err != nil {
		panic(err)
	}
	return snap
}
