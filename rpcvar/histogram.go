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
	"math"
	"sort"
	"sync/atomic"

	dto "github.com/prometheus/client_model/go"
	"google.golang.org/protobuf/proto"
)

// DefBuckets are the default histogram buckets, tailored to broadly measure
// the response time (in seconds) of a network service. Most users will want
// buckets customized to their use case.
var DefBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// LinearBuckets creates 'count' buckets, each 'width' wide, where the lowest
// bucket has an upper bound of 'start'. The final +Inf bucket is not counted
// and not included in the returned slice.
//
// The function panics if 'count' is zero or negative.
func LinearBuckets(start, width float64, count int) []float64 {
	if count < 1 {
		panic("LinearBuckets needs a positive count")
	}
	buckets := make([]float64, count)
	for i := range buckets {
		buckets[i] = start
		start += width
	}
	return buckets
}

// ExponentialBuckets creates 'count' buckets, where the lowest bucket has an
// upper bound of 'start' and each following bucket's upper bound is 'factor'
// times the previous bucket's upper bound. The final +Inf bucket is not
// counted and not included in the returned slice.
//
// The function panics if 'count' is 0 or negative, if 'start' is 0 or
// negative, or if 'factor' is less than or equal 1.
func ExponentialBuckets(start, factor float64, count int) []float64 {
	if count < 1 {
		panic("ExponentialBuckets needs a positive count")
	}
	if start <= 0 {
		panic("ExponentialBuckets needs a positive start value")
	}
	if factor <= 1 {
		panic("ExponentialBuckets needs a factor greater than 1")
	}
	buckets := make([]float64, count)
	for i := range buckets {
		buckets[i] = start
		start *= factor
	}
	return buckets
}

// HistogramVar counts observations into fixed buckets declared at
// construction, and keeps a running sum and count. Buckets are exported
// cumulatively with an implicit +Inf top bucket. Two histograms reduce by
// element-wise count addition; their boundaries must match exactly.
type HistogramVar struct {
	// sumBits and count have to go first in the struct to guarantee
	// alignment for atomic operations.
	// http://golang.org/pkg/sync/atomic/#pkg-note-BUG
	sumBits uint64
	count   uint64

	varBase

	upperBounds []float64
	// buckets holds per-bucket (non-cumulative) counts. Its length is
	// len(upperBounds)+1; the last slot is the +Inf bucket.
	buckets []uint64
}

// NewHistogram returns an unregistered histogram. A nil or empty buckets
// slice selects DefBuckets. It panics if the buckets are not in strictly
// increasing order. Use Factory.NewHistogram to register one with a Local.
func NewHistogram(name, help string, buckets []float64) *HistogramVar {
	if len(buckets) == 0 {
		buckets = DefBuckets
	}
	for i := 0; i < len(buckets)-1; i++ {
		if buckets[i] >= buckets[i+1] {
			panic(fmt.Sprintf(
				"histogram buckets must be in increasing order: %f >= %f",
				buckets[i], buckets[i+1],
			))
		}
	}
	if math.IsInf(buckets[len(buckets)-1], +1) {
		// The +Inf bucket is implicit.
		buckets = buckets[:len(buckets)-1]
	}
	upperBounds := make([]float64, len(buckets))
	copy(upperBounds, buckets)
	return &HistogramVar{
		varBase:     varBase{name: name, help: help, typ: VarHistogram},
		upperBounds: upperBounds,
		buckets:     make([]uint64, len(upperBounds)+1),
	}
}

// Observe adds a single observation to the histogram.
func (h *HistogramVar) Observe(value float64) {
	i := sort.SearchFloat64s(h.upperBounds, value)
	atomic.AddUint64(&h.buckets[i], 1)
	h.addSum(value)
	atomic.AddUint64(&h.count, 1)
}

// ObserveMulti adds a batch of pre-bucketed observations: deltas holds one
// count per bucket including the +Inf slot, sum the total of the batched
// values. Feeding the equivalent individual Observe calls produces identical
// state when the buckets match.
func (h *HistogramVar) ObserveMulti(deltas []uint64, sum float64) error {
	if len(deltas) != len(h.buckets) {
		return fmt.Errorf("%w: %q has %d buckets including +Inf, got %d deltas",
			ErrBucketMismatch, h.name, len(h.buckets), len(deltas))
	}
	var total uint64
	for i, d := range deltas {
		atomic.AddUint64(&h.buckets[i], d)
		total += d
	}
	h.addSum(sum)
	atomic.AddUint64(&h.count, total)
	return nil
}

func (h *HistogramVar) addSum(v float64) {
	for {
		oldBits := atomic.LoadUint64(&h.sumBits)
		newBits := math.Float64bits(math.Float64frombits(oldBits) + v)
		if atomic.CompareAndSwapUint64(&h.sumBits, oldBits, newBits) {
			return
		}
	}
}

// Sum returns the running total of observed values.
func (h *HistogramVar) Sum() float64 {
	return math.Float64frombits(atomic.LoadUint64(&h.sumBits))
}

// Count returns the total number of observations.
func (h *HistogramVar) Count() uint64 {
	return atomic.LoadUint64(&h.count)
}

// UpperBounds returns the finite bucket boundaries.
func (h *HistogramVar) UpperBounds() []float64 {
	bounds := make([]float64, len(h.upperBounds))
	copy(bounds, h.upperBounds)
	return bounds
}

// Create implements Var.
func (h *HistogramVar) Create(withData bool) Var {
	nh := NewHistogram(h.name, h.help, h.upperBounds)
	if withData {
		for i := range h.buckets {
			nh.buckets[i] = atomic.LoadUint64(&h.buckets[i])
		}
		nh.sumBits = math.Float64bits(h.Sum())
		nh.count = h.Count()
	}
	return nh
}

// Snapshot implements Var. Buckets are encoded cumulatively, dto convention.
func (h *HistogramVar) Snapshot() ([]byte, error) {
	fam := h.newFamily()
	his := &dto.Histogram{
		SampleCount: proto.Uint64(h.Count()),
		SampleSum:   proto.Float64(h.Sum()),
		Bucket:      make([]*dto.Bucket, len(h.upperBounds)),
	}
	var cum uint64
	for i, ub := range h.upperBounds {
		cum += atomic.LoadUint64(&h.buckets[i])
		his.Bucket[i] = &dto.Bucket{
			UpperBound:      proto.Float64(ub),
			CumulativeCount: proto.Uint64(cum),
		}
	}
	fam.Metric = []*dto.Metric{{Histogram: his}}
	return proto.Marshal(fam)
}

// Reduce implements Var.
func (h *HistogramVar) Reduce(snapshot []byte) error {
	fam, err := h.decodeFamily(snapshot)
	if err != nil {
		return err
	}
	for _, m := range fam.GetMetric() {
		his := m.GetHistogram()
		if len(his.GetBucket()) != len(h.upperBounds) {
			return fmt.Errorf("%w: %q has %d boundaries, snapshot has %d",
				ErrBucketMismatch, h.name, len(h.upperBounds), len(his.GetBucket()))
		}
		deltas := make([]uint64, len(h.buckets))
		var prev uint64
		for i, b := range his.GetBucket() {
			if b.GetUpperBound() != h.upperBounds[i] {
				return fmt.Errorf("%w: boundary %d is %v, snapshot has %v",
					ErrBucketMismatch, i, h.upperBounds[i], b.GetUpperBound())
			}
			deltas[i] = b.GetCumulativeCount() - prev
			prev = b.GetCumulativeCount()
		}
		deltas[len(deltas)-1] = his.GetSampleCount() - prev
		if err := h.ObserveMulti(deltas, his.GetSampleSum()); err != nil {
			return err
		}
	}
	return nil
}

// Collect implements Var. Each finite boundary is reported with its
// cumulative count in ascending order; the +Inf bucket is the total count
// reported by CollectHistogramEnd.
func (h *HistogramVar) Collect(c Collector) {
	c.CollectHistogramBegin(h)
	var cum uint64
	for i, ub := range h.upperBounds {
		cum += atomic.LoadUint64(&h.buckets[i])
		c.CollectHistogramEach(h, ub, cum)
	}
	c.CollectHistogramEnd(h, h.Sum(), h.Count())
}
