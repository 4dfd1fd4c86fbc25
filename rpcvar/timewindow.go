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
	"sync"
	"time"

	"github.com/beorn7/perks/quantile"
)

// TimeWindowQuantiles estimates quantiles over a sliding time window of
// maxAge, using bounded memory independent of the number of observations.
//
// The window is partitioned into ageBuckets sub-windows, each backed by a
// targeted quantile stream. Every observation is inserted into all live
// streams; queries read the oldest ("head") stream, which by construction
// holds between maxAge*(ageBuckets-1)/ageBuckets and maxAge worth of
// observations. Every maxAge/ageBuckets the head stream is reset and the
// head advances, which is how contributions older than maxAge decay out.
type TimeWindowQuantiles struct {
	mtx sync.Mutex

	streams        []*quantile.Stream
	headIdx        int
	rotateInterval time.Duration
	nextRotate     time.Time

	now func() time.Time // to mock out time.Now() for testing
}

// NewTimeWindowQuantiles builds a window for the given target quantiles
// (rank -> allowed rank error, as understood by targeted quantile streams).
func NewTimeWindowQuantiles(targets map[float64]float64, maxAge time.Duration, ageBuckets int) *TimeWindowQuantiles {
	w := &TimeWindowQuantiles{
		streams:        make([]*quantile.Stream, ageBuckets),
		rotateInterval: maxAge / time.Duration(ageBuckets),
		now:            time.Now,
	}
	for i := range w.streams {
		w.streams[i] = quantile.NewTargeted(targets)
	}
	w.nextRotate = w.now().Add(w.rotateInterval)
	return w
}

// Insert adds an observation, timestamped with the window's clock.
func (w *TimeWindowQuantiles) Insert(value float64) {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	w.maybeRotate()
	for _, s := range w.streams {
		s.Insert(value)
	}
}

// Query returns the estimated value for the given quantile level over the
// current window. The result is unspecified when Count is zero.
func (w *TimeWindowQuantiles) Query(q float64) float64 {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	w.maybeRotate()
	return w.streams[w.headIdx].Query(q)
}

// Count returns the number of observations in the current window.
func (w *TimeWindowQuantiles) Count() int {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	w.maybeRotate()
	return w.streams[w.headIdx].Count()
}

// maybeRotate expires sub-windows the clock has moved past. The caller must
// hold the mutex.
func (w *TimeWindowQuantiles) maybeRotate() {
	t := w.now()
	for !t.Before(w.nextRotate) {
		w.streams[w.headIdx].Reset()
		w.headIdx++
		if w.headIdx >= len(w.streams) {
			w.headIdx = 0
		}
		w.nextRotate = w.nextRotate.Add(w.rotateInterval)
	}
}
