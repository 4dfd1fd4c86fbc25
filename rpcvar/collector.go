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

// Collector is the visitor an exporter implements to walk the shape of an
// aggregated variable without knowing its concrete type. Var.Collect
// dispatches to the method family of its kind.
//
// The begin/each/end triple lets an exporter stream large bucket or quantile
// sets without building an intermediate collection. Each is invoked in
// ascending order (label key order for counters, boundary order for
// histograms, quantile order for summaries), and begin/end bracket exactly
// one logical variable.
type Collector interface {
	CollectGauge(v Var, value float64)

	// CollectCounterEach is called once per label combination. label is the
	// canonical label string of the combination, see ParseLabelKey.
	CollectCounterEach(v Var, label string, value float64)

	CollectHistogramBegin(v Var)
	// CollectHistogramEach reports the cumulative count of observations
	// less than or equal to upperBound, for each finite bucket boundary.
	// The implicit +Inf bucket is the count reported by
	// CollectHistogramEnd.
	CollectHistogramEach(v Var, upperBound float64, cumulativeCount uint64)
	CollectHistogramEnd(v Var, sum float64, count uint64)

	CollectSummaryBegin(v Var)
	// CollectSummaryEach reports the estimated value for one configured
	// quantile level. The value is NaN when the observation window is
	// empty.
	CollectSummaryEach(v Var, quantile, value float64)
	CollectSummaryEnd(v Var, sum float64, count uint64)
}
