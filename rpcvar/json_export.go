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

	jsoniter "github.com/json-iterator/go"
)

// JSONExporter is a Collector that renders aggregated variables as a JSON
// array, one object per variable. Quantiles with an empty window are
// omitted, since JSON has no encoding for NaN.
//
// A JSONExporter is for single-goroutine use by one export cycle.
type JSONExporter struct {
	vars []*jsonVar
	cur  *jsonVar
}

type jsonVar struct {
	Name      string         `json:"name"`
	Help      string         `json:"help,omitempty"`
	Type      string         `json:"type"`
	Value     *float64       `json:"value,omitempty"`
	Series    []jsonSeries   `json:"series,omitempty"`
	Buckets   []jsonBucket   `json:"buckets,omitempty"`
	Quantiles []jsonQuantile `json:"quantiles,omitempty"`
	Sum       *float64       `json:"sum,omitempty"`
	Count     *uint64        `json:"count,omitempty"`
}

type jsonSeries struct {
	Labels map[string]string `json:"labels"`
	Value  float64           `json:"value"`
}

type jsonBucket struct {
	UpperBound      float64 `json:"le"`
	CumulativeCount uint64  `json:"count"`
}

type jsonQuantile struct {
	Quantile float64 `json:"quantile"`
	Value    float64 `json:"value"`
}

// NewJSONExporter returns an empty exporter.
func NewJSONExporter() *JSONExporter {
	return &JSONExporter{}
}

var _ Collector = (*JSONExporter)(nil)

func (e *JSONExporter) variable(v Var) *jsonVar {
	for _, jv := range e.vars {
		if jv.Name == v.Name() {
			return jv
		}
	}
	jv := &jsonVar{Name: v.Name(), Help: v.Help(), Type: v.Type().String()}
	e.vars = append(e.vars, jv)
	return jv
}

// CollectGauge implements Collector.
func (e *JSONExporter) CollectGauge(v Var, value float64) {
	jv := e.variable(v)
	jv.Value = &value
}

// CollectCounterEach implements Collector.
func (e *JSONExporter) CollectCounterEach(v Var, label string, value float64) {
	labels, err := ParseLabelKey(label)
	if err != nil {
		return
	}
	jv := e.variable(v)
	jv.Series = append(jv.Series, jsonSeries{Labels: labels, Value: value})
}

// CollectHistogramBegin implements Collector.
func (e *JSONExporter) CollectHistogramBegin(v Var) {
	e.cur = e.variable(v)
}

// CollectHistogramEach implements Collector.
func (e *JSONExporter) CollectHistogramEach(v Var, upperBound float64, cumulativeCount uint64) {
	e.cur.Buckets = append(e.cur.Buckets, jsonBucket{
		UpperBound:      upperBound,
		CumulativeCount: cumulativeCount,
	})
}

// CollectHistogramEnd implements Collector.
func (e *JSONExporter) CollectHistogramEnd(v Var, sum float64, count uint64) {
	e.cur.Sum = &sum
	e.cur.Count = &count
	e.cur = nil
}

// CollectSummaryBegin implements Collector.
func (e *JSONExporter) CollectSummaryBegin(v Var) {
	e.cur = e.variable(v)
}

// CollectSummaryEach implements Collector.
func (e *JSONExporter) CollectSummaryEach(v Var, quantile, value float64) {
	if math.IsNaN(value) {
		return
	}
	e.cur.Quantiles = append(e.cur.Quantiles, jsonQuantile{Quantile: quantile, Value: value})
}

// CollectSummaryEnd implements Collector.
func (e *JSONExporter) CollectSummaryEnd(v Var, sum float64, count uint64) {
	e.cur.Sum = &sum
	e.cur.Count = &count
	e.cur = nil
}

// Bytes renders everything collected so far.
func (e *JSONExporter) Bytes() ([]byte, error) {
	return jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(e.vars)
}
