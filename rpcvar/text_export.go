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
	"io"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
)

// TextExporter is a Collector that renders aggregated variables in the text
// exposition format. Feed it through Global.Export (or individual Collect
// calls), then Write the result:
//
//	e := rpcvar.NewTextExporter()
//	if err := global.Export(e); err != nil { ... }
//	err := e.Write(w)
//
// A TextExporter is for single-goroutine use by one export cycle.
type TextExporter struct {
	families []*dto.MetricFamily
	hist     *dto.Histogram
	sum      *dto.Summary
}

// NewTextExporter returns an empty exporter.
func NewTextExporter() *TextExporter {
	return &TextExporter{}
}

var _ Collector = (*TextExporter)(nil)

// family returns the dto family for v, creating it on first sight.
func (e *TextExporter) family(v Var) *dto.MetricFamily {
	for _, fam := range e.families {
		if fam.GetName() == v.Name() {
			return fam
		}
	}
	fam := &dto.MetricFamily{
		Name: proto.String(v.Name()),
		Help: proto.String(v.Help()),
		Type: v.Type().dtoType().Enum(),
	}
	e.families = append(e.families, fam)
	return fam
}

// CollectGauge implements Collector.
func (e *TextExporter) CollectGauge(v Var, value float64) {
	fam := e.family(v)
	fam.Metric = append(fam.Metric, &dto.Metric{
		Gauge: &dto.Gauge{Value: proto.Float64(value)},
	})
}

// CollectCounterEach implements Collector.
func (e *TextExporter) CollectCounterEach(v Var, label string, value float64) {
	labels, err := ParseLabelKey(label)
	if err != nil {
		return
	}
	fam := e.family(v)
	fam.Metric = append(fam.Metric, &dto.Metric{
		Label:   labelPairs(labels),
		Counter: &dto.Counter{Value: proto.Float64(value)},
	})
}

// CollectHistogramBegin implements Collector.
func (e *TextExporter) CollectHistogramBegin(v Var) {
	e.hist = &dto.Histogram{}
}

// CollectHistogramEach implements Collector.
func (e *TextExporter) CollectHistogramEach(v Var, upperBound float64, cumulativeCount uint64) {
	e.hist.Bucket = append(e.hist.Bucket, &dto.Bucket{
		UpperBound:      proto.Float64(upperBound),
		CumulativeCount: proto.Uint64(cumulativeCount),
	})
}

// CollectHistogramEnd implements Collector.
func (e *TextExporter) CollectHistogramEnd(v Var, sum float64, count uint64) {
	e.hist.SampleSum = proto.Float64(sum)
	e.hist.SampleCount = proto.Uint64(count)
	fam := e.family(v)
	fam.Metric = append(fam.Metric, &dto.Metric{Histogram: e.hist})
	e.hist = nil
}

// CollectSummaryBegin implements Collector.
func (e *TextExporter) CollectSummaryBegin(v Var) {
	e.sum = &dto.Summary{}
}

// CollectSummaryEach implements Collector.
func (e *TextExporter) CollectSummaryEach(v Var, quantile, value float64) {
	e.sum.Quantile = append(e.sum.Quantile, &dto.Quantile{
		Quantile: proto.Float64(quantile),
		Value:    proto.Float64(value),
	})
}

// CollectSummaryEnd implements Collector.
func (e *TextExporter) CollectSummaryEnd(v Var, sum float64, count uint64) {
	e.sum.SampleSum = proto.Float64(sum)
	e.sum.SampleCount = proto.Uint64(count)
	fam := e.family(v)
	fam.Metric = append(fam.Metric, &dto.Metric{Summary: e.sum})
	e.sum = nil
}

// Write renders everything collected so far to w.
func (e *TextExporter) Write(w io.Writer) error {
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, fam := range e.families {
		if err := enc.Encode(fam); err != nil {
			return err
		}
	}
	return nil
}
