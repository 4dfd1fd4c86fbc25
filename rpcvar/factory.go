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

	"github.com/prometheus/common/model"
)

// Factory is the get-or-create surface a worker uses to resolve variables in
// its own Local registry. The typed accessors (Gauge, Counter, Histogram,
// Summary) return the worker's instance of an already-declared name, cloning
// the configuration prototype from any other worker when this worker touches
// the name for the first time. The NewXxx constructors are the registration
// step that declares a name together with its configuration.
type Factory struct {
	local  *Local
	global *Global
}

// NewFactory binds a factory to the worker's Local.
func NewFactory(l *Local) *Factory {
	return &Factory{local: l, global: l.global}
}

// CheckNameFormat reports whether name is acceptable as a variable name.
// Hot-path code must not register names that fail this check.
func CheckNameFormat(name string) bool {
	return model.IsValidMetricName(model.LabelValue(name))
}

// NewGauge declares a gauge in the worker's registry. If the name is already
// registered on this worker, the existing instance is returned (first writer
// wins); a kind conflict is an error.
func (f *Factory) NewGauge(name, help string) (*GaugeVar, error) {
	if !CheckNameFormat(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	v := f.local.Add(name, NewGauge(name, help))
	g, ok := v.(*GaugeVar)
	if !ok {
		return nil, fmt.Errorf("%w: %q is already registered as a %s", ErrTypeMismatch, name, v.Type())
	}
	return g, nil
}

// NewCounter declares a labeled counter in the worker's registry.
func (f *Factory) NewCounter(name, help string) (*CounterVar, error) {
	if !CheckNameFormat(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	v := f.local.Add(name, NewCounter(name, help))
	c, ok := v.(*CounterVar)
	if !ok {
		return nil, fmt.Errorf("%w: %q is already registered as a %s", ErrTypeMismatch, name, v.Type())
	}
	return c, nil
}

// NewHistogram declares a histogram in the worker's registry. A nil buckets
// slice selects DefBuckets.
func (f *Factory) NewHistogram(name, help string, buckets []float64) (*HistogramVar, error) {
	if !CheckNameFormat(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	v := f.local.Add(name, NewHistogram(name, help, buckets))
	h, ok := v.(*HistogramVar)
	if !ok {
		return nil, fmt.Errorf("%w: %q is already registered as a %s", ErrTypeMismatch, name, v.Type())
	}
	return h, nil
}

// NewSummary declares a summary in the worker's registry.
func (f *Factory) NewSummary(name, help string, opts SummaryOpts) (*SummaryVar, error) {
	if !CheckNameFormat(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	v := f.local.Add(name, NewSummary(name, help, opts))
	s, ok := v.(*SummaryVar)
	if !ok {
		return nil, fmt.Errorf("%w: %q is already registered as a %s", ErrTypeMismatch, name, v.Type())
	}
	return s, nil
}

// Gauge returns this worker's instance of an already-declared gauge, or nil
// when the name is unknown everywhere or declared as a different kind.
func (f *Factory) Gauge(name string) *GaugeVar {
	g, _ := f.Var(name).(*GaugeVar)
	return g
}

// Counter returns this worker's instance of an already-declared counter, or
// nil when the name is unknown everywhere or declared as a different kind.
func (f *Factory) Counter(name string) *CounterVar {
	c, _ := f.Var(name).(*CounterVar)
	return c
}

// Histogram returns this worker's instance of an already-declared histogram,
// or nil when the name is unknown everywhere or declared as a different
// kind. The clone inherits the declaring worker's bucket boundaries.
func (f *Factory) Histogram(name string) *HistogramVar {
	h, _ := f.Var(name).(*HistogramVar)
	return h
}

// Summary returns this worker's instance of an already-declared summary, or
// nil when the name is unknown everywhere or declared as a different kind.
func (f *Factory) Summary(name string) *SummaryVar {
	s, _ := f.Var(name).(*SummaryVar)
	return s
}

// Var is the untyped lookup behind the typed accessors. When the name is
// absent from this worker's registry but declared elsewhere, a zero-valued
// clone of the prototype is created here; when the name is unknown
// everywhere, Var returns nil.
func (f *Factory) Var(name string) Var {
	if v := f.local.Get(name); v != nil {
		return v
	}
	prototype := f.global.lookup(name)
	if prototype == nil {
		return nil
	}
	return f.local.Add(name, prototype.Create(false))
}
