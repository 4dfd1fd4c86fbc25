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
	"errors"
	"fmt"

	dto "github.com/prometheus/client_model/go"
	"google.golang.org/protobuf/proto"
)

// VarType identifies the kind of a variable. It is fixed at construction and
// never changes over the lifetime of a Var.
type VarType int

const (
	VarGauge VarType = iota
	VarCounter
	VarHistogram
	VarSummary
)

// String returns the exposition name of the type.
func (t VarType) String() string {
	switch t {
	case VarGauge:
		return "gauge"
	case VarCounter:
		return "counter"
	case VarHistogram:
		return "histogram"
	case VarSummary:
		return "summary"
	}
	return ""
}

func (t VarType) dtoType() dto.MetricType {
	switch t {
	case VarGauge:
		return dto.MetricType_GAUGE
	case VarCounter:
		return dto.MetricType_COUNTER
	case VarHistogram:
		return dto.MetricType_HISTOGRAM
	case VarSummary:
		return dto.MetricType_SUMMARY
	}
	return dto.MetricType_UNTYPED
}

var (
	// ErrInvalidName is returned when a variable name does not pass
	// CheckNameFormat.
	ErrInvalidName = errors.New("invalid variable name")

	// ErrTypeMismatch is returned when a snapshot or a registered variable
	// has a different kind than expected.
	ErrTypeMismatch = errors.New("variable type mismatch")

	// ErrBucketMismatch is returned when two histograms with different
	// bucket boundaries are reduced into each other.
	ErrBucketMismatch = errors.New("histogram bucket boundaries do not match")
)

// Var is a metric variable. The concrete kinds are GaugeVar, CounterVar,
// HistogramVar and SummaryVar.
//
// Recording methods (Inc, Observe, ...) live on the concrete types and are
// safe for the owning worker without locking against other workers. The Var
// contract below is what registries and exporters need: uniform identity,
// cloning, snapshot-based merging and collection.
type Var interface {
	Name() string
	Help() string
	Type() VarType

	// Create returns a fresh variable of the same kind and configuration.
	// If withData is set, the new variable starts from a copy of the
	// current data; otherwise it starts at the zero value. Aggregation
	// seeds an accumulator with Create(true) and folds further snapshots
	// into it with Reduce.
	Create(withData bool) Var

	// Snapshot serializes the current data as an encoded dto.MetricFamily,
	// the form consumed by Reduce.
	Snapshot() ([]byte, error)

	// Reduce folds a snapshot of a same-kind variable into this one.
	// A structural mismatch (wrong kind or name, incompatible histogram
	// buckets) is an error and leaves the receiver unchanged; the caller
	// must treat it as fatal for the aggregation of this name.
	Reduce(snapshot []byte) error

	// Collect walks the current data through the collector, in the order
	// documented on Collector.
	Collect(c Collector)
}

// varBase carries the identity shared by all variable kinds.
type varBase struct {
	name string
	help string
	typ  VarType
}

func (b *varBase) Name() string  { return b.name }
func (b *varBase) Help() string  { return b.help }
func (b *varBase) Type() VarType { return b.typ }

// newFamily builds the snapshot envelope for a variable.
func (b *varBase) newFamily() *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: proto.String(b.name),
		Help: proto.String(b.help),
		Type: b.typ.dtoType().Enum(),
	}
}

// decodeFamily unmarshals a snapshot and verifies that it belongs to the
// same variable kind and name as the receiver.
func (b *varBase) decodeFamily(snapshot []byte) (*dto.MetricFamily, error) {
	fam := &dto.MetricFamily{}
	if err := proto.Unmarshal(snapshot, fam); err != nil {
		return nil, fmt.Errorf("decoding snapshot for %q: %w", b.name, err)
	}
	if fam.GetType() != b.typ.dtoType() {
		return nil, fmt.Errorf("%w: snapshot is %s, variable %q is %s",
			ErrTypeMismatch, fam.GetType(), b.name, b.typ)
	}
	if fam.GetName() != b.name {
		return nil, fmt.Errorf("%w: snapshot of %q cannot reduce into %q",
			ErrTypeMismatch, fam.GetName(), b.name)
	}
	return fam, nil
}
