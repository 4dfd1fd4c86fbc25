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
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	dto "github.com/prometheus/client_model/go"
	"google.golang.org/protobuf/proto"
)

// CounterVar partitions one metric family into sub-series by label set. Each
// label combination owns a GaugeVar; WithLabels resolves the gauge for a
// combination, creating it on first use. Reducing two counters takes the
// union of their label sets and sums per-combination values.
//
// The canonical form of a label set is independent of insertion order: two
// maps with the same key/value pairs always resolve to the same child gauge.
type CounterVar struct {
	varBase

	mtx      sync.RWMutex
	children map[uint64][]*counterChild // keyed by hash of the canonical label string
}

type counterChild struct {
	key    string // canonical label string, see LabelsToKey
	labels map[string]string
	gauge  *GaugeVar
}

// NewCounter returns an unregistered counter. Use Factory.NewCounter to
// register one with a Local.
func NewCounter(name, help string) *CounterVar {
	return &CounterVar{
		varBase:  varBase{name: name, help: help, typ: VarCounter},
		children: map[uint64][]*counterChild{},
	}
}

// WithLabels returns the gauge owned by the given label combination,
// creating it on first use. Callers on the hot path should resolve the gauge
// once and keep it; repeated calls pay for canonicalization and a read lock.
func (c *CounterVar) WithLabels(labels map[string]string) *GaugeVar {
	key := LabelsToKey(labels)
	h := xxhash.Sum64String(key)

	c.mtx.RLock()
	if g := findChild(c.children[h], key); g != nil {
		c.mtx.RUnlock()
		return g
	}
	c.mtx.RUnlock()

	c.mtx.Lock()
	defer c.mtx.Unlock()
	if g := findChild(c.children[h], key); g != nil {
		return g
	}
	cp := make(map[string]string, len(labels))
	for k, v := range labels {
		cp[k] = v
	}
	child := &counterChild{key: key, labels: cp, gauge: NewGauge(c.name, c.help)}
	c.children[h] = append(c.children[h], child)
	return child.gauge
}

// findChild scans a hash collision list for an exact canonical-key match.
func findChild(children []*counterChild, key string) *GaugeVar {
	for _, ch := range children {
		if ch.key == key {
			return ch.gauge
		}
	}
	return nil
}

// sortedChildren returns the children in ascending canonical-key order.
// The caller must hold at least the read lock.
func (c *CounterVar) sortedChildren() []*counterChild {
	all := make([]*counterChild, 0, len(c.children))
	for _, list := range c.children {
		all = append(all, list...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].key < all[j].key })
	return all
}

// Create implements Var.
func (c *CounterVar) Create(withData bool) Var {
	nc := NewCounter(c.name, c.help)
	if withData {
		c.mtx.RLock()
		defer c.mtx.RUnlock()
		for _, ch := range c.sortedChildren() {
			nc.WithLabels(ch.labels).Set(ch.gauge.Value())
		}
	}
	return nc
}

// Snapshot implements Var.
func (c *CounterVar) Snapshot() ([]byte, error) {
	fam := c.newFamily()

	c.mtx.RLock()
	for _, ch := range c.sortedChildren() {
		fam.Metric = append(fam.Metric, &dto.Metric{
			Label:   labelPairs(ch.labels),
			Counter: &dto.Counter{Value: proto.Float64(ch.gauge.Value())},
		})
	}
	c.mtx.RUnlock()

	return proto.Marshal(fam)
}

// Reduce implements Var. Label sets from the snapshot are merged in; values
// of combinations present on both sides are summed.
func (c *CounterVar) Reduce(snapshot []byte) error {
	fam, err := c.decodeFamily(snapshot)
	if err != nil {
		return err
	}
	for _, m := range fam.GetMetric() {
		labels := make(map[string]string, len(m.GetLabel()))
		for _, lp := range m.GetLabel() {
			labels[lp.GetName()] = lp.GetValue()
		}
		c.WithLabels(labels).Add(m.GetCounter().GetValue())
	}
	return nil
}

// Collect implements Var.
func (c *CounterVar) Collect(collector Collector) {
	c.mtx.RLock()
	children := c.sortedChildren()
	c.mtx.RUnlock()

	for _, ch := range children {
		collector.CollectCounterEach(c, ch.key, ch.gauge.Value())
	}
}

// LabelsToKey canonicalizes a label set into a single deterministic string:
// keys are sorted, values quoted, pairs joined with commas. Identical label
// sets produce identical keys regardless of insertion order.
func LabelsToKey(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	names := make([]string, 0, len(labels))
	for name := range labels {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(strconv.Quote(labels[name]))
	}
	return b.String()
}

// ParseLabelKey is the inverse of LabelsToKey.
func ParseLabelKey(key string) (map[string]string, error) {
	labels := map[string]string{}
	for len(key) > 0 {
		eq := strings.IndexByte(key, '=')
		if eq < 0 {
			return nil, fmt.Errorf("malformed label key %q", key)
		}
		name := key[:eq]
		quoted, err := strconv.QuotedPrefix(key[eq+1:])
		if err != nil {
			return nil, fmt.Errorf("malformed label value in %q: %w", key, err)
		}
		value, err := strconv.Unquote(quoted)
		if err != nil {
			return nil, fmt.Errorf("malformed label value in %q: %w", key, err)
		}
		labels[name] = value

		key = key[eq+1+len(quoted):]
		if len(key) > 0 {
			if key[0] != ',' {
				return nil, fmt.Errorf("malformed label key %q", key)
			}
			key = key[1:]
		}
	}
	return labels, nil
}

// labelPairs converts a label map into sorted dto pairs.
func labelPairs(labels map[string]string) []*dto.LabelPair {
	pairs := make([]*dto.LabelPair, 0, len(labels))
	for name, value := range labels {
		pairs = append(pairs, &dto.LabelPair{
			Name:  proto.String(name),
			Value: proto.String(value),
		})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].GetName() < pairs[j].GetName() })
	return pairs
}
