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
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterLabelOrderIndependence(t *testing.T) {
	c := NewCounter("requests_total", "Served requests.")

	a := c.WithLabels(map[string]string{"method": "GET", "code": "200"})
	b := c.WithLabels(map[string]string{"code": "200", "method": "GET"})
	assert.Same(t, a, b)

	a.Inc()
	a.Inc()
	assert.Equal(t, 2.0, b.Value())
}

func TestCounterDistinctLabelSets(t *testing.T) {
	c := NewCounter("requests_total", "")

	get := c.WithLabels(map[string]string{"method": "GET"})
	post := c.WithLabels(map[string]string{"method": "POST"})
	assert.NotSame(t, get, post)

	get.Add(3)
	post.Add(2)
	assert.Equal(t, 3.0, get.Value())
	assert.Equal(t, 2.0, post.Value())
}

func TestLabelKeyRoundTrip(t *testing.T) {
	cases := []map[string]string{
		{},
		{"method": "GET"},
		{"method": "GET", "code": "200"},
		{"path": `/a,b`, "q": `say "hi"`},
		{"empty": ""},
	}
	for _, labels := range cases {
		key := LabelsToKey(labels)
		got, err := ParseLabelKey(key)
		require.NoError(t, err, "key %q", key)
		assert.Equal(t, labels, got, "key %q", key)
	}
}

func TestLabelKeyDeterministic(t *testing.T) {
	assert.Equal(t,
		`code="200",method="GET"`,
		LabelsToKey(map[string]string{"method": "GET", "code": "200"}),
	)
}

func TestParseLabelKeyMalformed(t *testing.T) {
	for _, key := range []string{"method", `method=GET`, `method="GET"x`} {
		_, err := ParseLabelKey(key)
		assert.Error(t, err, "key %q", key)
	}
}

func TestCounterReduceUnion(t *testing.T) {
	a := NewCounter("requests_total", "")
	a.WithLabels(map[string]string{"method": "GET"}).Add(3)

	b := NewCounter("requests_total", "")
	b.WithLabels(map[string]string{"method": "POST"}).Add(2)
	b.WithLabels(map[string]string{"method": "GET"}).Add(1)

	require.NoError(t, a.Reduce(mustSnapshot(b)))

	assert.Equal(t, 4.0, a.WithLabels(map[string]string{"method": "GET"}).Value())
	assert.Equal(t, 2.0, a.WithLabels(map[string]string{"method": "POST"}).Value())
}

func TestCounterCreate(t *testing.T) {
	c := NewCounter("requests_total", "")
	c.WithLabels(map[string]string{"method": "GET"}).Add(3)

	zero := c.Create(false).(*CounterVar)
	rec := newRecordingCollector()
	zero.Collect(rec)
	assert.Empty(t, rec.counters)

	copied := c.Create(true).(*CounterVar)
	assert.Equal(t, 3.0, copied.WithLabels(map[string]string{"method": "GET"}).Value())

	copied.WithLabels(map[string]string{"method": "GET"}).Inc()
	assert.Equal(t, 3.0, c.WithLabels(map[string]string{"method": "GET"}).Value())
}

func TestCounterCollectAscending(t *testing.T) {
	c := NewCounter("requests_total", "")
	c.WithLabels(map[string]string{"method": "POST"}).Add(2)
	c.WithLabels(map[string]string{"method": "GET"}).Add(3)
	c.WithLabels(map[string]string{"method": "DELETE"}).Add(1)

	rec := newRecordingCollector()
	c.Collect(rec)

	assert.Equal(t, map[string]float64{
		`method="DELETE"`: 1,
		`method="GET"`:    3,
		`method="POST"`:   2,
	}, rec.counters["requests_total"])
	assert.True(t, sort.StringsAreSorted(rec.counterOrder))
}
