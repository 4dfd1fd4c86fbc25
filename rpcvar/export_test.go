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
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTestGlobal(t *testing.T) (*Global, *Local) {
	t.Helper()
	g := NewGlobal()
	l := NewLocal(g)
	f := NewFactory(l)

	gv, err := f.NewGauge("connections", "Open connections.")
	require.NoError(t, err)
	gv.Set(4)

	c, err := f.NewCounter("requests_total", "Served requests.")
	require.NoError(t, err)
	c.WithLabels(map[string]string{"method": "GET"}).Add(3)
	c.WithLabels(map[string]string{"method": "POST"}).Add(2)

	h, err := f.NewHistogram("request_seconds", "Request latency.", []float64{0.1, 0.5, 1})
	require.NoError(t, err)
	for _, v := range []float64{0.05, 0.2, 0.6, 5} {
		h.Observe(v)
	}

	return g, l
}

func TestTextExporter(t *testing.T) {
	g, l := buildTestGlobal(t)
	defer l.Close()

	e := NewTextExporter()
	require.NoError(t, g.Export(e))

	var buf bytes.Buffer
	require.NoError(t, e.Write(&buf))
	out := buf.String()

	assert.Contains(t, out, "# TYPE connections gauge")
	assert.Contains(t, out, "# HELP connections Open connections.")
	assert.Contains(t, out, "connections 4")

	assert.Contains(t, out, "# TYPE requests_total counter")
	assert.Contains(t, out, `requests_total{method="GET"} 3`)
	assert.Contains(t, out, `requests_total{method="POST"} 2`)

	assert.Contains(t, out, "# TYPE request_seconds histogram")
	assert.Contains(t, out, `request_seconds_bucket{le="0.1"} 1`)
	assert.Contains(t, out, `request_seconds_bucket{le="0.5"} 2`)
	assert.Contains(t, out, `request_seconds_bucket{le="1"} 3`)
	assert.Contains(t, out, `request_seconds_bucket{le="+Inf"} 4`)
	assert.Contains(t, out, "request_seconds_count 4")
}

func TestTextExporterSummary(t *testing.T) {
	g := NewGlobal()
	l := NewLocal(g)
	defer l.Close()

	s, err := NewFactory(l).NewSummary("rpc_latency", "RPC latency.", SummaryOpts{
		Objectives: map[float64]float64{0.5: 0.05},
	})
	require.NoError(t, err)
	for i := 1; i <= 100; i++ {
		s.Observe(float64(i))
	}

	e := NewTextExporter()
	require.NoError(t, g.Export(e))

	var buf bytes.Buffer
	require.NoError(t, e.Write(&buf))
	out := buf.String()

	assert.Contains(t, out, "# TYPE rpc_latency summary")
	assert.Contains(t, out, `rpc_latency{quantile="0.5"}`)
	assert.Contains(t, out, "rpc_latency_sum 5050")
	assert.Contains(t, out, "rpc_latency_count 100")
}

func TestJSONExporter(t *testing.T) {
	g, l := buildTestGlobal(t)
	defer l.Close()

	e := NewJSONExporter()
	require.NoError(t, g.Export(e))

	raw, err := e.Bytes()
	require.NoError(t, err)

	var vars []map[string]any
	require.NoError(t, json.Unmarshal(raw, &vars))
	require.Len(t, vars, 3)

	byName := map[string]map[string]any{}
	for _, v := range vars {
		byName[v["name"].(string)] = v
	}

	assert.Equal(t, "gauge", byName["connections"]["type"])
	assert.Equal(t, 4.0, byName["connections"]["value"])

	series := byName["requests_total"]["series"].([]any)
	assert.Len(t, series, 2)

	hist := byName["request_seconds"]
	assert.Equal(t, "histogram", hist["type"])
	assert.Equal(t, 4.0, hist["count"])
	buckets := hist["buckets"].([]any)
	require.Len(t, buckets, 3)
	first := buckets[0].(map[string]any)
	assert.Equal(t, 0.1, first["le"])
	assert.Equal(t, 1.0, first["count"])
}

func TestJSONExporterOmitsEmptyWindowQuantiles(t *testing.T) {
	g := NewGlobal()
	l := NewLocal(g)
	defer l.Close()

	_, err := NewFactory(l).NewSummary("rpc_latency", "", SummaryOpts{
		Objectives: map[float64]float64{0.5: 0.05},
	})
	require.NoError(t, err)

	e := NewJSONExporter()
	require.NoError(t, g.Export(e))

	raw, err := e.Bytes()
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(raw), "NaN"))

	var vars []map[string]any
	require.NoError(t, json.Unmarshal(raw, &vars))
	require.Len(t, vars, 1)
	_, hasQuantiles := vars[0]["quantiles"]
	assert.False(t, hasQuantiles)
}
