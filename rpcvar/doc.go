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

// Package rpcvar implements the metric variables of the RPC runtime: gauges,
// counters, histograms and summaries that request-handling code records into
// on the hot path, and that an exporter reads back as one aggregated snapshot.
//
// The central design is per-worker sharding. Each worker goroutine owns a
// Local registry and records into its own variable instances with plain
// atomic operations, so there is no cross-worker contention while serving
// requests. A Global registry keeps track of every live Local; Find walks all
// of them and folds the per-worker values into a single freshly built
// aggregate, which is then handed to a Collector for export. The aggregate is
// a best-effort snapshot, not a linearizable point-in-time view.
//
// A typical worker sets itself up once and records cheaply afterwards:
//
//	local := rpcvar.NewLocal(global)
//	defer local.Close()
//
//	f := rpcvar.NewFactory(local)
//	reqs, _ := f.NewCounter("requests_total", "Served requests.")
//	lat, _ := f.NewHistogram("request_seconds", "Request latency.", nil)
//
//	reqs.WithLabels(map[string]string{"method": "GET"}).Inc()
//	lat.Observe(0.042)
//
// Close must be called when the worker exits; it removes the Local from the
// Global walk before the registry becomes unreachable. An exporter aggregates
// with Find (or Export) and renders the result through a Collector such as
// TextExporter or JSONExporter.
package rpcvar
