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

import "github.com/prometheus/procfs"

// ProcessVars samples process-level statistics from /proc and imports them
// into g through Dup, so they show up in the same Find walk as the
// worker-recorded variables. Call it once per export cycle to refresh the
// values. It returns an error on platforms without /proc.
func ProcessVars(g *Global) error {
	p, err := procfs.Self()
	if err != nil {
		return err
	}
	stat, err := p.Stat()
	if err != nil {
		return err
	}

	vars := map[string]Var{}
	set := func(name, help string, value float64) {
		gv := NewGauge(name, help)
		gv.Set(value)
		vars[name] = gv
	}

	set("process_cpu_seconds_total", "Total user and system CPU time spent in seconds.", stat.CPUTime())
	set("process_resident_memory_bytes", "Resident memory size in bytes.", float64(stat.ResidentMemory()))
	set("process_virtual_memory_bytes", "Virtual memory size in bytes.", float64(stat.VirtualMemory()))
	if startTime, err := stat.StartTime(); err == nil {
		set("process_start_time_seconds", "Start time of the process since unix epoch in seconds.", startTime)
	}
	if fds, err := p.FileDescriptorsLen(); err == nil {
		set("process_open_fds", "Number of open file descriptors.", float64(fds))
	}

	g.Dup(vars)
	return nil
}
