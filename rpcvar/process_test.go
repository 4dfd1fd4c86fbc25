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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessVars(t *testing.T) {
	g := NewGlobal()
	if err := ProcessVars(g); err != nil {
		t.Skipf("no /proc on this platform: %v", err)
	}

	v, err := g.Find("process_cpu_seconds_total")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.GreaterOrEqual(t, v.(*GaugeVar).Value(), 0.0)

	v, err = g.Find("process_resident_memory_bytes")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Greater(t, v.(*GaugeVar).Value(), 0.0)
}
