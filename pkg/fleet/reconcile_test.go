/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package fleet

import (
	"testing"

	"github.com/carverauto/visafleet/pkg/models"
	"github.com/stretchr/testify/assert"
)

func active(resource string) models.InventoryEntry {
	return models.InventoryEntry{ResourceString: resource, Status: models.StatusActive}
}

func unresponsive(resource string) models.InventoryEntry {
	return models.InventoryEntry{ResourceString: resource, Status: models.StatusUnresponsive}
}

func TestDiff(t *testing.T) {
	const (
		resA = "TCPIP::10.0.0.5::INSTR"
		resB = "TCPIP::10.0.0.6::INSTR"
	)

	tests := []struct {
		name    string
		current map[string]ProxyState
		probed  map[string]models.InventoryEntry
		want    Plan
	}{
		{
			name:   "new active device is added",
			probed: map[string]models.InventoryEntry{"A": active(resA)},
			want:   Plan{Added: []string{"A"}},
		},
		{
			name:   "new unresponsive device gets no proxy",
			probed: map[string]models.InventoryEntry{"U": unresponsive(resA)},
			want:   Plan{},
		},
		{
			name:    "connected device unchanged",
			current: map[string]ProxyState{"A": {Resource: resA, Connected: true}},
			probed:  map[string]models.InventoryEntry{"A": active(resA)},
			want:    Plan{},
		},
		{
			name:    "moved device is changed without reconnect",
			current: map[string]ProxyState{"A": {Resource: resA, Connected: true}},
			probed:  map[string]models.InventoryEntry{"A": active(resB)},
			want:    Plan{Changed: []string{"A"}},
		},
		{
			name:    "proxy without session is retried",
			current: map[string]ProxyState{"A": {Resource: resA}},
			probed:  map[string]models.InventoryEntry{"A": active(resA)},
			want:    Plan{Retry: []string{"A"}},
		},
		{
			name:    "connect in flight is not retried",
			current: map[string]ProxyState{"A": {Resource: resA, Connecting: true}},
			probed:  map[string]models.InventoryEntry{"A": active(resA)},
			want:    Plan{},
		},
		{
			name:    "device stops answering",
			current: map[string]ProxyState{"A": {Resource: resA, Connected: true}},
			probed:  map[string]models.InventoryEntry{"A": unresponsive(resA)},
			want:    Plan{Deactivated: []string{"A"}},
		},
		{
			name:    "device disappears",
			current: map[string]ProxyState{"A": {Resource: resA, Connected: true}},
			probed:  map[string]models.InventoryEntry{},
			want:    Plan{Removed: []string{"A"}},
		},
		{
			name: "mixed plan is sorted",
			current: map[string]ProxyState{
				"Z": {Resource: resA, Connected: true},
				"Y": {Resource: resA, Connected: true},
				"K": {Resource: resA, Connected: true},
			},
			probed: map[string]models.InventoryEntry{
				"K": unresponsive(resA),
				"C": active(resA),
				"B": active(resB),
			},
			want: Plan{Added: []string{"B", "C"}, Deactivated: []string{"K"}, Removed: []string{"Y", "Z"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Diff(tt.current, tt.probed)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.Empty(), got.Empty())
		})
	}
}

func TestDiffDoesNotMutateInputs(t *testing.T) {
	current := map[string]ProxyState{"A": {Resource: "r"}}
	probed := map[string]models.InventoryEntry{"B": active("r")}

	_ = Diff(current, probed)

	assert.Len(t, current, 1)
	assert.Len(t, probed, 1)
}
