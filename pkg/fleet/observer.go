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

import "github.com/carverauto/visafleet/pkg/models"

// FleetObserver receives fleet events. Calls may arrive from any goroutine;
// slices passed in are copies owned by the observer.
type FleetObserver interface {
	OnInventoryUpdate(entries []models.InventoryEntry)
	OnDeviceResponse(identifier, response, command, correlationID string)
	OnDeviceError(identifier, message, command string)
	OnProxyStatus(identifier, status string)
}

// NopObserver ignores every event. Embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) OnInventoryUpdate([]models.InventoryEntry) {}
func (NopObserver) OnDeviceResponse(_, _, _, _ string) {}
func (NopObserver) OnDeviceError(_, _, _ string) {}
func (NopObserver) OnProxyStatus(_, _ string) {}

var _ FleetObserver = NopObserver{}

// observerSet fans events out to several observers.
type observerSet []FleetObserver

func (s observerSet) OnInventoryUpdate(entries []models.InventoryEntry) {
	for _, o := range s {
		o.OnInventoryUpdate(append([]models.InventoryEntry(nil), entries...))
	}
}

func (s observerSet) OnDeviceResponse(identifier, response, command, correlationID string) {
	for _, o := range s {
		o.OnDeviceResponse(identifier, response, command, correlationID)
	}
}

func (s observerSet) OnDeviceError(identifier, message, command string) {
	for _, o := range s {
		o.OnDeviceError(identifier, message, command)
	}
}

func (s observerSet) OnProxyStatus(identifier, status string) {
	for _, o := range s {
		o.OnProxyStatus(identifier, status)
	}
}
