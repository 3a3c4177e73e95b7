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
	"sort"

	"github.com/carverauto/visafleet/pkg/models"
)

// ProxyState is what reconciliation needs to know about a live proxy.
type ProxyState struct {
	Resource   string
	Connected  bool
	Connecting bool
}

// Plan lists, by identifier, the effects one scan has on the fleet.
// Each list is sorted.
type Plan struct {
	// Added are active devices without a proxy.
	Added []string
	// Changed are active devices whose resource string moved.
	Changed []string
	// Retry are active devices whose proxy has no session and no connect
	// attempt in flight.
	Retry []string
	// Deactivated are devices still seen but no longer answering.
	Deactivated []string
	// Removed are proxies whose device was not seen at all.
	Removed []string
}

// Empty reports whether the plan has no effects.
func (p Plan) Empty() bool {
	return len(p.Added)+len(p.Changed)+len(p.Retry)+len(p.Deactivated)+len(p.Removed) == 0
}

// Diff compares live proxies with a fresh probe result. It has no side effects.
func Diff(current map[string]ProxyState, probed map[string]models.InventoryEntry) Plan {
	var plan Plan

	for id, entry := range probed {
		state, managed := current[id]

		if !entry.Status.IsActive() {
			if managed {
				plan.Deactivated = append(plan.Deactivated, id)
			}

			continue
		}

		if !managed {
			plan.Added = append(plan.Added, id)
			continue
		}

		if state.Resource != entry.ResourceString {
			plan.Changed = append(plan.Changed, id)
		}

		if !state.Connected && !state.Connecting {
			plan.Retry = append(plan.Retry, id)
		}
	}

	for id := range current {
		if _, seen := probed[id]; !seen {
			plan.Removed = append(plan.Removed, id)
		}
	}

	sort.Strings(plan.Added)
	sort.Strings(plan.Changed)
	sort.Strings(plan.Retry)
	sort.Strings(plan.Deactivated)
	sort.Strings(plan.Removed)

	return plan
}
