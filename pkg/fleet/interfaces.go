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

//go:generate mockgen -destination=mock_fleet.go -package=fleet github.com/carverauto/visafleet/pkg/fleet USBDiscoverer,IPDiscoverer,GatewayDiscoverer,Prober,Bridge

// Package fleet supervises the instrument fleet: scanning, reconciliation,
// per-device command proxies and the manager facade.
package fleet

import (
	"context"

	"github.com/carverauto/visafleet/pkg/discovery"
	"github.com/carverauto/visafleet/pkg/inventory"
	"github.com/carverauto/visafleet/pkg/models"
)

// USBDiscoverer lists locally attached instruments.
type USBDiscoverer interface {
	Discover(ctx context.Context) []models.DiscoveryTarget
}

// IPDiscoverer sweeps the local subnet for instruments and gateways.
type IPDiscoverer interface {
	Discover(ctx context.Context) discovery.IPResult
}

// GatewayDiscoverer lists the instruments behind LAN-to-GPIB gateways.
type GatewayDiscoverer interface {
	Discover(ctx context.Context, gatewayIPs []string) []models.DiscoveryTarget
}

// Prober identifies targets and keys them by fleet identifier.
type Prober interface {
	Probe(ctx context.Context, targets []models.DiscoveryTarget) map[string]models.InventoryEntry
}

// Bridge forwards fleet state to an external bus.
type Bridge interface {
	PublishInventory(ctx context.Context, grouped inventory.Grouped)
	PublishScanStatus(ctx context.Context, phase string, status models.ScanStatus)
	Close() error
}
