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

package models

import "sort"

// DiscoveryKind tells how a resource was found.
type DiscoveryKind string

const (
	KindLocal     DiscoveryKind = "LOCAL"
	KindDedicated DiscoveryKind = "DEDICATED"
	KindGateway   DiscoveryKind = "GATEWAY"
)

// DeviceStatus is the lifecycle status of an inventory entry.
type DeviceStatus string

const (
	StatusActive           DeviceStatus = "Active"
	StatusUnresponsive     DeviceStatus = "Unresponsive"
	StatusConnected        DeviceStatus = "CONNECTED"
	StatusConnectionFailed DeviceStatus = "CONNECTION_FAILED"
)

// IsActive reports whether the entry answered identification in the
// latest scan. A connected or failed-to-connect entry still counts.
func (s DeviceStatus) IsActive() bool {
	switch s {
	case StatusActive, StatusConnected, StatusConnectionFailed:
		return true
	case StatusUnresponsive:
		return false
	default:
		return false
	}
}

// ProxyStatus values reported through the status callback.
const (
	ProxyConnected    = "CONNECTED"
	ProxyDisconnected = "DISCONNECTED"
)

const (
	Unknown = "Unknown"
	// NotApplicable marks a missing GPIB address.
	NotApplicable = "N/A"
)

// DiscoveryTarget is a resource found during one scan.
type DiscoveryTarget struct {
	Kind     DiscoveryKind `json:"kind"`
	Resource string        `json:"resource"`
}

// InventoryEntry is one instrument in the fleet inventory.
type InventoryEntry struct {
	Identifier          string        `json:"identifier"`
	Kind                DiscoveryKind `json:"type"`
	ResourceString      string        `json:"resource_string"`
	IPAddress           string        `json:"ip_address"`
	InterfacePort       string        `json:"interface_port"`
	GPIBAddress         string        `json:"gpib_address"`
	Status              DeviceStatus  `json:"status"`
	Manufacturer        string        `json:"manufacturer"`
	Model               string        `json:"model"`
	SerialNumber        string        `json:"serial_number"`
	Firmware            string        `json:"firmware"`
	IDNString           string        `json:"idn_string"`
	DeviceType          string        `json:"device_type"`
	Notes               string        `json:"notes"`
	Allocated           bool          `json:"allocated"`
	ConnectionTimestamp string        `json:"connection_timestamp"`
}

// SortEntries orders entries by identifier.
func SortEntries(entries []InventoryEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Identifier < entries[j].Identifier
	})
}

// Command is a unit of work queued on a device proxy.
type Command struct {
	Text          string
	IsQuery       bool
	CorrelationID string
}

// CommandRequest is an inbound command addressed to a fleet identifier.
type CommandRequest struct {
	Identifier    string `json:"identifier"`
	Command       string `json:"command"`
	Query         bool   `json:"query"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// ScanStatus is published when a scan starts and completes.
type ScanStatus struct {
	Status     string `json:"status"`
	NumDevices *int   `json:"num_devices,omitempty"`
}

const (
	ScanStatusScanning = "scanning"
	ScanStatusReady    = "ready"
)

// Scan phases carried on the fleet status subjects.
const (
	ScanPhaseStart    = "start"
	ScanPhaseComplete = "complete"
)
