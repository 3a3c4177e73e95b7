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

import "time"

// CloudEvent represents a CloudEvents v1.0 compliant event.
type CloudEvent struct {
	SpecVersion     string      `json:"specversion"`
	ID              string      `json:"id"`
	Source          string      `json:"source"`
	Type            string      `json:"type"`
	DataContentType string      `json:"datacontenttype"`
	Subject         string      `json:"subject,omitempty"`
	Time            *time.Time  `json:"time,omitempty"`
	Data            interface{} `json:"data,omitempty"`
}

// Event types emitted by the fleet bridge.
const (
	EventTypeInventorySnapshot = "com.visafleet.inventory.snapshot"
	EventTypeDeviceInventory   = "com.visafleet.inventory.device"
	EventTypeScanStatus        = "com.visafleet.status.scan"
	EventTypeDeviceResponse    = "com.visafleet.device.response"
	EventTypeDeviceError       = "com.visafleet.device.error"
	EventTypeDeviceStatus      = "com.visafleet.device.status"
)

// DeviceResponse is the payload of a device response event.
type DeviceResponse struct {
	Identifier    string `json:"identifier"`
	Response      string `json:"response"`
	Command       string `json:"command"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// DeviceError is the payload of a device error event.
type DeviceError struct {
	Identifier string `json:"identifier"`
	Message    string `json:"message"`
	Command    string `json:"command"`
}

// DeviceStatusChange is the payload of a proxy status event.
type DeviceStatusChange struct {
	Identifier string `json:"identifier"`
	Status     string `json:"status"`
}
