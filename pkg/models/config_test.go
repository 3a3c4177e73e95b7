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

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDurationUnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Duration
		wantErr bool
	}{
		{name: "string", input: `"300ms"`, want: 300 * time.Millisecond},
		{name: "nanoseconds", input: `1000`, want: time.Microsecond},
		{name: "bad string", input: `"soon"`, wantErr: true},
		{name: "bool", input: `true`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Duration

			err := json.Unmarshal([]byte(tt.input), &d)
			if tt.wantErr {
				require.ErrorIs(t, err, errInvalidDuration)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Std())
		})
	}
}

func TestFleetConfigDefaults(t *testing.T) {
	cfg := DefaultFleetConfig()

	assert.True(t, cfg.ScanUSB)
	assert.Equal(t, 50, cfg.IPWorkers)
	assert.Equal(t, 300*time.Millisecond, cfg.PortTimeout.Std())
	assert.Equal(t, 111, cfg.VXI11Port)
	assert.Equal(t, 5025, cfg.SCPIPort)
	assert.Equal(t, "E5810", cfg.GatewayMarker)
	assert.Equal(t, filepath.Join("DATA", "VISA_FLEET.json"), cfg.InventoryPath)
	assert.Equal(t, 2*time.Second, cfg.WorkerStopTimeout.Std())
	require.NoError(t, cfg.Validate())
}

func TestFleetConfigFromJSON(t *testing.T) {
	raw := `{"scan_usb": false, "scan_ip_direct": true, "port_timeout": "150ms",
		"data_dir": "/var/lib/visa", "nats": {"enabled": true, "url": "nats://localhost:4222"}}`

	var cfg FleetConfig
	require.NoError(t, json.Unmarshal([]byte(raw), &cfg))
	cfg.ApplyDefaults()

	assert.False(t, cfg.ScanUSB)
	assert.False(t, cfg.ScanGateways)
	assert.Equal(t, 150*time.Millisecond, cfg.PortTimeout.Std())
	assert.Equal(t, filepath.Join("/var/lib/visa", "VISA_FLEET.json"), cfg.InventoryPath)
	assert.Equal(t, "visafleet", cfg.NATS.SubjectPrefix)
	assert.Equal(t, 1024, cfg.NATS.PublishQueue)
	require.NoError(t, cfg.Validate())
}

func TestFleetConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*FleetConfig)
	}{
		{name: "no workers", mutate: func(c *FleetConfig) { c.IPWorkers = -1 }},
		{name: "bad port", mutate: func(c *FleetConfig) { c.SCPIPort = 70000 }},
		{name: "negative delay", mutate: func(c *FleetConfig) { c.RetryDelay = Duration(-time.Second) }},
		{name: "nats without url", mutate: func(c *FleetConfig) { c.NATS.Enabled = true }},
		{name: "negative publish queue", mutate: func(c *FleetConfig) { c.NATS.PublishQueue = -1 }},
		{name: "no inventory path", mutate: func(c *FleetConfig) { c.InventoryPath = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultFleetConfig()
			tt.mutate(cfg)
			require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestDeviceStatusIsActive(t *testing.T) {
	assert.True(t, StatusActive.IsActive())
	assert.True(t, StatusConnected.IsActive())
	assert.False(t, StatusUnresponsive.IsActive())
	assert.False(t, DeviceStatus("").IsActive())
}
