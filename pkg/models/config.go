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
	"fmt"
	"path/filepath"
	"time"

	"github.com/carverauto/visafleet/pkg/logger"
)

// Duration is a time.Duration that unmarshals from either a Go duration
// string ("300ms") or a number of nanoseconds.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		// parse numeric as nanoseconds
		*d = Duration(time.Duration(value))
		return nil
	case string:
		dur, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%w: %w", errInvalidDuration, err)
		}

		*d = Duration(dur)

		return nil
	default:
		return errInvalidDuration
	}
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// NATSConfig configures the optional fleet event bridge.
type NATSConfig struct {
	Enabled       bool   `json:"enabled"`
	URL           string `json:"url"`
	Domain        string `json:"domain,omitempty"`
	StreamName    string `json:"stream_name"`
	SubjectPrefix string `json:"subject_prefix"`
	// Source is the CloudEvents source attribute stamped on published events.
	Source string     `json:"source"`
	TLS    *TLSConfig `json:"tls,omitempty"`
	// PublishQueue bounds the events waiting for JetStream; overflow is dropped.
	PublishQueue int `json:"publish_queue,omitempty"`
}

// TLSConfig holds the client certificate material for an mTLS NATS connection.
type TLSConfig struct {
	CertFile   string `json:"cert_file"`
	KeyFile    string `json:"key_file"`
	CAFile     string `json:"ca_file"`
	ServerName string `json:"server_name,omitempty"`
}

// FleetConfig is the explicit configuration handed to every fleet component.
type FleetConfig struct {
	ScanUSB      bool `json:"scan_usb"`
	ScanIPDirect bool `json:"scan_ip_direct"`
	ScanGateways bool `json:"scan_gateways"`

	IPWorkers            int      `json:"ip_workers"`
	PortTimeout          Duration `json:"port_timeout"`
	GatewayProbeTimeout  Duration `json:"gateway_probe_timeout"`
	GatewayScrapeTimeout Duration `json:"gateway_scrape_timeout"`
	VXI11Port            int      `json:"vxi11_port"`
	SCPIPort             int      `json:"scpi_port"`
	GatewayMarker        string   `json:"gateway_marker"`
	GatewayPagePath      string   `json:"gateway_page_path"`

	ProbeConcurrency int      `json:"probe_concurrency"`
	SessionTimeout   Duration `json:"session_timeout"`
	RetryDelay       Duration `json:"retry_delay"`
	SettleDelay      Duration `json:"settle_delay"`
	QueryDelay       Duration `json:"query_delay"`

	WorkerStopTimeout Duration `json:"worker_stop_timeout"`

	InventoryPath string   `json:"inventory_path"`
	DataDir       string   `json:"data_dir"`
	TablesDir     string   `json:"tables_dir"`
	ScanInterval  Duration `json:"scan_interval"`

	Logging *logger.Config `json:"logging"`
	NATS    NATSConfig     `json:"nats"`
}

// DefaultFleetConfig returns a configuration with every scan phase enabled.
func DefaultFleetConfig() *FleetConfig {
	cfg := &FleetConfig{
		ScanUSB:      true,
		ScanIPDirect: true,
		ScanGateways: true,
	}
	cfg.ApplyDefaults()

	return cfg
}

// ApplyDefaults fills unset fields with the standard values.
func (c *FleetConfig) ApplyDefaults() {
	setInt(&c.IPWorkers, 50)
	setDuration(&c.PortTimeout, 300*time.Millisecond)
	setDuration(&c.GatewayProbeTimeout, time.Second)
	setDuration(&c.GatewayScrapeTimeout, 10*time.Second)
	setInt(&c.VXI11Port, 111)
	setInt(&c.SCPIPort, 5025)
	setString(&c.GatewayMarker, "E5810")
	setString(&c.GatewayPagePath, "/html/instrumentspage.html")

	setInt(&c.ProbeConcurrency, 4)
	setDuration(&c.SessionTimeout, 5*time.Second)
	setDuration(&c.RetryDelay, 2*time.Second)
	setDuration(&c.SettleDelay, 2*time.Second)
	setDuration(&c.QueryDelay, 100*time.Millisecond)
	setDuration(&c.WorkerStopTimeout, 2*time.Second)

	setString(&c.DataDir, "DATA")
	setString(&c.InventoryPath, filepath.Join(c.DataDir, "VISA_FLEET.json"))
	setString(&c.TablesDir, filepath.Join(c.DataDir, "Tables"))

	setString(&c.NATS.StreamName, "VISA_FLEET")
	setString(&c.NATS.SubjectPrefix, "visafleet")
	setString(&c.NATS.Source, "visa-fleet")
	setInt(&c.NATS.PublishQueue, 1024)
}

// Validate ensures the configuration is usable.
func (c *FleetConfig) Validate() error {
	if c.IPWorkers <= 0 {
		return fmt.Errorf("%w: ip_workers must be positive", ErrInvalidConfig)
	}

	if c.ProbeConcurrency <= 0 {
		return fmt.Errorf("%w: probe_concurrency must be positive", ErrInvalidConfig)
	}

	if c.VXI11Port <= 0 || c.VXI11Port > 65535 || c.SCPIPort <= 0 || c.SCPIPort > 65535 {
		return fmt.Errorf("%w: ports must be in 1-65535", ErrInvalidConfig)
	}

	if c.PortTimeout <= 0 || c.SessionTimeout <= 0 || c.WorkerStopTimeout <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidConfig)
	}

	if c.RetryDelay < 0 || c.SettleDelay < 0 || c.ScanInterval < 0 {
		return fmt.Errorf("%w: delays must not be negative", ErrInvalidConfig)
	}

	if c.InventoryPath == "" || c.DataDir == "" {
		return fmt.Errorf("%w: inventory_path and data_dir are required", ErrInvalidConfig)
	}

	if c.NATS.PublishQueue < 0 {
		return fmt.Errorf("%w: nats.publish_queue must not be negative", ErrInvalidConfig)
	}

	if c.NATS.Enabled && c.NATS.URL == "" {
		return fmt.Errorf("%w: nats.url is required when nats is enabled", ErrInvalidConfig)
	}

	return nil
}

func setInt(v *int, def int) {
	if *v == 0 {
		*v = def
	}
}

func setString(v *string, def string) {
	if *v == "" {
		*v = def
	}
}

func setDuration(v *Duration, def time.Duration) {
	if *v == 0 {
		*v = Duration(def)
	}
}
