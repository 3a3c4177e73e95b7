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

package visa

import (
	"context"
	"fmt"
	"io/fs"
	"path"

	"github.com/carverauto/visafleet/pkg/logger"
)

const (
	DefaultVXI11Port = 111
	DefaultSCPIPort  = 5025
)

// NetResourceManager opens TCPIP resources over VXI-11 or raw sockets and
// local USB instruments through the usbtmc kernel driver.
type NetResourceManager struct {
	vxi11Port int
	scpiPort  int
	sysfs     fs.FS
	devfs     fs.FS
	devRoot   string
	logger    logger.Logger
}

var _ ResourceManager = (*NetResourceManager)(nil)

// ManagerOption configures a NetResourceManager.
type ManagerOption func(*NetResourceManager)

// WithPorts overrides the VXI-11 portmapper and raw SCPI ports.
func WithPorts(vxi11Port, scpiPort int) ManagerOption {
	return func(m *NetResourceManager) {
		if vxi11Port > 0 {
			m.vxi11Port = vxi11Port
		}

		if scpiPort > 0 {
			m.scpiPort = scpiPort
		}
	}
}

// WithFilesystems replaces the sysfs and /dev views used for local bus enumeration.
func WithFilesystems(sysfs, devfs fs.FS, devRoot string) ManagerOption {
	return func(m *NetResourceManager) {
		m.sysfs = sysfs
		m.devfs = devfs
		m.devRoot = devRoot
	}
}

func NewResourceManager(log logger.Logger, opts ...ManagerOption) *NetResourceManager {
	m := &NetResourceManager{
		vxi11Port: DefaultVXI11Port,
		scpiPort:  DefaultSCPIPort,
		devRoot:   devRoot,
		logger:    log,
	}

	if sysfs, devfs, err := platformFS(); err == nil {
		m.sysfs, m.devfs = sysfs, devfs
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// ListResources returns local bus resources: usbtmc instruments followed by serial ports.
func (m *NetResourceManager) ListResources(_ context.Context) ([]string, error) {
	if m.sysfs == nil {
		return nil, ErrUSBTMCUnavailable
	}

	devices, err := listUSBTMC(m.sysfs)
	if err != nil {
		return nil, fmt.Errorf("list usbtmc: %w", err)
	}

	out := make([]string, 0, len(devices))
	for _, d := range devices {
		out = append(out, d.resource())
	}

	if m.devfs != nil {
		out = append(out, listSerialPorts(m.devfs, m.devRoot)...)
	}

	return out, nil
}

func (m *NetResourceManager) Open(ctx context.Context, resource string, opts Options) (Session, error) {
	r, err := ParseResource(resource)
	if err != nil {
		return nil, err
	}

	switch r.Interface {
	case InterfaceTCPIP:
		return m.openTCPIP(ctx, r, opts)
	case InterfaceUSB:
		return m.openUSB(r, opts)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedResource, resource)
	}
}

func (m *NetResourceManager) openTCPIP(ctx context.Context, r Resource, opts Options) (Session, error) {
	if r.Class == ClassSocket {
		port, err := r.Port()
		if err != nil {
			return nil, err
		}

		return dialSocket(ctx, r.Host(), port, opts)
	}

	device := r.Device()

	s, err := dialVXI11(ctx, r.Host(), m.vxi11Port, device, opts)
	if err == nil {
		return s, nil
	}

	// Only a directly attached LAN instrument can be reached on the raw port.
	if device != DefaultDevice {
		return nil, err
	}

	m.logger.Debug().
		Err(err).
		Str("resource", r.Raw).
		Int("port", m.scpiPort).
		Msg("VXI-11 unavailable, falling back to raw SCPI socket")

	sock, sockErr := dialSocket(ctx, r.Host(), m.scpiPort, opts)
	if sockErr != nil {
		return nil, fmt.Errorf("%w; %w", err, sockErr)
	}

	return sock, nil
}

func (m *NetResourceManager) openUSB(r Resource, opts Options) (Session, error) {
	if m.sysfs == nil {
		return nil, ErrUSBTMCUnavailable
	}

	devices, err := listUSBTMC(m.sysfs)
	if err != nil {
		return nil, err
	}

	for _, d := range devices {
		if d.matches(r) {
			return openUSBTMC(path.Join(m.devRoot, d.NodeName), opts)
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, r.Raw)
}
