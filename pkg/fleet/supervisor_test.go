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
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/carverauto/visafleet/pkg/discovery"
	"github.com/carverauto/visafleet/pkg/logger"
	"github.com/carverauto/visafleet/pkg/models"
	"github.com/carverauto/visafleet/pkg/visa"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const (
	dedicatedRes = "TCPIP::10.0.0.5::INSTR"
	usbRes       = "USB0::0x1234::0x5678::SN000::INSTR"
)

func testFleetConfig(t *testing.T) *models.FleetConfig {
	t.Helper()

	dir := t.TempDir()
	cfg := models.DefaultFleetConfig()
	cfg.SettleDelay = 0
	cfg.SessionTimeout = models.Duration(time.Second)
	cfg.WorkerStopTimeout = models.Duration(200 * time.Millisecond)
	cfg.DataDir = dir
	cfg.InventoryPath = filepath.Join(dir, "VISA_FLEET.json")
	cfg.TablesDir = filepath.Join(dir, "Tables")

	return cfg
}

type fleetMocks struct {
	rm     *visa.MockResourceManager
	usb    *MockUSBDiscoverer
	ip     *MockIPDiscoverer
	gw     *MockGatewayDiscoverer
	prober *MockProber
}

func newFleetMocks(ctrl *gomock.Controller) *fleetMocks {
	return &fleetMocks{
		rm:     visa.NewMockResourceManager(ctrl),
		usb:    NewMockUSBDiscoverer(ctrl),
		ip:     NewMockIPDiscoverer(ctrl),
		gw:     NewMockGatewayDiscoverer(ctrl),
		prober: NewMockProber(ctrl),
	}
}

func (f *fleetMocks) options() []SupervisorOption {
	return []SupervisorOption{
		WithUSBDiscoverer(f.usb),
		WithIPDiscoverer(f.ip),
		WithGatewayDiscoverer(f.gw),
		WithProber(f.prober),
	}
}

// expectDiscovery sets up one scan's discovery: no USB, one dedicated host,
// no gateways.
func (f *fleetMocks) expectDiscovery() {
	f.usb.EXPECT().Discover(gomock.Any()).Return(nil)
	f.ip.EXPECT().Discover(gomock.Any()).Return(discovery.IPResult{Dedicated: []string{"10.0.0.5"}})
	f.gw.EXPECT().Discover(gomock.Any(), gomock.Any()).Return(nil)
}

func widgetEntry(status models.DeviceStatus, resource string) models.InventoryEntry {
	return models.InventoryEntry{
		Identifier:     "SN123",
		Kind:           models.KindDedicated,
		ResourceString: resource,
		IPAddress:      "10.0.0.5",
		InterfacePort:  "Ethernet",
		GPIBAddress:    "Direct",
		Status:         status,
		Manufacturer:   "ACME",
		Model:          "WIDGET-9000",
		SerialNumber:   "SN123",
		Firmware:       "FW1.0",
		IDNString:      "ACME,WIDGET-9000,SN123,FW1.0",
	}
}

func statusOf(entries []models.InventoryEntry, id string) models.DeviceStatus {
	for _, e := range entries {
		if e.Identifier == id {
			return e.Status
		}
	}

	return ""
}

func TestSupervisorConnectsNewDevice(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := newFleetMocks(ctrl)
	rec := &recorder{}
	sess := visa.NewMockSession(ctrl)

	m.expectDiscovery()
	m.prober.EXPECT().
		Probe(gomock.Any(), []models.DiscoveryTarget{{Kind: models.KindDedicated, Resource: dedicatedRes}}).
		Return(map[string]models.InventoryEntry{"SN123": widgetEntry(models.StatusActive, dedicatedRes)})
	m.rm.EXPECT().Open(gomock.Any(), dedicatedRes, gomock.Any()).Return(sess, nil)
	sess.EXPECT().Close().Return(nil)

	sup := NewSupervisor(testFleetConfig(t), m.rm, rec, logger.NewTestLogger(), m.options()...)
	defer sup.Shutdown()

	n, err := sup.ScanAndManageFleet(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Eventually(t, func() bool {
		return statusOf(sup.Inventory(), "SN123") == models.StatusConnected
	}, waitFor, tick)

	p, ok := sup.Proxy("SN123")
	require.True(t, ok)
	assert.True(t, p.Connected())

	require.Eventually(t, func() bool {
		return statusOf(rec.LastInventory(), "SN123") == models.StatusConnected
	}, waitFor, tick)
	assert.Contains(t, rec.Statuses(), statusEvent{"SN123", models.ProxyConnected})
}

func TestSupervisorUnresponsiveDeviceGetsNoProxy(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := newFleetMocks(ctrl)
	rec := &recorder{}

	m.usb.EXPECT().Discover(gomock.Any()).Return([]models.DiscoveryTarget{{Kind: models.KindLocal, Resource: usbRes}})
	m.ip.EXPECT().Discover(gomock.Any()).Return(discovery.IPResult{})
	m.gw.EXPECT().Discover(gomock.Any(), gomock.Any()).Return(nil)
	m.prober.EXPECT().Probe(gomock.Any(), gomock.Any()).Return(map[string]models.InventoryEntry{
		"USB0_0x1234_0x5678_SN000_INSTR": {
			Identifier:     "USB0_0x1234_0x5678_SN000_INSTR",
			Kind:           models.KindLocal,
			ResourceString: usbRes,
			Status:         models.StatusUnresponsive,
		},
	})

	sup := NewSupervisor(testFleetConfig(t), m.rm, rec, logger.NewTestLogger(), m.options()...)
	defer sup.Shutdown()

	n, err := sup.ScanAndManageFleet(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, ok := sup.Proxy("USB0_0x1234_0x5678_SN000_INSTR")
	assert.False(t, ok)
	assert.Equal(t, models.StatusUnresponsive, statusOf(rec.LastInventory(), "USB0_0x1234_0x5678_SN000_INSTR"))
}

func TestSupervisorRemovesVanishedDevice(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := newFleetMocks(ctrl)
	rec := &recorder{}
	sess := visa.NewMockSession(ctrl)

	m.expectDiscovery()
	m.expectDiscovery()

	gomock.InOrder(
		m.prober.EXPECT().Probe(gomock.Any(), gomock.Any()).
			Return(map[string]models.InventoryEntry{"SN123": widgetEntry(models.StatusActive, dedicatedRes)}),
		m.prober.EXPECT().Probe(gomock.Any(), gomock.Any()).
			Return(map[string]models.InventoryEntry{}),
	)
	m.rm.EXPECT().Open(gomock.Any(), dedicatedRes, gomock.Any()).Return(sess, nil)
	sess.EXPECT().Close().Return(nil)

	sup := NewSupervisor(testFleetConfig(t), m.rm, rec, logger.NewTestLogger(), m.options()...)
	defer sup.Shutdown()

	_, err := sup.ScanAndManageFleet(context.Background())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		p, ok := sup.Proxy("SN123")
		return ok && p.Connected()
	}, waitFor, tick)

	n, err := sup.ScanAndManageFleet(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	_, ok := sup.Proxy("SN123")
	assert.False(t, ok)
	assert.Empty(t, sup.Inventory())
	assert.Empty(t, rec.LastInventory())
	assert.Contains(t, rec.Statuses(), statusEvent{"SN123", models.ProxyDisconnected})
}

func TestSupervisorDeactivatesSilentDevice(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := newFleetMocks(ctrl)
	sess := visa.NewMockSession(ctrl)

	m.expectDiscovery()
	m.expectDiscovery()

	gomock.InOrder(
		m.prober.EXPECT().Probe(gomock.Any(), gomock.Any()).
			Return(map[string]models.InventoryEntry{"SN123": widgetEntry(models.StatusActive, dedicatedRes)}),
		m.prober.EXPECT().Probe(gomock.Any(), gomock.Any()).
			Return(map[string]models.InventoryEntry{"SN123": widgetEntry(models.StatusUnresponsive, dedicatedRes)}),
	)
	m.rm.EXPECT().Open(gomock.Any(), dedicatedRes, gomock.Any()).Return(sess, nil)
	sess.EXPECT().Close().Return(nil)

	sup := NewSupervisor(testFleetConfig(t), m.rm, &recorder{}, logger.NewTestLogger(), m.options()...)
	defer sup.Shutdown()

	_, err := sup.ScanAndManageFleet(context.Background())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		p, ok := sup.Proxy("SN123")
		return ok && p.Connected()
	}, waitFor, tick)

	_, err = sup.ScanAndManageFleet(context.Background())
	require.NoError(t, err)

	_, ok := sup.Proxy("SN123")
	assert.False(t, ok)
	assert.Equal(t, models.StatusUnresponsive, statusOf(sup.Inventory(), "SN123"))
}

func TestSupervisorKeepsConnectedDeviceAndTracksMove(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := newFleetMocks(ctrl)
	sess := visa.NewMockSession(ctrl)

	const moved = "TCPIP::10.0.0.6::INSTR"

	m.expectDiscovery()
	m.expectDiscovery()

	gomock.InOrder(
		m.prober.EXPECT().Probe(gomock.Any(), gomock.Any()).
			Return(map[string]models.InventoryEntry{"SN123": widgetEntry(models.StatusActive, dedicatedRes)}),
		m.prober.EXPECT().Probe(gomock.Any(), gomock.Any()).
			Return(map[string]models.InventoryEntry{"SN123": widgetEntry(models.StatusActive, moved)}),
	)
	m.rm.EXPECT().Open(gomock.Any(), dedicatedRes, gomock.Any()).Return(sess, nil).Times(1)
	sess.EXPECT().Close().Return(nil)

	sup := NewSupervisor(testFleetConfig(t), m.rm, &recorder{}, logger.NewTestLogger(), m.options()...)
	defer sup.Shutdown()

	_, err := sup.ScanAndManageFleet(context.Background())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		p, ok := sup.Proxy("SN123")
		return ok && p.Connected()
	}, waitFor, tick)

	_, err = sup.ScanAndManageFleet(context.Background())
	require.NoError(t, err)

	p, ok := sup.Proxy("SN123")
	require.True(t, ok)
	assert.Equal(t, moved, p.Resource())
	assert.Equal(t, models.StatusConnected, statusOf(sup.Inventory(), "SN123"))
}

func TestSupervisorConnectFailureThenRetry(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := newFleetMocks(ctrl)
	rec := &recorder{}
	sess := visa.NewMockSession(ctrl)

	m.expectDiscovery()
	m.expectDiscovery()
	m.prober.EXPECT().Probe(gomock.Any(), gomock.Any()).
		Return(map[string]models.InventoryEntry{"SN123": widgetEntry(models.StatusActive, dedicatedRes)}).
		Times(2)

	gomock.InOrder(
		m.rm.EXPECT().Open(gomock.Any(), dedicatedRes, gomock.Any()).Return(nil, errors.New("link refused")),
		m.rm.EXPECT().Open(gomock.Any(), dedicatedRes, gomock.Any()).Return(sess, nil),
	)
	sess.EXPECT().Close().Return(nil)

	sup := NewSupervisor(testFleetConfig(t), m.rm, rec, logger.NewTestLogger(), m.options()...)
	defer sup.Shutdown()

	_, err := sup.ScanAndManageFleet(context.Background())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return statusOf(sup.Inventory(), "SN123") == models.StatusConnectionFailed
	}, waitFor, tick)

	errs := rec.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, CommandConnect, errs[0].Command)

	p, ok := sup.Proxy("SN123")
	require.True(t, ok)
	assert.False(t, p.Connected())

	_, err = sup.ScanAndManageFleet(context.Background())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return statusOf(sup.Inventory(), "SN123") == models.StatusConnected
	}, waitFor, tick)
}

func TestSupervisorDropsConcurrentScan(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := newFleetMocks(ctrl)

	entered := make(chan struct{})
	release := make(chan struct{})

	m.usb.EXPECT().Discover(gomock.Any()).Return(nil)
	m.ip.EXPECT().Discover(gomock.Any()).Return(discovery.IPResult{})
	m.gw.EXPECT().Discover(gomock.Any(), gomock.Any()).Return(nil)
	m.prober.EXPECT().Probe(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, []models.DiscoveryTarget) map[string]models.InventoryEntry {
			close(entered)
			<-release

			return map[string]models.InventoryEntry{}
		})

	sup := NewSupervisor(testFleetConfig(t), m.rm, &recorder{}, logger.NewTestLogger(), m.options()...)
	defer sup.Shutdown()

	done := make(chan error, 1)

	go func() {
		_, err := sup.ScanAndManageFleet(context.Background())
		done <- err
	}()

	<-entered

	n, err := sup.ScanAndManageFleet(context.Background())
	require.ErrorIs(t, err, ErrScanInProgress)
	assert.Zero(t, n)

	close(release)
	require.NoError(t, <-done)
}

func TestSupervisorHonorsScanToggles(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := newFleetMocks(ctrl)

	cfg := testFleetConfig(t)
	cfg.ScanUSB = false
	cfg.ScanIPDirect = false
	cfg.ScanGateways = false

	m.ip.EXPECT().Discover(gomock.Any()).Return(discovery.IPResult{
		Dedicated: []string{"10.0.0.5"},
		Gateways:  []string{"10.0.0.2"},
	})
	m.prober.EXPECT().Probe(gomock.Any(), gomock.Len(0)).Return(map[string]models.InventoryEntry{})

	sup := NewSupervisor(cfg, m.rm, &recorder{}, logger.NewTestLogger(), m.options()...)
	defer sup.Shutdown()

	n, err := sup.ScanAndManageFleet(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSupervisorSettleDelayHonorsCancel(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := newFleetMocks(ctrl)

	cfg := testFleetConfig(t)
	cfg.SettleDelay = models.Duration(time.Hour)

	m.usb.EXPECT().Discover(gomock.Any()).Return(nil)
	m.ip.EXPECT().Discover(gomock.Any()).Return(discovery.IPResult{})
	m.gw.EXPECT().Discover(gomock.Any(), gomock.Any()).Return(nil)

	sup := NewSupervisor(cfg, m.rm, &recorder{}, logger.NewTestLogger(), m.options()...)
	defer sup.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := sup.ScanAndManageFleet(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
