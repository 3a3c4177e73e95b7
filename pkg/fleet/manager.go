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
	"sync"
	"sync/atomic"
	"time"

	"github.com/carverauto/visafleet/pkg/inventory"
	"github.com/carverauto/visafleet/pkg/logger"
	"github.com/carverauto/visafleet/pkg/models"
	"github.com/carverauto/visafleet/pkg/visa"
)

// Manager is the public face of the fleet: it triggers scans, routes
// commands to proxies, persists the inventory and fans events out.
type Manager struct {
	cfg       *models.FleetConfig
	sup       *Supervisor
	store     *inventory.Store
	observers observerSet
	bridge    Bridge
	logger    logger.Logger
	supOpts   []SupervisorOption

	running atomic.Bool
	stopped atomic.Bool
	scanned *signal

	mu      sync.RWMutex
	current []models.InventoryEntry
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithObserver adds an event observer. Observers are fixed at construction.
func WithObserver(o FleetObserver) ManagerOption {
	return func(m *Manager) { m.observers = append(m.observers, o) }
}

// WithBridge publishes inventory snapshots and scan status through b.
func WithBridge(b Bridge) ManagerOption {
	return func(m *Manager) { m.bridge = b }
}

// WithStore replaces the inventory store built from the config.
func WithStore(s *inventory.Store) ManagerOption {
	return func(m *Manager) { m.store = s }
}

// WithSupervisorOptions passes options through to the supervisor.
func WithSupervisorOptions(opts ...SupervisorOption) ManagerOption {
	return func(m *Manager) { m.supOpts = append(m.supOpts, opts...) }
}

// NewManager builds the manager and loads the persisted inventory as the
// initial current inventory.
func NewManager(cfg *models.FleetConfig, rm visa.ResourceManager, log logger.Logger, opts ...ManagerOption) (*Manager, error) {
	m := &Manager{
		cfg:     cfg,
		logger:  log,
		scanned: newSignal(),
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.store == nil {
		store, err := inventory.NewStore(cfg, log)
		if err != nil {
			return nil, err
		}

		m.store = store
	}

	loaded, err := m.store.Load()
	if err != nil {
		m.logger.Error().Err(err).Str("path", m.store.Path()).Msg("Cannot load persisted inventory, starting empty")

		loaded = []models.InventoryEntry{}
	}

	m.current = loaded
	m.sup = NewSupervisor(cfg, rm, managerSink{m}, log, m.supOpts...)

	m.logger.Info().Int("devices", len(loaded)).Msg("Fleet manager initialized")

	return m, nil
}

func (m *Manager) Start() {
	if m.running.CompareAndSwap(false, true) {
		m.logger.Info().Msg("Fleet manager started")
	}
}

// Stop shuts down every proxy and closes the bridge. It returns early with
// the context error if ctx ends first.
func (m *Manager) Stop(ctx context.Context) error {
	if !m.stopped.CompareAndSwap(false, true) {
		return nil
	}

	m.running.Store(false)

	done := make(chan struct{})

	go func() {
		defer close(done)

		m.sup.Shutdown()

		if m.bridge != nil {
			if err := m.bridge.Close(); err != nil {
				m.logger.Warn().Err(err).Msg("Error closing bridge")
			}
		}
	}()

	select {
	case <-done:
		m.logger.Info().Msg("Fleet manager stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TriggerScan runs one fleet scan and returns the number of probed devices.
// A scan requested while one is running returns ErrScanInProgress and leaves
// the completion signal to the running scan.
func (m *Manager) TriggerScan(ctx context.Context) (int, error) {
	if m.stopped.Load() {
		return 0, ErrManagerStopped
	}

	m.scanned.clear()
	m.publishScanStatus(ctx, models.ScanPhaseStart, models.ScanStatus{Status: models.ScanStatusScanning})

	n, err := m.sup.ScanAndManageFleet(ctx)
	if errors.Is(err, ErrScanInProgress) {
		return 0, err
	}

	if err != nil {
		m.logger.Warn().Err(err).Msg("Fleet scan aborted")
	}

	m.publishScanStatus(ctx, models.ScanPhaseComplete, models.ScanStatus{Status: models.ScanStatusReady, NumDevices: &n})
	m.scanned.set()

	return n, err
}

// WaitForInitialScan blocks until a scan completes or timeout elapses and
// reports which happened. A non-positive timeout waits indefinitely.
func (m *Manager) WaitForInitialScan(timeout time.Duration) bool {
	ch := m.scanned.wait()

	if timeout <= 0 {
		<-ch
		return true
	}

	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case <-ch:
		return true
	case <-t.C:
		m.logger.Warn().Dur("timeout", timeout).Msg("Timed out waiting for initial scan")
		return false
	}
}

// RunPeriodicScans rescans every interval until ctx ends. A non-positive
// interval disables it.
func (m *Manager) RunPeriodicScans(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := m.TriggerScan(ctx)

			switch {
			case errors.Is(err, ErrScanInProgress):
				m.logger.Debug().Msg("Periodic scan skipped, scan in progress")
			case errors.Is(err, ErrManagerStopped):
				return
			case err != nil:
				m.logger.Warn().Err(err).Msg("Periodic scan failed")
			default:
				m.logger.Debug().Int("devices", n).Msg("Periodic scan complete")
			}
		}
	}
}

// EnqueueCommand routes a command to the device's proxy. Unknown devices
// are reported through the error callback.
func (m *Manager) EnqueueCommand(identifier, command string, query bool, correlationID string) {
	p, ok := m.sup.Proxy(identifier)
	if !ok {
		m.observers.OnDeviceError(identifier, MsgDeviceNotFound, command)
		return
	}

	p.EnqueueCommand(command, query, correlationID)
}

// HandleCommand adapts EnqueueCommand to bus requests.
func (m *Manager) HandleCommand(req models.CommandRequest) {
	m.EnqueueCommand(req.Identifier, req.Command, req.Query, req.CorrelationID)
}

// CurrentInventory returns a copy of the latest inventory.
func (m *Manager) CurrentInventory() []models.InventoryEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]models.InventoryEntry{}, m.current...)
}

// ExportTables writes the CSV tables of the persisted inventory.
func (m *Manager) ExportTables() (int, error) {
	return m.store.ExportTables("")
}

func (m *Manager) publishScanStatus(ctx context.Context, phase string, status models.ScanStatus) {
	if m.bridge == nil {
		return
	}

	m.bridge.PublishScanStatus(ctx, phase, status)
}

// managerSink receives supervisor and proxy events on the manager's behalf.
type managerSink struct {
	m *Manager
}

func (s managerSink) OnInventoryUpdate(entries []models.InventoryEntry) {
	m := s.m

	augmented := make([]models.InventoryEntry, len(entries))
	for i, e := range entries {
		augmented[i] = m.store.Augment(e)
	}

	m.mu.Lock()
	m.current = augmented
	m.mu.Unlock()

	if err := m.store.Save(augmented); err != nil {
		m.logger.Error().Err(err).Msg("Failed to persist inventory")
	}

	m.observers.OnInventoryUpdate(augmented)

	if m.bridge != nil {
		m.bridge.PublishInventory(context.Background(), inventory.Group(augmented))
	}
}

func (s managerSink) OnDeviceResponse(identifier, response, command, correlationID string) {
	if _, err := s.m.store.SaveQueryResponse(identifier, response, command, correlationID); err != nil {
		s.m.logger.Warn().Err(err).Str("device", identifier).Msg("Failed to save query response")
	}

	s.m.observers.OnDeviceResponse(identifier, response, command, correlationID)
}

func (s managerSink) OnDeviceError(identifier, message, command string) {
	s.m.logger.Warn().Str("device", identifier).Str("command", command).Msg(message)
	s.m.observers.OnDeviceError(identifier, message, command)
}

func (s managerSink) OnProxyStatus(identifier, status string) {
	s.m.observers.OnProxyStatus(identifier, status)
}

// signal is a resettable one-shot completion flag.
type signal struct {
	mu   sync.Mutex
	ch   chan struct{}
	done bool
}

func newSignal() *signal {
	return &signal{ch: make(chan struct{})}
}

func (s *signal) set() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.done {
		close(s.ch)
		s.done = true
	}
}

func (s *signal) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		s.ch = make(chan struct{})
		s.done = false
	}
}

func (s *signal) wait() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.ch
}
