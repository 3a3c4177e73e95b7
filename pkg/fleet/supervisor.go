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
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/carverauto/visafleet/pkg/discovery"
	"github.com/carverauto/visafleet/pkg/logger"
	"github.com/carverauto/visafleet/pkg/models"
	"github.com/carverauto/visafleet/pkg/probe"
	"github.com/carverauto/visafleet/pkg/visa"
)

// Supervisor scans for instruments, reconciles proxies against the result
// and keeps the current inventory.
type Supervisor struct {
	cfg    *models.FleetConfig
	rm     visa.ResourceManager
	usb    USBDiscoverer
	ip     IPDiscoverer
	gw     GatewayDiscoverer
	prober Prober
	sink   FleetObserver
	logger logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	scanMu sync.Mutex
	emitMu sync.Mutex

	mu         sync.Mutex
	inventory  map[string]models.InventoryEntry
	proxies    map[string]*Proxy
	connecting map[string]bool
	closed     bool
}

// SupervisorOption customizes a Supervisor.
type SupervisorOption func(*Supervisor)

func WithUSBDiscoverer(d USBDiscoverer) SupervisorOption {
	return func(s *Supervisor) { s.usb = d }
}

func WithIPDiscoverer(d IPDiscoverer) SupervisorOption {
	return func(s *Supervisor) { s.ip = d }
}

func WithGatewayDiscoverer(d GatewayDiscoverer) SupervisorOption {
	return func(s *Supervisor) { s.gw = d }
}

func WithProber(p Prober) SupervisorOption {
	return func(s *Supervisor) { s.prober = p }
}

// NewSupervisor builds a supervisor reporting to sink. Discovery and probing
// default to the network and bus implementations driven by rm.
func NewSupervisor(
	cfg *models.FleetConfig, rm visa.ResourceManager, sink FleetObserver, log logger.Logger, opts ...SupervisorOption,
) *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Supervisor{
		cfg:        cfg,
		rm:         rm,
		sink:       sink,
		logger:     log,
		ctx:        ctx,
		cancel:     cancel,
		inventory:  make(map[string]models.InventoryEntry),
		proxies:    make(map[string]*Proxy),
		connecting: make(map[string]bool),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.usb == nil {
		s.usb = discovery.NewUSBScanner(rm, log)
	}

	if s.ip == nil {
		s.ip = discovery.NewIPScanner(cfg, log)
	}

	if s.gw == nil {
		s.gw = discovery.NewGatewayScanner(cfg, log, nil)
	}

	if s.prober == nil {
		s.prober = probe.NewProber(rm, cfg, log)
	}

	if s.sink == nil {
		s.sink = NopObserver{}
	}

	return s
}

// ScanAndManageFleet runs one discover, probe and reconcile cycle and returns
// the number of probed devices. A call made while a scan is running returns
// ErrScanInProgress immediately.
func (s *Supervisor) ScanAndManageFleet(ctx context.Context) (int, error) {
	if !s.scanMu.TryLock() {
		s.logger.Info().Msg("Scan already in progress, request dropped")
		return 0, ErrScanInProgress
	}

	defer s.scanMu.Unlock()

	start := time.Now()
	targets := s.discover(ctx)

	s.logger.Info().Int("targets", len(targets)).Msg("Discovery complete, settling before probe")

	if err := sleepCtx(ctx, s.cfg.SettleDelay.Std()); err != nil {
		return 0, err
	}

	probed := s.prober.Probe(ctx, targets)

	plan := Diff(s.proxyStates(), probed)
	s.apply(plan, probed)
	s.emit()

	s.logger.Info().
		Int("probed", len(probed)).
		Int("added", len(plan.Added)).
		Int("changed", len(plan.Changed)).
		Int("retry", len(plan.Retry)).
		Int("deactivated", len(plan.Deactivated)).
		Int("removed", len(plan.Removed)).
		Dur("duration", time.Since(start)).
		Msg("Fleet scan complete")

	return len(probed), nil
}

func (s *Supervisor) discover(ctx context.Context) []models.DiscoveryTarget {
	var targets []models.DiscoveryTarget

	if s.cfg.ScanUSB {
		targets = append(targets, s.usb.Discover(ctx)...)
	} else {
		s.logger.Info().Msg("USB scan disabled")
	}

	ips := s.ip.Discover(ctx)

	if s.cfg.ScanIPDirect {
		for _, ip := range ips.Dedicated {
			targets = append(targets, models.DiscoveryTarget{
				Kind:     models.KindDedicated,
				Resource: fmt.Sprintf("TCPIP::%s::INSTR", ip),
			})
		}
	} else {
		s.logger.Info().Msg("Direct IP scan disabled")
	}

	if s.cfg.ScanGateways {
		targets = append(targets, s.gw.Discover(ctx, ips.Gateways)...)
	} else {
		s.logger.Info().Msg("Gateway scan disabled")
	}

	return targets
}

func (s *Supervisor) proxyStates() map[string]ProxyState {
	s.mu.Lock()
	defer s.mu.Unlock()

	states := make(map[string]ProxyState, len(s.proxies))
	for id, p := range s.proxies {
		states[id] = ProxyState{
			Resource:   p.Resource(),
			Connected:  p.Connected(),
			Connecting: s.connecting[id],
		}
	}

	return states
}

// apply carries out a plan and replaces the inventory with probed.
func (s *Supervisor) apply(plan Plan, probed map[string]models.InventoryEntry) {
	var stopping []*Proxy

	s.mu.Lock()

	for _, id := range slices.Concat(plan.Deactivated, plan.Removed) {
		if p, ok := s.proxies[id]; ok {
			stopping = append(stopping, p)
		}

		delete(s.proxies, id)
		delete(s.connecting, id)
	}

	for _, id := range plan.Changed {
		if p, ok := s.proxies[id]; ok {
			p.SetResource(probed[id].ResourceString)
		}
	}

	if !s.closed {
		for _, id := range plan.Added {
			entry := probed[id]
			p := NewProxy(id, entry.ResourceString, s.sink, s.cfg.WorkerStopTimeout.Std(), s.logger)
			s.proxies[id] = p
			s.startConnectLocked(p, entry.ResourceString)
		}

		for _, id := range plan.Retry {
			if p, ok := s.proxies[id]; ok {
				s.startConnectLocked(p, probed[id].ResourceString)
			}
		}
	}

	s.inventory = make(map[string]models.InventoryEntry, len(probed))

	for id, entry := range probed {
		if p, ok := s.proxies[id]; ok && entry.Status.IsActive() && p.Connected() {
			entry.Status = models.StatusConnected
		}

		s.inventory[id] = entry
	}

	s.mu.Unlock()

	for _, p := range stopping {
		s.logger.Info().Str("device", p.ID()).Msg("Device gone, shutting down proxy")
		p.Shutdown()
	}
}

func (s *Supervisor) startConnectLocked(p *Proxy, resource string) {
	s.connecting[p.ID()] = true
	s.wg.Add(1)

	go s.connect(p, resource)
}

// connect opens the session for a proxy and records the outcome in the
// inventory.
func (s *Supervisor) connect(p *Proxy, resource string) {
	defer s.wg.Done()

	id := p.ID()

	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.SessionTimeout.Std())
	sess, err := s.rm.Open(ctx, resource, s.sessionOptions())
	cancel()

	status := models.StatusConnected

	if err != nil {
		status = models.StatusConnectionFailed

		s.logger.Warn().Err(err).Str("device", id).Str("resource", resource).Msg("Connect failed")
		s.sink.OnDeviceError(id, fmt.Sprintf("connect %s: %v", resource, err), CommandConnect)

		err = p.SetSession(nil)
	} else if err = p.SetSession(sess); err != nil {
		_ = sess.Close()
	}

	s.mu.Lock()
	owned := s.proxies[id] == p

	if owned {
		delete(s.connecting, id)
	}

	if entry, ok := s.inventory[id]; ok && owned && err == nil {
		entry.Status = status
		s.inventory[id] = entry
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Debug().Str("device", id).Msg("Proxy stopped while connecting")
		return
	}

	if status == models.StatusConnected {
		s.logger.Info().Str("device", id).Str("resource", resource).Msg("Device connected")
	}

	s.emit()
}

func (s *Supervisor) sessionOptions() visa.Options {
	opts := visa.DefaultOptions()
	opts.Timeout = s.cfg.SessionTimeout.Std()
	opts.QueryDelay = s.cfg.QueryDelay.Std()

	return opts
}

// emit hands a sorted copy of the inventory to the sink. Emissions are
// serialized so the sink never sees an older snapshot after a newer one.
func (s *Supervisor) emit() {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.sink.OnInventoryUpdate(s.Inventory())
}

// Inventory returns the current inventory sorted by identifier.
func (s *Supervisor) Inventory() []models.InventoryEntry {
	s.mu.Lock()
	entries := make([]models.InventoryEntry, 0, len(s.inventory))

	for _, e := range s.inventory {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	models.SortEntries(entries)

	return entries
}

// Proxy returns the proxy managing identifier.
func (s *Supervisor) Proxy(identifier string) (*Proxy, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.proxies[identifier]

	return p, ok
}

// Shutdown stops every proxy and waits for connect attempts to finish.
func (s *Supervisor) Shutdown() {
	s.cancel()

	s.mu.Lock()
	s.closed = true
	proxies := make([]*Proxy, 0, len(s.proxies))

	for id, p := range s.proxies {
		proxies = append(proxies, p)
		delete(s.proxies, id)
		delete(s.connecting, id)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup

	for _, p := range proxies {
		wg.Add(1)

		go func() {
			defer wg.Done()
			p.Shutdown()
		}()
	}

	wg.Wait()
	s.wg.Wait()

	s.logger.Info().Int("proxies", len(proxies)).Msg("Fleet supervisor stopped")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
