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

package discovery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/carverauto/visafleet/pkg/logger"
	"github.com/carverauto/visafleet/pkg/models"
	"github.com/carverauto/visafleet/pkg/scan"
	"golang.org/x/sync/errgroup"
)

const (
	loopbackIP      = "127.0.0.1"
	routeProbeAddr  = "10.255.255.255:1"
	maxPageBytes    = 256 * 1024
	hostClassNone   = hostClass(0)
	hostClassDirect = hostClass(1)
	hostClassGW     = hostClass(2)
)

type hostClass int

// IPResult holds the classified hosts of one subnet sweep.
type IPResult struct {
	Dedicated []string
	Gateways  []string
}

// PageURLFunc builds the gateway instrument page URL for a host.
type PageURLFunc func(host string) string

// IPScanner sweeps the local /24 for instruments and gateways.
type IPScanner struct {
	ports     scan.PortChecker
	client    *http.Client
	workers   int
	vxi11Port int
	scpiPort  int
	marker    []byte
	pageURL   PageURLFunc
	localIP   func() string
	logger    logger.Logger
}

// IPOption customizes an IPScanner.
type IPOption func(*IPScanner)

// WithPortChecker replaces the TCP port checker.
func WithPortChecker(pc scan.PortChecker) IPOption {
	return func(s *IPScanner) { s.ports = pc }
}

// WithPageURL replaces how the gateway page URL is derived from a host.
func WithPageURL(fn PageURLFunc) IPOption {
	return func(s *IPScanner) { s.pageURL = fn }
}

// WithLocalIP replaces local address detection.
func WithLocalIP(fn func() string) IPOption {
	return func(s *IPScanner) { s.localIP = fn }
}

func NewIPScanner(cfg *models.FleetConfig, log logger.Logger, opts ...IPOption) *IPScanner {
	pagePath := cfg.GatewayPagePath

	s := &IPScanner{
		ports:     scan.NewTCPSweeper(cfg.PortTimeout.Std(), log),
		client:    &http.Client{Timeout: cfg.GatewayProbeTimeout.Std()},
		workers:   cfg.IPWorkers,
		vxi11Port: cfg.VXI11Port,
		scpiPort:  cfg.SCPIPort,
		marker:    []byte(cfg.GatewayMarker),
		pageURL:   func(host string) string { return fmt.Sprintf("http://%s%s", host, pagePath) },
		localIP:   LocalIPv4,
		logger:    log,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Discover sweeps every other host of the local /24. A loopback local
// address skips the sweep entirely.
func (s *IPScanner) Discover(ctx context.Context) IPResult {
	local := s.localIP()
	if local == loopbackIP {
		s.logger.Warn().Msg("No routable local IPv4 address, skipping IP discovery")
		return IPResult{}
	}

	hosts, err := scan.PeerHosts(local)
	if err != nil {
		s.logger.Warn().Err(err).Str("local_ip", local).Msg("Cannot derive subnet")
		return IPResult{}
	}

	s.logger.Info().
		Str("local_ip", local).
		Int("hosts", len(hosts)).
		Int("workers", s.workers).
		Msg("Starting IP discovery")

	return s.DiscoverHosts(ctx, hosts)
}

// DiscoverHosts classifies the given hosts on a bounded worker pool.
func (s *IPScanner) DiscoverHosts(ctx context.Context, hosts []string) IPResult {
	var (
		mu  sync.Mutex
		res IPResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.workers, 1))

	for _, host := range hosts {
		g.Go(func() error {
			class := s.classify(gctx, host)

			mu.Lock()
			defer mu.Unlock()

			switch class {
			case hostClassGW:
				res.Gateways = append(res.Gateways, host)
			case hostClassDirect:
				res.Dedicated = append(res.Dedicated, host)
			case hostClassNone:
			}

			return nil
		})
	}

	_ = g.Wait()

	sortIPs(res.Dedicated)
	sortIPs(res.Gateways)

	s.logger.Info().
		Int("dedicated", len(res.Dedicated)).
		Int("gateways", len(res.Gateways)).
		Msg("IP discovery complete")

	return res
}

func (s *IPScanner) classify(ctx context.Context, host string) hostClass {
	if s.ports.CheckPort(ctx, host, s.vxi11Port) {
		if s.isGateway(ctx, host) {
			return hostClassGW
		}

		return hostClassDirect
	}

	if s.ports.CheckPort(ctx, host, s.scpiPort) {
		return hostClassDirect
	}

	return hostClassNone
}

func (s *IPScanner) isGateway(ctx context.Context, host string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.pageURL(host), nil)
	if err != nil {
		return false
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Debug().Err(err).Str("host", host).Msg("Gateway page unavailable")
		return false
	}

	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return false
	}

	return len(s.marker) > 0 && bytes.Contains(body, s.marker)
}

// LocalIPv4 returns the address of the interface holding the default route,
// or 127.0.0.1 when none can be determined. No packet is sent.
func LocalIPv4() string {
	conn, err := net.DialTimeout("udp4", routeProbeAddr, time.Second)
	if err != nil {
		return loopbackIP
	}

	defer func() { _ = conn.Close() }()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || addr.IP.To4() == nil || addr.IP.IsUnspecified() {
		return loopbackIP
	}

	return addr.IP.String()
}

func sortIPs(ips []string) {
	sort.Slice(ips, func(i, j int) bool {
		a, b := net.ParseIP(ips[i]).To4(), net.ParseIP(ips[j]).To4()
		if a == nil || b == nil {
			return ips[i] < ips[j]
		}

		return bytes.Compare(a, b) < 0
	})
}
