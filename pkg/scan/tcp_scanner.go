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

// Package scan provides TCP reachability checks and subnet enumeration.
package scan

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/carverauto/visafleet/pkg/logger"
)

const defaultTimeout = 300 * time.Millisecond

// PortChecker reports whether a TCP port accepts connections.
type PortChecker interface {
	CheckPort(ctx context.Context, host string, port int) bool
}

// TCPSweeper checks TCP ports with a bounded connect timeout.
type TCPSweeper struct {
	timeout time.Duration
	logger  logger.Logger
}

var _ PortChecker = (*TCPSweeper)(nil)

func NewTCPSweeper(timeout time.Duration, log logger.Logger) *TCPSweeper {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &TCPSweeper{
		timeout: timeout,
		logger:  log,
	}
}

// CheckPort dials host:port and reports whether the connection succeeded
// within the sweeper timeout.
func (s *TCPSweeper) CheckPort(ctx context.Context, host string, port int) bool {
	avail, rtt, err := s.checkPort(ctx, host, port)
	if err != nil {
		s.logger.Trace().
			Str("host", host).
			Int("port", port).
			Dur("elapsed", rtt).
			Err(err).
			Msg("port closed")

		return false
	}

	return avail
}

func (s *TCPSweeper) checkPort(ctx context.Context, host string, port int) (bool, time.Duration, error) {
	// Create per-probe timeout context that respects both parent context and timeout
	probeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()

	var dialer net.Dialer

	conn, err := dialer.DialContext(probeCtx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		if probeCtx.Err() != nil {
			return false, time.Since(start), probeCtx.Err()
		}

		return false, time.Since(start), err
	}

	defer func(conn net.Conn) {
		if err := conn.Close(); err != nil {
			s.logger.Error().Err(err).Msg("failed to close connection")
		}
	}(conn)

	return true, time.Since(start), nil
}
