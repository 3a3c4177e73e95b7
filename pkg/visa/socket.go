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
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

const maxResponseBytes = 1 << 20

// socketSession speaks SCPI over a raw TCP stream (port 5025 by convention).
type socketSession struct {
	conn   net.Conn
	reader *bufio.Reader
	opts   Options
}

var _ Session = (*socketSession)(nil)

func dialSocket(ctx context.Context, host string, port int, opts Options) (*socketSession, error) {
	opts = opts.withDefaults()

	dialCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	var dialer net.Dialer

	conn, err := dialer.DialContext(dialCtx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("dial scpi socket %s:%d: %w", host, port, err)
	}

	return &socketSession{
		conn:   conn,
		reader: bufio.NewReader(conn),
		opts:   opts,
	}, nil
}

func (s *socketSession) Write(cmd string) error {
	if s.conn == nil {
		return ErrSessionClosed
	}

	if err := s.conn.SetWriteDeadline(time.Now().Add(s.opts.Timeout)); err != nil {
		return err
	}

	_, err := s.conn.Write([]byte(s.opts.terminate(cmd)))

	return err
}

func (s *socketSession) Query(cmd string) (string, error) {
	if err := s.Write(cmd); err != nil {
		return "", err
	}

	if s.opts.QueryDelay > 0 {
		time.Sleep(s.opts.QueryDelay)
	}

	if err := s.conn.SetReadDeadline(time.Now().Add(s.opts.Timeout)); err != nil {
		return "", err
	}

	return s.readReply()
}

func (s *socketSession) readReply() (string, error) {
	term := s.opts.ReadTermination
	delim := term[len(term)-1]

	var sb strings.Builder

	for {
		chunk, err := s.reader.ReadString(delim)
		sb.WriteString(chunk)

		if err != nil {
			return "", err
		}

		if sb.Len() > maxResponseBytes {
			return "", ErrResponseTooLarge
		}

		if strings.HasSuffix(sb.String(), term) {
			return s.opts.trimReply(sb.String()), nil
		}
	}
}

func (s *socketSession) Close() error {
	if s.conn == nil {
		return nil
	}

	err := s.conn.Close()
	s.conn = nil

	return err
}
