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
	"math/rand/v2"
	"time"
)

// VXI-11 core channel.
const (
	vxi11CoreProgram = 0x0607AF
	vxi11CoreVersion = 1

	procCreateLink  = 10
	procDeviceWrite = 11
	procDeviceRead  = 12
	procDestroyLink = 23

	flagEnd     = 0x08
	reasonEnd   = 0x04
	readChunk   = 64 * 1024
	minSendSize = 1024
)

// vxi11Session drives one link on a VXI-11 core channel.
type vxi11Session struct {
	rpc     *rpcClient
	link    int32
	maxRecv uint32
	opts    Options
}

var _ Session = (*vxi11Session)(nil)

func dialVXI11(ctx context.Context, host string, portmapPort int, device string, opts Options) (*vxi11Session, error) {
	opts = opts.withDefaults()

	corePort, err := portmapGetPort(ctx, host, portmapPort, vxi11CoreProgram, vxi11CoreVersion, opts.Timeout)
	if err != nil {
		return nil, fmt.Errorf("vxi-11 portmap %s: %w", host, err)
	}

	rpc, err := dialRPC(ctx, host, corePort, opts.Timeout)
	if err != nil {
		return nil, fmt.Errorf("vxi-11 core %s:%d: %w", host, corePort, err)
	}

	var e xdrEncoder

	e.int32(rand.Int32()) // client id
	e.uint32(0)           // lockDevice
	e.uint32(uint32(opts.Timeout.Milliseconds()))
	e.opaque([]byte(device))

	d, err := rpc.call(vxi11CoreProgram, vxi11CoreVersion, procCreateLink, e.buf)
	if err != nil {
		_ = rpc.Close()
		return nil, fmt.Errorf("vxi-11 create_link %s: %w", device, err)
	}

	code := d.int32()
	link := d.int32()
	d.uint32() // abort port
	maxRecv := d.uint32()

	if d.err != nil {
		_ = rpc.Close()
		return nil, d.err
	}

	if code != 0 {
		_ = rpc.Close()
		return nil, fmt.Errorf("%w: create_link %s error %d", ErrVXI11Device, device, code)
	}

	if maxRecv < minSendSize {
		maxRecv = minSendSize
	}

	return &vxi11Session{rpc: rpc, link: link, maxRecv: maxRecv, opts: opts}, nil
}

func (s *vxi11Session) ioTimeout() uint32 {
	return uint32(s.opts.Timeout.Milliseconds())
}

func (s *vxi11Session) Write(cmd string) error {
	if s.rpc == nil {
		return ErrSessionClosed
	}

	data := []byte(s.opts.terminate(cmd))

	for len(data) > 0 {
		n := min(len(data), int(s.maxRecv))

		var flags int32
		if n == len(data) {
			flags = flagEnd
		}

		var e xdrEncoder

		e.int32(s.link)
		e.uint32(s.ioTimeout())
		e.uint32(s.ioTimeout())
		e.int32(flags)
		e.opaque(data[:n])

		d, err := s.rpc.call(vxi11CoreProgram, vxi11CoreVersion, procDeviceWrite, e.buf)
		if err != nil {
			return fmt.Errorf("vxi-11 device_write: %w", err)
		}

		code := d.int32()
		size := d.uint32()

		if d.err != nil {
			return d.err
		}

		if code != 0 {
			return fmt.Errorf("%w: device_write error %d", ErrVXI11Device, code)
		}

		if size == 0 || int(size) > n {
			size = uint32(n)
		}

		data = data[size:]
	}

	return nil
}

func (s *vxi11Session) Query(cmd string) (string, error) {
	if err := s.Write(cmd); err != nil {
		return "", err
	}

	if s.opts.QueryDelay > 0 {
		time.Sleep(s.opts.QueryDelay)
	}

	var out []byte

	for {
		var e xdrEncoder

		e.int32(s.link)
		e.uint32(readChunk)
		e.uint32(s.ioTimeout())
		e.uint32(s.ioTimeout())
		e.int32(0)
		e.int32(0)

		d, err := s.rpc.call(vxi11CoreProgram, vxi11CoreVersion, procDeviceRead, e.buf)
		if err != nil {
			return "", fmt.Errorf("vxi-11 device_read: %w", err)
		}

		code := d.int32()
		reason := d.int32()
		chunk := d.opaque()

		if d.err != nil {
			return "", d.err
		}

		if code != 0 {
			return "", fmt.Errorf("%w: device_read error %d", ErrVXI11Device, code)
		}

		out = append(out, chunk...)

		if len(out) > maxResponseBytes {
			return "", ErrResponseTooLarge
		}

		if reason&reasonEnd != 0 {
			return s.opts.trimReply(string(out)), nil
		}
	}
}

func (s *vxi11Session) Close() error {
	if s.rpc == nil {
		return nil
	}

	if s.rpc.broken != nil {
		s.rpc = nil
		return nil
	}

	var e xdrEncoder

	e.int32(s.link)

	_, callErr := s.rpc.call(vxi11CoreProgram, vxi11CoreVersion, procDestroyLink, e.buf)
	closeErr := s.rpc.Close()
	s.rpc = nil

	if callErr != nil {
		return fmt.Errorf("vxi-11 destroy_link: %w", callErr)
	}

	return closeErr
}
