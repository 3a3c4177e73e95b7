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
	"encoding/binary"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/carverauto/visafleet/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testIDN = "ACME,WIDGET-9000,SN123,FW1.0"

func listen(t *testing.T) net.Listener {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	return ln
}

func portOf(ln net.Listener) int {
	return ln.Addr().(*net.TCPAddr).Port
}

func closedPort(t *testing.T) int {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	port := portOf(ln)
	require.NoError(t, ln.Close())

	return port
}

// serveSCPI answers *IDN? and counts the lines it receives.
func serveSCPI(t *testing.T, ln net.Listener) func() int {
	t.Helper()

	var (
		mu   sync.Mutex
		seen []string
	)

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}

			go func(c net.Conn) {
				defer func() { _ = c.Close() }()

				r := bufio.NewReader(c)

				for {
					line, err := r.ReadString('\n')
					if err != nil {
						return
					}

					line = strings.TrimSpace(line)

					mu.Lock()
					seen = append(seen, line)
					mu.Unlock()

					if line == "*IDN?" {
						_, _ = c.Write([]byte(testIDN + "\n"))
					}
				}
			}(conn)
		}
	}()

	return func() int {
		mu.Lock()
		defer mu.Unlock()

		return len(seen)
	}
}

// fakeVXI11 serves the portmapper and the core channel on one listener.
type fakeVXI11 struct {
	mu       sync.Mutex
	port     int
	written  []string
	linkErr  int32
	pending  string
	destroys int
	// readDelays holds reply delays for upcoming device_read calls.
	readDelays []time.Duration
	// truncateReads sends only part of each device_read reply.
	truncateReads bool
}

func serveVXI11(t *testing.T, ln net.Listener) *fakeVXI11 {
	t.Helper()

	f := &fakeVXI11{port: portOf(ln)}

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}

			go f.handle(conn)
		}
	}()

	return f
}

func (f *fakeVXI11) handle(c net.Conn) {
	defer func() { _ = c.Close() }()

	for {
		msg, err := readRecord(c)
		if err != nil {
			return
		}

		d := &xdrDecoder{buf: msg}
		xid := d.uint32()
		d.uint32() // call
		d.uint32() // rpc version
		prog := d.uint32()
		d.uint32() // program version
		proc := d.uint32()
		d.uint32()
		d.opaque()
		d.uint32()
		d.opaque()

		var res xdrEncoder

		res.uint32(xid)
		res.uint32(msgReply)
		res.uint32(replyAccept)
		res.uint32(0)
		res.opaque(nil)
		res.uint32(acceptOK)

		delay, truncate := f.dispatch(prog, proc, d, &res)

		time.Sleep(delay)

		if truncate {
			var rec []byte
			rec = binary.BigEndian.AppendUint32(rec, lastFragment|uint32(len(res.buf)))
			_, _ = c.Write(append(rec, res.buf[:len(res.buf)/2]...))

			continue
		}

		if err := writeRecord(c, res.buf); err != nil {
			return
		}
	}
}

func (f *fakeVXI11) dispatch(prog, proc uint32, d *xdrDecoder, res *xdrEncoder) (time.Duration, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if prog == portmapProgram {
		res.uint32(uint32(f.port))
		return 0, false
	}

	var delay time.Duration

	switch proc {
	case procCreateLink:
		res.int32(f.linkErr)
		res.int32(7)
		res.uint32(0)
		res.uint32(4096)
	case procDeviceWrite:
		d.int32()
		d.uint32()
		d.uint32()
		d.int32()
		data := string(d.opaque())
		f.written = append(f.written, strings.TrimSpace(data))

		if strings.TrimSpace(data) == "*IDN?" {
			f.pending = testIDN + "\n"
		}

		res.int32(0)
		res.uint32(uint32(len(data)))
	case procDeviceRead:
		res.int32(0)
		res.int32(reasonEnd)
		res.opaque([]byte(f.pending))
		f.pending = ""

		if len(f.readDelays) > 0 {
			delay = f.readDelays[0]
			f.readDelays = f.readDelays[1:]
		}

		if f.truncateReads {
			return delay, true
		}
	case procDestroyLink:
		f.destroys++
		res.int32(0)
	}

	return delay, false
}

func TestSocketSessionQuery(t *testing.T) {
	ln := listen(t)
	seen := serveSCPI(t, ln)

	s, err := dialSocket(context.Background(), "127.0.0.1", portOf(ln), Options{Timeout: time.Second})
	require.NoError(t, err)

	require.NoError(t, s.Write("*CLS"))

	reply, err := s.Query("*IDN?")
	require.NoError(t, err)
	assert.Equal(t, testIDN, reply)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	require.ErrorIs(t, s.Write("*RST"), ErrSessionClosed)

	assert.Eventually(t, func() bool { return seen() >= 2 }, time.Second, 10*time.Millisecond)
}

func TestSocketSessionReadTimeout(t *testing.T) {
	ln := listen(t)

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}

		defer func() { _ = conn.Close() }()

		_, _ = io.Copy(io.Discard, conn)
	}()

	s, err := dialSocket(context.Background(), "127.0.0.1", portOf(ln), Options{Timeout: 100 * time.Millisecond})
	require.NoError(t, err)

	defer func() { _ = s.Close() }()

	_, err = s.Query("*IDN?")

	var netErr net.Error
	require.True(t, errors.As(err, &netErr))
	assert.True(t, netErr.Timeout())
}

func TestVXI11SessionQuery(t *testing.T) {
	ln := listen(t)
	fake := serveVXI11(t, ln)

	s, err := dialVXI11(context.Background(), "127.0.0.1", portOf(ln), "gpib0,5", Options{Timeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, int32(7), s.link)

	require.NoError(t, s.Write("*RST"))

	reply, err := s.Query("*IDN?")
	require.NoError(t, err)
	assert.Equal(t, testIDN, reply)

	require.NoError(t, s.Close())

	fake.mu.Lock()
	defer fake.mu.Unlock()

	assert.Equal(t, []string{"*RST", "*IDN?"}, fake.written)
	assert.Equal(t, 1, fake.destroys)
}

func TestVXI11ReplyWithinMarginIsRead(t *testing.T) {
	ln := listen(t)
	fake := serveVXI11(t, ln)

	s, err := dialVXI11(context.Background(), "127.0.0.1", portOf(ln), "gpib0,5", Options{Timeout: 100 * time.Millisecond})
	require.NoError(t, err)

	defer func() { _ = s.Close() }()

	fake.mu.Lock()
	fake.readDelays = []time.Duration{250 * time.Millisecond}
	fake.mu.Unlock()

	reply, err := s.Query("*IDN?")
	require.NoError(t, err)
	assert.Equal(t, testIDN, reply)
}

func TestVXI11RecoversFromLateReply(t *testing.T) {
	ln := listen(t)
	fake := serveVXI11(t, ln)

	timeout := 100 * time.Millisecond

	s, err := dialVXI11(context.Background(), "127.0.0.1", portOf(ln), "gpib0,5", Options{Timeout: timeout})
	require.NoError(t, err)

	fake.mu.Lock()
	fake.readDelays = []time.Duration{timeout + rpcTimeoutMargin + 300*time.Millisecond}
	fake.mu.Unlock()

	_, err = s.Query("*IDN?")

	var netErr net.Error
	require.True(t, errors.As(err, &netErr))
	assert.True(t, netErr.Timeout())
	assert.NotErrorIs(t, err, ErrSessionBroken)

	require.NoError(t, s.Write("*RST"))

	for range 3 {
		reply, err := s.Query("*IDN?")
		require.NoError(t, err)
		assert.Equal(t, testIDN, reply)
	}

	require.NoError(t, s.Close())

	fake.mu.Lock()
	defer fake.mu.Unlock()

	assert.Equal(t, 1, fake.destroys)
}

func TestVXI11PartialReplyBreaksSession(t *testing.T) {
	ln := listen(t)
	fake := serveVXI11(t, ln)

	s, err := dialVXI11(context.Background(), "127.0.0.1", portOf(ln), "gpib0,5", Options{Timeout: 100 * time.Millisecond})
	require.NoError(t, err)

	fake.mu.Lock()
	fake.truncateReads = true
	fake.mu.Unlock()

	_, err = s.Query("*IDN?")
	require.ErrorIs(t, err, ErrSessionBroken)

	require.ErrorIs(t, s.Write("*RST"), ErrSessionBroken)
	require.NoError(t, s.Close())
}

func TestRPCStaleReplyDiscarded(t *testing.T) {
	client, server := net.Pipe()
	t.Cleanup(func() { _ = server.Close() })

	c := &rpcClient{conn: client, timeout: time.Second}
	sent := make(chan uint32, 1)

	go func() {
		msg, err := readRecord(server)
		if err != nil {
			return
		}

		xid := binary.BigEndian.Uint32(msg)
		sent <- xid

		for _, id := range []uint32{xid - 2, xid - 1, xid} {
			var res xdrEncoder

			res.uint32(id)
			res.uint32(msgReply)
			res.uint32(replyAccept)
			res.uint32(0)
			res.opaque(nil)
			res.uint32(acceptOK)
			res.uint32(id)

			if err := writeRecord(server, res.buf); err != nil {
				return
			}
		}
	}()

	d, err := c.call(portmapProgram, portmapVersion, pmapGetPort, nil)
	require.NoError(t, err)

	got := d.uint32()
	require.NoError(t, d.err)
	assert.Equal(t, <-sent, got)
}

func TestRPCNewerReplyBreaksClient(t *testing.T) {
	client, server := net.Pipe()
	t.Cleanup(func() { _ = server.Close() })

	c := &rpcClient{conn: client, timeout: time.Second}

	go func() {
		msg, err := readRecord(server)
		if err != nil {
			return
		}

		var res xdrEncoder

		res.uint32(binary.BigEndian.Uint32(msg) + 1)
		_ = writeRecord(server, res.buf)
	}()

	_, err := c.call(portmapProgram, portmapVersion, pmapGetPort, nil)
	require.ErrorIs(t, err, ErrRPCXIDMismatch)
	require.ErrorIs(t, err, ErrSessionBroken)

	_, err = c.call(portmapProgram, portmapVersion, pmapGetPort, nil)
	require.ErrorIs(t, err, ErrSessionBroken)
}

func TestVXI11CreateLinkError(t *testing.T) {
	ln := listen(t)
	fake := serveVXI11(t, ln)
	fake.mu.Lock()
	fake.linkErr = 3
	fake.mu.Unlock()

	_, err := dialVXI11(context.Background(), "127.0.0.1", portOf(ln), "gpib0,9", Options{Timeout: time.Second})
	require.ErrorIs(t, err, ErrVXI11Device)
}

func TestResourceManagerFallsBackToSocket(t *testing.T) {
	ln := listen(t)
	serveSCPI(t, ln)

	rm := NewResourceManager(logger.NewTestLogger(), WithPorts(closedPort(t), portOf(ln)))

	s, err := rm.Open(context.Background(), "TCPIP::127.0.0.1::INSTR", Options{Timeout: time.Second})
	require.NoError(t, err)

	defer func() { _ = s.Close() }()

	_, ok := s.(*socketSession)
	require.True(t, ok)

	reply, err := s.Query("*IDN?")
	require.NoError(t, err)
	assert.Equal(t, testIDN, reply)
}

func TestResourceManagerGatewayTargetDoesNotFallBack(t *testing.T) {
	ln := listen(t)
	serveSCPI(t, ln)

	rm := NewResourceManager(logger.NewTestLogger(), WithPorts(closedPort(t), portOf(ln)))

	_, err := rm.Open(context.Background(), "TCPIP::127.0.0.1::gpib0,5::INSTR", Options{Timeout: time.Second})
	require.Error(t, err)
}

func TestResourceManagerPrefersVXI11(t *testing.T) {
	ln := listen(t)
	serveVXI11(t, ln)

	rm := NewResourceManager(logger.NewTestLogger(), WithPorts(portOf(ln), closedPort(t)))

	s, err := rm.Open(context.Background(), "TCPIP0::127.0.0.1::inst0::INSTR", Options{Timeout: time.Second})
	require.NoError(t, err)

	defer func() { _ = s.Close() }()

	_, ok := s.(*vxi11Session)
	require.True(t, ok)
}

func TestResourceManagerRejectsSerial(t *testing.T) {
	rm := NewResourceManager(logger.NewTestLogger())

	for _, resource := range []string{"ASRL/dev/ttyUSB0::INSTR", "GPIB0::5::INSTR"} {
		_, err := rm.Open(context.Background(), resource, DefaultOptions())
		require.ErrorIs(t, err, ErrUnsupportedResource, resource)
	}
}

func testSysFS() fstest.MapFS {
	return fstest.MapFS{
		"bus/usb/devices/1-1/idVendor":                       {Data: []byte("1234\n")},
		"bus/usb/devices/1-1/idProduct":                      {Data: []byte("5678\n")},
		"bus/usb/devices/1-1/serial":                         {Data: []byte("SN000\n")},
		"bus/usb/devices/1-1/1-1:1.0/usbmisc/usbtmc0/dev":    {Data: []byte("180:0\n")},
		"bus/usb/devices/1-2/idVendor":                       {Data: []byte("0957\n")},
		"bus/usb/devices/1-2/idProduct":                      {Data: []byte("0607\n")},
		"bus/usb/devices/1-2/1-2:1.0/usbmisc/usbtmc1/dev":    {Data: []byte("180:1\n")},
		"bus/usb/devices/1-3/idVendor":                       {Data: []byte("046d\n")},
		"bus/usb/devices/1-3/idProduct":                      {Data: []byte("c52b\n")},
		"bus/usb/devices/1-3/1-3:1.0/input/input4/name":      {Data: []byte("mouse\n")},
		"bus/usb/devices/1-4/1-4:1.0/usbmisc/usbtmc2/dev":    {Data: []byte("180:2\n")},
		"bus/usb/devices/usb1/1-0:1.0/usbmisc/notusbtmc/dev": {Data: []byte("\n")},
	}
}

func TestListResources(t *testing.T) {
	devfs := fstest.MapFS{
		"ttyUSB0": {Data: []byte{}},
		"ttyACM1": {Data: []byte{}},
		"tty0":    {Data: []byte{}},
	}

	rm := NewResourceManager(logger.NewTestLogger(), WithFilesystems(testSysFS(), devfs, "/dev"))

	got, err := rm.ListResources(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"USB0::0x1234::0x5678::SN000::INSTR",
		"USB0::0x0957::0x0607::usbtmc1::INSTR",
		"ASRL/dev/ttyACM1::INSTR",
		"ASRL/dev/ttyUSB0::INSTR",
	}, got)
}

func TestUSBDeviceMatches(t *testing.T) {
	devices, err := listUSBTMC(testSysFS())
	require.NoError(t, err)
	require.Len(t, devices, 2)

	r, err := ParseResource("USB0::0x1234::0x5678::SN000::INSTR")
	require.NoError(t, err)
	assert.True(t, devices[0].matches(r))
	assert.False(t, devices[1].matches(r))
}

func TestOpenUnknownUSBDevice(t *testing.T) {
	rm := NewResourceManager(logger.NewTestLogger(), WithFilesystems(testSysFS(), fstest.MapFS{}, "/dev"))

	_, err := rm.Open(context.Background(), "USB0::0xAAAA::0xBBBB::NOPE::INSTR", DefaultOptions())
	require.ErrorIs(t, err, ErrDeviceNotFound)
}

type fakeTMC struct {
	reply  string
	closed bool
	wrote  []string
}

func (f *fakeTMC) Write(p []byte) (int, error) {
	f.wrote = append(f.wrote, string(p))
	return len(p), nil
}

func (f *fakeTMC) Read(p []byte) (int, error) {
	n := copy(p, f.reply)
	f.reply = f.reply[n:]

	return n, nil
}

func (f *fakeTMC) Close() error {
	f.closed = true
	return nil
}

func TestUSBTMCSessionQuery(t *testing.T) {
	dev := &fakeTMC{reply: testIDN + "\n"}
	s := &usbtmcSession{rw: dev, opts: DefaultOptions()}

	reply, err := s.Query("*IDN?")
	require.NoError(t, err)
	assert.Equal(t, testIDN, reply)
	assert.Equal(t, []string{"*IDN?\n"}, dev.wrote)

	require.NoError(t, s.Close())
	assert.True(t, dev.closed)
	require.ErrorIs(t, s.Write("*RST"), ErrSessionClosed)
}
