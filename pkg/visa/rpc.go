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
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync/atomic"
	"time"
)

// ONC-RPC v2 over TCP (RFC 5531) with AUTH_NULL credentials.
const (
	rpcVersion   = 2
	msgCall      = 0
	msgReply     = 1
	replyAccept  = 0
	acceptOK     = 0
	lastFragment = 0x80000000
	maxFragment  = 1 << 24

	// Socket deadline slack past the device io_timeout.
	rpcTimeoutMargin = time.Second
	maxStaleReplies  = 16

	portmapProgram = 100000
	portmapVersion = 2
	pmapGetPort    = 3
	ipProtoTCP     = 6
)

var xidSeed atomic.Uint32

func init() {
	xidSeed.Store(uint32(time.Now().UnixNano()))
}

// xdrEncoder appends big-endian XDR items.
type xdrEncoder struct {
	buf []byte
}

func (e *xdrEncoder) uint32(v uint32) {
	e.buf = binary.BigEndian.AppendUint32(e.buf, v)
}

func (e *xdrEncoder) int32(v int32) {
	e.uint32(uint32(v))
}

func (e *xdrEncoder) opaque(b []byte) {
	e.uint32(uint32(len(b)))
	e.buf = append(e.buf, b...)

	if pad := (4 - len(b)%4) % 4; pad > 0 {
		e.buf = append(e.buf, make([]byte, pad)...)
	}
}

// xdrDecoder reads XDR items and latches the first error.
type xdrDecoder struct {
	buf []byte
	err error
}

func (d *xdrDecoder) uint32() uint32 {
	if d.err != nil {
		return 0
	}

	if len(d.buf) < 4 {
		d.err = ErrRPCShortReply
		return 0
	}

	v := binary.BigEndian.Uint32(d.buf)
	d.buf = d.buf[4:]

	return v
}

func (d *xdrDecoder) int32() int32 {
	return int32(d.uint32())
}

func (d *xdrDecoder) opaque() []byte {
	n := int(d.uint32())
	if d.err != nil {
		return nil
	}

	padded := n + (4-n%4)%4
	if n < 0 || len(d.buf) < padded {
		d.err = ErrRPCShortReply
		return nil
	}

	out := append([]byte(nil), d.buf[:n]...)
	d.buf = d.buf[padded:]

	return out
}

// rpcClient issues sequential calls over one TCP connection. A framing or
// partial-read failure closes the connection and every later call returns
// ErrSessionBroken.
type rpcClient struct {
	conn    net.Conn
	timeout time.Duration
	broken  error
}

func dialRPC(ctx context.Context, host string, port int, timeout time.Duration) (*rpcClient, error) {
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var dialer net.Dialer

	conn, err := dialer.DialContext(dialCtx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, err
	}

	return &rpcClient{conn: conn, timeout: timeout}, nil
}

func (c *rpcClient) call(prog, vers, proc uint32, args []byte) (*xdrDecoder, error) {
	if c.broken != nil {
		return nil, fmt.Errorf("%w: %w", ErrSessionBroken, c.broken)
	}

	xid := xidSeed.Add(1)

	var e xdrEncoder

	e.uint32(xid)
	e.uint32(msgCall)
	e.uint32(rpcVersion)
	e.uint32(prog)
	e.uint32(vers)
	e.uint32(proc)
	e.uint32(0) // cred AUTH_NULL
	e.uint32(0)
	e.uint32(0) // verf AUTH_NULL
	e.uint32(0)
	e.buf = append(e.buf, args...)

	if err := c.conn.SetDeadline(time.Now().Add(c.timeout + rpcTimeoutMargin)); err != nil {
		return nil, c.fail(err)
	}

	if err := writeRecord(c.conn, e.buf); err != nil {
		return nil, c.fail(fmt.Errorf("rpc write: %w", err))
	}

	d, err := c.awaitReply(xid)
	if err != nil {
		return nil, err
	}

	if mtype := d.uint32(); d.err == nil && mtype != msgReply {
		return nil, c.fail(fmt.Errorf("%w: message type %d", ErrRPCShortReply, mtype))
	}

	if stat := d.uint32(); d.err == nil && stat != replyAccept {
		return nil, ErrRPCDenied
	}

	d.uint32() // verf flavor
	d.opaque() // verf body

	if stat := d.uint32(); d.err == nil && stat != acceptOK {
		return nil, fmt.Errorf("%w: accept_stat %d", ErrRPCNotAccepted, stat)
	}

	if d.err != nil {
		return nil, d.err
	}

	return d, nil
}

// awaitReply reads records until the reply to xid arrives. Replies to
// earlier calls that were abandoned on timeout are discarded.
func (c *rpcClient) awaitReply(xid uint32) (*xdrDecoder, error) {
	for range maxStaleReplies {
		cr := &countingReader{r: c.conn}

		reply, err := readRecord(cr)
		if err != nil {
			err = fmt.Errorf("rpc read: %w", err)

			// A timeout before any byte arrived leaves the stream aligned.
			if cr.n == 0 && isTimeout(err) {
				return nil, err
			}

			return nil, c.fail(err)
		}

		d := &xdrDecoder{buf: reply}

		got := d.uint32()
		if d.err != nil {
			return nil, c.fail(d.err)
		}

		if got == xid {
			return d, nil
		}

		if int32(xid-got) <= 0 {
			return nil, c.fail(fmt.Errorf("%w: sent %d got %d", ErrRPCXIDMismatch, xid, got))
		}
	}

	return nil, c.fail(fmt.Errorf("%w: too many stale replies before %d", ErrRPCXIDMismatch, xid))
}

// fail marks the connection unusable and closes it.
func (c *rpcClient) fail(err error) error {
	if c.broken == nil {
		c.broken = err
		_ = c.conn.Close()
	}

	return fmt.Errorf("%w: %w", ErrSessionBroken, err)
}

func (c *rpcClient) Close() error {
	if c.broken != nil {
		return nil
	}

	return c.conn.Close()
}

type countingReader struct {
	r io.Reader
	n int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += n

	return n, err
}

func isTimeout(err error) bool {
	var netErr net.Error

	return errors.As(err, &netErr) && netErr.Timeout()
}

func writeRecord(w io.Writer, payload []byte) error {
	header := binary.BigEndian.AppendUint32(nil, lastFragment|uint32(len(payload)))

	_, err := w.Write(append(header, payload...))

	return err
}

func readRecord(r io.Reader) ([]byte, error) {
	var out []byte

	for {
		var hdr [4]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return nil, err
		}

		marker := binary.BigEndian.Uint32(hdr[:])
		size := marker &^ lastFragment

		if size > maxFragment || len(out)+int(size) > maxFragment {
			return nil, ErrRPCFragmentLarge
		}

		frag := make([]byte, size)
		if _, err := io.ReadFull(r, frag); err != nil {
			return nil, err
		}

		out = append(out, frag...)

		if marker&lastFragment != 0 {
			return out, nil
		}
	}
}

// portmapGetPort asks the portmapper on host:pmPort for the TCP port of prog/vers.
func portmapGetPort(ctx context.Context, host string, pmPort int, prog, vers uint32, timeout time.Duration) (int, error) {
	c, err := dialRPC(ctx, host, pmPort, timeout)
	if err != nil {
		return 0, err
	}

	defer func() { _ = c.Close() }()

	var e xdrEncoder

	e.uint32(prog)
	e.uint32(vers)
	e.uint32(ipProtoTCP)
	e.uint32(0)

	d, err := c.call(portmapProgram, portmapVersion, pmapGetPort, e.buf)
	if err != nil {
		return 0, err
	}

	port := d.uint32()
	if d.err != nil {
		return 0, d.err
	}

	if port == 0 {
		return 0, ErrPortmapNoService
	}

	return int(port), nil
}
