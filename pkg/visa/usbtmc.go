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
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"
)

// usbDevice is one usbtmc character device found in sysfs.
type usbDevice struct {
	Vendor   uint16
	Product  uint16
	Serial   string
	NodeName string
}

func (d usbDevice) resource() string {
	return fmt.Sprintf("USB0::0x%04X::0x%04X::%s::INSTR", d.Vendor, d.Product, d.Serial)
}

// matches compares against the vendor/product/serial fields of a USB resource.
func (d usbDevice) matches(r Resource) bool {
	if len(r.Fields) < 3 {
		return false
	}

	vid, err1 := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(r.Fields[0]), "0x"), 16, 16)
	pid, err2 := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(r.Fields[1]), "0x"), 16, 16)

	if err1 != nil || err2 != nil {
		return false
	}

	return uint16(vid) == d.Vendor && uint16(pid) == d.Product && r.Fields[2] == d.Serial
}

// listUSBTMC walks sysfs (rooted at /sys) for usbtmc interfaces.
func listUSBTMC(sysfs fs.FS) ([]usbDevice, error) {
	nodes, err := fs.Glob(sysfs, "bus/usb/devices/*/*/usbmisc/usbtmc*")
	if err != nil {
		return nil, err
	}

	devices := make([]usbDevice, 0, len(nodes))

	for _, node := range nodes {
		devDir := path.Dir(path.Dir(path.Dir(node)))

		vendor, err := readHexAttr(sysfs, path.Join(devDir, "idVendor"))
		if err != nil {
			continue
		}

		product, err := readHexAttr(sysfs, path.Join(devDir, "idProduct"))
		if err != nil {
			continue
		}

		name := path.Base(node)

		serial := readAttr(sysfs, path.Join(devDir, "serial"))
		if serial == "" {
			serial = name
		}

		devices = append(devices, usbDevice{
			Vendor:   vendor,
			Product:  product,
			Serial:   serial,
			NodeName: name,
		})
	}

	sort.Slice(devices, func(i, j int) bool { return devices[i].NodeName < devices[j].NodeName })

	return devices, nil
}

// listSerialPorts returns ASRL resources for USB serial adapters under /dev.
func listSerialPorts(devfs fs.FS, devRoot string) []string {
	var out []string

	for _, pattern := range []string{"ttyUSB*", "ttyACM*"} {
		matches, err := fs.Glob(devfs, pattern)
		if err != nil {
			continue
		}

		for _, m := range matches {
			out = append(out, fmt.Sprintf("ASRL%s::INSTR", path.Join(devRoot, m)))
		}
	}

	sort.Strings(out)

	return out
}

func readAttr(fsys fs.FS, name string) string {
	b, err := fs.ReadFile(fsys, name)
	if err != nil {
		return ""
	}

	return strings.TrimSpace(string(b))
}

func readHexAttr(fsys fs.FS, name string) (uint16, error) {
	v, err := strconv.ParseUint(readAttr(fsys, name), 16, 16)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}

	return uint16(v), nil
}

// usbtmcSession talks to /dev/usbtmcN. The kernel driver frames each
// write as one USBTMC message and enforces its own I/O timeout.
type usbtmcSession struct {
	rw   io.ReadWriteCloser
	opts Options
}

var _ Session = (*usbtmcSession)(nil)

func openUSBTMC(devPath string, opts Options) (*usbtmcSession, error) {
	f, err := os.OpenFile(devPath, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", devPath, err)
	}

	return &usbtmcSession{rw: f, opts: opts.withDefaults()}, nil
}

func (s *usbtmcSession) Write(cmd string) error {
	if s.rw == nil {
		return ErrSessionClosed
	}

	_, err := s.rw.Write([]byte(s.opts.terminate(cmd)))

	return err
}

func (s *usbtmcSession) Query(cmd string) (string, error) {
	if err := s.Write(cmd); err != nil {
		return "", err
	}

	if s.opts.QueryDelay > 0 {
		time.Sleep(s.opts.QueryDelay)
	}

	buf := make([]byte, readChunk)

	var out []byte

	for {
		n, err := s.rw.Read(buf)
		out = append(out, buf[:n]...)

		if strings.HasSuffix(string(out), s.opts.ReadTermination) {
			return s.opts.trimReply(string(out)), nil
		}

		if errors.Is(err, io.EOF) || (err == nil && n < len(buf)) {
			return s.opts.trimReply(string(out)), nil
		}

		if err != nil {
			return "", err
		}

		if len(out) > maxResponseBytes {
			return "", ErrResponseTooLarge
		}
	}
}

func (s *usbtmcSession) Close() error {
	if s.rw == nil {
		return nil
	}

	err := s.rw.Close()
	s.rw = nil

	return err
}
