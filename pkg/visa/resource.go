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

// Package visa names instrument resources and opens sessions to them over
// VXI-11, raw SCPI sockets and Linux USBTMC.
package visa

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// InterfaceType is the bus prefix of a resource string.
type InterfaceType string

const (
	InterfaceTCPIP   InterfaceType = "TCPIP"
	InterfaceUSB     InterfaceType = "USB"
	InterfaceASRL    InterfaceType = "ASRL"
	InterfaceGPIB    InterfaceType = "GPIB"
	InterfaceUnknown InterfaceType = "UNKNOWN"
)

const (
	ClassInstr  = "INSTR"
	ClassSocket = "SOCKET"

	// DefaultDevice is the VXI-11 device name of a LAN instrument.
	DefaultDevice = "inst0"

	sep = "::"
)

// Resource is a parsed resource string.
type Resource struct {
	Raw       string
	Interface InterfaceType
	Board     string
	// Fields are the "::" separated parts between the interface and the class.
	Fields []string
	Class  string
}

// ParseResource splits a resource string such as TCPIP0::10.0.0.5::gpib0,7::INSTR.
func ParseResource(raw string) (Resource, error) {
	clean := strings.TrimSpace(raw)
	if clean == "" {
		return Resource{}, ErrEmptyResource
	}

	parts := strings.Split(clean, sep)
	r := Resource{Raw: clean}
	r.Interface, r.Board = splitInterface(parts[0])

	if r.Interface == InterfaceUnknown {
		return r, fmt.Errorf("%w: %q", ErrUnsupportedResource, raw)
	}

	rest := parts[1:]
	if n := len(rest); n > 0 {
		last := strings.ToUpper(rest[n-1])
		if last == ClassInstr || last == ClassSocket {
			r.Class = last
			rest = rest[:n-1]
		}
	}

	if r.Class == "" {
		r.Class = ClassInstr
	}

	r.Fields = rest

	if r.Interface == InterfaceTCPIP && len(r.Fields) == 0 {
		return r, fmt.Errorf("%w: missing host in %q", ErrMalformedResource, raw)
	}

	return r, nil
}

func splitInterface(head string) (InterfaceType, string) {
	upper := strings.ToUpper(head)

	for _, it := range []InterfaceType{InterfaceTCPIP, InterfaceUSB, InterfaceASRL, InterfaceGPIB} {
		if strings.HasPrefix(upper, string(it)) {
			return it, head[len(it):]
		}
	}

	return InterfaceUnknown, ""
}

// Host returns the network host of a TCPIP resource.
func (r Resource) Host() string {
	if r.Interface != InterfaceTCPIP || len(r.Fields) == 0 {
		return ""
	}

	return r.Fields[0]
}

// Device returns the VXI-11 device name (inst0, gpib0,7, ...) of a TCPIP INSTR resource.
func (r Resource) Device() string {
	if r.Interface != InterfaceTCPIP || r.Class != ClassInstr {
		return ""
	}

	if len(r.Fields) > 1 && r.Fields[1] != "" {
		return r.Fields[1]
	}

	return DefaultDevice
}

// Port returns the port of a TCPIP SOCKET resource.
func (r Resource) Port() (int, error) {
	if r.Interface != InterfaceTCPIP || r.Class != ClassSocket || len(r.Fields) < 2 {
		return 0, fmt.Errorf("%w: %q has no port", ErrMalformedResource, r.Raw)
	}

	port, err := strconv.Atoi(r.Fields[1])
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("%w: bad port in %q", ErrMalformedResource, r.Raw)
	}

	return port, nil
}

// IsLocalBus reports whether the resource is attached to this host and
// may need time to settle after enumeration.
func IsLocalBus(resource string) bool {
	upper := strings.ToUpper(resource)

	return strings.Contains(upper, "USB") || strings.Contains(upper, "ASRL")
}

// ConnectionDetails are the display fields derived from a resource string.
type ConnectionDetails struct {
	IP          string
	Interface   string
	GPIBAddress string
}

// ParseConnectionDetails derives the IP, interface label and GPIB address
// shown in the inventory for a resource string.
func ParseConnectionDetails(resource string) ConnectionDetails {
	d := ConnectionDetails{IP: "Unknown", Interface: "Unknown", GPIBAddress: "N/A"}
	clean := CleanPrintable(resource)
	parts := strings.Split(clean, sep)

	switch {
	case strings.HasPrefix(clean, string(InterfaceTCPIP)):
		if len(parts) < 2 {
			return d
		}

		d.IP = parts[1]

		if len(parts) > 2 && strings.Contains(parts[2], ",") {
			iface, addr, _ := strings.Cut(parts[2], ",")
			d.Interface = iface
			d.GPIBAddress = addr
		} else {
			d.Interface = "Ethernet"
			d.GPIBAddress = "Direct"
		}
	case strings.HasPrefix(clean, string(InterfaceUSB)):
		d.IP = "USB"
		d.Interface = "USB"
		d.GPIBAddress = "Direct"
	}

	return d
}

// CleanPrintable drops non-printable characters and trims surrounding space.
func CleanPrintable(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}

		if unicode.IsPrint(r) || r == '\t' || r == '\n' || r == '\r' {
			return r
		}

		return -1
	}, s))
}
