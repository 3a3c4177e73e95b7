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

package probe

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/carverauto/visafleet/pkg/models"
	"github.com/carverauto/visafleet/pkg/visa"
)

var (
	unsafeChars = regexp.MustCompile(`[^\w-]+`)
	firstDigits = regexp.MustCompile(`\d+`)
)

// IDN is a parsed *IDN? reply.
type IDN struct {
	Manufacturer string
	Model        string
	Serial       string
	Firmware     string
}

// ParseIDN splits "manufacturer,model,serial,firmware", padding missing
// fields with empty strings.
func ParseIDN(reply string) IDN {
	if reply == "" {
		return IDN{Manufacturer: models.Unknown, Model: models.Unknown}
	}

	parts := strings.Split(reply, ",")
	for len(parts) < 4 {
		parts = append(parts, "")
	}

	return IDN{
		Manufacturer: strings.TrimSpace(parts[0]),
		Model:        strings.TrimSpace(parts[1]),
		Serial:       strings.TrimSpace(parts[2]),
		Firmware:     strings.TrimSpace(parts[3]),
	}
}

// Sanitize replaces every run of characters outside [A-Za-z0-9_-] with "_".
func Sanitize(s string) string {
	return unsafeChars.ReplaceAllString(s, "_")
}

// BaseIdentifier is the serial number when usable, otherwise the composite
// "<last octet>-<interface number>-<gpib address>".
func BaseIdentifier(idn IDN, details visa.ConnectionDetails) string {
	if idn.Serial != "" && idn.Serial != "0" {
		return idn.Serial
	}

	return FallbackIdentifier(details)
}

// FallbackIdentifier builds the composite identifier for instruments that
// report no serial number.
func FallbackIdentifier(d visa.ConnectionDetails) string {
	octet := models.Unknown

	switch {
	case strings.Contains(d.IP, "."):
		octet = d.IP[strings.LastIndex(d.IP, ".")+1:]
	case d.IP == "USB":
		octet = "USB"
	}

	iface := models.Unknown
	if d.Interface != "" {
		iface = d.Interface
		if m := firstDigits.FindString(d.Interface); m != "" {
			iface = m
		}
	}

	gpib := d.GPIBAddress
	if gpib == models.NotApplicable {
		gpib = models.Unknown
	}

	return fmt.Sprintf("%s-%s-%s", Sanitize(octet), Sanitize(iface), Sanitize(gpib))
}

// uniqueIdentifier appends _1, _2, ... until base is not in used, then claims it.
func uniqueIdentifier(base string, used map[string]struct{}) string {
	id := base
	for n := 1; ; n++ {
		if _, taken := used[id]; !taken {
			break
		}

		id = fmt.Sprintf("%s_%d", base, n)
	}

	used[id] = struct{}{}

	return id
}
