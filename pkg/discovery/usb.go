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

// Package discovery finds candidate instrument resources on the local bus,
// on the local /24 subnet and behind LAN-to-GPIB gateways.
package discovery

import (
	"context"
	"strings"

	"github.com/carverauto/visafleet/pkg/logger"
	"github.com/carverauto/visafleet/pkg/models"
	"github.com/carverauto/visafleet/pkg/visa"
)

// USBScanner lists locally attached instruments.
type USBScanner struct {
	rm     visa.ResourceManager
	logger logger.Logger
}

func NewUSBScanner(rm visa.ResourceManager, log logger.Logger) *USBScanner {
	return &USBScanner{rm: rm, logger: log}
}

// Discover returns LOCAL targets for every enumerated resource that is
// neither a TCPIP nor a serial port resource. Errors yield an empty list.
func (u *USBScanner) Discover(ctx context.Context) []models.DiscoveryTarget {
	resources, err := u.rm.ListResources(ctx)
	if err != nil {
		u.logger.Warn().Err(err).Msg("USB discovery failed")
		return nil
	}

	var targets []models.DiscoveryTarget

	for _, res := range resources {
		upper := strings.ToUpper(res)
		if strings.Contains(upper, string(visa.InterfaceTCPIP)) || strings.Contains(upper, string(visa.InterfaceASRL)) {
			continue
		}

		targets = append(targets, models.DiscoveryTarget{Kind: models.KindLocal, Resource: res})
	}

	u.logger.Info().Int("count", len(targets)).Msg("USB discovery complete")

	return targets
}
