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
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/carverauto/visafleet/pkg/logger"
	"github.com/carverauto/visafleet/pkg/models"
	"golang.org/x/net/html"
)

var optionToken = regexp.MustCompile(`^[\s]*([A-Za-z0-9,]+)`)

// GatewayScanner lists the instruments attached to LAN-to-GPIB gateways.
type GatewayScanner struct {
	client  *http.Client
	pageURL PageURLFunc
	logger  logger.Logger
}

func NewGatewayScanner(cfg *models.FleetConfig, log logger.Logger, pageURL PageURLFunc) *GatewayScanner {
	if pageURL == nil {
		pagePath := cfg.GatewayPagePath
		pageURL = func(host string) string { return fmt.Sprintf("http://%s%s", host, pagePath) }
	}

	return &GatewayScanner{
		client:  &http.Client{Timeout: cfg.GatewayScrapeTimeout.Std()},
		pageURL: pageURL,
		logger:  log,
	}
}

// Discover asks each gateway to enumerate its bus and returns one GATEWAY
// target per listed instrument. A failing gateway is logged and skipped.
func (g *GatewayScanner) Discover(ctx context.Context, gatewayIPs []string) []models.DiscoveryTarget {
	var targets []models.DiscoveryTarget

	for _, ip := range gatewayIPs {
		tokens, err := g.scrape(ctx, ip)
		if err != nil {
			g.logger.Warn().Err(err).Str("gateway", ip).Msg("Error scraping gateway")
			continue
		}

		g.logger.Info().Str("gateway", ip).Strs("targets", tokens).Msg("Scraped gateway")

		for _, tok := range tokens {
			targets = append(targets, models.DiscoveryTarget{
				Kind:     models.KindGateway,
				Resource: fmt.Sprintf("TCPIP::%s::%s::INSTR", ip, tok),
			})
		}
	}

	return targets
}

func (g *GatewayScanner) scrape(ctx context.Context, ip string) ([]string, error) {
	u, err := url.Parse(g.pageURL(ip))
	if err != nil {
		return nil, err
	}

	q := u.Query()
	q.Set("whichbutton", "find")
	q.Set("timeout", "5")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}

	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s", ErrGatewayStatus, resp.Status)
	}

	return ParseInstrumentOptions(io.LimitReader(resp.Body, maxPageBytes))
}

// ParseInstrumentOptions extracts the leading resource token of every
// <option> element, dropping local serial ports (tokens containing "COM").
// Repeated options are returned as listed.
func ParseInstrumentOptions(r io.Reader) ([]string, error) {
	z := html.NewTokenizer(r)

	var (
		tokens   []string
		inOption bool
	)

	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return tokens, err
			}

			return tokens, nil
		case html.StartTagToken:
			name, _ := z.TagName()
			inOption = strings.EqualFold(string(name), "option")
		case html.TextToken:
			if !inOption {
				continue
			}

			inOption = false

			m := optionToken.FindSubmatch(z.Text())
			if m == nil {
				continue
			}

			tok := string(m[1])
			if strings.Contains(tok, "COM") {
				continue
			}

			tokens = append(tokens, tok)
		case html.EndTagToken, html.SelfClosingTagToken, html.CommentToken, html.DoctypeToken:
			inOption = false
		}
	}
}
