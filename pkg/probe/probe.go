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

// Package probe fingerprints discovered resources with *IDN? and assigns
// stable fleet identifiers.
package probe

import (
	"context"
	"errors"
	"net"
	"os"
	"time"

	"github.com/carverauto/visafleet/pkg/logger"
	"github.com/carverauto/visafleet/pkg/models"
	"github.com/carverauto/visafleet/pkg/visa"
	"golang.org/x/sync/errgroup"
)

const (
	idnQuery = "*IDN?"

	NoteTimedOut   = "Connection Timed Out"
	NoteIdentFails = "Identification Failed"
)

// Outcome classifies a single identification attempt.
type Outcome int

const (
	OutcomeProbed Outcome = iota
	OutcomeTimeout
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeProbed:
		return "probed"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the identification result for one target.
type Result struct {
	Target   models.DiscoveryTarget
	Outcome  Outcome
	IDN      string
	Attempts int
	Err      error
}

// Prober runs identification queries against discovered targets.
type Prober struct {
	rm          visa.ResourceManager
	opts        visa.Options
	retryDelay  time.Duration
	concurrency int
	logger      logger.Logger
}

func NewProber(rm visa.ResourceManager, cfg *models.FleetConfig, log logger.Logger) *Prober {
	opts := visa.DefaultOptions()
	opts.Timeout = cfg.SessionTimeout.Std()

	return &Prober{
		rm:          rm,
		opts:        opts,
		retryDelay:  cfg.RetryDelay.Std(),
		concurrency: max(cfg.ProbeConcurrency, 1),
		logger:      log,
	}
}

// Probe identifies every target and returns the scan's inventory keyed by
// identifier. Identification runs concurrently; identifiers are assigned in
// target order so collision suffixes are deterministic.
func (p *Prober) Probe(ctx context.Context, targets []models.DiscoveryTarget) map[string]models.InventoryEntry {
	results := make([]Result, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for i, target := range targets {
		g.Go(func() error {
			results[i] = p.Identify(gctx, target)
			return nil
		})
	}

	_ = g.Wait()

	inventory := make(map[string]models.InventoryEntry, len(results))
	used := make(map[string]struct{}, len(results))

	for _, res := range results {
		base, entry := BuildEntry(res)
		entry.Identifier = uniqueIdentifier(base, used)
		inventory[entry.Identifier] = entry

		if entry.Identifier != base {
			p.logger.Warn().
				Str("base", base).
				Str("identifier", entry.Identifier).
				Str("resource", entry.ResourceString).
				Msg("Identifier collision, assigned suffix")
		}
	}

	p.logger.Info().Int("targets", len(targets)).Int("entries", len(inventory)).Msg("Probe complete")

	return inventory
}

// Identify queries *IDN? on one target. Local-bus resources get one retry
// after the retry delay when the first attempt errors or replies empty.
func (p *Prober) Identify(ctx context.Context, target models.DiscoveryTarget) Result {
	res := Result{Target: target}

	attempts := 1
	if visa.IsLocalBus(target.Resource) {
		attempts = 2
	}

	for res.Attempts < attempts {
		if res.Attempts > 0 {
			p.logger.Debug().
				Str("resource", target.Resource).
				Dur("delay", p.retryDelay).
				Msg("Retrying identification")

			if err := sleepCtx(ctx, p.retryDelay); err != nil {
				res.Err = err
				break
			}
		}

		res.Attempts++

		idn, err := p.query(ctx, target.Resource)
		if err == nil {
			res.Outcome = OutcomeProbed
			res.IDN = idn
			res.Err = nil

			return res
		}

		res.Err = err
	}

	res.Outcome = classify(res.Err)

	p.logger.Warn().
		Err(res.Err).
		Str("resource", target.Resource).
		Str("outcome", res.Outcome.String()).
		Int("attempts", res.Attempts).
		Msg("Identification failed")

	return res
}

func (p *Prober) query(ctx context.Context, resource string) (string, error) {
	sess, err := p.rm.Open(ctx, resource, p.opts)
	if err != nil {
		return "", err
	}

	defer func() { _ = sess.Close() }()

	reply, err := sess.Query(idnQuery)
	if err != nil {
		return "", err
	}

	idn := visa.CleanPrintable(reply)
	if idn == "" {
		return "", errEmptyIDN
	}

	return idn, nil
}

// BuildEntry turns a result into an inventory entry and returns the base
// identifier it should be filed under.
func BuildEntry(res Result) (string, models.InventoryEntry) {
	resource := visa.CleanPrintable(res.Target.Resource)
	details := visa.ParseConnectionDetails(resource)

	entry := models.InventoryEntry{
		Kind:           res.Target.Kind,
		ResourceString: resource,
		IPAddress:      details.IP,
		InterfacePort:  details.Interface,
		GPIBAddress:    details.GPIBAddress,
	}

	if res.Outcome != OutcomeProbed {
		entry.Status = models.StatusUnresponsive
		entry.Manufacturer = models.Unknown
		entry.Model = models.Unknown
		entry.SerialNumber = models.Unknown
		entry.Firmware = models.Unknown
		entry.DeviceType = models.Unknown
		entry.Notes = NoteIdentFails

		if res.Outcome == OutcomeTimeout {
			entry.Notes = NoteTimedOut
		}

		return Sanitize(resource), entry
	}

	idn := ParseIDN(res.IDN)

	entry.Status = models.StatusActive
	entry.Manufacturer = idn.Manufacturer
	entry.Model = idn.Model
	entry.SerialNumber = idn.Serial
	entry.Firmware = idn.Firmware
	entry.IDNString = res.IDN

	return BaseIdentifier(idn, details), entry
}

func classify(err error) Outcome {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return OutcomeTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return OutcomeTimeout
	}

	return OutcomeFailed
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
