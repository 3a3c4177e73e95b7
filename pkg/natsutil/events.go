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

// Package natsutil bridges the fleet to NATS: CloudEvents out over JetStream
// and command requests in over core NATS.
package natsutil

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/carverauto/visafleet/pkg/fleet"
	"github.com/carverauto/visafleet/pkg/inventory"
	"github.com/carverauto/visafleet/pkg/logger"
	"github.com/carverauto/visafleet/pkg/models"
	"github.com/carverauto/visafleet/pkg/probe"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	defaultPublishTimeout = 5 * time.Second
	defaultPublishQueue   = 1024
	contentTypeJSON       = "application/json"
)

// Subject families bound to the fleet stream. Command requests live outside
// them so JetStream never acks or stores them.
var streamFamilies = []string{"inventory", "status", "device"}

type outboundEvent struct {
	id      string
	subject string
	data    []byte
}

// FleetPublisher publishes fleet state as CloudEvents. It serves both as the
// manager's bridge and as a fleet observer for device level events.
//
// Events are handed to a single sender goroutine through a bounded queue, so
// callers never wait on the bus. Events that do not fit are dropped.
type FleetPublisher struct {
	fleet.NopObserver

	nc      *nats.Conn
	js      jetstream.JetStream
	stream  string
	prefix  string
	source  string
	timeout time.Duration
	logger  logger.Logger
	now     func() time.Time

	queue   chan outboundEvent
	stop    chan struct{}
	done    chan struct{}
	dropped atomic.Uint64

	mu        sync.Mutex
	subs      []*nats.Subscription
	closeOnce sync.Once
}

var (
	_ fleet.Bridge        = (*FleetPublisher)(nil)
	_ fleet.FleetObserver = (*FleetPublisher)(nil)
)

// NewFleetPublisher wraps an existing JetStream context and starts the sender
// goroutine. The stream is not created; use Connect for that.
func NewFleetPublisher(js jetstream.JetStream, cfg models.NATSConfig, log logger.Logger) *FleetPublisher {
	size := cfg.PublishQueue
	if size <= 0 {
		size = defaultPublishQueue
	}

	p := &FleetPublisher{
		js:      js,
		stream:  cfg.StreamName,
		prefix:  cfg.SubjectPrefix,
		source:  cfg.Source,
		timeout: defaultPublishTimeout,
		logger:  log,
		now:     time.Now,
		queue:   make(chan outboundEvent, size),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	go p.run()

	return p
}

// Connect dials NATS, makes sure the fleet stream captures the event subject
// families under the configured prefix and returns a publisher owning the
// connection.
func Connect(ctx context.Context, cfg models.NATSConfig, log logger.Logger, extraOpts ...nats.Option) (*FleetPublisher, error) {
	opts, err := connectOptions(cfg, log)
	if err != nil {
		return nil, err
	}

	opts = append(opts, extraOpts...)

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	var js jetstream.JetStream

	if cfg.Domain != "" {
		js, err = jetstream.NewWithDomain(nc, cfg.Domain)
	} else {
		js, err = jetstream.New(nc)
	}

	if err != nil {
		nc.Close()

		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if err := ensureStream(ctx, js, cfg.StreamName, cfg.SubjectPrefix); err != nil {
		nc.Close()

		return nil, err
	}

	log.Info().
		Str("stream", cfg.StreamName).
		Str("prefix", cfg.SubjectPrefix).
		Msg("NATS fleet bridge ready")

	p := NewFleetPublisher(js, cfg, log)
	p.nc = nc

	return p, nil
}

func connectOptions(cfg models.NATSConfig, log logger.Logger) ([]nats.Option, error) {
	opts := []nats.Option{nats.Name(cfg.Source)}

	tlsConf, err := TLSConfig(cfg.TLS)
	if err != nil {
		return nil, fmt.Errorf("failed to build NATS TLS config: %w", err)
	}

	if tlsConf != nil {
		opts = append(opts, nats.Secure(tlsConf))
	}

	opts = append(opts,
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
		nats.ConnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("Connected to NATS")
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)

	return opts, nil
}

// streamSubjects lists the stream bindings for the event families under prefix.
func streamSubjects(prefix string) []string {
	subjects := make([]string, 0, len(streamFamilies))
	for _, family := range streamFamilies {
		subjects = append(subjects, prefix+"."+family+".>")
	}

	return subjects
}

// ensureStream creates the stream or widens an existing one so that it
// captures the event families under prefix. A "<prefix>.>" binding is
// replaced, since it would swallow command requests.
func ensureStream(ctx context.Context, js jetstream.JetStream, name, prefix string) error {
	wanted := streamSubjects(prefix)

	stream, err := js.Stream(ctx, name)
	if err != nil {
		if !isStreamMissingErr(err) {
			return fmt.Errorf("failed to look up stream %s: %w", name, err)
		}

		_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
			Name:     name,
			Subjects: wanted,
		})
		if err != nil {
			return fmt.Errorf("failed to create stream %s: %w", name, err)
		}

		return nil
	}

	streamCfg := stream.CachedInfo().Config

	catchAll := prefix + ".>"
	subjects := slices.DeleteFunc(slices.Clone(streamCfg.Subjects), func(s string) bool { return s == catchAll })

	for _, subject := range wanted {
		subjects = ensureSubjectList(subjects, subject)
	}

	if slices.Equal(subjects, streamCfg.Subjects) {
		return nil
	}

	streamCfg.Subjects = subjects

	if _, err := js.UpdateStream(ctx, streamCfg); err != nil {
		return fmt.Errorf("failed to update stream %s: %w", name, err)
	}

	return nil
}

// PublishInventory sends the grouped snapshot followed by one event per device.
func (p *FleetPublisher) PublishInventory(ctx context.Context, grouped inventory.Grouped) {
	p.publish(ctx, p.subject("inventory", "snapshot"), models.EventTypeInventorySnapshot, grouped)

	paths, tables := grouped.Tables()

	for i, path := range paths {
		for key, entry := range tables[i].Data {
			subject := p.subject("inventory", "device", token(path.DeviceType), token(path.Model), token(key))
			p.publish(ctx, subject, models.EventTypeDeviceInventory, entry)
		}
	}
}

// PublishScanStatus reports the start or completion of a scan.
func (p *FleetPublisher) PublishScanStatus(ctx context.Context, phase string, status models.ScanStatus) {
	p.publish(ctx, p.subject("status", "fleet", token(phase)), models.EventTypeScanStatus, status)
}

func (p *FleetPublisher) OnDeviceResponse(identifier, response, command, correlationID string) {
	p.publish(context.Background(), p.subject("device", token(identifier), "response"), models.EventTypeDeviceResponse,
		models.DeviceResponse{
			Identifier:    identifier,
			Response:      response,
			Command:       command,
			CorrelationID: correlationID,
		})
}

func (p *FleetPublisher) OnDeviceError(identifier, message, command string) {
	p.publish(context.Background(), p.subject("device", token(identifier), "error"), models.EventTypeDeviceError,
		models.DeviceError{Identifier: identifier, Message: message, Command: command})
}

func (p *FleetPublisher) OnProxyStatus(identifier, status string) {
	p.publish(context.Background(), p.subject("device", token(identifier), "status"), models.EventTypeDeviceStatus,
		models.DeviceStatusChange{Identifier: identifier, Status: status})
}

// Dropped reports how many events were discarded because the queue was full
// or the publisher was closed.
func (p *FleetPublisher) Dropped() uint64 {
	return p.dropped.Load()
}

// Close drops command subscriptions, flushes queued events for up to the
// publish timeout and closes an owned connection.
func (p *FleetPublisher) Close() error {
	p.mu.Lock()
	subs := p.subs
	p.subs = nil
	p.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			p.logger.Debug().Err(err).Str("subject", sub.Subject).Msg("Unsubscribe failed")
		}
	}

	p.closeOnce.Do(func() {
		close(p.stop)
		<-p.done
	})

	if p.nc != nil {
		p.nc.Close()
	}

	return nil
}

// publish queues an event without blocking. Bus trouble is logged only.
func (p *FleetPublisher) publish(ctx context.Context, subject, eventType string, data interface{}) {
	if ctx.Err() != nil {
		return
	}

	now := p.now().UTC()

	event := models.CloudEvent{
		SpecVersion:     "1.0",
		ID:              uuid.New().String(),
		Source:          p.source,
		Type:            eventType,
		DataContentType: contentTypeJSON,
		Subject:         subject,
		Time:            &now,
		Data:            data,
	}

	eventBytes, err := json.Marshal(event)
	if err != nil {
		p.logger.Error().Err(err).Str("type", eventType).Msg("Failed to marshal fleet event")

		return
	}

	out := outboundEvent{id: event.ID, subject: subject, data: eventBytes}

	select {
	case <-p.stop:
		p.drop(out, "publisher closed")

		return
	default:
	}

	select {
	case p.queue <- out:
	default:
		p.drop(out, "publish queue full")
	}
}

func (p *FleetPublisher) drop(out outboundEvent, reason string) {
	n := p.dropped.Add(1)

	p.logger.Warn().
		Str("subject", out.subject).
		Uint64("dropped", n).
		Msg("Dropping fleet event: " + reason)
}

// run is the only goroutine talking to JetStream, which keeps events in the
// order they were queued.
func (p *FleetPublisher) run() {
	defer close(p.done)

	for {
		select {
		case out := <-p.queue:
			ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
			p.send(ctx, out)
			cancel()
		case <-p.stop:
			p.flush()

			return
		}
	}
}

// flush sends what is still queued, sharing one publish timeout.
func (p *FleetPublisher) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	for {
		select {
		case out := <-p.queue:
			if ctx.Err() != nil {
				p.drop(out, "flush timed out")

				continue
			}

			p.send(ctx, out)
		default:
			return
		}
	}
}

func (p *FleetPublisher) send(ctx context.Context, out outboundEvent) {
	if p.js == nil {
		p.drop(out, "no JetStream context")

		return
	}

	ack, err := p.js.Publish(ctx, out.subject, out.data)
	if err != nil {
		p.logger.Warn().Err(err).Str("subject", out.subject).Msg("Failed to publish fleet event")

		return
	}

	p.logger.Debug().
		Str("id", out.id).
		Str("subject", out.subject).
		Uint64("seq", ack.Sequence).
		Msg("Published fleet event")
}

func (p *FleetPublisher) subject(tokens ...string) string {
	return p.prefix + "." + strings.Join(tokens, ".")
}

// token makes s usable as a single subject token.
func token(s string) string {
	s = probe.Sanitize(strings.TrimSpace(s))
	if s == "" || s == "_" {
		return "unknown"
	}

	return s
}
