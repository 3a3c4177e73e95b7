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

package fleet

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/carverauto/visafleet/pkg/logger"
	"github.com/carverauto/visafleet/pkg/models"
	"github.com/carverauto/visafleet/pkg/visa"
)

// Proxy owns the session of one instrument. Every session operation runs on
// the proxy's single worker goroutine, in enqueue order.
type Proxy struct {
	id          string
	sink        FleetObserver
	stopTimeout time.Duration
	logger      logger.Logger

	mu       sync.Mutex
	resource string
	session  visa.Session
	retired  []visa.Session
	queue    []models.Command
	started  bool
	stopped  bool

	notify chan struct{}
	stop   chan struct{}
	done   chan struct{}
}

func NewProxy(id, resource string, sink FleetObserver, stopTimeout time.Duration, log logger.Logger) *Proxy {
	return &Proxy{
		id:          id,
		resource:    resource,
		sink:        sink,
		stopTimeout: stopTimeout,
		logger:      log,
		notify:      make(chan struct{}, 1),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

func (p *Proxy) ID() string {
	return p.id
}

func (p *Proxy) Resource() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.resource
}

// SetResource records a new resource string for the device. The open
// session, if any, is kept.
func (p *Proxy) SetResource(resource string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.resource = resource
}

// Connected reports whether the proxy holds a session.
func (p *Proxy) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.session != nil
}

// EnqueueCommand queues a command without blocking. A stopped proxy, or one
// whose worker never started, rejects it through the error callback.
func (p *Proxy) EnqueueCommand(text string, isQuery bool, correlationID string) {
	p.mu.Lock()

	if p.stopped || !p.started {
		p.mu.Unlock()

		msg := MsgNotConnected
		if p.stopped {
			msg = MsgProxyStopped
		}

		p.sink.OnDeviceError(p.id, msg, text)

		return
	}

	p.queue = append(p.queue, models.Command{Text: text, IsQuery: isQuery, CorrelationID: correlationID})
	p.mu.Unlock()

	select {
	case p.notify <- struct{}{}:
	default:
	}

	p.logger.Debug().Str("device", p.id).Str("command", text).Bool("query", isQuery).Msg("Command enqueued")
}

// SetSession links or unlinks the instrument session and starts the worker
// on first use. A replaced session is closed by the worker.
func (p *Proxy) SetSession(s visa.Session) error {
	p.mu.Lock()

	if p.stopped {
		p.mu.Unlock()
		return ErrProxyStopped
	}

	if p.session != nil && p.session != s {
		p.retired = append(p.retired, p.session)
	}

	p.session = s
	start := !p.started
	p.started = true
	p.mu.Unlock()

	if start {
		go p.run()
	}

	p.wake()

	status := models.ProxyConnected
	if s == nil {
		status = models.ProxyDisconnected

		p.logger.Warn().Str("device", p.id).Msg("Proxy unlinked from instrument")
	}

	p.sink.OnProxyStatus(p.id, status)

	return nil
}

// Shutdown stops the worker, waiting up to the stop timeout, then closes
// the session. It is safe to call more than once.
func (p *Proxy) Shutdown() {
	p.mu.Lock()

	if p.stopped {
		p.mu.Unlock()
		return
	}

	p.stopped = true
	started := p.started
	close(p.stop)
	p.mu.Unlock()

	p.logger.Debug().Str("device", p.id).Msg("Shutting down proxy")

	if started {
		t := time.NewTimer(p.stopTimeout)

		select {
		case <-p.done:
		case <-t.C:
			p.logger.Warn().Str("device", p.id).Dur("timeout", p.stopTimeout).Msg("Proxy worker did not stop in time")
			p.sink.OnDeviceError(p.id, MsgWorkerStuck, CommandShutdown)
		}

		t.Stop()
	}

	p.mu.Lock()
	sess := p.session
	retired := p.retired
	p.session, p.retired, p.queue = nil, nil, nil
	p.mu.Unlock()

	closeSessions(retired)

	if sess == nil {
		return
	}

	if err := sess.Close(); err != nil {
		p.sink.OnDeviceError(p.id, fmt.Sprintf("close session: %v", err), CommandShutdown)
	}

	p.sink.OnProxyStatus(p.id, models.ProxyDisconnected)
}

func (p *Proxy) wake() {
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

func (p *Proxy) run() {
	defer close(p.done)

	for {
		select {
		case <-p.stop:
			return
		case <-p.notify:
		}

		for {
			select {
			case <-p.stop:
				return
			default:
			}

			cmd, sess, ok := p.next()
			if !ok {
				break
			}

			p.execute(sess, cmd)
		}
	}
}

// next pops the oldest command and returns the session to run it on,
// closing any sessions replaced since the last command.
func (p *Proxy) next() (models.Command, visa.Session, bool) {
	p.mu.Lock()
	retired := p.retired
	p.retired = nil

	var (
		cmd models.Command
		ok  bool
	)

	if len(p.queue) > 0 {
		cmd, ok = p.queue[0], true
		p.queue[0] = models.Command{}
		p.queue = p.queue[1:]
	}

	sess := p.session
	p.mu.Unlock()

	closeSessions(retired)

	return cmd, sess, ok
}

func (p *Proxy) execute(sess visa.Session, cmd models.Command) {
	if sess == nil {
		p.sink.OnDeviceError(p.id, MsgNotConnected, cmd.Text)
		return
	}

	if strings.ContainsAny(cmd.Text, "<>") {
		p.sink.OnDeviceError(p.id, MsgPlaceholder, cmd.Text)
		return
	}

	if !cmd.IsQuery {
		if err := sess.Write(cmd.Text); err != nil {
			p.fail(sess, cmd, "write", err)
			return
		}

		p.logger.Debug().Str("device", p.id).Str("command", cmd.Text).Msg("Command sent")

		return
	}

	reply, err := sess.Query(cmd.Text)
	if err != nil {
		p.fail(sess, cmd, "query", err)
		return
	}

	reply = strings.TrimSpace(reply)

	p.logger.Debug().Str("device", p.id).Str("command", cmd.Text).Str("response", reply).Msg("Query answered")
	p.sink.OnDeviceResponse(p.id, reply, cmd.Text, cmd.CorrelationID)
}

// fail reports a command failure and, unless the command was itself a
// reset, writes one *RST to bring the instrument back to a known state.
// A broken transport is unlinked instead, so the next scan reconnects.
func (p *Proxy) fail(sess visa.Session, cmd models.Command, op string, err error) {
	p.sink.OnDeviceError(p.id, fmt.Sprintf("%s %q: %v", op, cmd.Text, err), cmd.Text)

	if errors.Is(err, visa.ErrSessionBroken) {
		p.unlink(sess, err)
		return
	}

	if isReset(cmd.Text) {
		return
	}

	p.logger.Warn().Err(err).Str("device", p.id).Str("command", cmd.Text).Msg("Command failed, resetting instrument")

	if rerr := sess.Write(CommandReset); rerr != nil {
		p.sink.OnDeviceError(p.id, fmt.Sprintf("%s: %v", MsgResetFailed, rerr), CommandReset)

		if errors.Is(rerr, visa.ErrSessionBroken) {
			p.unlink(sess, rerr)
		}
	}
}

// unlink drops sess if it is still the proxy's session. The worker keeps
// running and reports MsgNotConnected until a new session is set.
func (p *Proxy) unlink(sess visa.Session, err error) {
	p.mu.Lock()
	current := p.session == sess

	if current {
		p.session = nil
	}
	p.mu.Unlock()

	if !current {
		return
	}

	_ = sess.Close()

	p.logger.Warn().Err(err).Str("device", p.id).Msg("Session transport broken, proxy unlinked")
	p.sink.OnProxyStatus(p.id, models.ProxyDisconnected)
}

func isReset(text string) bool {
	t := strings.TrimSpace(text)

	return strings.EqualFold(t, CommandReset) || strings.EqualFold(t, commandPowerReset)
}

func closeSessions(sessions []visa.Session) {
	for _, s := range sessions {
		_ = s.Close()
	}
}
