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

package natsutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/carverauto/visafleet/pkg/models"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// CommandAck is the reply sent to request/reply command senders.
type CommandAck struct {
	Accepted      bool   `json:"accepted"`
	CorrelationID string `json:"correlation_id,omitempty"`
	Error         string `json:"error,omitempty"`
}

// SubscribeCommands delivers requests published on "<prefix>.commands" to
// handler. Requests without a correlation id get a generated one, which is
// echoed to senders that asked for a reply.
func (p *FleetPublisher) SubscribeCommands(handler func(models.CommandRequest)) error {
	if p.nc == nil {
		return ErrNotConnected
	}

	subject := p.subject("commands")

	sub, err := p.nc.Subscribe(subject, func(msg *nats.Msg) {
		var req models.CommandRequest

		if err := json.Unmarshal(msg.Data, &req); err != nil {
			p.logger.Warn().Err(err).Str("subject", msg.Subject).Msg("Dropping malformed command request")
			p.reply(msg, CommandAck{Error: "malformed request"})

			return
		}

		if req.Identifier == "" || strings.TrimSpace(req.Command) == "" {
			p.reply(msg, CommandAck{CorrelationID: req.CorrelationID, Error: "identifier and command are required"})

			return
		}

		if req.CorrelationID == "" {
			req.CorrelationID = uuid.New().String()
		}

		handler(req)

		p.reply(msg, CommandAck{Accepted: true, CorrelationID: req.CorrelationID})
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	p.mu.Lock()
	p.subs = append(p.subs, sub)
	p.mu.Unlock()

	p.logger.Info().Str("subject", subject).Msg("Listening for fleet commands")

	return nil
}

func (p *FleetPublisher) reply(msg *nats.Msg, ack CommandAck) {
	if msg.Reply == "" {
		return
	}

	data, err := json.Marshal(ack)
	if err != nil {
		return
	}

	if err := msg.Respond(data); err != nil {
		p.logger.Debug().Err(err).Msg("Failed to answer command request")
	}
}

func isStreamMissingErr(err error) bool {
	return errors.Is(err, jetstream.ErrStreamNotFound) ||
		errors.Is(err, jetstream.ErrNoStreamResponse) ||
		errors.Is(err, nats.ErrNoResponders)
}

// ensureSubjectList appends subject unless an existing pattern already covers it.
func ensureSubjectList(subjects []string, subject string) []string {
	for _, pattern := range subjects {
		if matchesSubject(pattern, subject) {
			return subjects
		}
	}

	return append(subjects, subject)
}

// matchesSubject reports whether pattern covers subject using NATS wildcard
// rules. A literal ">" token in subject is matched only by ">" in pattern.
func matchesSubject(pattern, subject string) bool {
	pt := strings.Split(pattern, ".")
	st := strings.Split(subject, ".")

	for i, tok := range pt {
		if tok == ">" {
			return i < len(st)
		}

		if i >= len(st) {
			return false
		}

		if tok == "*" && st[i] == ">" {
			return false
		}

		if tok != "*" && tok != st[i] {
			return false
		}
	}

	return len(pt) == len(st)
}
