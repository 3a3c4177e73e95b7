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

//go:generate mockgen -destination=mock_visa.go -package=visa github.com/carverauto/visafleet/pkg/visa Session,ResourceManager

package visa

import (
	"context"
	"strings"
	"time"
)

// Session is an open connection to one instrument. Implementations are not
// safe for concurrent use; callers serialize access.
type Session interface {
	Write(cmd string) error
	Query(cmd string) (string, error)
	Close() error
}

// ResourceManager enumerates local resources and opens sessions.
type ResourceManager interface {
	ListResources(ctx context.Context) ([]string, error)
	Open(ctx context.Context, resource string, opts Options) (Session, error)
}

// Options configure a session at open time.
type Options struct {
	Timeout          time.Duration
	ReadTermination  string
	WriteTermination string
	// QueryDelay is slept between the write and read halves of a query.
	QueryDelay time.Duration
}

const (
	defaultTimeout     = 5 * time.Second
	defaultTermination = "\n"
)

// DefaultOptions mirror the settings used for identification probes.
func DefaultOptions() Options {
	return Options{
		Timeout:          defaultTimeout,
		ReadTermination:  defaultTermination,
		WriteTermination: defaultTermination,
	}
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}

	if o.ReadTermination == "" {
		o.ReadTermination = defaultTermination
	}

	if o.WriteTermination == "" {
		o.WriteTermination = defaultTermination
	}

	return o
}

func (o Options) terminate(cmd string) string {
	if strings.HasSuffix(cmd, o.WriteTermination) {
		return cmd
	}

	return cmd + o.WriteTermination
}

func (o Options) trimReply(reply string) string {
	return strings.TrimSuffix(reply, o.ReadTermination)
}
