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

package inventory

import (
	_ "embed"
	"fmt"
	"sync"
	"time"

	"github.com/carverauto/visafleet/pkg/models"
	"gopkg.in/yaml.v3"
)

const (
	DefaultDeviceType = "Unknown Instrument"
	DefaultNotes      = "Not in Knowledge Base"

	timestampLayout = "2006-01-02T15:04:05.000000"
)

//go:embed known_types.yaml
var knownTypesYAML []byte

// KnownType describes an instrument model.
type KnownType struct {
	Type  string `yaml:"type"`
	Notes string `yaml:"notes"`
}

// KnowledgeBase maps IDN model strings to instrument types.
type KnowledgeBase struct {
	models map[string]KnownType
}

type knowledgeFile struct {
	Models map[string]KnownType `yaml:"models"`
}

// ParseKnowledgeBase decodes a YAML document with a top-level "models" map.
func ParseKnowledgeBase(data []byte) (*KnowledgeBase, error) {
	var f knowledgeFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKnowledgeBase, err)
	}

	if f.Models == nil {
		f.Models = make(map[string]KnownType)
	}

	return &KnowledgeBase{models: f.Models}, nil
}

var defaultKnowledgeBase = sync.OnceValues(func() (*KnowledgeBase, error) {
	return ParseKnowledgeBase(knownTypesYAML)
})

// DefaultKnowledgeBase returns the built-in instrument table.
func DefaultKnowledgeBase() (*KnowledgeBase, error) {
	return defaultKnowledgeBase()
}

// Lookup returns the entry for model, if known.
func (kb *KnowledgeBase) Lookup(model string) (KnownType, bool) {
	kt, ok := kb.models[model]
	return kt, ok
}

func (kb *KnowledgeBase) Len() int {
	return len(kb.models)
}

// Augment fills the presentation fields of an entry: device type and notes
// from the table, allocated cleared, connection timestamp set to now.
func (kb *KnowledgeBase) Augment(entry models.InventoryEntry, now time.Time) models.InventoryEntry {
	entry.DeviceType = DefaultDeviceType
	entry.Notes = DefaultNotes
	entry.Allocated = false
	entry.ConnectionTimestamp = now.Format(timestampLayout)

	if kt, ok := kb.Lookup(entry.Model); ok {
		entry.DeviceType = kt.Type
		entry.Notes = kt.Notes
	}

	return entry
}
