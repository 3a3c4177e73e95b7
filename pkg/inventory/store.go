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

// Package inventory persists the fleet inventory and enriches entries from
// the instrument knowledge base.
package inventory

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/carverauto/visafleet/pkg/logger"
	"github.com/carverauto/visafleet/pkg/models"
)

const (
	dirPerms  = 0o755
	filePerms = 0o644

	responseStampLayout = "20060102150405"
	jsonIndent          = "    "
)

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// Store reads and writes the persisted inventory and per-response audit files.
type Store struct {
	path      string
	dataDir   string
	tablesDir string
	kb        *KnowledgeBase
	logger    logger.Logger
	now       func() time.Time
	seq       atomic.Uint64
	mu        sync.Mutex
}

// StoreOption customizes a Store.
type StoreOption func(*Store)

// WithKnowledgeBase replaces the built-in instrument table.
func WithKnowledgeBase(kb *KnowledgeBase) StoreOption {
	return func(s *Store) { s.kb = kb }
}

// WithClock replaces the time source used for timestamps.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

func NewStore(cfg *models.FleetConfig, log logger.Logger, opts ...StoreOption) (*Store, error) {
	if cfg.InventoryPath == "" {
		return nil, errMissingPath
	}

	s := &Store{
		path:      cfg.InventoryPath,
		dataDir:   cfg.DataDir,
		tablesDir: cfg.TablesDir,
		logger:    log,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.kb == nil {
		kb, err := DefaultKnowledgeBase()
		if err != nil {
			return nil, err
		}

		s.kb = kb
	}

	return s, nil
}

func (s *Store) Path() string {
	return s.path
}

// Augment enriches an entry from the knowledge base.
func (s *Store) Augment(entry models.InventoryEntry) models.InventoryEntry {
	return s.kb.Augment(entry, s.now())
}

// Save groups entries and atomically replaces the inventory file. On error
// the previous file is left untouched.
func (s *Store) Save(entries []models.InventoryEntry) error {
	payload, err := json.MarshalIndent(Group(entries), "", jsonIndent)
	if err != nil {
		return fmt.Errorf("encode inventory: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeFileAtomic(s.path, payload); err != nil {
		return fmt.Errorf("persist inventory: %w", err)
	}

	s.logger.Debug().Str("path", s.path).Int("devices", len(entries)).Msg("Saved fleet inventory")

	return nil
}

// Load returns the persisted inventory as a flat list sorted by identifier.
// A missing file is created empty.
func (s *Store) Load() ([]models.InventoryEntry, error) {
	grouped, err := s.LoadGrouped()
	if err != nil {
		return nil, err
	}

	return Flatten(grouped), nil
}

// LoadGrouped returns the persisted inventory in its nested shape.
func (s *Store) LoadGrouped() (Grouped, error) {
	s.mu.Lock()
	data, err := os.ReadFile(s.path)
	s.mu.Unlock()

	if errors.Is(err, os.ErrNotExist) {
		s.logger.Info().Str("path", s.path).Msg("No inventory file, creating an empty one")

		if err := s.Save(nil); err != nil {
			return nil, err
		}

		return Grouped{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("read inventory: %w", err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return Grouped{}, nil
	}

	var grouped Grouped
	if err := json.Unmarshal(data, &grouped); err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrDecodeInventory, s.path, err)
	}

	if grouped == nil {
		grouped = Grouped{}
	}

	return grouped, nil
}

type queryRecord struct {
	SerialNumber  string `json:"serial_number"`
	Command       string `json:"command"`
	Response      string `json:"response"`
	CorrelationID string `json:"correlation_id"`
	Timestamp     string `json:"timestamp"`
}

// SaveQueryResponse writes one audit file per query response and returns
// its path.
func (s *Store) SaveQueryResponse(serial, response, command, correlationID string) (string, error) {
	if err := os.MkdirAll(s.dataDir, dirPerms); err != nil {
		return "", fmt.Errorf("create data directory: %w", err)
	}

	now := s.now()
	name := fmt.Sprintf("%s_query_%s_%d.json",
		unsafeFileChars.ReplaceAllString(serial, "_"), now.Format(responseStampLayout), s.seq.Add(1))
	path := filepath.Join(s.dataDir, name)

	payload, err := json.MarshalIndent(queryRecord{
		SerialNumber:  serial,
		Command:       command,
		Response:      response,
		CorrelationID: correlationID,
		Timestamp:     now.Format(timestampLayout),
	}, "", jsonIndent)
	if err != nil {
		return "", fmt.Errorf("encode query response: %w", err)
	}

	if err := os.WriteFile(path, payload, filePerms); err != nil {
		return "", fmt.Errorf("write query response: %w", err)
	}

	return path, nil
}

func writeFileAtomic(path string, payload []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPerms); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}

	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		cleanup()

		return err
	}

	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()

		return err
	}

	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}

	if err := os.Chmod(tmpPath, filePerms); err != nil {
		cleanup()
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return err
	}

	return nil
}
