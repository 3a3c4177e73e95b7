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
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/carverauto/visafleet/pkg/logger"
	"github.com/carverauto/visafleet/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 3, 14, 15, 9, 26, 535897000, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	dir := t.TempDir()
	cfg := models.DefaultFleetConfig()
	cfg.DataDir = dir
	cfg.InventoryPath = filepath.Join(dir, "VISA_FLEET.json")
	cfg.TablesDir = filepath.Join(dir, "Tables")

	s, err := NewStore(cfg, logger.NewTestLogger(), WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)

	return s
}

func sampleEntries() []models.InventoryEntry {
	return []models.InventoryEntry{
		{
			Identifier: "MY123", Kind: models.KindGateway, ResourceString: "TCPIP::10.0.0.2::gpib0,22::INSTR",
			IPAddress: "10.0.0.2", InterfacePort: "gpib0", GPIBAddress: "22", Status: models.StatusActive,
			Manufacturer: "Agilent", Model: "34401A", SerialNumber: "MY123", DeviceType: "DMM",
		},
		{
			Identifier: "SN123", Kind: models.KindDedicated, ResourceString: "TCPIP::10.0.0.5::INSTR",
			IPAddress: "10.0.0.5", InterfacePort: "Ethernet", GPIBAddress: "Direct", Status: models.StatusConnected,
			Manufacturer: "ACME", Model: "WIDGET-9000", SerialNumber: "SN123", DeviceType: DefaultDeviceType,
		},
	}
}

func TestKnowledgeBaseAugment(t *testing.T) {
	kb, err := DefaultKnowledgeBase()
	require.NoError(t, err)
	assert.Positive(t, kb.Len())

	known := kb.Augment(models.InventoryEntry{Model: "34401A", Allocated: true}, fixedNow)
	assert.Equal(t, "DMM", known.DeviceType)
	assert.Equal(t, "6.5 Digit Benchtop Standard (Legacy)", known.Notes)
	assert.False(t, known.Allocated)
	assert.Equal(t, "2025-03-14T15:09:26.535897", known.ConnectionTimestamp)

	unknown := kb.Augment(models.InventoryEntry{Model: "WIDGET-9000"}, fixedNow)
	assert.Equal(t, DefaultDeviceType, unknown.DeviceType)
	assert.Equal(t, DefaultNotes, unknown.Notes)
}

func TestParseKnowledgeBaseRejectsGarbage(t *testing.T) {
	_, err := ParseKnowledgeBase([]byte("models: [unclosed"))
	require.ErrorIs(t, err, ErrKnowledgeBase)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	entries := sampleEntries()

	require.NoError(t, s.Save(entries))

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, entries, got)

	grouped, err := s.LoadGrouped()
	require.NoError(t, err)

	table := grouped["DMM"].YAK["34401A"].Connection.Table
	assert.Equal(t, TableType, table.Type)
	assert.Equal(t, TableDescription, table.Description)
	assert.Equal(t, TableHeaders, table.Headers)
	assert.Equal(t, "MY123", table.Data["22"].Identifier)
}

func TestSaveEmptyListLoadsEmpty(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Save(nil))

	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Empty(t, doc)

	got, err := s.Load()
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestLoadMissingFileCreatesIt(t *testing.T) {
	s := newTestStore(t)

	got, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.FileExists(t, s.Path())
}

func TestLoadEmptyFile(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.WriteFile(s.Path(), nil, 0o600))

	got, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLoadCorruptFile(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.WriteFile(s.Path(), []byte("{not json"), 0o600))

	_, err := s.Load()
	require.ErrorIs(t, err, ErrDecodeInventory)
}

func TestSaveFailureKeepsPreviousSnapshot(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save(sampleEntries()))

	original := s.Path()

	before, err := os.ReadFile(original)
	require.NoError(t, err)

	// The parent of the new path is a regular file, so the write must fail.
	s.path = filepath.Join(original, "nested", "VISA_FLEET.json")
	require.Error(t, s.Save(nil))

	after, err := os.ReadFile(original)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(original), "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestGroupGPIBCollisionIsLossless(t *testing.T) {
	entries := []models.InventoryEntry{
		{Identifier: "A1", DeviceType: "DMM", Model: "34401A", GPIBAddress: "Direct"},
		{Identifier: "B2", DeviceType: "DMM", Model: "34401A", GPIBAddress: "Direct"},
	}

	grouped := Group(entries)
	data := grouped["DMM"].YAK["34401A"].Connection.Table.Data

	assert.Len(t, data, 2)
	assert.Equal(t, "A1", data["Direct"].Identifier)
	assert.Equal(t, "B2", data["Direct#B2"].Identifier)
	assert.Equal(t, entries, Flatten(grouped))
}

func TestSaveQueryResponse(t *testing.T) {
	s := newTestStore(t)

	first, err := s.SaveQueryResponse("SN123", "+1.0E+00", "MEAS:VOLT?", "corr-1")
	require.NoError(t, err)

	second, err := s.SaveQueryResponse("SN123", "+2.0E+00", "MEAS:VOLT?", "corr-2")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Equal(t, "SN123_query_20250314150926_1.json", filepath.Base(first))

	raw, err := os.ReadFile(first)
	require.NoError(t, err)

	var rec map[string]string
	require.NoError(t, json.Unmarshal(raw, &rec))
	assert.Equal(t, map[string]string{
		"serial_number":  "SN123",
		"command":        "MEAS:VOLT?",
		"response":       "+1.0E+00",
		"correlation_id": "corr-1",
		"timestamp":      "2025-03-14T15:09:26.535897",
	}, rec)
}

func TestExportTables(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save(sampleEntries()))

	require.NoError(t, os.MkdirAll(s.tablesDir, 0o755))
	stale := filepath.Join(s.tablesDir, "old.csv")
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o600))

	n, err := s.ExportTables("")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoFileExists(t, stale)

	f, err := os.Open(filepath.Join(s.tablesDir, "OPEN-AIR_DMM_YAK_34401A_Connection_Table.csv"))
	require.NoError(t, err)

	defer func() { _ = f.Close() }()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, TableHeaders, rows[0])
	assert.Equal(t, "GATEWAY", rows[1][0])
	assert.Equal(t, "TCPIP::10.0.0.2::gpib0,22::INSTR", rows[1][1])
	assert.Equal(t, "false", rows[1][13])

	assert.FileExists(t, filepath.Join(s.tablesDir,
		"OPEN-AIR_Unknown_Instrument_YAK_WIDGET-9000_Connection_Table.csv"))
}
