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
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/carverauto/visafleet/pkg/models"
)

const tableRoot = "OPEN-AIR"

// TableFileName is the CSV file name for a table path.
func TableFileName(p TablePath) string {
	topic := strings.Join([]string{tableRoot, p.DeviceType, "YAK", p.Model, "Connection", "Table"}, "/")
	return unsafeFileChars.ReplaceAllString(topic, "_") + ".csv"
}

// ExportTables replaces the CSV files in dir with one file per table of the
// persisted inventory. An empty dir uses the configured tables directory.
// It returns the number of files written.
func (s *Store) ExportTables(dir string) (int, error) {
	if dir == "" {
		dir = s.tablesDir
	}

	grouped, err := s.LoadGrouped()
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(dir, dirPerms); err != nil {
		return 0, fmt.Errorf("create tables directory: %w", err)
	}

	stale, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return 0, err
	}

	for _, f := range stale {
		if err := os.Remove(f); err != nil {
			s.logger.Warn().Err(err).Str("file", f).Msg("Cannot remove stale table")
		}
	}

	paths, tables := grouped.Tables()

	for i, p := range paths {
		file := filepath.Join(dir, TableFileName(p))
		if err := writeTable(file, tables[i]); err != nil {
			return i, fmt.Errorf("write table %s: %w", file, err)
		}

		s.logger.Debug().Str("file", file).Int("rows", len(tables[i].Data)).Msg("Wrote table")
	}

	return len(paths), nil
}

func writeTable(path string, t Table) error {
	headers := t.Headers
	if len(headers) == 0 {
		headers = TableHeaders
	}

	keys := make([]string, 0, len(t.Data))
	for k := range t.Data {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	f, err := os.Create(path)
	if err != nil {
		return err
	}

	w := csv.NewWriter(f)

	if err := w.Write(headers); err != nil {
		_ = f.Close()
		return err
	}

	row := make([]string, len(headers))

	for _, k := range keys {
		e := t.Data[k]
		for i, h := range headers {
			row[i] = column(e, h)
		}

		if err := w.Write(row); err != nil {
			_ = f.Close()
			return err
		}
	}

	w.Flush()

	if err := w.Error(); err != nil {
		_ = f.Close()
		return err
	}

	return f.Close()
}

func column(e models.InventoryEntry, header string) string {
	switch header {
	case "identifier":
		return e.Identifier
	case "type":
		return string(e.Kind)
	case "resource_string":
		return e.ResourceString
	case "ip_address":
		return e.IPAddress
	case "interface_port":
		return e.InterfacePort
	case "gpib_address":
		return e.GPIBAddress
	case "status":
		return string(e.Status)
	case "manufacturer":
		return e.Manufacturer
	case "model":
		return e.Model
	case "serial_number":
		return e.SerialNumber
	case "firmware":
		return e.Firmware
	case "idn_string":
		return e.IDNString
	case "device_type":
		return e.DeviceType
	case "notes":
		return e.Notes
	case "allocated":
		return strconv.FormatBool(e.Allocated)
	case "connection_timestamp":
		return e.ConnectionTimestamp
	default:
		return ""
	}
}
