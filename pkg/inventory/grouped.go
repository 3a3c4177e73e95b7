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
	"sort"

	"github.com/carverauto/visafleet/pkg/models"
)

const (
	TableType        = "OcaTable"
	TableDescription = "Discovered Devices"

	unknownType  = "Unknown Type"
	unknownModel = "Unknown Model"
	unknownGPIB  = "Unknown GPIB"
)

// TableHeaders is the fixed column list of every persisted table.
var TableHeaders = []string{
	"type", "resource_string", "ip_address", "interface_port", "gpib_address", "status",
	"manufacturer", "model", "serial_number", "firmware", "idn_string", "device_type",
	"notes", "allocated", "connection_timestamp",
}

// Grouped is the persisted inventory shape:
// device_type -> "YAK" -> model -> "Connection" -> "Table" -> data -> gpib -> entry.
type Grouped map[string]TypeGroup

type TypeGroup struct {
	YAK map[string]ModelGroup `json:"YAK"`
}

type ModelGroup struct {
	Connection ConnectionGroup `json:"Connection"`
}

type ConnectionGroup struct {
	Table Table `json:"Table"`
}

// Table holds the devices of one type and model keyed by GPIB address.
type Table struct {
	Type        string                           `json:"type"`
	Description string                           `json:"description"`
	Headers     []string                         `json:"headers"`
	Data        map[string]models.InventoryEntry `json:"data"`
}

// Group nests a flat entry list. A GPIB key already taken in the same table
// becomes "<gpib>#<identifier>" so no entry is lost.
func Group(entries []models.InventoryEntry) Grouped {
	grouped := make(Grouped)

	for _, e := range entries {
		deviceType := orDefault(e.DeviceType, unknownType)
		model := orDefault(e.Model, unknownModel)
		gpib := orDefault(e.GPIBAddress, unknownGPIB)

		tg, ok := grouped[deviceType]
		if !ok {
			tg = TypeGroup{YAK: make(map[string]ModelGroup)}
			grouped[deviceType] = tg
		}

		mg, ok := tg.YAK[model]
		if !ok {
			mg = ModelGroup{Connection: ConnectionGroup{Table: newTable()}}
			tg.YAK[model] = mg
		}

		data := mg.Connection.Table.Data

		key := gpib
		if _, taken := data[key]; taken {
			key = gpib + "#" + e.Identifier
		}

		data[key] = e
	}

	return grouped
}

// Flatten walks a grouped inventory back into a list sorted by identifier.
func Flatten(grouped Grouped) []models.InventoryEntry {
	entries := make([]models.InventoryEntry, 0)

	for _, tg := range grouped {
		for _, mg := range tg.YAK {
			for _, e := range mg.Connection.Table.Data {
				entries = append(entries, e)
			}
		}
	}

	models.SortEntries(entries)

	return entries
}

// TablePath names a table by its position in the grouped inventory.
type TablePath struct {
	DeviceType string
	Model      string
}

// Tables lists every table in deterministic order.
func (g Grouped) Tables() ([]TablePath, []Table) {
	var paths []TablePath

	for deviceType, tg := range g {
		for model := range tg.YAK {
			paths = append(paths, TablePath{DeviceType: deviceType, Model: model})
		}
	}

	sort.Slice(paths, func(i, j int) bool {
		if paths[i].DeviceType != paths[j].DeviceType {
			return paths[i].DeviceType < paths[j].DeviceType
		}

		return paths[i].Model < paths[j].Model
	})

	tables := make([]Table, len(paths))
	for i, p := range paths {
		tables[i] = g[p.DeviceType].YAK[p.Model].Connection.Table
	}

	return paths, tables
}

func newTable() Table {
	return Table{
		Type:        TableType,
		Description: TableDescription,
		Headers:     append([]string(nil), TableHeaders...),
		Data:        make(map[string]models.InventoryEntry),
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}

	return v
}
