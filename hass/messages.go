// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package hass

import (
	"encoding/json"

	"github.com/soothill/frigate-mac-merger/registry"
)

// Host API command types.
const (
	cmdDeviceRegistryList   = "config/device_registry/list"
	cmdEntityRegistryList   = "config/entity_registry/list"
	cmdConfigEntriesGet     = "config_entries/get"
	cmdGetStates            = "get_states"
	cmdDeviceRegistryUpdate = "config/device_registry/update"
	cmdPing                 = "ping"
)

// serverMessage is the envelope of every frame the host sends.
type serverMessage struct {
	ID      int             `json:"id,omitempty"`
	Type    string          `json:"type"`
	Success *bool           `json:"success,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *serverError    `json:"error,omitempty"`
	Version string          `json:"ha_version,omitempty"`
}

type serverError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// authMessage is the credential frame sent after auth_required.
type authMessage struct {
	Type        string `json:"type"`
	AccessToken string `json:"access_token"`
}

// command is a plain id-correlated command with no parameters.
type command struct {
	ID   int    `json:"id"`
	Type string `json:"type"`
}

// updateCommand carries the additive device registry update. The host
// merges the new tuples into the device's existing sets.
type updateCommand struct {
	ID          int        `json:"id"`
	Type        string     `json:"type"`
	DeviceID    string     `json:"device_id"`
	Identifiers [][]string `json:"identifiers,omitempty"`
	Connections [][]string `json:"connections,omitempty"`
}

// wireDevice mirrors a device registry entry on the wire. Identifier and
// connection tuples arrive as two-element arrays; anything malformed is
// dropped rather than failing the whole list.
type wireDevice struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	NameByUser    string     `json:"name_by_user"`
	Identifiers   [][]string `json:"identifiers"`
	Connections   [][]string `json:"connections"`
	ConfigEntries []string   `json:"config_entries"`
}

func (w *wireDevice) toRecord() registry.DeviceRecord {
	rec := registry.DeviceRecord{
		ID:            w.ID,
		Name:          w.Name,
		NameByUser:    w.NameByUser,
		ConfigEntries: w.ConfigEntries,
	}
	for _, pair := range w.Identifiers {
		if len(pair) == 2 {
			rec.Identifiers = append(rec.Identifiers, registry.Identifier{Domain: pair[0], ID: pair[1]})
		}
	}
	for _, pair := range w.Connections {
		if len(pair) == 2 {
			rec.Connections = append(rec.Connections, registry.Connection{Type: pair[0], Value: pair[1]})
		}
	}
	return rec
}

type wireEntity struct {
	EntityID string `json:"entity_id"`
	DeviceID string `json:"device_id"`
	Platform string `json:"platform"`
}

func (w *wireEntity) toRecord() registry.EntityRecord {
	return registry.EntityRecord{EntityID: w.EntityID, DeviceID: w.DeviceID, Platform: w.Platform}
}

type wireConfigEntry struct {
	EntryID string         `json:"entry_id"`
	Domain  string         `json:"domain"`
	Title   string         `json:"title"`
	Data    map[string]any `json:"data"`
}

func (w *wireConfigEntry) toRecord() registry.ConfigEntryRecord {
	return registry.ConfigEntryRecord{EntryID: w.EntryID, Domain: w.Domain, Title: w.Title, Data: w.Data}
}

type wireState struct {
	EntityID   string         `json:"entity_id"`
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes"`
}

func (w *wireState) toRecord() registry.StateRecord {
	return registry.StateRecord{EntityID: w.EntityID, State: w.State, Attributes: w.Attributes}
}

// tuples converts identifier/connection pairs to their wire form.
func identifierTuples(ids []registry.Identifier) [][]string {
	out := make([][]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, []string{id.Domain, id.ID})
	}
	return out
}

func connectionTuples(conns []registry.Connection) [][]string {
	out := make([][]string, 0, len(conns))
	for _, c := range conns {
		out = append(out, []string{c.Type, c.Value})
	}
	return out
}
