// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package registry models the host platform's device, entity, and config
// entry registries.
//
// The host (Home Assistant) owns and persists all of these records; this
// service only reads them and occasionally appends a connection to a
// device. Records arrive as loosely structured JSON, so every field that
// the host may omit is optional and the helpers degrade to "not found"
// instead of panicking.
//
// # Device Merging
//
// The host merges device records that share a connection tuple. The only
// mutation this service ever performs is adding a ("mac", address) tuple
// to a Frigate camera device so the host unifies it with the record the
// camera's native integration created.
package registry

import "strings"

// ConnectionTypeMAC is the connection type the host uses for network MAC
// addresses.
const ConnectionTypeMAC = "mac"

// FrigateDomain is the identifier domain of the Frigate integration.
const FrigateDomain = "frigate"

// Identifier is a (domain, unique id) pair identifying a device to one
// integration.
type Identifier struct {
	Domain string
	ID     string
}

// Connection is a (type, value) tuple the host uses to merge device
// records, e.g. ("mac", "aa:bb:cc:dd:ee:ff").
type Connection struct {
	Type  string
	Value string
}

// DeviceRecord is a device registry entry.
type DeviceRecord struct {
	ID            string
	Name          string
	NameByUser    string
	Identifiers   []Identifier
	Connections   []Connection
	ConfigEntries []string
}

// DisplayName returns the user-assigned name if set, otherwise the
// integration-assigned name.
func (d *DeviceRecord) DisplayName() string {
	if d.NameByUser != "" {
		return d.NameByUser
	}
	return d.Name
}

// IsFrigate reports whether any identifier belongs to the Frigate domain.
func (d *DeviceRecord) IsFrigate() bool {
	for _, id := range d.Identifiers {
		if id.Domain == FrigateDomain {
			return true
		}
	}
	return false
}

// MAC returns the device's MAC address, lowercased. Connections are
// checked first, then identifiers under the "mac" domain, matching the
// lookup order the host integrations populate them in.
func (d *DeviceRecord) MAC() (string, bool) {
	for _, conn := range d.Connections {
		if conn.Type == ConnectionTypeMAC && conn.Value != "" {
			return strings.ToLower(conn.Value), true
		}
	}
	for _, id := range d.Identifiers {
		if id.Domain == ConnectionTypeMAC && id.ID != "" {
			return strings.ToLower(id.ID), true
		}
	}
	return "", false
}

// HasMACConnection reports whether the device already carries the given
// MAC as a connection tuple. Comparison is case-insensitive.
func (d *DeviceRecord) HasMACConnection(mac string) bool {
	mac = strings.ToLower(mac)
	for _, conn := range d.Connections {
		if conn.Type == ConnectionTypeMAC && strings.ToLower(conn.Value) == mac {
			return true
		}
	}
	return false
}

// BelongsTo reports whether the device is owned by the given config entry.
func (d *DeviceRecord) BelongsTo(entryID string) bool {
	for _, id := range d.ConfigEntries {
		if id == entryID {
			return true
		}
	}
	return false
}

// EntityRecord is an entity registry entry.
type EntityRecord struct {
	EntityID string
	DeviceID string
	Platform string
}

// Domain returns the entity domain, e.g. "camera" for
// "camera.front_door".
func (e *EntityRecord) Domain() string {
	if i := strings.IndexByte(e.EntityID, '.'); i > 0 {
		return e.EntityID[:i]
	}
	return ""
}

// ConfigEntryRecord is a config entry. Data carries the integration's
// arbitrary setup blob; hosts may omit it entirely.
type ConfigEntryRecord struct {
	EntryID string
	Domain  string
	Title   string
	Data    map[string]any
}

// StateRecord is an entity state with its attributes.
type StateRecord struct {
	EntityID   string
	State      string
	Attributes map[string]any
}

// StreamSource returns the entity's stream URL, preferring the
// stream_source attribute and falling back to entity_picture.
func (s *StateRecord) StreamSource() (string, bool) {
	for _, key := range []string{"stream_source", "entity_picture"} {
		if v, ok := s.Attributes[key]; ok {
			if str, ok := v.(string); ok && str != "" {
				return str, true
			}
		}
	}
	return "", false
}

// DeviceUpdate describes an additive device registry update. Existing
// identifiers and connections are never removed or overwritten.
type DeviceUpdate struct {
	AddIdentifiers []Identifier
	AddConnections []Connection
}

// Snapshot is a point-in-time view of the host registries, fetched fresh
// for each merge run and discarded afterwards.
type Snapshot struct {
	Devices       []DeviceRecord
	Entities      []EntityRecord
	ConfigEntries []ConfigEntryRecord
	States        []StateRecord
}

// EntryByID returns the config entry with the given ID, or nil.
func (s *Snapshot) EntryByID(entryID string) *ConfigEntryRecord {
	for i := range s.ConfigEntries {
		if s.ConfigEntries[i].EntryID == entryID {
			return &s.ConfigEntries[i]
		}
	}
	return nil
}

// EntitiesByDevice returns all entities attached to the given device.
func (s *Snapshot) EntitiesByDevice(deviceID string) []EntityRecord {
	var entities []EntityRecord
	for _, e := range s.Entities {
		if e.DeviceID == deviceID {
			entities = append(entities, e)
		}
	}
	return entities
}

// StateByEntity returns the state of the given entity, or nil.
func (s *Snapshot) StateByEntity(entityID string) *StateRecord {
	for i := range s.States {
		if s.States[i].EntityID == entityID {
			return &s.States[i]
		}
	}
	return nil
}
