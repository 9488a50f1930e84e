// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package merger

import (
	"github.com/soothill/frigate-mac-merger/extract"
	"github.com/soothill/frigate-mac-merger/pkg/logger"
	"github.com/soothill/frigate-mac-merger/registry"
)

// candidate is a Frigate camera device awaiting a MAC, keyed by the IP
// the scanner managed to derive for it.
type candidate struct {
	device registry.DeviceRecord
	ip     string
}

// scanResult holds the three mappings one classification pass produces.
// All of it is ephemeral: built fresh per run, discarded after matching.
type scanResult struct {
	ipToMAC  map[string]string // IP -> MAC from devices of other integrations
	nameToIP map[string]string // normalized camera name -> IP from source integrations
	needsMAC []candidate       // Frigate cameras lacking a MAC, with a derived IP
	noIP     []registry.DeviceRecord

	scanned int // all registry devices examined
	cameras int // Frigate camera devices seen
	skipped int // Frigate cameras that already carry a MAC
}

// scan classifies every device in the snapshot. Devices that are neither
// Frigate cameras nor MAC sources are ignored; a single unparseable
// device is logged and skipped, never fatal.
func scan(snap *registry.Snapshot, sourceDomains []string) *scanResult {
	res := &scanResult{
		ipToMAC:  make(map[string]string),
		nameToIP: make(map[string]string),
		scanned:  len(snap.Devices),
	}

	res.collectMACSources(snap)
	res.collectSourceNames(snap, sourceDomains)
	res.collectCameras(snap)

	return res
}

// collectMACSources builds the IP -> MAC map from every non-Frigate
// device exposing a MAC.
func (r *scanResult) collectMACSources(snap *registry.Snapshot) {
	for _, device := range snap.Devices {
		if device.IsFrigate() {
			continue
		}

		mac, ok := device.MAC()
		if !ok {
			continue
		}
		normalized, ok := extract.NormalizeMAC(mac)
		if !ok {
			logger.Warn().
				Str("device", device.DisplayName()).
				Str("mac", mac).
				Msg("Device carries an unparseable MAC, skipping")
			continue
		}

		ip, ok := r.deviceIP(snap, &device)
		if !ok {
			continue
		}

		if prev, exists := r.ipToMAC[ip]; exists && prev != normalized {
			logger.Debug().
				Str("ip", ip).
				Str("previous_mac", prev).
				Str("mac", normalized).
				Msg("IP collision in MAC source map, keeping later entry")
		}
		r.ipToMAC[ip] = normalized

		logger.Info().
			Str("mac", normalized).
			Str("ip", ip).
			Str("device", device.DisplayName()).
			Msg("Found MAC source device")
	}
}

// deviceIP derives a MAC source's IP from its config entry data, falling
// back to its name.
func (r *scanResult) deviceIP(snap *registry.Snapshot, device *registry.DeviceRecord) (string, bool) {
	for _, entryID := range device.ConfigEntries {
		entry := snap.EntryByID(entryID)
		if entry == nil {
			continue
		}
		if ip, ok := extract.IPv4FromConfigData(entry.Data); ok {
			return ip, true
		}
	}
	return extract.IPv4(device.DisplayName())
}

// collectSourceNames builds the normalized-camera-name -> IP map from the
// config entries of the configured camera source integrations. Matching
// by name is more reliable than Frigate's stream URLs, which usually
// point at the go2rtc proxy rather than the camera.
func (r *scanResult) collectSourceNames(snap *registry.Snapshot, sourceDomains []string) {
	domains := make(map[string]bool, len(sourceDomains))
	for _, d := range sourceDomains {
		domains[d] = true
	}

	for _, entry := range snap.ConfigEntries {
		if !domains[entry.Domain] {
			continue
		}

		ip, ok := extract.IPv4FromConfigData(entry.Data)
		if !ok {
			continue
		}

		for _, device := range snap.Devices {
			if !device.BelongsTo(entry.EntryID) {
				continue
			}

			name := device.DisplayName()
			for _, variation := range extract.NameVariations(name) {
				if prev, exists := r.nameToIP[variation]; exists && prev != ip {
					logger.Debug().
						Str("name", variation).
						Str("previous_ip", prev).
						Str("ip", ip).
						Msg("Name collision in camera name map, keeping later entry")
				}
				r.nameToIP[variation] = ip
			}

			logger.Info().
				Str("device", name).
				Str("ip", ip).
				Str("integration", entry.Domain).
				Msg("Mapped camera name to IP")
			break
		}
	}
}

// collectCameras finds Frigate camera devices lacking a MAC connection
// and derives an IP for each: by camera name first, then from a quad
// embedded in the device name, then from the camera entity's stream URL.
func (r *scanResult) collectCameras(snap *registry.Snapshot) {
	for _, device := range snap.Devices {
		if !device.IsFrigate() {
			continue
		}
		r.cameras++

		if _, ok := device.MAC(); ok {
			r.skipped++
			logger.Debug().
				Str("device", device.DisplayName()).
				Msg("Frigate device already has a MAC address")
			continue
		}

		ip, ok := r.cameraIP(snap, &device)
		if !ok {
			r.noIP = append(r.noIP, device)
			logger.Warn().
				Str("device", device.DisplayName()).
				Msg("Could not find IP address for Frigate camera")
			continue
		}

		r.needsMAC = append(r.needsMAC, candidate{device: device, ip: ip})
	}
}

func (r *scanResult) cameraIP(snap *registry.Snapshot, device *registry.DeviceRecord) (string, bool) {
	name := device.DisplayName()

	if ip, ok := r.nameToIP[extract.NormalizeName(name)]; ok {
		logger.Info().
			Str("device", name).
			Str("ip", ip).
			Msg("Matched Frigate camera to IP by name")
		return ip, true
	}

	if ip, ok := extract.IPv4(name); ok {
		logger.Info().
			Str("device", name).
			Str("ip", ip).
			Msg("Extracted IP from Frigate device name")
		return ip, true
	}

	for _, entity := range snap.EntitiesByDevice(device.ID) {
		if entity.Domain() != "camera" {
			continue
		}
		state := snap.StateByEntity(entity.EntityID)
		if state == nil {
			continue
		}
		src, ok := state.StreamSource()
		if !ok {
			continue
		}
		if ip, ok := extract.IPv4FromStreamURL(src); ok {
			logger.Info().
				Str("device", name).
				Str("entity", entity.EntityID).
				Str("ip", ip).
				Msg("Found IP for Frigate camera from entity stream")
			return ip, true
		}
	}

	return "", false
}
