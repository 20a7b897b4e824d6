package entity

import (
	"time"

	"github.com/five82/flowwatch/internal/fileflows"
)

// Connected reports whether a node last seen at lastSeen still counts as
// connected at now. The boundary is inclusive; an unknown lastSeen is never
// connected.
func Connected(lastSeen, now time.Time, timespan time.Duration) bool {
	if lastSeen.IsZero() {
		return false
	}
	return now.Sub(lastSeen) <= timespan
}

// NodePrefix returns the unique ID prefix for a node's entities.
func (r *Registry) NodePrefix(uid string) string {
	return r.opts.EntryID + "_" + uid
}

// NodeEnabledID returns the unique ID of a node's enabled switch.
func (r *Registry) NodeEnabledID(uid string) string {
	return r.NodePrefix(uid) + "_enabled"
}

func (r *Registry) nodeDevice(n fileflows.Node) Device {
	return Device{
		ID:           r.NodePrefix(n.UID),
		Name:         brand + " " + r.opts.Title + " " + orUnknown(n.Name) + " Node",
		Manufacturer: brand,
		Model:        brand + " Node",
		SWVersion:    n.Version,
		ViaDevice:    r.opts.EntryID,
	}
}

func (r *Registry) nodeStates(n fileflows.Node, available bool, now time.Time) []State {
	prefix := r.NodePrefix(n.UID)
	device := r.nodeDevice(n)

	newState := func(key, name string, kind Kind) State {
		attrs := baseAttributes()
		attrs["node_uid"] = n.UID
		return State{
			UniqueID:   prefix + "_" + key,
			Name:       orUnknown(n.Name) + " " + name,
			Kind:       kind,
			Available:  available,
			Attributes: attrs,
			Device:     device,
		}
	}

	osState := newState("operating_system", "Operating System", KindSensor)
	osState.Value = valueIf(available, OperatingSystemName(n.OperatingSystem))
	osState.Icon = OperatingSystemIcon(n.OperatingSystem)
	osState.DeviceClass = "enum"
	osState.Category = CategoryDiagnostic

	arch := newState("architecture", "Architecture", KindSensor)
	arch.Value = valueIf(available, ArchitectureName(n.Architecture))
	arch.Icon = "mdi:chip"
	arch.DeviceClass = "enum"
	arch.Category = CategoryDiagnostic

	version := newState("version", "Version", KindSensor)
	version.Value = valueIf(available, n.Version)
	version.Icon = "mdi:tag"
	version.Category = CategoryDiagnostic

	lastSeen := n.ParsedLastSeen()
	connected := newState("connected", "Connected", KindBinarySensor)
	connected.Value = valueIf(available, Connected(lastSeen, now, r.opts.ConnectedTimespan))
	connected.DeviceClass = "connectivity"
	connected.Category = CategoryDiagnostic
	connected.Attributes["timespan_seconds"] = int(r.opts.ConnectedTimespan / time.Second)
	if available && !lastSeen.IsZero() {
		connected.Attributes["last_seen"] = lastSeen
		connected.Attributes["seconds_since_seen"] = int(now.Sub(lastSeen) / time.Second)
	}

	enabled := newState("enabled", "Enabled", KindSwitch)
	enabled.Value = valueIf(available, n.IsEnabled())
	enabled.Icon = "mdi:power"
	enabled.Category = CategoryConfig

	workers := newState("workers", "Workers", KindNumber)
	workers.Value = valueIf(available, n.FlowRunners)
	workers.Icon = "mdi:file-sync-outline"
	workers.Category = CategoryConfig
	workers.Attributes["min"] = 0
	workers.Attributes["step"] = 1
	workers.Attributes["mode"] = "box"

	return []State{osState, arch, version, connected, enabled, workers}
}
