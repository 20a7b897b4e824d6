package entity

import (
	"github.com/five82/flowwatch/internal/fileflows"
	"github.com/five82/flowwatch/internal/state"
)

func (r *Registry) runnerStates(snap state.Snapshot, run fileflows.Runner) []State {
	available := snap.LastUpdateSuccess && snap.Runners.Available
	prefix := r.opts.EntryID + "_runner_" + run.UID

	nodeName := run.NodeName
	if n, ok := snap.Node(run.NodeUID); ok && n.Name != "" {
		nodeName = n.Name
	}
	device := Device{
		ID:           prefix,
		Name:         brand + " " + r.opts.Title + " " + orUnknown(nodeName) + " Runner",
		Manufacturer: brand,
		Model:        brand + " Runner",
	}
	if run.NodeUID != "" {
		device.ViaDevice = r.NodePrefix(run.NodeUID)
	}

	newState := func(key, name string) State {
		attrs := baseAttributes()
		attrs["runner_uid"] = run.UID
		attrs["node_uid"] = run.NodeUID
		return State{
			UniqueID:   prefix + "_" + key,
			Name:       name,
			Kind:       KindSensor,
			Available:  available,
			Attributes: attrs,
			Device:     device,
		}
	}

	started := newState("started", "Started")
	started.Icon = "mdi:clock"
	started.DeviceClass = "timestamp"
	if t := run.ParsedStartedAt(); !t.IsZero() {
		started.Value = valueIf(available, t)
	}

	part := newState("current_part", "Current Part")
	part.Value = valueIf(available, run.CurrentPartName)
	part.Attributes["part_number"] = run.CurrentPart
	part.Attributes["total_parts"] = run.TotalParts

	progress := newState("current_part_progress", "Current Part Progress")
	progress.Value = valueIf(available, run.CurrentPartPercent)
	progress.Unit = "%"
	progress.Icon = "mdi:progress-clock"

	library := newState("file_library", "Library")
	library.Value = valueIf(available, run.Library.Name)
	library.Icon = "mdi:library"

	path := newState("file_path", "File Path")
	path.Value = valueIf(available, run.LibraryFile.RelativePath)
	path.Icon = "mdi:file"

	size := newState("file_original_size", "Original File Size")
	size.Value = valueIf(available, run.LibraryFile.OriginalSize)
	size.Unit = "B"
	size.DeviceClass = "data_size"

	flow := newState("flow", "Flow")
	flow.Value = valueIf(available, run.LibraryFile.FlowName)
	flow.Icon = "mdi:workflow"

	return []State{started, part, progress, library, path, size, flow}
}
