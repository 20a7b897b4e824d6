package entity

import (
	"fmt"
	"maps"
	"slices"

	"github.com/five82/flowwatch/internal/fileflows"
	"github.com/five82/flowwatch/internal/state"
)

const maxListedFiles = 5

type serverSensor struct {
	key         string
	name        string
	icon        string
	unit        string
	deviceClass string
	stateClass  string
	requires    func(state.Snapshot) bool // nil means the status call alone
	value       func(state.Snapshot) any
	attrs       func(state.Snapshot) map[string]any
}

var serverSensors = []serverSensor{
	{
		key: "queue", name: "Queue", icon: "mdi:format-list-numbered", unit: "files", stateClass: "measurement",
		value: func(s state.Snapshot) any { return s.Status.Queue },
	},
	{
		key: "processing", name: "Processing", icon: "mdi:cog", unit: "files", stateClass: "measurement",
		value: func(s state.Snapshot) any { return s.Status.Processing },
	},
	{
		key: "processed", name: "Processed", icon: "mdi:check-circle", unit: "files", stateClass: "total_increasing",
		value: func(s state.Snapshot) any { return s.Status.Processed },
	},
	{
		key: "time", name: "Processing Time", icon: "mdi:clock",
		value: func(s state.Snapshot) any { return s.Status.Time },
		attrs: func(state.Snapshot) map[string]any {
			return map[string]any{"format": "HH:MM", "description": "Total processing time"}
		},
	},
	{
		key: "processing_files", name: "Processing Files", icon: "mdi:file-cog", unit: "files", stateClass: "measurement",
		value: func(s state.Snapshot) any { return len(s.Status.ProcessingFiles) },
		attrs: processingFilesAttributes,
	},
	{
		key: "nodes", name: "Nodes", icon: "mdi:server-network", unit: "nodes", stateClass: "measurement",
		requires: func(s state.Snapshot) bool { return s.Nodes.Available },
		value:    func(s state.Snapshot) any { return len(s.Nodes.Value) },
		attrs:    nodeSummaryAttributes,
	},
	{
		key: "flows", name: "Flows", icon: "mdi:workflow", unit: "flows", stateClass: "measurement",
		requires: func(s state.Snapshot) bool { return s.Flows.Available },
		value:    func(s state.Snapshot) any { return len(s.Flows.Value) },
	},
	{
		key: "libraries", name: "Libraries", icon: "mdi:library", unit: "libraries", stateClass: "measurement",
		requires: func(s state.Snapshot) bool { return s.Libraries.Available },
		value:    func(s state.Snapshot) any { return len(s.Libraries.Value) },
	},
	{
		key: "plugins", name: "Plugins", icon: "mdi:puzzle", unit: "plugins", stateClass: "measurement",
		requires: func(s state.Snapshot) bool { return s.Plugins.Available },
		value:    func(s state.Snapshot) any { return len(s.Plugins.Value) },
	},
	{
		key: "runners", name: "Runners", icon: "mdi:run", unit: "runners", stateClass: "measurement",
		requires: func(s state.Snapshot) bool { return s.Runners.Available },
		value:    func(s state.Snapshot) any { return len(s.Runners.Value) },
	},
	{
		key: "recent_files", name: "Recent Files", icon: "mdi:history", unit: "files", stateClass: "measurement",
		requires: func(s state.Snapshot) bool { return s.FileHistory.Available },
		value:    func(s state.Snapshot) any { return len(s.FileHistory.Value) },
		attrs:    recentFilesAttributes,
	},
	{
		key: "cpu_usage", name: "CPU Usage", icon: "mdi:memory", unit: "%", stateClass: "measurement",
		requires: func(s state.Snapshot) bool { return s.SystemInfo.Available },
		value:    func(s state.Snapshot) any { return int(s.SystemInfo.Value.CPUUsage) },
	},
	{
		key: "memory_usage", name: "Memory Usage", icon: "mdi:memory", unit: "B", deviceClass: "data_size", stateClass: "measurement",
		requires: func(s state.Snapshot) bool { return s.SystemInfo.Available },
		value:    func(s state.Snapshot) any { return int64(s.SystemInfo.Value.MemoryUsage) },
	},
}

func (r *Registry) serverStates(snap state.Snapshot) []State {
	device := r.serverDevice(snap)
	prefix := r.serverPrefix()
	online := snap.Online()

	out := make([]State, 0, len(serverSensors)+len(FileStatuses)+5)
	out = append(out, r.statusBinarySensor(snap, device))

	for _, d := range serverSensors {
		available := online && (d.requires == nil || d.requires(snap))
		st := State{
			UniqueID:    prefix + "_" + d.key,
			Name:        d.name,
			Kind:        KindSensor,
			Available:   available,
			Icon:        d.icon,
			Unit:        d.unit,
			DeviceClass: d.deviceClass,
			StateClass:  d.stateClass,
			Device:      device,
			Attributes:  baseAttributes(),
		}
		if available {
			st.Value = d.value(snap)
			if d.attrs != nil {
				maps.Copy(st.Attributes, d.attrs(snap))
			}
		}
		out = append(out, st)
	}

	out = append(out, systemStatusSensor(snap, prefix, device))

	fileCounts := online && snap.FileStatus.Available
	for _, fs := range FileStatuses {
		out = append(out, State{
			UniqueID:   prefix + "_file_count_" + slug(fs.Name),
			Name:       "File Count - " + fs.Name,
			Kind:       KindSensor,
			Available:  fileCounts,
			Value:      valueIf(fileCounts, fileCount(snap.FileStatus.Value, fs.Code)),
			Icon:       "mdi:file",
			Unit:       "files",
			StateClass: "measurement",
			Attributes: baseAttributes(),
			Device:     device,
		})
	}

	out = append(out, processingBinarySensor(snap, prefix, device), nodesActiveBinarySensor(snap, prefix, device))
	out = append(out, updateEntity(snap, prefix, device))
	return out
}

// statusBinarySensor is always available; it reports whether the server is
// reachable and why not.
func (r *Registry) statusBinarySensor(snap state.Snapshot, device Device) State {
	attrs := baseAttributes()
	online := snap.Online()
	switch {
	case online:
		attrs["status"] = "online"
		attrs["queue"] = snap.Status.Queue
		attrs["processing"] = snap.Status.Processing
		attrs["processed"] = snap.Status.Processed
		attrs["last_updated"] = snap.LastUpdated
	case snap.StatusError != "":
		attrs["status"] = "offline"
		attrs["error"] = snap.StatusError
	case snap.LastError != nil:
		attrs["status"] = "offline"
		attrs["error"] = snap.LastError.Error()
	default:
		attrs["status"] = "offline"
		attrs["error"] = "No data"
	}
	return State{
		UniqueID:    r.serverPrefix() + "_status",
		Name:        "Status",
		Kind:        KindBinarySensor,
		Value:       online,
		Available:   true,
		Icon:        "mdi:server",
		DeviceClass: "connectivity",
		Attributes:  attrs,
		Device:      device,
	}
}

func systemStatusSensor(snap state.Snapshot, prefix string, device Device) State {
	attrs := baseAttributes()
	value := "offline"
	if snap.Online() {
		value = "online"
		if snap.SystemInfo.Available {
			attrs["version"] = orUnknown(snap.SystemInfo.Value.Version)
			attrs["build"] = orUnknown(snap.SystemInfo.Value.Build)
		}
	}
	return State{
		UniqueID:   prefix + "_system_status",
		Name:       "System Status",
		Kind:       KindSensor,
		Value:      value,
		Available:  true,
		Icon:       "mdi:server",
		Attributes: attrs,
		Device:     device,
	}
}

func processingBinarySensor(snap state.Snapshot, prefix string, device Device) State {
	available := snap.Online()
	attrs := baseAttributes()
	if available {
		attrs["processing_count"] = snap.Status.Processing
		attrs["queue_count"] = snap.Status.Queue
		attrs["last_updated"] = snap.LastUpdated
		if len(snap.Status.ProcessingFiles) > 0 {
			maps.Copy(attrs, currentFileAttributes(snap.Status.ProcessingFiles[0]))
		}
	}
	return State{
		UniqueID:    prefix + "_processing_active",
		Name:        "Processing Active",
		Kind:        KindBinarySensor,
		Value:       valueIf(available, snap.Status.Processing > 0),
		Available:   available,
		Icon:        "mdi:cog",
		DeviceClass: "running",
		Attributes:  attrs,
		Device:      device,
	}
}

func nodesActiveBinarySensor(snap state.Snapshot, prefix string, device Device) State {
	available := snap.LastUpdateSuccess && snap.Nodes.Available
	attrs := baseAttributes()
	active := 0
	var names []string
	for _, n := range snap.Nodes.Value {
		if n.IsEnabled() {
			active++
			names = append(names, n.Name)
		}
	}
	if available {
		attrs["total_nodes"] = len(snap.Nodes.Value)
		attrs["active_nodes"] = active
		attrs["node_names"] = names
		attrs["last_updated"] = snap.LastUpdated
	}
	return State{
		UniqueID:    prefix + "_nodes_active",
		Name:        "Nodes Active",
		Kind:        KindBinarySensor,
		Value:       valueIf(available, active > 0),
		Available:   available,
		Icon:        "mdi:server-network",
		DeviceClass: "running",
		Attributes:  attrs,
		Device:      device,
	}
}

func updateEntity(snap state.Snapshot, prefix string, device Device) State {
	available := snap.LastUpdateSuccess && snap.Version.Available
	attrs := baseAttributes()
	attrs["title"] = brand
	attrs["release_url"] = "https://fileflows.com/docs/versions"
	if available {
		attrs["installed_version"] = snap.Version.Value.Installed
		attrs["latest_version"] = snap.Version.Value.Latest
	}
	return State{
		UniqueID:    prefix + "_update",
		Name:        "Update",
		Kind:        KindUpdate,
		Value:       valueIf(available, snap.Version.Value.UpdateAvailable()),
		Available:   available,
		DeviceClass: "firmware",
		Category:    CategoryConfig,
		Attributes:  attrs,
		Device:      device,
	}
}

func processingFilesAttributes(s state.Snapshot) map[string]any {
	files := make([]map[string]any, 0, maxListedFiles)
	for i, f := range s.Status.ProcessingFiles {
		if i >= maxListedFiles {
			break
		}
		files = append(files, map[string]any{
			"name":          orUnknown(f.Name),
			"relative_path": f.RelativePath,
			"library":       f.Library,
			"step":          f.Step,
			"step_percent":  f.StepPercent,
		})
	}
	attrs := map[string]any{"files": files}
	if len(s.Status.ProcessingFiles) > 0 {
		maps.Copy(attrs, currentFileAttributes(s.Status.ProcessingFiles[0]))
	}
	return attrs
}

func currentFileAttributes(f fileflows.ProcessingFile) map[string]any {
	return map[string]any{
		"current_file":    orUnknown(f.Name),
		"current_step":    orUnknown(f.Step),
		"current_percent": f.StepPercent,
		"current_library": orUnknown(f.Library),
	}
}

// recentFilesAttributes lists the most recently finished files first. Files
// without an end time keep the server's order after the dated ones.
func recentFilesAttributes(s state.Snapshot) map[string]any {
	history := slices.Clone(s.FileHistory.Value)
	slices.SortStableFunc(history, func(a, b fileflows.LibraryFile) int {
		return b.ParsedProcessingEnded().Compare(a.ParsedProcessingEnded())
	})

	files := make([]map[string]any, 0, maxListedFiles)
	for i, f := range history {
		if i >= maxListedFiles {
			break
		}
		file := map[string]any{
			"name":   orUnknown(f.Name),
			"flow":   orUnknown(f.FlowName),
			"node":   orUnknown(f.NodeName),
			"status": FileStatusName(f.Status),
		}
		if ended := f.ParsedProcessingEnded(); !ended.IsZero() {
			file["processing_ended"] = ended
		}
		files = append(files, file)
	}
	attrs := map[string]any{"files": files}
	if len(files) > 0 {
		attrs["last_file"] = files[0]["name"]
		attrs["last_status"] = files[0]["status"]
	}
	return attrs
}

func nodeSummaryAttributes(s state.Snapshot) map[string]any {
	active := 0
	listed := make([]map[string]any, 0, 10)
	for i, n := range s.Nodes.Value {
		if n.IsEnabled() {
			active++
		}
		if i < 10 {
			listed = append(listed, map[string]any{"name": orUnknown(n.Name), "enabled": n.IsEnabled()})
		}
	}
	return map[string]any{
		"total_nodes":  len(s.Nodes.Value),
		"active_nodes": active,
		"nodes":        listed,
	}
}

func fileCount(counts []fileflows.FileStatusCount, code int) int {
	for _, c := range counts {
		if c.Status == code {
			return c.Count
		}
	}
	return 0
}

func orUnknown(s string) string {
	if s == "" {
		return unknown
	}
	return s
}

// ServerID returns the unique ID of a server entity key such as "queue".
func (r *Registry) ServerID(key string) string {
	return fmt.Sprintf("%s_%s", r.serverPrefix(), key)
}
