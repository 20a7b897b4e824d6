package fileflows

import (
	"time"
)

const fileflowsTimestampLayout = "2006-01-02 15:04:05"

// Status mirrors the payload returned by /api/status. Field matching is
// case-insensitive, so both camelCase and PascalCase servers decode.
type Status struct {
	Queue           int              `json:"queue"`
	Processing      int              `json:"processing"`
	Processed       int              `json:"processed"`
	Time            string           `json:"time"`
	ProcessingFiles []ProcessingFile `json:"processingFiles"`
}

// ProcessingFile describes one file currently moving through a flow.
type ProcessingFile struct {
	Name         string  `json:"name"`
	RelativePath string  `json:"relativePath"`
	Library      string  `json:"library"`
	Step         string  `json:"step"`
	StepPercent  float64 `json:"stepPercent"`
}

// SystemInfo mirrors /api/system/info. Older servers only report version and
// build, newer ones add resource usage.
type SystemInfo struct {
	Version     string  `json:"version"`
	Build       string  `json:"build"`
	CPUUsage    float64 `json:"cpuUsage"`
	MemoryUsage float64 `json:"memoryUsage"`
}

// VersionInfo mirrors /api/system/version.
type VersionInfo struct {
	Installed string `json:"installed"`
	Latest    string `json:"latest"`
}

// UpdateAvailable reports whether the server advertises a newer release.
func (v VersionInfo) UpdateAvailable() bool {
	return v.Latest != "" && v.Installed != "" && v.Latest != v.Installed
}

// Node describes a processing node reporting heartbeats to the server.
type Node struct {
	UID             string `json:"uid"`
	Name            string `json:"name"`
	Address         string `json:"address"`
	Version         string `json:"version"`
	OperatingSystem int    `json:"operatingSystem"`
	Architecture    int    `json:"architecture"`
	Enabled         *bool  `json:"enabled"`
	FlowRunners     int    `json:"flowRunners"`
	LastSeen        string `json:"lastSeen"`
}

// IsEnabled treats a node without an enabled flag as enabled.
func (n Node) IsEnabled() bool {
	return n.Enabled == nil || *n.Enabled
}

// ParsedLastSeen returns the LastSeen timestamp, or the zero time.
func (n Node) ParsedLastSeen() time.Time {
	return parseTime(n.LastSeen)
}

// ObjectRef is the {uid, name} pair the server uses for references.
type ObjectRef struct {
	UID  string `json:"uid"`
	Name string `json:"name"`
}

// LibraryFile describes a file known to a library.
type LibraryFile struct {
	UID             string `json:"uid"`
	Name            string `json:"name"`
	RelativePath    string `json:"relativePath"`
	OriginalSize    int64  `json:"originalSize"`
	FinalSize       int64  `json:"finalSize"`
	FlowName        string `json:"flowName"`
	NodeName        string `json:"nodeName"`
	Status          int    `json:"status"`
	ProcessingEnded string `json:"processingEnded"`
}

// ParsedProcessingEnded returns the ProcessingEnded timestamp, or the zero time.
func (f LibraryFile) ParsedProcessingEnded() time.Time {
	return parseTime(f.ProcessingEnded)
}

// Runner is an in-progress flow execution bound to a node.
type Runner struct {
	UID                string      `json:"uid"`
	NodeUID            string      `json:"nodeUid"`
	NodeName           string      `json:"nodeName"`
	StartedAt          string      `json:"startedAt"`
	CurrentPart        int         `json:"currentPart"`
	CurrentPartName    string      `json:"currentPartName"`
	CurrentPartPercent float64     `json:"currentPartPercent"`
	TotalParts         int         `json:"totalParts"`
	Library            ObjectRef   `json:"library"`
	LibraryFile        LibraryFile `json:"libraryFile"`
}

// ParsedStartedAt returns the StartedAt timestamp, or the zero time.
func (r Runner) ParsedStartedAt() time.Time {
	return parseTime(r.StartedAt)
}

// Flow is a configured processing flow.
type Flow struct {
	UID     string `json:"uid"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
	Type    int    `json:"type"`
}

// Library is a watched media library.
type Library struct {
	UID     string `json:"uid"`
	Name    string `json:"name"`
	Path    string `json:"path"`
	Enabled bool   `json:"enabled"`
}

// Plugin is an installed plugin.
type Plugin struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Enabled bool   `json:"enabled"`
}

// FileStatusCount is one row of /api/library-file/status.
type FileStatusCount struct {
	Status int `json:"status"`
	Count  int `json:"count"`
}

// Statistics and Settings have no stable schema across server versions.
type (
	Statistics map[string]any
	Settings   map[string]any
)

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	// Zoneless ISO timestamps are UTC on the server.
	if t, err := time.Parse("2006-01-02T15:04:05", value); err == nil {
		return t
	}
	if t, err := time.ParseInLocation(fileflowsTimestampLayout, value, time.Local); err == nil {
		return t
	}
	return time.Time{}
}
