package entity

const unknown = "Unknown"

var operatingSystems = map[int]string{
	1: "Windows",
	2: "Linux",
	3: "Mac",
	4: "Docker",
	5: "FreeBSD",
}

var architectures = map[int]string{
	0: unknown,
	1: "x86",
	2: "x64",
	3: "Arm32",
	4: "Arm64",
}

// FileStatus codes as reported by /api/library-file/status, in display order.
var FileStatuses = []struct {
	Code int
	Name string
}{
	{-3, "On Hold"},
	{-2, "Disabled"},
	{-1, "Out of Schedule"},
	{0, "Unprocessed"},
	{1, "Processed"},
	{2, "Processing"},
	{3, "Flow Not Found"},
	{4, "Processing Failed"},
	{5, "Duplicate"},
	{6, "Mapping Issue"},
	{7, "Missing Library"},
}

// OperatingSystemName maps a node OS code to a display name.
func OperatingSystemName(code int) string {
	if name, ok := operatingSystems[code]; ok {
		return name
	}
	return unknown
}

// OperatingSystemIcon picks an icon for a node OS code.
func OperatingSystemIcon(code int) string {
	switch code {
	case 1:
		return "mdi:microsoft-windows"
	case 2:
		return "mdi:linux"
	case 3:
		return "mdi:apple"
	default:
		return "mdi:desktop-classic"
	}
}

// ArchitectureName maps a node architecture code to a display name.
func ArchitectureName(code int) string {
	if name, ok := architectures[code]; ok {
		return name
	}
	return unknown
}

// FileStatusName maps a library file status code to a display name.
func FileStatusName(code int) string {
	for _, s := range FileStatuses {
		if s.Code == code {
			return s.Name
		}
	}
	return unknown
}
