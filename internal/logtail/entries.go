package logtail

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Entry is one decoded log line. Lines that are not zap JSON keep only Raw
// and Message.
type Entry struct {
	Time    time.Time
	Level   string
	Logger  string
	Message string
	Fields  map[string]any
	Raw     string
}

// Keys written by the zap JSON encoder itself, not by callers.
var reservedKeys = map[string]bool{
	"ts": true, "level": true, "msg": true, "logger": true, "caller": true, "stacktrace": true,
}

// ParseEntry decodes one zap JSON line.
func ParseEntry(line string) Entry {
	e := Entry{Raw: line, Message: line}
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "{") {
		return e
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(trimmed), &doc); err != nil {
		return e
	}

	e.Level = strings.ToUpper(stringField(doc, "level"))
	e.Logger = stringField(doc, "logger")
	e.Message = stringField(doc, "msg")
	e.Time = timeField(doc["ts"])
	for k, v := range doc {
		if reservedKeys[k] {
			continue
		}
		if e.Fields == nil {
			e.Fields = make(map[string]any)
		}
		e.Fields[k] = v
	}
	return e
}

// ParseEntries decodes every line.
func ParseEntries(lines []string) []Entry {
	out := make([]Entry, len(lines))
	for i, line := range lines {
		out[i] = ParseEntry(line)
	}
	return out
}

// Format renders an entry on one line: time, level, logger, message, then
// fields sorted by key.
func (e Entry) Format() string {
	if e.Level == "" && e.Time.IsZero() {
		return e.Raw
	}
	var b strings.Builder
	if !e.Time.IsZero() {
		b.WriteString(e.Time.Local().Format("15:04:05"))
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "%-5s", e.Level)
	if e.Logger != "" {
		b.WriteString(" [" + e.Logger + "]")
	}
	b.WriteString(" " + e.Message)

	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.Fields[k])
	}
	return b.String()
}

func stringField(doc map[string]any, key string) string {
	if s, ok := doc[key].(string); ok {
		return s
	}
	return ""
}

// timeField accepts ISO8601 strings and epoch seconds.
func timeField(v any) time.Time {
	switch ts := v.(type) {
	case string:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.000Z0700"} {
			if t, err := time.Parse(layout, ts); err == nil {
				return t
			}
		}
	case float64:
		sec, frac := math.Modf(ts)
		return time.Unix(int64(sec), int64(frac*1e9))
	}
	return time.Time{}
}
