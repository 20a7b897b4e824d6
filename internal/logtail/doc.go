// Package logtail reads the end of flowwatch's own log file and decodes it for
// the dashboard's log view.
//
// # Reading Log Files
//
// Read returns the last maxLines of a file, reading backwards from the end in
// chunks. A missing file is not an error: the dashboard may start before
// anything was logged. A Follower then picks up lines appended afterwards and
// starts over when the file is truncated.
//
//	lines, err := logtail.Read(cfg.LogFile, 400)
//	if err != nil {
//		return err
//	}
//	for _, e := range logtail.ParseEntries(lines) {
//		fmt.Println(e.Format())
//	}
//
// # Decoding
//
// flowwatch logs with the zap JSON encoder. ParseEntry extracts the level,
// timestamp (ISO8601 or epoch seconds), logger name and message, and keeps
// every caller-supplied field in Fields. Lines that are not JSON objects, such
// as a panic trace, pass through with only Raw and Message set.
package logtail
