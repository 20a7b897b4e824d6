// Package coordinator polls a FileFlows server on a fixed cadence and
// publishes one merged snapshot per cycle.
//
// # Poll Cycle
//
// Each Refresh calls the status endpoint first. When it succeeds, every
// enabled optional capability is fetched in order (system info, version,
// nodes, runners, flows, libraries, plugins, statistics, settings, file
// history, file status) and the results are published together. An optional capability that is unavailable
// never blocks the publish unless the policy is strict.
//
// # Failure Policy
//
//	soft    status failure publishes an error-marked snapshot; Refresh returns nil
//	hard    status failure keeps stale data; Refresh returns *UpdateFailedError
//	strict  hard, and an unavailable optional capability fails the update too
//
// # Scheduling
//
// Run owns the ticker. On-demand refreshes go through RequestRefresh, which
// coalesces into a single pending request, so cycles never overlap. Callers
// that invoke Refresh directly may race a scheduled cycle; the last publish wins.
package coordinator
