// Package state holds the single authoritative FileFlows snapshot.
//
// # Overview
//
// This package implements a small thread-safe store shared between the polling
// coordinator and every reader: entity adapters, the terminal dashboard and the
// HTTP server. Readers never observe a partially updated snapshot.
//
// # Architecture
//
//	Producer (Coordinator):        Consumers:
//	┌──────────────────┐          ┌──────────────────┐
//	│ FetchStatus()    │          │ entity.Registry  │
//	│ Fetch* (probes)  │          │ ui.Model         │
//	│      ↓           │          │ server handlers  │
//	│ store.Publish()  │─────────→│ store.Snapshot() │
//	│ store.Fail()     │ (mutex)  │                  │
//	└──────────────────┘          └──────────────────┘
//
// # Core Types
//
// Store:
//   - Thread-safe container for the latest FileFlows snapshot
//   - Uses sync.RWMutex for concurrent access
//   - Single writer (coordinator), multiple readers
//
// Snapshot:
//   - View of one poll cycle
//   - Contains the status counters, optional capabilities, timestamps and error info
//   - Returned by value as a deep copy
//
// # Update Semantics
//
//	// Successful poll: replace the entire snapshot
//	store.Publish(snap)
//	-> every field comes from snap
//	-> LastUpdateSuccess = true, LastError = nil, LastUpdated = now
//
//	// Soft failure: publish an error-marked snapshot
//	store.Publish(state.Snapshot{StatusError: err.Error()})
//	-> entities stay available but report offline
//
//	// Hard failure: keep old data, record error
//	store.Fail(err)
//	-> data unchanged, LastUpdateSuccess = false, LastError = err
//
// Publish never merges. A capability missing from the new snapshot is gone,
// so readers never mix data from two different polls.
//
// # Copying
//
// Publish and Snapshot both deep copy slices, maps and node enabled pointers.
// The lock is held only while copying, never during network I/O.
//
// # Usage Example
//
//	// Coordinator goroutine:
//	store := &state.Store{}
//	status, err := client.FetchStatus(ctx)
//	if err != nil {
//		store.Fail(err)
//	} else {
//		store.Publish(state.Snapshot{Status: status, HasStatus: true})
//	}
//
//	// Reader:
//	snap := store.Snapshot()
//	if snap.Online() {
//		fmt.Println(snap.Status.Queue)
//	}
//
// # Offline Detection
//
// ConsecutiveFailures counts failed polls, including error-marked publishes.
// IsOffline reports true after two in a row. The dashboard uses it to switch
// from a "retrying" hint to an offline banner.
//
// The zero Store is ready to use; Snapshot returns a zero Snapshot until the
// first poll completes.
package state
