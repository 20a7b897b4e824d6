// Package fileflows provides an HTTP client for the FileFlows server API.
//
// # Overview
//
// The client wraps the handful of JSON endpoints flowwatch needs: queue
// status, system information, nodes, runners, flows, libraries, plugins,
// statistics, settings, file history and library file status, plus the pause,
// resume and node state commands.
//
// # Architecture
//
//   - client.go: request handling, response validation and endpoint methods
//   - probe.go: candidate-path probing for optional endpoints
//   - types.go: data structures mirroring the FileFlows API schema
//   - errors.go: the APIError type and its kinds
//
// # Request Handling
//
// Every method performs exactly one HTTP request per candidate path:
//   - Accept: application/json
//   - Authorization: Bearer <token> when a token is configured
//   - User-Agent: flowwatch/0.1
//   - a total timeout (default 15s) and a connect timeout (default 10s)
//
// No retries are attempted; the poll cadence decides when to try again.
//
// # Response Validation
//
// The body is read in full and checked in this order, regardless of the
// declared content type:
//
//  1. 404 fails with KindNotFound
//  2. any other status >= 400 fails with KindHTTP
//  3. an empty body fails with KindEmpty
//  4. a body not starting with '{' or '[' fails with KindNonJSON
//  5. a body that does not parse fails with KindMalformed
//
// Timeouts fail with KindTimeout and other transport problems with
// KindTransport. All of these are *APIError values.
//
// # Optional Endpoints
//
// Endpoints that moved between server versions are probed through an ordered
// list of candidate paths. The first success wins. When all candidates fail
// the method returns a Capability with Available=false instead of an error,
// so callers can degrade a single sensor without failing the whole poll.
//
//	nodes := client.FetchNodes(ctx)
//	if !nodes.Available {
//		log.Printf("nodes unavailable: %s", nodes.Err)
//	}
//
// # Thread Safety
//
// Client is safe for concurrent use.
package fileflows
