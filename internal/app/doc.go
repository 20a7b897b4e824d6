// Package app wires configuration, logging, the FileFlows client, the
// coordinator and the entity layer, and runs one of the front ends.
//
// Setup mirrors the lifecycle of one config entry:
//
//  1. One test request against /api/status; failure is ErrCannotConnect
//  2. Load or create the entry, whose ID prefixes every entity unique ID
//  3. Build the coordinator and perform the first refresh
//
// RunDashboard starts the terminal UI, RunServer the HTTP API, and RunProbe
// prints which endpoints the server answers.
package app
