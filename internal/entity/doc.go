// Package entity maps FileFlows snapshots to typed entity states.
//
// A Registry evaluates every entity against one snapshot: server sensors,
// binary sensors and the update entity are fixed, node and runner entities are
// generated for each UID present. Every state carries a unique ID prefixed with
// the config entry ID, a value (nil when unavailable), availability and extra
// attributes.
//
// Writes go through a Controller, which calls the API and then asks the
// coordinator for a refresh.
package entity
