// Package server exposes the latest snapshot and entity states over HTTP.
//
// Routes:
//
//	GET  /health
//	GET  /api/snapshot
//	GET  /api/entities[?kind=sensor]
//	GET  /api/entities/:id
//	GET  /api/stream              websocket, entity list per poll
//	POST /api/refresh
//	POST /api/pause               {"minutes": 30}
//	POST /api/resume
//	PUT  /api/nodes/:uid/enabled  {"enabled": false}
//
// Failed writes against FileFlows answer 502 Bad Gateway.
package server
