// Package api implements the operator HTTP API and WebSocket server of the
// fixture sequencer.
//
// This package provides:
//   - REST endpoints to list and start operations, inspect slot records and
//     manage the operator session
//   - Operator action trail (GET /api/v1/audit)
//   - WebSocket hub streaming progress, measurements and verdicts
//   - Prometheus scrape endpoint and a JSON system status endpoint
//   - Middleware stack (request ID, logging, recovery, body size limit)
//
// # Architecture
//
// The API replaces the operator menu of the bench PC. Operations are
// started asynchronously: POST /api/v1/operations/{slug} returns 202 as
// soon as the operation owns the fixture, and progress arrives over the
// WebSocket. Only one operation runs at a time; a second request gets 409.
//
// The Hub is a sequencer.Observer. It is created before the sequencer and
// handed to both.
//
// # Security
//
// The API listens on the bench-local interface by default and has no
// authentication.
package api
