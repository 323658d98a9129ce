// Package server exposes the lifecycle manager as an MCP server.
//
// The tools registered here are the front end used by MCP clients and by
// the ephemcp CLI:
//
//   - spawn_mcp_server: create a server from an image, a runtime or a preset
//   - create_mcp_server: create a server from a runtime package and wait for it
//   - wait_mcp_server_ready: block until a server has an endpoint
//   - get_mcp_server_status: refresh and return a server handle
//   - delete_mcp_server: tear a server down
//   - list_mcp_servers: list managed servers
//   - list_presets: list the preset catalog
//
// Results are JSON text. Failures of the lifecycle manager are reported as
// tool errors (IsError set) carrying the error kind, never as protocol errors.
//
// The server speaks streamable-http, SSE or stdio. For the HTTP transports
// the Prometheus handler is mounted on the same listener, along with a small
// JSON API: GET /list_mcp_servers, POST /create_mcp_server and
// POST /delete_mcp_server.
package server
