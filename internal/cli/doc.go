// Package cli contains the client side of the ephemcp command line.
//
// Commands that act on servers (spawn, delete, list, status, wait) talk to a
// running `ephemcp serve` over MCP and call its tools, so the CLI and AI
// assistants share one code path. Client wraps the mcp-go client for the
// streamable-http and SSE transports; the renderers print tool results as
// tables, JSON or YAML.
package cli
