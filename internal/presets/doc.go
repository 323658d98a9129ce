// Package presets provides named, ready-made server specs such as "fetch"
// (uvx mcp-server-fetch behind the SSE proxy).
//
// Built-in presets are embedded in the binary. Additional presets are read
// from YAML files in an optional user directory and override built-ins of
// the same name:
//
//	name: my-server
//	description: Internal tools
//	requiredEnv: [API_TOKEN]
//	spec:
//	  image: registry.example.com/tools-mcp:1.2
//	  port: 3000
//	  maxLifetime: 1h
//
// Watch reloads the user directory when its files change.
package presets
