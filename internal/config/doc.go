// Package config provides configuration management for ephemcp.
//
// Configuration is read from config.yaml inside a single directory. The default
// directory is ~/.config/ephemcp; commands accept --config-path to point
// elsewhere. A missing file is not an error: the built-in defaults apply.
//
// Durations are written as Go duration strings:
//
//	namespace: mcp-servers
//	lifecycle:
//	  pollInterval: 500ms
//	  readyTimeout: 2m
//	  backoff:
//	    initial: 200ms
//	    steps: 5
//	workload:
//	  resources:
//	    limits:
//	      memory: 512Mi
//	resolver:
//	  hostTemplate: "{{ .Name }}.{{ .Namespace }}.svc.{{ .ClusterDomain }}"
//	server:
//	  transport: streamable-http
//	  port: 8090
//
// Fields omitted from the file keep their default values. Validate reports all
// problems at once as ValidationErrors.
package config
