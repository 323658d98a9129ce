// Package resolver turns the handle of a Ready server into an endpoint a
// caller can connect to.
//
// The host is rendered from a text/template (with the sprig function map)
// over the handle's endpoint object name, namespace, id and the configured
// cluster domain. The default template yields the in-cluster DNS name of the
// Service:
//
//	{{ .Name }}.{{ .Namespace }}.svc.{{ .ClusterDomain }}
//
// Servers fronted by the proxy sidecar get the proxy's routing path appended
// unless the spec sets an explicit path.
package resolver
