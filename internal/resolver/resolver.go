package resolver

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"ephemcp/internal/api"
	"ephemcp/internal/config"
)

// TemplateData is the value the host and path templates are executed with.
type TemplateData struct {
	ID            string
	Name          string
	Namespace     string
	ClusterDomain string
	Port          int32
}

// Resolver computes endpoints for Ready servers.
type Resolver struct {
	host          *template.Template
	path          *template.Template
	clusterDomain string
	proxyPath     string
}

// New parses the configured templates.
func New(cfg config.ResolverConfig) (*Resolver, error) {
	hostTmpl := cfg.HostTemplate
	if hostTmpl == "" {
		hostTmpl = config.DefaultHostTemplate
	}
	host, err := template.New("host").Funcs(sprig.TxtFuncMap()).Option("missingkey=error").Parse(hostTmpl)
	if err != nil {
		return nil, fmt.Errorf("failed to parse host template: %w", err)
	}

	r := &Resolver{
		host:          host,
		clusterDomain: cfg.ClusterDomain,
		proxyPath:     cfg.ProxyPath,
	}
	if cfg.PathTemplate != "" {
		r.path, err = template.New("path").Funcs(sprig.TxtFuncMap()).Option("missingkey=error").Parse(cfg.PathTemplate)
		if err != nil {
			return nil, fmt.Errorf("failed to parse path template: %w", err)
		}
	}
	return r, nil
}

// Resolve returns the endpoint of h. It fails with a NotReady error unless h
// is Ready or Running.
func (r *Resolver) Resolve(h api.ServerHandle) (api.Endpoint, error) {
	if !h.State.IsReady() {
		return api.Endpoint{}, api.NewNotReadyError(h.ID, h.State)
	}

	data := TemplateData{
		ID:            h.ID,
		Name:          h.EndpointName,
		Namespace:     h.Namespace,
		ClusterDomain: r.clusterDomain,
		Port:          h.Spec.Port,
	}
	if data.Name == "" {
		data.Name = h.ID
	}

	host, err := render(r.host, data)
	if err != nil {
		return api.Endpoint{}, api.NewInvalidSpecError("cannot render endpoint host: %v", err).WithServer(h.ID)
	}
	if host == "" {
		return api.Endpoint{}, api.NewInvalidSpecError("endpoint host template rendered an empty host").WithServer(h.ID)
	}

	path, err := r.resolvePath(h, data)
	if err != nil {
		return api.Endpoint{}, api.NewInvalidSpecError("cannot render endpoint path: %v", err).WithServer(h.ID)
	}

	return api.Endpoint{Host: host, Port: h.Spec.Port, Path: path}, nil
}

func (r *Resolver) resolvePath(h api.ServerHandle, data TemplateData) (string, error) {
	path := h.Spec.Path
	switch {
	case path != "":
	case r.path != nil:
		rendered, err := render(r.path, data)
		if err != nil {
			return "", err
		}
		path = rendered
	case h.Spec.IsProxied():
		path = r.proxyPath
	}
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path, nil
}

func render(t *template.Template, data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}
