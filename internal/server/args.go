package server

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"ephemcp/internal/api"
)

// SpecFromArguments turns spawn_mcp_server arguments, shaped as decoded JSON,
// into a ServerSpec. A preset supplies the base spec; explicit arguments other
// than image and runtime override it. catalog may be nil when no preset is
// named.
func SpecFromArguments(args map[string]interface{}, catalog Presets) (api.ServerSpec, error) {
	request := mcp.CallToolRequest{}
	request.Params.Arguments = args
	return specFromRequest(request, catalog)
}

func specFromRequest(request mcp.CallToolRequest, catalog Presets) (api.ServerSpec, error) {
	env, err := stringMap(request.GetArguments()["env"])
	if err != nil {
		return api.ServerSpec{}, err
	}

	image := strings.TrimSpace(request.GetString("image", ""))
	exec := strings.TrimSpace(request.GetString("runtime_exec", ""))
	pkg := strings.TrimSpace(request.GetString("runtime_package", ""))

	var spec api.ServerSpec
	if name := strings.TrimSpace(request.GetString("preset", "")); name != "" {
		if image != "" || exec != "" || pkg != "" {
			return api.ServerSpec{}, api.NewInvalidSpecError("preset cannot be combined with image or runtime")
		}
		if catalog == nil {
			return api.ServerSpec{}, api.NewNotFoundError("preset", name)
		}
		p, err := catalog.Get(name)
		if err != nil {
			return api.ServerSpec{}, err
		}
		if spec, err = p.Apply(env); err != nil {
			return api.ServerSpec{}, err
		}
	} else {
		spec.Image = image
		if exec != "" || pkg != "" {
			spec.Runtime = &api.Runtime{Exec: exec, Package: pkg}
		}
		if len(env) > 0 {
			spec.Env = env
		}
	}

	if v := request.GetStringSlice("command", nil); len(v) > 0 {
		spec.Command = v
	}
	if v := request.GetStringSlice("args", nil); len(v) > 0 {
		spec.Args = v
	}
	if port := request.GetFloat("port", 0); port != 0 {
		if port < 1 || port > 65535 || port != float64(int32(port)) {
			return api.ServerSpec{}, api.NewInvalidSpecError("port %v is not a valid port", port)
		}
		spec.Port = int32(port)
	}
	if path := request.GetString("path", ""); path != "" {
		spec.Path = path
	}
	if spec.MaxLifetime, err = durationArg(request, "max_lifetime", spec.MaxLifetime); err != nil {
		return api.ServerSpec{}, err
	}
	if spec.IdleTimeout, err = durationArg(request, "idle_timeout", spec.IdleTimeout); err != nil {
		return api.ServerSpec{}, err
	}
	return spec, nil
}

// createArguments maps create_mcp_server arguments onto the
// spawn_mcp_server form.
func createArguments(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	if v, ok := out["runtime_mcp"]; ok {
		if _, set := out["runtime_package"]; !set {
			out["runtime_package"] = v
		}
		delete(out, "runtime_mcp")
	}
	return out
}

func (s *Server) timeoutArg(request mcp.CallToolRequest) (time.Duration, error) {
	return durationArg(request, "timeout", s.opts.Lifecycle.Config().ReadyTimeout)
}

func durationArg(request mcp.CallToolRequest, key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(request.GetString(key, ""))
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, api.NewInvalidSpecError("%s %q is not a duration", key, raw)
	}
	if d < 0 {
		return 0, api.NewInvalidSpecError("%s must not be negative", key)
	}
	return d, nil
}

// stringMap accepts a JSON object whose values are scalars.
func stringMap(raw interface{}) (map[string]string, error) {
	if raw == nil {
		return nil, nil
	}
	in, ok := raw.(map[string]interface{})
	if !ok {
		return nil, api.NewInvalidSpecError("env must be an object")
	}
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]string, len(in))
	for _, k := range keys {
		switch v := in[k].(type) {
		case string:
			out[k] = v
		case float64, bool:
			out[k] = fmt.Sprint(v)
		default:
			return nil, api.NewInvalidSpecError("env %s must be a string", k)
		}
	}
	return out, nil
}
