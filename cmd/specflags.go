package cmd

import (
	"time"

	"github.com/spf13/pflag"
)

// specFlags are the server description flags shared by spawn and render.
type specFlags struct {
	image       string
	exec        string
	pkg         string
	preset      string
	command     []string
	args        []string
	env         map[string]string
	port        int32
	path        string
	maxLifetime time.Duration
	idleTimeout time.Duration
}

func (s *specFlags) register(f *pflag.FlagSet) {
	f.StringVar(&s.image, "image", "", "Container image serving MCP over HTTP")
	f.StringVar(&s.exec, "exec", "", "Runtime executable run behind the SSE proxy (e.g. uvx, npx)")
	f.StringVar(&s.pkg, "package", "", "Package started by --exec (e.g. mcp-server-fetch)")
	f.StringVar(&s.preset, "preset", "", "Preset name (see 'ephemcp presets')")
	f.StringSliceVar(&s.command, "command", nil, "Container command override")
	f.StringArrayVar(&s.args, "arg", nil, "Container argument (repeatable)")
	f.StringToStringVarP(&s.env, "env", "e", nil, "Environment variable KEY=VALUE (repeatable)")
	f.Int32Var(&s.port, "port", 0, "Container port the MCP server listens on")
	f.StringVar(&s.path, "path", "", "HTTP path of the MCP endpoint")
	f.DurationVar(&s.maxLifetime, "max-lifetime", 0, "Delete the server after this duration")
	f.DurationVar(&s.idleTimeout, "idle-timeout", 0, "Delete the server after this long without use")
}

// arguments renders the flags as spawn_mcp_server arguments, shaped like
// decoded JSON so they can be sent over MCP or parsed locally.
func (s *specFlags) arguments() map[string]interface{} {
	out := map[string]interface{}{}
	setString := func(key, value string) {
		if value != "" {
			out[key] = value
		}
	}
	setString("image", s.image)
	setString("runtime_exec", s.exec)
	setString("runtime_package", s.pkg)
	setString("preset", s.preset)
	setString("path", s.path)

	if len(s.command) > 0 {
		out["command"] = toInterfaces(s.command)
	}
	if len(s.args) > 0 {
		out["args"] = toInterfaces(s.args)
	}
	if len(s.env) > 0 {
		env := make(map[string]interface{}, len(s.env))
		for k, v := range s.env {
			env[k] = v
		}
		out["env"] = env
	}
	if s.port != 0 {
		out["port"] = float64(s.port)
	}
	if s.maxLifetime > 0 {
		out["max_lifetime"] = s.maxLifetime.String()
	}
	if s.idleTimeout > 0 {
		out["idle_timeout"] = s.idleTimeout.String()
	}
	return out
}

func toInterfaces(in []string) []interface{} {
	out := make([]interface{}, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}
