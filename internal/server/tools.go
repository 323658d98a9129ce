package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"ephemcp/internal/api"
	"ephemcp/pkg/logging"
)

// Tool names.
const (
	ToolSpawn   = "spawn_mcp_server"
	ToolCreate  = "create_mcp_server"
	ToolWait    = "wait_mcp_server_ready"
	ToolStatus  = "get_mcp_server_status"
	ToolDelete  = "delete_mcp_server"
	ToolList    = "list_mcp_servers"
	ToolPresets = "list_presets"
)

// SpawnResult is returned by spawn_mcp_server and create_mcp_server. Error is
// set when the server was created but did not become ready.
type SpawnResult struct {
	ID       string        `json:"id"`
	State    api.State     `json:"state"`
	Endpoint *api.Endpoint `json:"endpoint,omitempty"`
	URL      string        `json:"url,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// DeleteResult is returned by delete_mcp_server.
type DeleteResult struct {
	ID    string    `json:"id"`
	State api.State `json:"state"`
}

// ServerInfo is an element of the list_mcp_servers result.
type ServerInfo struct {
	ID        string    `json:"id"`
	State     api.State `json:"state"`
	Image     string    `json:"image,omitempty"`
	Runtime   string    `json:"runtime,omitempty"`
	URL       string    `json:"url,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	LastError string    `json:"lastError,omitempty"`
}

// PresetInfo is an element of the list_presets result.
type PresetInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	RequiredEnv []string `json:"requiredEnv,omitempty"`
	Source      string   `json:"source"`
}

func (s *Server) registerTools() {
	spawnTool := mcp.NewTool(ToolSpawn,
		mcp.WithDescription("Spawn an ephemeral MCP server on Kubernetes from a container image, a runtime package or a preset"),
		mcp.WithString("image", mcp.Description("Container image serving MCP over HTTP")),
		mcp.WithString("runtime_exec", mcp.Description("Runtime executable run behind the SSE proxy (e.g. uvx, npx)")),
		mcp.WithString("runtime_package", mcp.Description("Package started by runtime_exec (e.g. mcp-server-fetch)")),
		mcp.WithString("preset", mcp.Description("Name of a preset from list_presets")),
		mcp.WithArray("command", mcp.Description("Container command override"), mcp.WithStringItems()),
		mcp.WithArray("args", mcp.Description("Container arguments"), mcp.WithStringItems()),
		mcp.WithObject("env", mcp.Description("Environment variables as a string map")),
		mcp.WithNumber("port", mcp.Description("Container port the MCP server listens on")),
		mcp.WithString("path", mcp.Description("HTTP path of the MCP endpoint")),
		mcp.WithString("max_lifetime", mcp.Description("Delete the server after this duration (e.g. 30m)")),
		mcp.WithString("idle_timeout", mcp.Description("Delete the server after this long without use (e.g. 10m)")),
		mcp.WithBoolean("wait_for_ready", mcp.Description("Block until the server is ready and return its endpoint")),
		mcp.WithString("timeout", mcp.Description("Readiness timeout when wait_for_ready is set (default from configuration)")),
	)
	s.mcp.AddTool(spawnTool, s.handleSpawn)

	createTool := mcp.NewTool(ToolCreate,
		mcp.WithDescription("Create an MCP server from a runtime package and wait until it is ready"),
		mcp.WithString("runtime_exec", mcp.Required(), mcp.Description("Runtime executable (e.g. uvx, npx)")),
		mcp.WithString("runtime_mcp", mcp.Required(), mcp.Description("Package started by runtime_exec (e.g. mcp-server-fetch)")),
		mcp.WithObject("env", mcp.Description("Environment variables as a string map")),
		mcp.WithBoolean("wait_for_ready", mcp.Description("Block until the server is ready (default true)")),
		mcp.WithString("timeout", mcp.Description("Readiness timeout (default from configuration)")),
	)
	s.mcp.AddTool(createTool, s.handleCreate)

	waitTool := mcp.NewTool(ToolWait,
		mcp.WithDescription("Wait until an MCP server is ready and return its endpoint"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Server id returned by spawn_mcp_server")),
		mcp.WithString("timeout", mcp.Description("Maximum time to wait (default from configuration)")),
	)
	s.mcp.AddTool(waitTool, s.handleWait)

	statusTool := mcp.NewTool(ToolStatus,
		mcp.WithDescription("Get the current status of an MCP server"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Server id")),
	)
	s.mcp.AddTool(statusTool, s.handleStatus)

	deleteTool := mcp.NewTool(ToolDelete,
		mcp.WithDescription("Delete an MCP server and its Kubernetes resources"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Server id")),
		mcp.WithBoolean("wait_for_deletion", mcp.Description("Wait until the resources are gone (default true)")),
	)
	s.mcp.AddTool(deleteTool, s.handleDelete)

	listTool := mcp.NewTool(ToolList,
		mcp.WithDescription("List managed MCP servers"),
	)
	s.mcp.AddTool(listTool, s.handleList)

	presetsTool := mcp.NewTool(ToolPresets,
		mcp.WithDescription("List available server presets"),
	)
	s.mcp.AddTool(presetsTool, s.handleListPresets)
}

func (s *Server) handleSpawn(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return spawnToolResult(s.spawnFromRequest(ctx, request, false))
}

// handleCreate serves the runtime-only create_mcp_server form, which waits
// for readiness unless told otherwise.
func (s *Server) handleCreate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	request.Params.Arguments = createArguments(request.GetArguments())
	return spawnToolResult(s.spawnFromRequest(ctx, request, true))
}

func (s *Server) spawnFromRequest(ctx context.Context, request mcp.CallToolRequest, waitByDefault bool) (SpawnResult, error) {
	spec, err := specFromRequest(request, s.opts.Presets)
	if err != nil {
		return SpawnResult{}, err
	}
	timeout, err := s.timeoutArg(request)
	if err != nil {
		return SpawnResult{}, err
	}
	return s.spawn(ctx, spec, request.GetBool("wait_for_ready", waitByDefault), timeout)
}

// spawn creates spec and optionally waits for it. Once an id has been
// assigned the result carries it, together with the current state and the
// error, even when creation or the wait failed.
func (s *Server) spawn(ctx context.Context, spec api.ServerSpec, wait bool, timeout time.Duration) (SpawnResult, error) {
	var result SpawnResult
	id, err := s.opts.Lifecycle.Spawn(ctx, spec)
	if err != nil {
		logging.Warn("Server", "Spawn failed: %v", err)
	} else if wait {
		var endpoint api.Endpoint
		if endpoint, err = s.opts.Lifecycle.WaitUntilReady(ctx, id, timeout); err == nil {
			result.Endpoint = &endpoint
			result.URL = endpoint.URL()
		}
	}
	if id == "" {
		return result, err
	}

	result.ID = id
	result.State = api.StatePending
	if h, statusErr := s.opts.Lifecycle.Status(ctx, id); statusErr == nil {
		result.State = h.State
	}
	if err != nil {
		result.Error = err.Error()
	}
	return result, err
}

// spawnToolResult reports a failed spawn as a tool error whose first text is
// the error and, when a server was created, whose second text is the result.
func spawnToolResult(result SpawnResult, err error) (*mcp.CallToolResult, error) {
	if err == nil {
		return jsonResult(result)
	}
	out := toolError(err)
	if result.ID == "" {
		return out, nil
	}
	if data, jsonErr := json.MarshalIndent(result, "", "  "); jsonErr == nil {
		out.Content = append(out.Content, mcp.NewTextContent(string(data)))
	}
	return out, nil
}

func (s *Server) handleWait(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id argument is required"), nil
	}
	timeout, err := s.timeoutArg(request)
	if err != nil {
		return toolError(err), nil
	}

	endpoint, err := s.opts.Lifecycle.WaitUntilReady(ctx, id, timeout)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(SpawnResult{
		ID:       id,
		State:    api.StateRunning,
		Endpoint: &endpoint,
		URL:      endpoint.URL(),
	})
}

func (s *Server) handleStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id argument is required"), nil
	}
	h, err := s.opts.Lifecycle.Status(ctx, id)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(h)
}

func (s *Server) handleDelete(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id argument is required"), nil
	}

	if !request.GetBool("wait_for_deletion", true) {
		go func() {
			if err := s.opts.Lifecycle.Delete(context.WithoutCancel(ctx), id); err != nil {
				logging.Error("Server", err, "Background delete of %s failed", id)
			}
		}()
		return jsonResult(DeleteResult{ID: id, State: api.StateTerminating})
	}

	if err := s.opts.Lifecycle.Delete(ctx, id); err != nil {
		return toolError(err), nil
	}
	return jsonResult(DeleteResult{ID: id, State: api.StateDeleted})
}

func (s *Server) handleList(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(serverInfos(s.opts.Lifecycle.Handles()))
}

func serverInfos(handles []api.ServerHandle) []ServerInfo {
	out := make([]ServerInfo, 0, len(handles))
	for _, h := range handles {
		info := ServerInfo{
			ID:        h.ID,
			State:     h.State,
			Image:     h.Spec.Image,
			CreatedAt: h.CreatedAt,
			LastError: h.LastError,
		}
		if h.Spec.Runtime != nil {
			info.Runtime = h.Spec.Runtime.Exec + " " + h.Spec.Runtime.Package
		}
		if h.Endpoint != nil {
			info.URL = h.Endpoint.URL()
		}
		out = append(out, info)
	}
	return out
}

func (s *Server) handleListPresets(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.opts.Presets == nil {
		return jsonResult([]PresetInfo{})
	}
	list := s.opts.Presets.List()
	out := make([]PresetInfo, 0, len(list))
	for _, p := range list {
		out = append(out, PresetInfo{
			Name:        p.Name,
			Description: p.Description,
			RequiredEnv: p.RequiredEnv,
			Source:      string(p.Source),
		})
	}
	return jsonResult(out)
}

// toolError reports err to the client as a tool error.
func toolError(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to format result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
