package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ephemcp/internal/api"
	"ephemcp/internal/cluster"
	"ephemcp/internal/config"
	"ephemcp/internal/lifecycle"
	"ephemcp/internal/metrics"
	"ephemcp/internal/presets"
	"ephemcp/internal/resolver"
	"ephemcp/internal/testing/mock"
	"ephemcp/internal/workload"
)

func newTestServer(t *testing.T, ids ...string) (*Server, *lifecycle.Manager, *mock.Cluster) {
	t.Helper()

	cfg := config.GetDefaultConfig()
	cfg.Namespace = "mcp"
	cfg.Lifecycle.PollInterval = 10 * time.Millisecond
	cfg.Lifecycle.ReadyTimeout = time.Second
	cfg.Lifecycle.Backoff = config.BackoffConfig{Initial: time.Millisecond, Factor: 1, Steps: 2, Cap: time.Millisecond}

	res, err := resolver.New(cfg.Resolver)
	require.NoError(t, err)

	next := 0
	fake := mock.NewCluster()
	m, err := lifecycle.NewManager(fake, lifecycle.Options{
		Translator: workload.NewTranslator(workload.OptionsFromConfig(cfg), workload.DefaultNamer{}),
		Resolver:   res,
		Config:     cfg.Lifecycle,
		IDGenerator: func() string {
			next++
			if next <= len(ids) {
				return ids[next-1]
			}
			return "srv-x" + string(rune('a'+next))
		},
	})
	require.NoError(t, err)

	catalog, err := presets.NewCatalog("")
	require.NoError(t, err)

	s, err := New(Options{
		Config:    cfg.Server,
		Lifecycle: m,
		Presets:   catalog,
	})
	require.NoError(t, err)
	return s, m, fake
}

func call(t *testing.T, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	result, err := handler(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}

func text(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	tc, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok, "expected text content, got %T", result.Content[0])
	return tc.Text
}

func decode(t *testing.T, result *mcp.CallToolResult, v interface{}) {
	t.Helper()
	require.False(t, result.IsError, text(t, result))
	require.NoError(t, json.Unmarshal([]byte(text(t, result)), v))
}

func TestNew_RequiresLifecycle(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestSpawn_WaitForReady(t *testing.T) {
	s, _, fake := newTestServer(t, "srv-a1b2")
	fake.ReadyAfterPolls("srv-a1b2", 1)

	result := call(t, s.handleSpawn, map[string]interface{}{
		"image":          "mcp/fetch",
		"port":           float64(8080),
		"wait_for_ready": true,
	})

	var out SpawnResult
	decode(t, result, &out)
	assert.Equal(t, "srv-a1b2", out.ID)
	assert.Equal(t, api.StateRunning, out.State)
	require.NotNil(t, out.Endpoint)
	assert.Equal(t, "srv-a1b2.mcp.svc.cluster.local", out.Endpoint.Host)
	assert.Equal(t, "http://srv-a1b2.mcp.svc.cluster.local:8080", out.URL)
}

func TestSpawn_WithoutWaitReturnsPending(t *testing.T) {
	s, _, fake := newTestServer(t, "srv-c3d4")

	result := call(t, s.handleSpawn, map[string]interface{}{
		"image": "mcp/fetch",
		"env":   map[string]interface{}{"A": "1", "B": float64(2)},
		"args":  []interface{}{"--verbose"},
	})

	var out SpawnResult
	decode(t, result, &out)
	assert.Equal(t, "srv-c3d4", out.ID)
	assert.Equal(t, api.StatePending, out.State)
	assert.Nil(t, out.Endpoint)
	assert.True(t, fake.HasJob("srv-c3d4"))
	assert.True(t, fake.HasService("srv-c3d4"))

	container := fake.Job("srv-c3d4").Spec.Template.Spec.Containers[0]
	assert.Equal(t, []string{"--verbose"}, container.Args)
	require.Len(t, container.Env, 2)
	assert.Equal(t, "2", container.Env[1].Value)
}

func TestSpawn_Preset(t *testing.T) {
	s, m, _ := newTestServer(t, "srv-e5f6")

	result := call(t, s.handleSpawn, map[string]interface{}{"preset": "fetch"})
	var out SpawnResult
	decode(t, result, &out)

	h, err := m.Get(out.ID)
	require.NoError(t, err)
	require.NotNil(t, h.Spec.Runtime)
	assert.Equal(t, "uvx", h.Spec.Runtime.Exec)
	assert.Equal(t, "mcp-server-fetch", h.Spec.Runtime.Package)
}

func TestSpawn_InvalidArguments(t *testing.T) {
	tests := []struct {
		name     string
		args     map[string]interface{}
		contains string
	}{
		{
			name:     "no image or runtime",
			args:     map[string]interface{}{},
			contains: string(api.KindInvalidSpec),
		},
		{
			name:     "preset with image",
			args:     map[string]interface{}{"preset": "fetch", "image": "mcp/fetch"},
			contains: "cannot be combined",
		},
		{
			name:     "unknown preset",
			args:     map[string]interface{}{"preset": "nope"},
			contains: string(api.KindNotFound),
		},
		{
			name:     "preset missing env",
			args:     map[string]interface{}{"preset": "github"},
			contains: "GITHUB_PERSONAL_ACCESS_TOKEN",
		},
		{
			name:     "bad port",
			args:     map[string]interface{}{"image": "mcp/fetch", "port": float64(70000)},
			contains: "not a valid port",
		},
		{
			name:     "bad duration",
			args:     map[string]interface{}{"image": "mcp/fetch", "max_lifetime": "soon"},
			contains: "max_lifetime",
		},
		{
			name:     "env not an object",
			args:     map[string]interface{}{"image": "mcp/fetch", "env": "A=1"},
			contains: "env must be an object",
		},
		{
			name:     "runtime without package",
			args:     map[string]interface{}{"runtime_exec": "uvx"},
			contains: string(api.KindInvalidSpec),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, m, fake := newTestServer(t)
			result := call(t, s.handleSpawn, tt.args)
			assert.True(t, result.IsError)
			assert.Contains(t, text(t, result), tt.contains)
			assert.Empty(t, m.List())
			assert.Equal(t, 0, fake.JobCount())
		})
	}
}

func TestSpawn_WaitFailureKeepsID(t *testing.T) {
	s, _, fake := newTestServer(t, "srv-late")

	result := call(t, s.handleSpawn, map[string]interface{}{
		"image":          "mcp/fetch",
		"wait_for_ready": true,
		"timeout":        "50ms",
	})
	require.True(t, result.IsError)
	assert.True(t, strings.HasPrefix(text(t, result), string(api.KindReadinessTimeout)), text(t, result))

	require.Len(t, result.Content, 2)
	tc, ok := mcp.AsTextContent(result.Content[1])
	require.True(t, ok)
	var out SpawnResult
	require.NoError(t, json.Unmarshal([]byte(tc.Text), &out))
	assert.Equal(t, "srv-late", out.ID)
	assert.Equal(t, api.StatePending, out.State)
	assert.Contains(t, out.Error, string(api.KindReadinessTimeout))
	assert.True(t, fake.HasJob("srv-late"), "the server is left running")

	var deleted DeleteResult
	decode(t, call(t, s.handleDelete, map[string]interface{}{"id": out.ID}), &deleted)
	assert.Equal(t, api.StateDeleted, deleted.State)
}

func TestCreate_WaitsByDefault(t *testing.T) {
	s, m, fake := newTestServer(t, "srv-cr")
	fake.ReadyAfterPolls("srv-cr", 1)

	var out SpawnResult
	decode(t, call(t, s.handleCreate, map[string]interface{}{
		"runtime_exec": "uvx",
		"runtime_mcp":  "mcp-server-fetch",
		"env":          map[string]interface{}{"LOG_LEVEL": "debug"},
	}), &out)
	assert.Equal(t, "srv-cr", out.ID)
	assert.Equal(t, api.StateRunning, out.State)
	assert.Equal(t, "http://srv-cr.mcp.svc.cluster.local:8080/sse", out.URL)

	h, err := m.Get("srv-cr")
	require.NoError(t, err)
	assert.Equal(t, &api.Runtime{Exec: "uvx", Package: "mcp-server-fetch"}, h.Spec.Runtime)
	assert.Equal(t, map[string]string{"LOG_LEVEL": "debug"}, h.Spec.Env)
}

func TestCreate_WithoutWait(t *testing.T) {
	s, _, _ := newTestServer(t, "srv-nw")

	var out SpawnResult
	decode(t, call(t, s.handleCreate, map[string]interface{}{
		"runtime_exec":   "npx",
		"runtime_mcp":    "@modelcontextprotocol/server-everything",
		"wait_for_ready": false,
	}), &out)
	assert.Equal(t, "srv-nw", out.ID)
	assert.Equal(t, api.StatePending, out.State)
	assert.Empty(t, out.URL)

	result := call(t, s.handleCreate, map[string]interface{}{"runtime_exec": "uvx"})
	assert.True(t, result.IsError)
	assert.Contains(t, text(t, result), string(api.KindInvalidSpec))
}

func TestWait_TimeoutIsToolError(t *testing.T) {
	s, _, _ := newTestServer(t, "srv-slow")
	call(t, s.handleSpawn, map[string]interface{}{"image": "mcp/fetch"})

	result := call(t, s.handleWait, map[string]interface{}{"id": "srv-slow", "timeout": "50ms"})
	assert.True(t, result.IsError)
	assert.Contains(t, text(t, result), string(api.KindReadinessTimeout))
}

func TestWait_ReturnsEndpoint(t *testing.T) {
	s, _, fake := newTestServer(t, "srv-ok")
	call(t, s.handleSpawn, map[string]interface{}{"image": "mcp/fetch", "path": "/mcp"})
	fake.MarkReady("srv-ok")

	var out SpawnResult
	decode(t, call(t, s.handleWait, map[string]interface{}{"id": "srv-ok"}), &out)
	assert.Equal(t, "http://srv-ok.mcp.svc.cluster.local:8080/mcp", out.URL)
}

func TestWait_MissingID(t *testing.T) {
	s, _, _ := newTestServer(t)
	result := call(t, s.handleWait, map[string]interface{}{})
	assert.True(t, result.IsError)
}

func TestStatus(t *testing.T) {
	s, _, fake := newTestServer(t, "srv-st")
	call(t, s.handleSpawn, map[string]interface{}{"image": "mcp/fetch"})
	fake.SetPhase("srv-st", cluster.PhaseRunning, "")

	var h api.ServerHandle
	decode(t, call(t, s.handleStatus, map[string]interface{}{"id": "srv-st"}), &h)
	assert.Equal(t, api.StateWaiting, h.State)
	assert.Equal(t, "srv-st", h.ComputeUnitName)

	result := call(t, s.handleStatus, map[string]interface{}{"id": "srv-none"})
	assert.True(t, result.IsError)
	assert.Contains(t, text(t, result), string(api.KindNotFound))
}

func TestDelete(t *testing.T) {
	s, m, fake := newTestServer(t, "srv-del")
	call(t, s.handleSpawn, map[string]interface{}{"image": "mcp/fetch"})

	var out DeleteResult
	decode(t, call(t, s.handleDelete, map[string]interface{}{"id": "srv-del"}), &out)
	assert.Equal(t, api.StateDeleted, out.State)
	assert.False(t, fake.HasJob("srv-del"))
	assert.False(t, fake.HasService("srv-del"))

	h, err := m.Get("srv-del")
	require.NoError(t, err)
	assert.Equal(t, api.StateDeleted, h.State)

	// Idempotent.
	decode(t, call(t, s.handleDelete, map[string]interface{}{"id": "srv-del"}), &out)
	assert.Equal(t, api.StateDeleted, out.State)
}

func TestDelete_InBackground(t *testing.T) {
	s, m, fake := newTestServer(t, "srv-bg")
	call(t, s.handleSpawn, map[string]interface{}{"image": "mcp/fetch"})

	var out DeleteResult
	decode(t, call(t, s.handleDelete, map[string]interface{}{"id": "srv-bg", "wait_for_deletion": false}), &out)
	assert.Equal(t, api.StateTerminating, out.State)

	require.Eventually(t, func() bool {
		h, err := m.Get("srv-bg")
		return err == nil && h.State == api.StateDeleted
	}, 2*time.Second, 10*time.Millisecond)
	assert.False(t, fake.HasJob("srv-bg"))
}

func TestDelete_InvalidID(t *testing.T) {
	s, _, _ := newTestServer(t)
	result := call(t, s.handleDelete, map[string]interface{}{"id": "Not_Valid"})
	assert.True(t, result.IsError)
	assert.Contains(t, text(t, result), string(api.KindInvalidSpec))
}

func TestList(t *testing.T) {
	s, _, fake := newTestServer(t, "srv-1", "srv-2")
	call(t, s.handleSpawn, map[string]interface{}{"image": "mcp/fetch"})
	call(t, s.handleSpawn, map[string]interface{}{"runtime_exec": "uvx", "runtime_package": "mcp-server-time"})
	fake.MarkReady("srv-2")
	call(t, s.handleWait, map[string]interface{}{"id": "srv-2"})

	var out []ServerInfo
	decode(t, call(t, s.handleList, nil), &out)
	require.Len(t, out, 2)

	byID := map[string]ServerInfo{}
	for _, info := range out {
		byID[info.ID] = info
	}
	assert.Equal(t, "mcp/fetch", byID["srv-1"].Image)
	assert.Empty(t, byID["srv-1"].URL)
	assert.Equal(t, "uvx mcp-server-time", byID["srv-2"].Runtime)
	assert.Equal(t, api.StateRunning, byID["srv-2"].State)
	assert.Equal(t, "http://srv-2.mcp.svc.cluster.local:8080/sse", byID["srv-2"].URL)
}

func TestListPresets(t *testing.T) {
	s, _, _ := newTestServer(t)

	var out []PresetInfo
	decode(t, call(t, s.handleListPresets, nil), &out)

	names := make([]string, 0, len(out))
	for _, p := range out {
		names = append(names, p.Name)
		assert.Equal(t, string(presets.SourceBuiltin), p.Source)
	}
	assert.Equal(t, []string{"fetch", "git", "github", "time"}, names)
}

func TestStart_StreamableHTTP(t *testing.T) {
	s, _, _ := newTestServer(t)
	s.opts.Config.Host = "127.0.0.1"
	s.opts.Config.Port = 0
	s.opts.Config.MetricsPath = "/metrics"
	s.opts.Metrics = metrics.NewPrometheus().Handler()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, s.Start(ctx))
	assert.Error(t, s.Start(ctx), "second start must fail")
	defer func() {
		assert.NoError(t, s.Stop(context.Background()))
	}()

	base := "http://" + s.Addr()

	resp, err := http.Get(base + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "go_goroutines")

	c, err := client.NewStreamableHttpClient(base + MCPPath)
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.Start(ctx))

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "ephemcp-test", Version: "1.0.0"}
	_, err = c.Initialize(ctx, initReq)
	require.NoError(t, err)

	tools, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	require.NoError(t, err)
	var names []string
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{ToolSpawn, ToolCreate, ToolWait, ToolStatus, ToolDelete, ToolList, ToolPresets}, names)

	req := mcp.CallToolRequest{}
	req.Params.Name = ToolPresets
	result, err := c.CallTool(ctx, req)
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, text(t, result), `"name": "fetch"`)
}

func TestStart_UnsupportedTransport(t *testing.T) {
	s, _, _ := newTestServer(t)
	s.opts.Config.Transport = "carrier-pigeon"
	assert.Error(t, s.Start(context.Background()))
	assert.Error(t, s.Stop(context.Background()), "stop without start must fail")
}

func restRequest(t *testing.T, base, method, path, body string, v interface{}) int {
	t.Helper()
	req, err := http.NewRequest(method, base+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestREST(t *testing.T) {
	s, _, fake := newTestServer(t, "srv-r1", "srv-r2")
	ts := httptest.NewServer(s.handler(s.opts.Config, "127.0.0.1:0"))
	defer ts.Close()

	var created SpawnResult
	status := restRequest(t, ts.URL, http.MethodPost, RESTCreatePath,
		`{"runtime_exec": "uvx", "runtime_mcp": "mcp-server-fetch", "env": {"A": "1"}, "wait_for_ready": false}`, &created)
	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "srv-r1", created.ID)
	assert.True(t, fake.HasJob("srv-r1"))

	// Query parameters work as well, as does waiting.
	fake.ReadyAfterPolls("srv-r2", 1)
	status = restRequest(t, ts.URL, http.MethodPost, RESTCreatePath+"?runtime_exec=uvx&runtime_mcp=mcp-server-time", "", &created)
	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "srv-r2", created.ID)
	assert.Equal(t, api.StateRunning, created.State)

	var servers []ServerInfo
	status = restRequest(t, ts.URL, http.MethodGet, RESTListPath, "", &servers)
	assert.Equal(t, http.StatusOK, status)
	require.Len(t, servers, 2)
	runtimes := map[string]string{}
	for _, info := range servers {
		runtimes[info.ID] = info.Runtime
	}
	assert.Equal(t, "uvx mcp-server-fetch", runtimes["srv-r1"])
	assert.Equal(t, "uvx mcp-server-time", runtimes["srv-r2"])

	var deleted DeleteResult
	status = restRequest(t, ts.URL, http.MethodPost, RESTDeletePath+"?name=srv-r1", "", &deleted)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, DeleteResult{ID: "srv-r1", State: api.StateDeleted}, deleted)
	assert.False(t, fake.HasJob("srv-r1"))

	status = restRequest(t, ts.URL, http.MethodPost, RESTDeletePath, `{"id": "srv-r2"}`, &deleted)
	assert.Equal(t, http.StatusOK, status)
	assert.False(t, fake.HasJob("srv-r2"))
}

func TestREST_Errors(t *testing.T) {
	s, _, fake := newTestServer(t, "srv-slow")
	ts := httptest.NewServer(s.handler(s.opts.Config, "127.0.0.1:0"))
	defer ts.Close()

	tests := []struct {
		name     string
		method   string
		path     string
		body     string
		status   int
		kind     api.ErrorKind
		idInBody string
	}{
		{
			name:   "create without runtime",
			method: http.MethodPost,
			path:   RESTCreatePath,
			body:   `{}`,
			status: http.StatusBadRequest,
			kind:   api.KindInvalidSpec,
		},
		{
			name:   "create with malformed body",
			method: http.MethodPost,
			path:   RESTCreatePath,
			body:   `[1, 2]`,
			status: http.StatusBadRequest,
			kind:   api.KindInvalidSpec,
		},
		{
			name:     "create that never becomes ready",
			method:   http.MethodPost,
			path:     RESTCreatePath,
			body:     `{"runtime_exec": "uvx", "runtime_mcp": "mcp-server-fetch", "timeout": "50ms"}`,
			status:   http.StatusGatewayTimeout,
			kind:     api.KindReadinessTimeout,
			idInBody: "srv-slow",
		},
		{
			name:   "delete without id",
			method: http.MethodPost,
			path:   RESTDeletePath,
			status: http.StatusBadRequest,
			kind:   api.KindInvalidSpec,
		},
		{
			name:   "delete invalid id",
			method: http.MethodPost,
			path:   RESTDeletePath + "?id=Not_Valid",
			status: http.StatusBadRequest,
			kind:   api.KindInvalidSpec,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body restError
			status := restRequest(t, ts.URL, tt.method, tt.path, tt.body, &body)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.kind, body.Kind)
			assert.NotEmpty(t, body.Message)
			assert.Equal(t, tt.idInBody, body.ID)
		})
	}
	assert.True(t, fake.HasJob("srv-slow"))

	status := restRequest(t, ts.URL, http.MethodGet, RESTCreatePath, "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, status)
}
