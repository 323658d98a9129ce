package cli

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ephemcp/internal/api"
	"ephemcp/internal/config"
	"ephemcp/internal/lifecycle"
	"ephemcp/internal/presets"
	"ephemcp/internal/resolver"
	"ephemcp/internal/server"
	"ephemcp/internal/testing/mock"
	"ephemcp/internal/workload"
)

func startServer(t *testing.T, transport string) (*server.Server, *mock.Cluster) {
	t.Helper()

	cfg := config.GetDefaultConfig()
	cfg.Namespace = "mcp"
	cfg.Lifecycle.PollInterval = 10 * time.Millisecond
	cfg.Server.Transport = transport
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0

	res, err := resolver.New(cfg.Resolver)
	require.NoError(t, err)
	fake := mock.NewCluster()
	m, err := lifecycle.NewManager(fake, lifecycle.Options{
		Translator: workload.NewTranslator(workload.OptionsFromConfig(cfg), workload.DefaultNamer{}),
		Resolver:   res,
		Config:     cfg.Lifecycle,
	})
	require.NoError(t, err)
	catalog, err := presets.NewCatalog("")
	require.NoError(t, err)

	srv, err := server.New(server.Options{Config: cfg.Server, Lifecycle: m, Presets: catalog})
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() {
		_ = srv.Stop(context.Background())
	})
	return srv, fake
}

func TestGetDefaultEndpoint(t *testing.T) {
	t.Setenv(EndpointEnvVar, "")
	assert.Equal(t, "http://localhost:8090/mcp", GetDefaultEndpoint("localhost", 8090))

	t.Setenv(EndpointEnvVar, "http://example:1/sse")
	assert.Equal(t, "http://example:1/sse", GetDefaultEndpoint("localhost", 8090))
}

func TestClient_NotConnected(t *testing.T) {
	c := NewClient("http://127.0.0.1:1/mcp")
	_, err := c.CallTool(context.Background(), server.ToolList, nil)
	assert.Error(t, err)
	assert.NoError(t, c.Close())
}

func TestClient_StreamableHTTP(t *testing.T) {
	srv, fake := startServer(t, config.MCPTransportStreamableHTTP)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c := NewClient("http://" + srv.Addr() + server.MCPPath)
	require.NoError(t, c.Connect(ctx))
	defer c.Close()

	var spawned server.SpawnResult
	require.NoError(t, c.CallToolJSON(ctx, server.ToolSpawn, map[string]interface{}{"image": "mcp/fetch"}, &spawned))
	assert.NotEmpty(t, spawned.ID)
	assert.True(t, fake.HasJob(spawned.ID))

	var servers []server.ServerInfo
	require.NoError(t, c.CallToolJSON(ctx, server.ToolList, nil, &servers))
	require.Len(t, servers, 1)
	assert.Equal(t, spawned.ID, servers[0].ID)

	_, err := c.CallToolText(ctx, server.ToolStatus, map[string]interface{}{"id": "srv-unknown"})
	var toolErr *ToolError
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, server.ToolStatus, toolErr.Tool)
	assert.Contains(t, toolErr.Message, string(api.KindNotFound))
}

func TestClient_SSE(t *testing.T) {
	srv, _ := startServer(t, config.MCPTransportSSE)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c := NewClient("http://" + srv.Addr() + "/sse")
	require.NoError(t, c.Connect(ctx))
	defer c.Close()

	var list []server.PresetInfo
	require.NoError(t, c.CallToolJSON(ctx, server.ToolPresets, nil, &list))
	assert.NotEmpty(t, list)
}

func TestClient_ConnectFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c := NewClient("http://127.0.0.1:1/mcp")
	assert.Error(t, c.Connect(ctx))
}
