package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// EndpointEnvVar is the environment variable name for setting the default endpoint.
const EndpointEnvVar = "EPHEMCP_ENDPOINT"

// DefaultTimeout bounds a single tool call. Waiting tools may take up to the
// readiness timeout of the server, so it is generous.
const DefaultTimeout = 5 * time.Minute

// GetDefaultEndpoint returns the endpoint from the environment, or the
// streamable-http endpoint of a server on host:port.
func GetDefaultEndpoint(host string, port int) string {
	if endpoint := os.Getenv(EndpointEnvVar); endpoint != "" {
		return endpoint
	}
	return fmt.Sprintf("http://%s:%d/mcp", host, port)
}

// ToolError is a tool result with IsError set. Message is the first text of
// the result; any further texts are kept in Details.
type ToolError struct {
	Tool    string
	Message string
	Details []string
}

func (e *ToolError) Error() string {
	return e.Message
}

// Client calls ephemcp tools on a running server.
type Client struct {
	endpoint string
	timeout  time.Duration
	client   client.MCPClient
}

// NewClient creates a client for endpoint. An endpoint ending in /sse uses
// the SSE transport, anything else streamable-http.
func NewClient(endpoint string) *Client {
	return &Client{endpoint: endpoint, timeout: DefaultTimeout}
}

// SetTimeout overrides the per-call timeout.
func (c *Client) SetTimeout(d time.Duration) {
	if d > 0 {
		c.timeout = d
	}
}

// Endpoint returns the endpoint the client talks to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Connect establishes the transport and performs the MCP handshake.
func (c *Client) Connect(ctx context.Context) error {
	var (
		mcpClient *client.Client
		err       error
	)
	if strings.HasSuffix(strings.TrimRight(c.endpoint, "/"), "/sse") {
		mcpClient, err = client.NewSSEMCPClient(c.endpoint)
		if err != nil {
			return fmt.Errorf("failed to create SSE client: %w", err)
		}
	} else {
		mcpClient, err = client.NewStreamableHttpClient(c.endpoint)
		if err != nil {
			return fmt.Errorf("failed to create streamable-http client: %w", err)
		}
	}

	if err := mcpClient.Start(ctx); err != nil {
		return fmt.Errorf("failed to connect to ephemcp server at %s: %w", c.endpoint, err)
	}

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: "ephemcp-cli", Version: "1.0.0"}

	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if _, err := mcpClient.Initialize(initCtx, req); err != nil {
		_ = mcpClient.Close()
		return fmt.Errorf("failed to initialize session with %s: %w", c.endpoint, err)
	}

	c.client = mcpClient
	return nil
}

// Close closes the session.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}

// CallTool calls a tool and returns the raw result.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	if c.client == nil {
		return nil, fmt.Errorf("client not connected")
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result, err := c.client.CallTool(timeoutCtx, req)
	if err != nil {
		return nil, fmt.Errorf("tool call %s failed: %w", name, err)
	}
	return result, nil
}

// CallToolText calls a tool and returns its first text content. A tool
// error is returned as *ToolError.
func (c *Client) CallToolText(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	result, err := c.CallTool(ctx, name, args)
	if err != nil {
		return "", err
	}

	texts := resultTexts(result)
	if result.IsError {
		toolErr := &ToolError{Tool: name}
		if len(texts) > 0 {
			toolErr.Message, toolErr.Details = texts[0], texts[1:]
		}
		return "", toolErr
	}
	if len(texts) == 0 {
		return "", nil
	}
	return texts[0], nil
}

// CallToolJSON calls a tool and decodes its JSON result into out.
func (c *Client) CallToolJSON(ctx context.Context, name string, args map[string]interface{}, out interface{}) error {
	text, err := c.CallToolText(ctx, name, args)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", name, err)
	}
	return nil
}

func resultTexts(result *mcp.CallToolResult) []string {
	var out []string
	for _, content := range result.Content {
		if textContent, ok := mcp.AsTextContent(content); ok {
			out = append(out, textContent.Text)
		}
	}
	return out
}
