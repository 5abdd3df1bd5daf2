package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"limbo/internal/domain"
	"limbo/internal/infra/config"
)

// DefaultMCPCallTimeout bounds a tool call on servers without call_timeout.
const DefaultMCPCallTimeout = 30 * time.Second

// mcpSession is the part of an MCP client the bridge drives.
type mcpSession interface {
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// mcpServer is one connected MCP server.
type mcpServer struct {
	name        string
	session     mcpSession
	callTimeout time.Duration
}

// MCPBridge exposes the tools of the configured MCP servers as limbo tools.
// Tool ids take the form mcp_<server>_<tool>. The set of tools is fixed once
// the bridge is built.
type MCPBridge struct {
	servers []mcpServer
	tools   []domain.Tool
	logger  *slog.Logger
}

// NewMCPBridge connects to every server in servers and lists their tools.
// A server that cannot be started fails the bridge; a server whose tool
// listing fails is skipped unless every server fails.
func NewMCPBridge(ctx context.Context, servers []config.MCPServer, logger *slog.Logger) (*MCPBridge, error) {
	connected := make([]mcpServer, 0, len(servers))
	for _, cfg := range servers {
		session, err := dialMCP(ctx, cfg)
		if err != nil {
			closeMCP(connected, logger)
			return nil, fmt.Errorf("mcp server %q: %w", cfg.Name, err)
		}
		logger.Info("mcp server connected", "server", cfg.Name, "transport", cfg.Transport)
		connected = append(connected, mcpServer{name: cfg.Name, session: session, callTimeout: cfg.CallTimeout})
	}
	return bridgeServers(ctx, connected, logger)
}

func bridgeServers(ctx context.Context, servers []mcpServer, logger *slog.Logger) (*MCPBridge, error) {
	b := &MCPBridge{servers: servers, logger: logger}
	if err := b.discover(ctx); err != nil {
		closeMCP(servers, logger)
		return nil, err
	}
	return b, nil
}

// dialMCP starts a session over the server's transport and performs the
// initialize handshake.
func dialMCP(ctx context.Context, cfg config.MCPServer) (mcpSession, error) {
	var c *mcpclient.Client
	var err error
	switch cfg.Transport {
	case "stdio":
		c, err = mcpclient.NewStdioMCPClient(cfg.Command, mcpEnv(cfg.Env), cfg.Args...)
		if err != nil {
			return nil, fmt.Errorf("start %s: %w", cfg.Command, err)
		}
	case "http":
		var opts []transport.StreamableHTTPCOption
		if len(cfg.Headers) > 0 {
			opts = append(opts, transport.WithHTTPHeaders(cfg.Headers))
		}
		c, err = mcpclient.NewStreamableHttpClient(cfg.URL, opts...)
		if err != nil {
			return nil, fmt.Errorf("connect %s: %w", cfg.URL, err)
		}
		if err := c.Start(ctx); err != nil {
			return nil, fmt.Errorf("start http transport: %w", err)
		}
	default:
		return nil, domain.NewSubSystemError("tools", "dialMCP", domain.ErrInvalidInput,
			fmt.Sprintf("transport %q", cfg.Transport))
	}

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: "limbo", Version: "1.0.0"}
	if _, err := c.Initialize(ctx, req); err != nil {
		c.Close()
		return nil, domain.WrapOp("mcp.initialize", err)
	}
	return c, nil
}

func (b *MCPBridge) discover(ctx context.Context) error {
	var failed []error
	for _, srv := range b.servers {
		listed, err := srv.session.ListTools(ctx, mcp.ListToolsRequest{})
		if err != nil {
			b.logger.Warn("mcp tool listing failed, server skipped", "server", srv.name, "error", err)
			failed = append(failed, fmt.Errorf("%s: %w", srv.name, err))
			continue
		}
		for _, def := range listed.Tools {
			t := newMCPTool(srv, def, b.logger)
			b.tools = append(b.tools, t)
			b.logger.Debug("mcp tool found", "server", srv.name, "tool", def.Name, "id", t.id)
		}
	}
	if len(b.servers) > 0 && len(failed) == len(b.servers) {
		return fmt.Errorf("all mcp servers failed discovery: %w", errors.Join(failed...))
	}
	return nil
}

// Tools returns the bridged tools in server, then listing, order.
func (b *MCPBridge) Tools() []domain.Tool {
	return b.tools
}

// RegisterAll registers every bridged tool in ns and returns a function that
// unregisters them again. Ids already taken in ns are skipped with a warning
// and left alone on unregister.
func (b *MCPBridge) RegisterAll(ns domain.ToolsNamespace) func() {
	var registered []string
	for _, t := range b.tools {
		if err := ns.Register(t); err != nil {
			b.logger.Warn("mcp tool not registered", "tool", t.ID(), "error", err)
			continue
		}
		registered = append(registered, t.ID())
	}
	return func() {
		for _, id := range registered {
			ns.Unregister(id)
		}
	}
}

// Close ends every server session.
func (b *MCPBridge) Close() error {
	return closeMCP(b.servers, b.logger)
}

func closeMCP(servers []mcpServer, logger *slog.Logger) error {
	var errs []error
	for _, srv := range servers {
		if err := srv.session.Close(); err != nil {
			logger.Warn("mcp server close failed", "server", srv.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", srv.name, err))
		}
	}
	return errors.Join(errs...)
}

// mcpTool is one server tool seen as a domain.Tool.
type mcpTool struct {
	server mcpServer
	def    mcp.Tool
	id     string
	logger *slog.Logger
}

func newMCPTool(server mcpServer, def mcp.Tool, logger *slog.Logger) *mcpTool {
	return &mcpTool{
		server: server,
		def:    def,
		id:     "mcp_" + toolIDPart(server.name) + "_" + toolIDPart(def.Name),
		logger: logger,
	}
}

func (t *mcpTool) ID() string { return t.id }

func (t *mcpTool) Description() string {
	if t.def.Description == "" {
		return fmt.Sprintf("%q from MCP server %q", t.def.Name, t.server.name)
	}
	return t.def.Description
}

// Schema is the server's input schema, or an open object schema when the
// server declares no properties.
func (t *mcpTool) Schema() json.RawMessage {
	in := t.def.InputSchema
	if in.Properties == nil && in.Required == nil {
		return json.RawMessage(`{"type": "object"}`)
	}
	raw, err := json.Marshal(in)
	if err != nil {
		return json.RawMessage(`{"type": "object"}`)
	}
	return raw
}

// Execute forwards the call to the server. A result flagged as an error fails
// with domain.ErrToolFailure and carries the server's message.
func (t *mcpTool) Execute(ctx context.Context, args domain.ToolExecuteArgs) (string, error) {
	params, err := ParseParams[map[string]any](args.Call.Arguments)
	if err != nil {
		return "", err
	}

	timeout := t.server.callTimeout
	if timeout <= 0 {
		timeout = DefaultMCPCallTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := mcp.CallToolRequest{}
	req.Params.Name = t.def.Name
	req.Params.Arguments = params

	start := time.Now()
	res, err := t.server.session.CallTool(ctx, req)
	if err != nil {
		return "", fmt.Errorf("mcp server %q: %w", t.server.name, err)
	}
	t.logger.Debug("mcp tool called", "tool", t.id, "call_id", args.Call.ID,
		"is_error", res.IsError, "duration", time.Since(start))

	text := flattenMCPContent(res.Content)
	if res.IsError {
		return "", fmt.Errorf("%w: %s", domain.ErrToolFailure, text)
	}
	return text, nil
}

// flattenMCPContent joins a result's parts into one string. Text is kept as
// is, binary parts are summarized and anything else is passed on as JSON.
func flattenMCPContent(parts []mcp.Content) string {
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		switch p := part.(type) {
		case mcp.TextContent:
			out = append(out, p.Text)
		case mcp.ImageContent:
			out = append(out, fmt.Sprintf("[image %s, %d bytes base64]", p.MIMEType, len(p.Data)))
		case mcp.EmbeddedResource:
			switch r := p.Resource.(type) {
			case mcp.TextResourceContents:
				out = append(out, r.Text)
			case *mcp.TextResourceContents:
				out = append(out, r.Text)
			default:
				out = append(out, marshalPart(p))
			}
		default:
			out = append(out, marshalPart(p))
		}
	}
	return strings.Join(out, "\n")
}

func marshalPart(p mcp.Content) string {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Sprintf("[unreadable %T]", p)
	}
	return string(raw)
}

// toolIDPart maps every rune outside [A-Za-z0-9_] to an underscore.
func toolIDPart(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return '_'
	}, s)
}

// mcpEnv renders a server's extra variables as sorted KEY=VALUE pairs.
func mcpEnv(vars map[string]string) []string {
	if len(vars) == 0 {
		return nil
	}
	env := make([]string, 0, len(vars))
	for _, k := range slices.Sorted(maps.Keys(vars)) {
		env = append(env, k+"="+vars[k])
	}
	return env
}
