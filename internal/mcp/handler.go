package mcp

import (
	"net/http"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/bobmcallan/lingqian/internal/catalog"
	"github.com/bobmcallan/lingqian/internal/common"
	"github.com/bobmcallan/lingqian/internal/config"
	"github.com/bobmcallan/lingqian/internal/session"
)

// Handler is the HTTP handler for the MCP endpoint.
// It wraps mcp-go's StreamableHTTPServer and delegates to it.
type Handler struct {
	streamable *mcpserver.StreamableHTTPServer
	logger     *common.Logger
	tools      []string
}

// NewMCPServer builds the MCP server with the ritual tools registered and
// returns it with the registered tool names.
func NewMCPServer(sessions *session.Manager, c *catalog.Catalog, logger *common.Logger) (*mcpserver.MCPServer, []string) {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	mcpSrv := mcpserver.NewMCPServer(
		"lingqian",
		config.GetVersion(),
		mcpserver.WithToolCapabilities(true),
	)

	names := RegisterTools(mcpSrv, &toolService{sessions: sessions, catalog: c, logger: logger})
	mcpSrv.AddTool(VersionTool(), VersionToolHandler())
	names = append(names, "get_version")

	return mcpSrv, names
}

// NewHandler creates the MCP handler. The server is stateless: every
// ritual tool names its session explicitly.
func NewHandler(sessions *session.Manager, c *catalog.Catalog, logger *common.Logger) *Handler {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	mcpSrv, names := NewMCPServer(sessions, c, logger)

	streamable := mcpserver.NewStreamableHTTPServer(mcpSrv,
		mcpserver.WithStateLess(true),
	)

	logger.Info().
		Int("tools", len(names)).
		Msg("MCP handler initialized")

	return &Handler{
		streamable: streamable,
		logger:     logger,
		tools:      names,
	}
}

// Tools returns the names of the registered tools.
func (h *Handler) Tools() []string {
	out := make([]string, len(h.tools))
	copy(out, h.tools)
	return out
}

// ServeHTTP delegates to the mcp-go StreamableHTTPServer.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.streamable.ServeHTTP(w, r)
}
