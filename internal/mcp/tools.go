package mcp

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/bobmcallan/lingqian/internal/catalog"
	"github.com/bobmcallan/lingqian/internal/common"
	"github.com/bobmcallan/lingqian/internal/divination"
	"github.com/bobmcallan/lingqian/internal/handlers"
	"github.com/bobmcallan/lingqian/internal/session"
)

var errSessionNotFound = errors.New("session not found")

// toolService runs ritual tools against the shared session manager.
type toolService struct {
	sessions *session.Manager
	catalog  *catalog.Catalog
	logger   *common.Logger
}

const sessionIDDescription = "Session id returned by select_deity"

// RegisterTools registers the ritual tools and returns their names.
func RegisterTools(s *server.MCPServer, ts *toolService) []string {
	tools := []server.ServerTool{
		{
			Tool: mcp.NewTool("list_deities",
				mcp.WithDescription("List the deities whose fortune sticks can be drawn."),
			),
			Handler: ts.listDeities,
		},
		{
			Tool: mcp.NewTool("select_deity",
				mcp.WithDescription("Choose the deity to consult. Without session_id a new session is started and its id returned."),
				mcp.WithString("key", mcp.Required(), mcp.Description("Deity key from list_deities")),
				mcp.WithString("session_id", mcp.Description("Existing session id (optional)")),
			),
			Handler: ts.selectDeity,
		},
		{
			Tool: mcp.NewTool("start_draw",
				mcp.WithDescription("Shake the fortune tube. The drawn stick is ready when get_session reports awaiting_confirmation."),
				mcp.WithString("session_id", mcp.Required(), mcp.Description(sessionIDDescription)),
			),
			Handler: ts.trigger("start_draw", (*divination.Machine).StartDraw),
		},
		{
			Tool: mcp.NewTool("confirm_throw",
				mcp.WithDescription("Throw the moon blocks to ask whether the drawn stick is accepted."),
				mcp.WithString("session_id", mcp.Required(), mcp.Description(sessionIDDescription)),
			),
			Handler: ts.trigger("confirm_throw", (*divination.Machine).ConfirmThrow),
		},
		{
			Tool: mcp.NewTool("get_session",
				mcp.WithDescription("Get the ritual phase, pending stick and finalized fortune of a session."),
				mcp.WithString("session_id", mcp.Required(), mcp.Description(sessionIDDescription)),
			),
			Handler: ts.getSession,
		},
		{
			Tool: mcp.NewTool("dismiss_result",
				mcp.WithDescription("Close a finalized fortune so another can be drawn from the same deity."),
				mcp.WithString("session_id", mcp.Required(), mcp.Description(sessionIDDescription)),
			),
			Handler: ts.trigger("dismiss_result", (*divination.Machine).DismissResult),
		},
		{
			Tool: mcp.NewTool("reset_session",
				mcp.WithDescription("Abandon the ritual and clear the selected deity."),
				mcp.WithString("session_id", mcp.Required(), mcp.Description(sessionIDDescription)),
			),
			Handler: ts.trigger("reset_session", func(m *divination.Machine) (divination.Snapshot, error) {
				return m.Reset(), nil
			}),
		},
	}

	s.AddTools(tools...)

	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Tool.Name
	}
	return names
}

func (ts *toolService) listDeities(ctx context.Context, r mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	deities := ts.catalog.Deities()
	out := make([]handlers.DeityResponse, 0, len(deities))
	for _, d := range deities {
		out = append(out, handlers.NewDeityResponse(d))
	}
	return jsonResult(map[string]interface{}{"deities": out}), nil
}

func (ts *toolService) selectDeity(ctx context.Context, r mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := r.RequireString("key")
	if err != nil || key == "" {
		return errorResult("key is required"), nil
	}

	var s *session.Session
	if id := r.GetString("session_id", ""); id != "" {
		var ok bool
		if s, ok = ts.sessions.Get(id); !ok {
			return errorResult(errSessionNotFound.Error()), nil
		}
	} else {
		s = ts.sessions.Create()
		ts.logger.Debug().Str("session", s.ID).Msg("session created over MCP")
	}

	snap, err := s.Machine.SelectDeity(key)
	if err != nil {
		return domainError(err), nil
	}
	return jsonResult(handlers.NewSnapshotResponse(s, snap)), nil
}

func (ts *toolService) getSession(ctx context.Context, r mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s, res := ts.session(r)
	if res != nil {
		return res, nil
	}
	return jsonResult(handlers.NewSnapshotResponse(s, s.Machine.Snapshot())), nil
}

// trigger adapts a machine operation to a tool handler.
func (ts *toolService) trigger(name string, op func(*divination.Machine) (divination.Snapshot, error)) server.ToolHandlerFunc {
	return func(ctx context.Context, r mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		s, res := ts.session(r)
		if res != nil {
			return res, nil
		}
		snap, err := op(s.Machine)
		if err != nil {
			ts.logger.Debug().Str("session", s.ID).Str("tool", name).Err(err).Msg("tool rejected")
			return domainError(err), nil
		}
		return jsonResult(handlers.NewSnapshotResponse(s, snap)), nil
	}
}

// session looks up the session named by the session_id argument. On failure
// the error result is returned instead.
func (ts *toolService) session(r mcp.CallToolRequest) (*session.Session, *mcp.CallToolResult) {
	id, err := r.RequireString("session_id")
	if err != nil || id == "" {
		return nil, errorResult("session_id is required")
	}
	s, ok := ts.sessions.Get(id)
	if !ok {
		return nil, errorResult(errSessionNotFound.Error())
	}
	return s, nil
}

// domainError reports err with the same message the HTTP API uses.
func domainError(err error) *mcp.CallToolResult {
	_, msg := handlers.StatusFor(err)
	return errorResult(msg)
}
