package mcp

import (
	"database/sql"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kmori/shotpipe/internal/config"
	"github.com/kmori/shotpipe/internal/session"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"flow_login": {
		def:     loginToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleLogin },
	},
	"flow_browse_project": {
		def:     browseProjectToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleBrowseProject },
	},
	"flow_browse_shot": {
		def:     browseShotToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleBrowseShot },
	},
	"flow_select_task": {
		def:     selectTaskToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSelectTask },
	},
	"flow_publish": {
		def:     publishToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePublish },
	},
	"flow_create_note": {
		def:     createNoteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCreateNote },
	},
	"flow_filename": {
		def:     filenameToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleFilename },
	},
}

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// NewServer creates a new MCP server with the Flow tools registered.
// Tools listed in cfg.DisabledTools are excluded from registration.
func NewServer(cache *session.Cache, cfg *config.Config, hist *sql.DB, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"shotpipe",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(cache, cfg, hist)

	disabled := make(map[string]bool)
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(cache *session.Cache, cfg *config.Config, hist *sql.DB, version string) error {
	s := NewServer(cache, cfg, hist, version)
	return server.ServeStdio(s)
}
