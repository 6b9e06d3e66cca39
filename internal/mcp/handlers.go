package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kmori/shotpipe/internal/config"
	"github.com/kmori/shotpipe/internal/errors"
	"github.com/kmori/shotpipe/internal/flow"
	"github.com/kmori/shotpipe/internal/ops"
	"github.com/kmori/shotpipe/internal/pipe"
	"github.com/kmori/shotpipe/internal/session"
)

// Handlers holds dependencies for MCP tool handlers. After a successful
// flow_login the credentials are remembered so later tools reconnect
// through the session cache without the host resending them.
type Handlers struct {
	cache *session.Cache
	cfg   *config.Config
	hist  *sql.DB

	mu     sync.Mutex
	site   string
	creds  flow.Credentials
	authed bool
}

// NewHandlers creates a new Handlers instance. hist may be nil; history
// logging is then skipped.
func NewHandlers(cache *session.Cache, cfg *config.Config, hist *sql.DB) *Handlers {
	return &Handlers{cache: cache, cfg: cfg, hist: hist}
}

// session returns a live session for the remembered identity, falling back
// to configured credentials when no login happened yet.
func (h *Handlers) session(ctx context.Context) (flow.Session, string, error) {
	h.mu.Lock()
	site, creds, authed := h.site, h.creds, h.authed
	h.mu.Unlock()

	if !authed {
		site, creds = ops.LoginInput{}.ResolveCredentials(h.cfg)
	}
	if site == "" {
		return nil, "", errors.NewNotConnected()
	}
	sess, _, err := h.cache.Connect(ctx, site, creds)
	if err != nil {
		return nil, "", err
	}
	return sess, site, nil
}

// Request types for each tool

// LoginRequest represents the arguments for flow_login.
type LoginRequest struct {
	SiteURL    string `json:"site_url,omitempty"`
	AuthMethod string `json:"auth_method,omitempty"`
	Login      string `json:"login,omitempty"`
	Password   string `json:"password,omitempty"`
	ScriptName string `json:"script_name,omitempty"`
	APIKey     string `json:"api_key,omitempty"`
}

// BrowseProjectRequest represents the arguments for flow_browse_project.
type BrowseProjectRequest struct {
	NameFilter string `json:"name_filter,omitempty"`
}

// BrowseShotRequest represents the arguments for flow_browse_shot.
type BrowseShotRequest struct {
	Pipe          pipe.Pipe `json:"pipe"`
	CodeFilter    string    `json:"code_filter,omitempty"`
	SetInProgress *bool     `json:"set_in_progress,omitempty"`
}

// SelectTaskRequest represents the arguments for flow_select_task.
type SelectTaskRequest struct {
	Pipe       pipe.Pipe `json:"pipe"`
	TaskName   string    `json:"task_name,omitempty"`
	AssignToMe *bool     `json:"assign_to_me,omitempty"`
}

// PublishRequest represents the arguments for flow_publish.
type PublishRequest struct {
	Pipe        pipe.Pipe `json:"pipe"`
	FilePath    string    `json:"file_path"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status,omitempty"`
	DoPublish   bool      `json:"do_publish,omitempty"`
}

// CreateNoteRequest represents the arguments for flow_create_note.
type CreateNoteRequest struct {
	Pipe      pipe.Pipe `json:"pipe"`
	Body      string    `json:"body"`
	VersionID int       `json:"version_id,omitempty"`
	DoCreate  bool      `json:"do_create,omitempty"`
}

// FilenameRequest represents the arguments for flow_filename.
type FilenameRequest struct {
	Pipe   pipe.Pipe `json:"pipe"`
	Suffix string    `json:"suffix,omitempty"`
}

// Handler implementations

// HandleLogin handles the flow_login tool call.
func (h *Handlers) HandleLogin(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[LoginRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	in := ops.LoginInput{
		SiteURL:    input.SiteURL,
		AuthMethod: input.AuthMethod,
		Login:      input.Login,
		Password:   input.Password,
		ScriptName: input.ScriptName,
		APIKey:     input.APIKey,
	}
	result, err := ops.Login(ctx, h.cache, h.cfg, in)
	if err != nil {
		return errorResult(err), nil
	}

	site, creds := in.ResolveCredentials(h.cfg)
	h.mu.Lock()
	h.site, h.creds, h.authed = site, creds, true
	h.mu.Unlock()

	return successResult(result)
}

// HandleBrowseProject handles the flow_browse_project tool call.
func (h *Handlers) HandleBrowseProject(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[BrowseProjectRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	sess, _, err := h.session(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.BrowseProject(ctx, sess, ops.BrowseProjectInput{NameFilter: input.NameFilter})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleBrowseShot handles the flow_browse_shot tool call. On failure the
// input pipe is echoed back unchanged so the host keeps its prior state.
func (h *Handlers) HandleBrowseShot(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[BrowseShotRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	sess, _, err := h.session(ctx)
	if err != nil {
		return errorResultPipe(err, input.Pipe), nil
	}

	result, err := ops.BrowseShot(ctx, sess, h.cfg, ops.BrowseShotInput{
		Pipe:          input.Pipe,
		CodeFilter:    input.CodeFilter,
		SetInProgress: input.SetInProgress,
	})
	if err != nil {
		return errorResultPipe(err, input.Pipe), nil
	}
	return successResult(result)
}

// HandleSelectTask handles the flow_select_task tool call.
func (h *Handlers) HandleSelectTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SelectTaskRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	sess, _, err := h.session(ctx)
	if err != nil {
		return errorResultPipe(err, input.Pipe), nil
	}

	result, err := ops.SelectTask(ctx, sess, h.cfg, ops.SelectTaskInput{
		Pipe:       input.Pipe,
		TaskName:   input.TaskName,
		AssignToMe: input.AssignToMe,
	})
	if err != nil {
		return errorResultPipe(err, input.Pipe), nil
	}
	return successResult(result)
}

// HandlePublish handles the flow_publish tool call.
func (h *Handlers) HandlePublish(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PublishRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	// The gate check stays in ops so every surface shares it, but a disabled
	// publish needs no session at all.
	if !input.DoPublish {
		result, _ := ops.Publish(ctx, nil, h.cfg, nil, ops.PublishInput{})
		return successResult(result)
	}

	sess, site, err := h.session(ctx)
	if err != nil {
		return errorResultPipe(err, input.Pipe), nil
	}

	result, err := ops.Publish(ctx, sess, h.cfg, h.hist, ops.PublishInput{
		Pipe:        input.Pipe,
		FilePath:    input.FilePath,
		Description: input.Description,
		Status:      input.Status,
		DoPublish:   true,
		Site:        site,
	})
	if err != nil {
		return errorResultPipe(err, input.Pipe), nil
	}
	return successResult(result)
}

// HandleCreateNote handles the flow_create_note tool call.
func (h *Handlers) HandleCreateNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CreateNoteRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	if !input.DoCreate {
		result, _ := ops.CreateNote(ctx, nil, nil, ops.CreateNoteInput{})
		return successResult(result)
	}

	sess, site, err := h.session(ctx)
	if err != nil {
		return errorResultPipe(err, input.Pipe), nil
	}

	result, err := ops.CreateNote(ctx, sess, h.hist, ops.CreateNoteInput{
		Pipe:      input.Pipe,
		Body:      input.Body,
		VersionID: input.VersionID,
		DoCreate:  true,
		Site:      site,
	})
	if err != nil {
		return errorResultPipe(err, input.Pipe), nil
	}
	return successResult(result)
}

// HandleFilename handles the flow_filename tool call.
func (h *Handlers) HandleFilename(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[FilenameRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	return successResult(ops.Filename(ops.FilenameInput{Pipe: input.Pipe, Suffix: input.Suffix}))
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are not exposed to prevent leaking sensitive info.
func errorResult(err error) *mcp.CallToolResult {
	return renderError(err, nil)
}

// errorResultPipe is errorResult plus the caller's pipe, unchanged, so a
// failed node leaves the host's state exactly where it was.
func errorResultPipe(err error, p pipe.Pipe) *mcp.CallToolResult {
	return renderError(err, map[string]any{"pipe": p})
}

func renderError(err error, extra map[string]any) *mcp.CallToolResult {
	payload := map[string]any{"success": false}
	for k, v := range extra {
		payload[k] = v
	}

	if pipeErr, ok := err.(*errors.PipeError); ok {
		errorObj := map[string]any{
			"code":    pipeErr.Code,
			"message": pipeErr.Message,
			"status":  pipeErr.Status,
		}
		if pipeErr.Code != errors.ErrInternal && pipeErr.Details != nil {
			errorObj["details"] = pipeErr.Details
		}
		payload["error"] = errorObj
	} else {
		payload["error"] = map[string]any{
			"code":    "INTERNAL",
			"message": "an internal error occurred",
			"status":  500,
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
