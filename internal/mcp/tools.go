package mcp

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the node surface. Every mutating tool carries an
// explicit opt-in boolean; leaving it off makes the tool a dry run that
// never touches the remote site.

var loginToolDef = mcp.NewTool("flow_login",
	mcp.WithDescription("Connect to a Flow production-tracking site. Credentials omitted here fall back to the server configuration. Connections are cached per site and credential, so repeated calls are cheap."),
	mcp.WithString("site_url", mcp.Description("Site URL, e.g. https://studio.shotgrid.autodesk.com")),
	mcp.WithString("auth_method", mcp.Description("Authentication method: 'user' or 'script'"), mcp.Enum("user", "script")),
	mcp.WithString("login", mcp.Description("Login for user authentication")),
	mcp.WithString("password", mcp.Description("Password for user authentication")),
	mcp.WithString("script_name", mcp.Description("Script name for script authentication")),
	mcp.WithString("api_key", mcp.Description("API key for script authentication")),
)

var browseProjectToolDef = mcp.NewTool("flow_browse_project",
	mcp.WithDescription("Select an active project and start a fresh pipe from it. With no filter the first active project wins."),
	mcp.WithString("name_filter", mcp.Description("Substring filter on the project name")),
)

var browseShotToolDef = mcp.NewTool("flow_browse_shot",
	mcp.WithDescription("Select a shot within the pipe's project, optionally mark it in progress, and derive the next version number from the latest published version."),
	mcp.WithObject("pipe", mcp.Description("Pipe from flow_browse_project"), mcp.Required()),
	mcp.WithString("code_filter", mcp.Description("Substring filter on the shot code")),
	mcp.WithBoolean("set_in_progress", mcp.Description("Flip the shot status to in progress (default true)")),
)

var selectTaskToolDef = mcp.NewTool("flow_select_task",
	mcp.WithDescription("Select a task on the pipe's shot and optionally self-assign it. Assignment failures never fail the selection."),
	mcp.WithObject("pipe", mcp.Description("Pipe from flow_browse_shot"), mcp.Required()),
	mcp.WithString("task_name", mcp.Description("Substring filter on the task name (default 'comp')")),
	mcp.WithBoolean("assign_to_me", mcp.Description("Assign the task to the active user (default true)")),
)

var publishToolDef = mcp.NewTool("flow_publish",
	mcp.WithDescription("Publish a rendered file as a new version on the pipe's shot. Does nothing unless do_publish is true."),
	mcp.WithObject("pipe", mcp.Description("Pipe with at least a project and shot"), mcp.Required()),
	mcp.WithString("file_path", mcp.Description("Path to the rendered file"), mcp.Required()),
	mcp.WithString("description", mcp.Description("Version description")),
	mcp.WithString("status", mcp.Description("Version status: rev, vwd, or apr (default from config)"), mcp.Enum("rev", "vwd", "apr")),
	mcp.WithBoolean("do_publish", mcp.Description("Must be true to actually publish")),
)

var createNoteToolDef = mcp.NewTool("flow_create_note",
	mcp.WithDescription("Create a note on the pipe's project, linked to its shot and optionally a version. A leading markdown heading becomes the subject. Does nothing unless do_create is true."),
	mcp.WithObject("pipe", mcp.Description("Pipe with at least a project"), mcp.Required()),
	mcp.WithString("body", mcp.Description("Note body in markdown"), mcp.Required()),
	mcp.WithNumber("version_id", mcp.Description("Version ID to link, e.g. from flow_publish")),
	mcp.WithBoolean("do_create", mcp.Description("Must be true to actually create the note")),
)

var filenameToolDef = mcp.NewTool("flow_filename",
	mcp.WithDescription("Extract the resolved filename and a conventional output folder from the pipe. Purely local."),
	mcp.WithObject("pipe", mcp.Description("Pipe carrying a resolved filename"), mcp.Required()),
	mcp.WithString("suffix", mcp.Description("Suffix appended verbatim, e.g. '_beauty'")),
)
