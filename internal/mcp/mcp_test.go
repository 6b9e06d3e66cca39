package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmori/shotpipe/internal/config"
	"github.com/kmori/shotpipe/internal/flow"
	"github.com/kmori/shotpipe/internal/flow/flowtest"
	"github.com/kmori/shotpipe/internal/session"
)

// testHandlers wires a Handlers instance to a fake session behind a real
// cache, with script credentials configured so tools can connect lazily.
func testHandlers(fake *flowtest.Fake) *Handlers {
	cfg := config.DefaultConfig()
	cfg.Flow.SiteURL = "https://studio.example.com"
	cfg.Flow.APIKey = "key"

	cache := session.NewCache(func(string, flow.Credentials) flow.Session {
		return fake
	}, nil)
	return NewHandlers(cache, cfg, nil)
}

// makeRequest creates a CallToolRequest with the given arguments.
func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

// resultJSON unpacks the JSON payload of a tool result.
func resultJSON(t *testing.T, res *mcp.CallToolResult) map[string]any {
	t.Helper()
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(text.Text), &payload))
	return payload
}

func browseFake() *flowtest.Fake {
	return &flowtest.Fake{
		FindResults: map[string][]flow.Record{
			flow.EntityProject: {{"type": "Project", "id": 7, "name": "Alpha"}},
			flow.EntityShot: {{
				"type": "Shot", "id": 42, "code": "SH010",
				"sg_sequence": map[string]any{"type": "Sequence", "id": 3, "name": "SEQ01"},
			}},
		},
	}
}

func TestHandleLogin(t *testing.T) {
	h := testHandlers(browseFake())

	res, err := h.HandleLogin(context.Background(), makeRequest(map[string]any{}))
	require.NoError(t, err)
	require.False(t, res.IsError)

	payload := resultJSON(t, res)
	assert.Equal(t, "shotpipe", payload["user_name"])
	assert.Equal(t, "Connected: https://studio.example.com", payload["status"])
}

func TestHandleLogin_BadCredentials(t *testing.T) {
	h := testHandlers(browseFake())
	h.cfg.Flow.APIKey = ""

	res, err := h.HandleLogin(context.Background(), makeRequest(map[string]any{}))
	require.NoError(t, err)
	require.True(t, res.IsError)

	payload := resultJSON(t, res)
	assert.Equal(t, false, payload["success"])
	errObj := payload["error"].(map[string]any)
	assert.Equal(t, "AUTH_FAILED", errObj["code"])
	assert.Equal(t, float64(401), errObj["status"])
}

func TestHandleBrowseProject(t *testing.T) {
	h := testHandlers(browseFake())

	res, err := h.HandleBrowseProject(context.Background(), makeRequest(map[string]any{
		"name_filter": "Alp",
	}))
	require.NoError(t, err)
	require.False(t, res.IsError)

	payload := resultJSON(t, res)
	p := payload["pipe"].(map[string]any)
	project := p["project"].(map[string]any)
	assert.Equal(t, "Alpha", project["name"])
}

func TestHandleBrowseShot_ErrorEchoesPipe(t *testing.T) {
	fake := browseFake()
	delete(fake.FindResults, flow.EntityShot)
	h := testHandlers(fake)

	inputPipe := map[string]any{
		"project":        map[string]any{"id": 7, "name": "Alpha"},
		"version_number": 1,
	}
	res, err := h.HandleBrowseShot(context.Background(), makeRequest(map[string]any{
		"pipe": inputPipe, "code_filter": "SH999",
	}))
	require.NoError(t, err)
	require.True(t, res.IsError)

	payload := resultJSON(t, res)
	errObj := payload["error"].(map[string]any)
	assert.Equal(t, "NOT_FOUND", errObj["code"])

	echoed := payload["pipe"].(map[string]any)
	project := echoed["project"].(map[string]any)
	assert.Equal(t, "Alpha", project["name"], "failed node must leave the pipe unchanged")
}

func TestHandleBrowseShot(t *testing.T) {
	h := testHandlers(browseFake())

	res, err := h.HandleBrowseShot(context.Background(), makeRequest(map[string]any{
		"pipe": map[string]any{
			"project":        map[string]any{"id": 7, "name": "Alpha"},
			"version_number": 1,
		},
	}))
	require.NoError(t, err)
	require.False(t, res.IsError)

	payload := resultJSON(t, res)
	assert.Equal(t, float64(1), payload["next_version"])
	p := payload["pipe"].(map[string]any)
	shot := p["shot"].(map[string]any)
	assert.Equal(t, "SH010", shot["code"])
	assert.Equal(t, "Alpha_SEQ01_SH010_v001", p["resolved_filename"])
}

func TestHandlePublish_GatedWithoutSession(t *testing.T) {
	// No site configured at all: the gate must short-circuit before any
	// connection attempt.
	h := testHandlers(browseFake())
	h.cfg.Flow.SiteURL = ""

	res, err := h.HandlePublish(context.Background(), makeRequest(map[string]any{
		"pipe":      map[string]any{},
		"file_path": "/render/out.exr",
	}))
	require.NoError(t, err)
	require.False(t, res.IsError)

	payload := resultJSON(t, res)
	assert.Equal(t, true, payload["skipped"])
}

func TestHandleCreateNote_Gated(t *testing.T) {
	fake := browseFake()
	h := testHandlers(fake)

	res, err := h.HandleCreateNote(context.Background(), makeRequest(map[string]any{
		"pipe": map[string]any{}, "body": "hello",
	}))
	require.NoError(t, err)

	payload := resultJSON(t, res)
	assert.Equal(t, true, payload["skipped"])
	assert.Empty(t, fake.Calls())
}

func TestHandleFilename(t *testing.T) {
	h := testHandlers(browseFake())

	res, err := h.HandleFilename(context.Background(), makeRequest(map[string]any{
		"pipe":   map[string]any{"resolved_filename": "Alpha_SEQ01_SH010_comp_v004"},
		"suffix": "_beauty",
	}))
	require.NoError(t, err)

	payload := resultJSON(t, res)
	assert.Equal(t, "Alpha_SEQ01_SH010_comp_v004_beauty", payload["filename"])
}

func TestSessionNotConnected(t *testing.T) {
	h := testHandlers(browseFake())
	h.cfg.Flow.SiteURL = ""

	res, err := h.HandleBrowseProject(context.Background(), makeRequest(map[string]any{}))
	require.NoError(t, err)
	require.True(t, res.IsError)

	errObj := resultJSON(t, res)["error"].(map[string]any)
	assert.Equal(t, "NOT_CONNECTED", errObj["code"])
}

func TestValidateDisabledTools(t *testing.T) {
	unknown := ValidateDisabledTools([]string{"flow_publish", "flow_bogus"})
	assert.Equal(t, []string{"flow_bogus"}, unknown)
}

func TestNewServerSkipsDisabledTools(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DisabledTools = []string{"flow_publish"}

	cache := session.NewCache(session.DefaultDial(0), nil)
	s := NewServer(cache, cfg, nil, "test")
	require.NotNil(t, s)
}
