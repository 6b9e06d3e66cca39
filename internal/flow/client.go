package flow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Session is the surface the rest of the bridge talks to. Find/FindOne
// never mutate remote state; Create, Update and UploadThumbnail do.
type Session interface {
	Find(ctx context.Context, entity string, filters []Filter, fields []string, opts ...FindOption) ([]Record, error)
	FindOne(ctx context.Context, entity string, filters []Filter, fields []string, opts ...FindOption) (Record, error)
	Create(ctx context.Context, entity string, data map[string]any) (Record, error)
	Update(ctx context.Context, entity string, id int, data map[string]any) (Record, error)
	UploadThumbnail(ctx context.Context, entity string, id int, path string) error
}

// Credentials selects one of the two auth payload shapes.
type Credentials struct {
	Method     string // "user" or "script"
	Login      string
	Password   string
	ScriptName string
	APIKey     string
}

// Name returns the credential name that distinguishes cached connections:
// the login for user auth, the script name for script auth.
func (c Credentials) Name() string {
	if c.Method == "user" {
		return c.Login
	}
	return c.ScriptName
}

func (c Credentials) authPayload() map[string]any {
	if c.Method == "user" {
		return map[string]any{
			"user_login":    c.Login,
			"user_password": c.Password,
		}
	}
	return map[string]any{
		"script_name": c.ScriptName,
		"script_key":  c.APIKey,
	}
}

// FindOption tweaks a Find call.
type FindOption func(*findParams)

type findParams struct {
	Order []Order `json:"sorts,omitempty"`
	Limit int     `json:"limit,omitempty"`
}

// WithOrder sets the sort order. Without it, results arrive in whatever
// order the service chooses.
func WithOrder(order ...Order) FindOption {
	return func(p *findParams) { p.Order = order }
}

// WithLimit caps the number of returned records.
func WithLimit(n int) FindOption {
	return func(p *findParams) { p.Limit = n }
}

// Client is a Session over HTTP. Safe for concurrent use.
type Client struct {
	site  string
	creds Credentials
	http  *http.Client
}

// New creates a client for the given site. No connection is made until the
// first call; Connect-time liveness is the session cache's concern.
func New(site string, creds Credentials, timeout time.Duration) *Client {
	return &Client{
		site:  strings.TrimSuffix(site, "/"),
		creds: creds,
		http:  &http.Client{Timeout: timeout},
	}
}

type rpcRequest struct {
	MethodName string `json:"method_name"`
	Params     []any  `json:"params"`
}

type rpcResponse struct {
	Results   json.RawMessage `json:"results"`
	Exception bool            `json:"exception"`
	Message   string          `json:"message"`
	ErrorCode int             `json:"error_code"`
}

// call performs one api3/json RPC round trip.
func (c *Client) call(ctx context.Context, method string, payload any, out any) error {
	body, err := json.Marshal(rpcRequest{
		MethodName: method,
		Params:     []any{c.creds.authPayload(), payload},
	})
	if err != nil {
		return fmt.Errorf("flow: encode %s: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.site+"/api3/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("flow: build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("flow: %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return &Fault{Message: "401 unauthorized", Code: authFaultCode}
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("flow: %s: unexpected status %s", method, resp.Status)
	}

	var rpc rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpc); err != nil {
		return fmt.Errorf("flow: decode %s response: %w", method, err)
	}
	if rpc.Exception {
		return &Fault{Message: rpc.Message, Code: rpc.ErrorCode}
	}
	if out != nil && len(rpc.Results) > 0 {
		if err := json.Unmarshal(rpc.Results, out); err != nil {
			return fmt.Errorf("flow: decode %s results: %w", method, err)
		}
	}
	return nil
}

type readPayload struct {
	Type    string   `json:"type"`
	Filters []Filter `json:"filters"`
	Fields  []string `json:"return_fields"`
	findParams
}

type readResults struct {
	Entities []Record `json:"entities"`
}

// Find returns all records matching filters, in service order unless an
// order option is given.
func (c *Client) Find(ctx context.Context, entity string, filters []Filter, fields []string, opts ...FindOption) ([]Record, error) {
	payload := readPayload{Type: entity, Filters: filters, Fields: fields}
	for _, opt := range opts {
		opt(&payload.findParams)
	}
	if payload.Filters == nil {
		payload.Filters = []Filter{}
	}

	var results readResults
	if err := c.call(ctx, "read", payload, &results); err != nil {
		return nil, err
	}
	return results.Entities, nil
}

// FindOne returns the first matching record, or nil when nothing matches.
func (c *Client) FindOne(ctx context.Context, entity string, filters []Filter, fields []string, opts ...FindOption) (Record, error) {
	opts = append(opts, WithLimit(1))
	records, err := c.Find(ctx, entity, filters, fields, opts...)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

type writePayload struct {
	Type   string         `json:"type"`
	ID     int            `json:"id,omitempty"`
	Fields map[string]any `json:"fields"`
}

// Create creates a new record and returns the service's projection of it.
func (c *Client) Create(ctx context.Context, entity string, data map[string]any) (Record, error) {
	var result Record
	if err := c.call(ctx, "create", writePayload{Type: entity, Fields: data}, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Update modifies fields on an existing record.
func (c *Client) Update(ctx context.Context, entity string, id int, data map[string]any) (Record, error) {
	var result Record
	if err := c.call(ctx, "update", writePayload{Type: entity, ID: id, Fields: data}, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// UploadThumbnail attaches the image file at path to an entity. The upload
// endpoint takes multipart form data rather than the RPC envelope.
func (c *Client) UploadThumbnail(ctx context.Context, entity string, id int, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("flow: open thumbnail: %w", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fields := map[string]string{
		"entity_type": entity,
		"entity_id":   strconv.Itoa(id),
	}
	for k, v := range c.creds.authPayload() {
		fields[k] = fmt.Sprint(v)
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return fmt.Errorf("flow: build upload form: %w", err)
		}
	}
	part, err := mw.CreateFormFile("thumb_image", filepath.Base(path))
	if err != nil {
		return fmt.Errorf("flow: build upload form: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("flow: read thumbnail: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("flow: build upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.site+"/upload/thumbnail", &buf)
	if err != nil {
		return fmt.Errorf("flow: build upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("flow: upload thumbnail: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("flow: upload thumbnail: unexpected status %s", resp.Status)
	}
	return nil
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
