package web

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/kmori/shotpipe/internal/errors"
	"github.com/kmori/shotpipe/internal/flow"
	"github.com/kmori/shotpipe/internal/history"
	"github.com/kmori/shotpipe/internal/ops"
	"github.com/kmori/shotpipe/internal/pipe"
	"github.com/kmori/shotpipe/internal/session"
)

// Field projections requested from the remote service per entity.
var (
	webProjectFields  = []string{"name", "sg_status"}
	webSequenceFields = []string{"code"}
	webShotFields     = []string{"code", "sg_status_list", "sg_sequence"}
	webTaskFields     = []string{"content", "sg_status_list"}
	webVersionFields  = []string{"code", "version_number", "sg_status_list", "sg_path_to_frames", "sg_path_to_movie"}
)

// ok writes the success envelope with the given payload fields.
func ok(c echo.Context, data map[string]any) error {
	payload := map[string]any{"success": true}
	for k, v := range data {
		payload[k] = v
	}
	return c.JSON(http.StatusOK, payload)
}

// fail writes the failure envelope. Always HTTP 200: errors are payload for
// the browser widget, not transport faults.
func fail(c echo.Context, err error) error {
	msg := err.Error()
	if pipeErr, isPipe := err.(*errors.PipeError); isPipe {
		msg = pipeErr.Message
	}
	return c.JSON(http.StatusOK, map[string]any{"success": false, "error": msg})
}

// connected returns a live session for the stored identity, falling back to
// configured credentials when nobody logged in over HTTP yet.
func (s *Server) connected(c echo.Context) (flow.Session, error) {
	s.mu.Lock()
	site, creds, authed := s.site, s.creds, s.authed
	s.mu.Unlock()

	if !authed {
		site, creds = ops.LoginInput{}.ResolveCredentials(s.cfg)
	}
	if site == "" {
		return nil, errors.NewNotConnected()
	}
	sess, _, err := s.cache.Connect(c.Request().Context(), site, creds)
	return sess, err
}

// intParam parses a required integer query parameter.
func intParam(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, errors.NewInvalidRequest(name + " is required")
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.NewInvalidRequest(name + " must be an integer")
	}
	return v, nil
}

func entityRef(entity string, id int) flow.Ref {
	return flow.Ref{Type: entity, ID: id}
}

type loginRequest struct {
	SiteURL    string `json:"site_url"`
	AuthMethod string `json:"auth_method"`
	Login      string `json:"login"`
	Password   string `json:"password"`
	ScriptName string `json:"script_name"`
	APIKey     string `json:"api_key"`
}

func (s *Server) handleLogin(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, errors.NewInvalidRequest("invalid request body"))
	}

	in := ops.LoginInput{
		SiteURL:    req.SiteURL,
		AuthMethod: req.AuthMethod,
		Login:      req.Login,
		Password:   req.Password,
		ScriptName: req.ScriptName,
		APIKey:     req.APIKey,
	}
	out, err := ops.Login(c.Request().Context(), s.cache, s.cfg, in)
	if err != nil {
		return fail(c, err)
	}

	site, creds := in.ResolveCredentials(s.cfg)
	s.mu.Lock()
	s.site, s.creds, s.user, s.authed = site, creds, out.UserName, true
	s.pipe = pipe.Pipe{}
	s.mu.Unlock()

	return ok(c, map[string]any{
		"site_url":  out.SiteURL,
		"user_name": out.UserName,
		"cached":    out.Cached,
		"status":    out.Status,
	})
}

func (s *Server) handleStatus(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.authed {
		return ok(c, map[string]any{"connected": false})
	}
	return ok(c, map[string]any{
		"connected": true,
		"site_url":  s.site,
		"user_name": s.user,
		"identity":  session.IdentityFor(s.site, s.creds).Key(),
		"pipe":      s.pipe,
	})
}

func (s *Server) handleLogout(c echo.Context) error {
	s.mu.Lock()
	if s.authed {
		s.cache.Evict(session.IdentityFor(s.site, s.creds))
	}
	s.site, s.creds, s.user, s.authed = "", flow.Credentials{}, "", false
	s.pipe = pipe.Pipe{}
	s.mu.Unlock()

	return ok(c, map[string]any{"status": "Disconnected"})
}

func (s *Server) handleProjects(c echo.Context) error {
	sess, err := s.connected(c)
	if err != nil {
		return fail(c, err)
	}

	records, err := sess.Find(c.Request().Context(), flow.EntityProject,
		[]flow.Filter{flow.Eq("sg_status", "Active")}, webProjectFields)
	if err != nil {
		return fail(c, errors.NewRemote(err))
	}

	projects := make([]map[string]any, 0, len(records))
	for _, r := range records {
		projects = append(projects, map[string]any{
			"id":     r.Int("id"),
			"name":   r.Str("name"),
			"status": r.Str("sg_status"),
		})
	}
	return ok(c, map[string]any{"projects": projects})
}

func (s *Server) handleSequences(c echo.Context) error {
	projectID, err := intParam(c, "project_id")
	if err != nil {
		return fail(c, err)
	}
	sess, err := s.connected(c)
	if err != nil {
		return fail(c, err)
	}

	records, err := sess.Find(c.Request().Context(), flow.EntitySequence,
		[]flow.Filter{flow.Eq("project", entityRef(flow.EntityProject, projectID))}, webSequenceFields)
	if err != nil {
		return fail(c, errors.NewRemote(err))
	}

	sequences := make([]map[string]any, 0, len(records))
	for _, r := range records {
		sequences = append(sequences, map[string]any{
			"id":   r.Int("id"),
			"code": r.Str("code"),
		})
	}
	return ok(c, map[string]any{"sequences": sequences})
}

func (s *Server) handleShots(c echo.Context) error {
	projectID, err := intParam(c, "project_id")
	if err != nil {
		return fail(c, err)
	}
	sess, err := s.connected(c)
	if err != nil {
		return fail(c, err)
	}

	filters := []flow.Filter{flow.Eq("project", entityRef(flow.EntityProject, projectID))}
	if raw := c.QueryParam("sequence_id"); raw != "" {
		sequenceID, err := strconv.Atoi(raw)
		if err != nil {
			return fail(c, errors.NewInvalidRequest("sequence_id must be an integer"))
		}
		filters = append(filters, flow.Eq("sg_sequence", entityRef(flow.EntitySequence, sequenceID)))
	}

	records, err := sess.Find(c.Request().Context(), flow.EntityShot, filters, webShotFields)
	if err != nil {
		return fail(c, errors.NewRemote(err))
	}

	shots := make([]map[string]any, 0, len(records))
	for _, r := range records {
		shot := map[string]any{
			"id":     r.Int("id"),
			"code":   r.Str("code"),
			"status": r.Str("sg_status_list"),
		}
		if seq, isRef := r.Ref("sg_sequence"); isRef {
			shot["sequence"] = seq.Name
			shot["sequence_id"] = seq.ID
		}
		shots = append(shots, shot)
	}
	return ok(c, map[string]any{"shots": shots})
}

func (s *Server) handleTasks(c echo.Context) error {
	shotID, err := intParam(c, "shot_id")
	if err != nil {
		return fail(c, err)
	}
	sess, err := s.connected(c)
	if err != nil {
		return fail(c, err)
	}

	records, err := sess.Find(c.Request().Context(), flow.EntityTask,
		[]flow.Filter{flow.Eq("entity", entityRef(flow.EntityShot, shotID))}, webTaskFields)
	if err != nil {
		return fail(c, errors.NewRemote(err))
	}

	tasks := make([]map[string]any, 0, len(records))
	for _, r := range records {
		tasks = append(tasks, map[string]any{
			"id":     r.Int("id"),
			"name":   r.Str("content"),
			"status": r.Str("sg_status_list"),
		})
	}
	return ok(c, map[string]any{"tasks": tasks})
}

func (s *Server) handleVersions(c echo.Context) error {
	shotID, err := intParam(c, "shot_id")
	if err != nil {
		return fail(c, err)
	}
	sess, err := s.connected(c)
	if err != nil {
		return fail(c, err)
	}

	records, err := sess.Find(c.Request().Context(), flow.EntityVersion,
		[]flow.Filter{flow.Eq("entity", entityRef(flow.EntityShot, shotID))}, webVersionFields,
		flow.WithOrder(flow.Order{FieldName: "version_number", Direction: "desc"}))
	if err != nil {
		return fail(c, errors.NewRemote(err))
	}

	versions := make([]map[string]any, 0, len(records))
	for _, r := range records {
		path := r.Str("sg_path_to_frames")
		if path == "" {
			path = r.Str("sg_path_to_movie")
		}
		versions = append(versions, map[string]any{
			"id":             r.Int("id"),
			"code":           r.Str("code"),
			"version_number": r.Int("version_number"),
			"status":         r.Str("sg_status_list"),
			"path":           path,
		})
	}
	return ok(c, map[string]any{"versions": versions})
}

type selectRequest struct {
	EntityType string `json:"entity_type"`
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Code       string `json:"code"`
	Sequence   string `json:"sequence"`

	// SetInProgress flips a selected shot's status. Off by default: the
	// select endpoint is the only read path allowed to mutate, and only on
	// explicit request.
	SetInProgress bool `json:"set_in_progress"`
}

func (s *Server) handleSelect(c echo.Context) error {
	var req selectRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, errors.NewInvalidRequest("invalid request body"))
	}
	if req.ID == 0 {
		return fail(c, errors.NewInvalidRequest("id is required"))
	}

	switch req.EntityType {
	case flow.EntityProject:
		p := pipe.NewWithProject(pipe.Project{ID: req.ID, Name: req.Name})
		s.mu.Lock()
		s.pipe = p
		s.mu.Unlock()
		return ok(c, map[string]any{"pipe": p})

	case flow.EntityShot:
		return s.selectShot(c, req)

	case flow.EntityTask:
		s.mu.Lock()
		current := s.pipe
		s.mu.Unlock()

		next, err := current.WithTask(pipe.Task{ID: req.ID, Name: req.Name}, nil)
		if err != nil {
			return fail(c, errors.NewInvalidRequest(err.Error()))
		}
		s.mu.Lock()
		s.pipe = next
		s.mu.Unlock()
		return ok(c, map[string]any{"pipe": next})

	default:
		return fail(c, errors.NewInvalidRequest("unknown entity_type: "+req.EntityType))
	}
}

// selectShot mirrors the browse-shot node: optional status flip, latest
// version lookup, next version derivation.
func (s *Server) selectShot(c echo.Context, req selectRequest) error {
	s.mu.Lock()
	current := s.pipe
	s.mu.Unlock()

	if current.Project == nil {
		return fail(c, errors.NewInvalidRequest("shot selection requires a selected project"))
	}

	sess, err := s.connected(c)
	if err != nil {
		return fail(c, err)
	}
	ctx := c.Request().Context()

	if req.SetInProgress {
		if _, err := sess.Update(ctx, flow.EntityShot, req.ID,
			map[string]any{"sg_status_list": s.cfg.Publish.InProgressStatus}); err != nil {
			return fail(c, errors.NewRemote(err))
		}
	}

	versions, err := sess.Find(ctx, flow.EntityVersion,
		[]flow.Filter{flow.Eq("entity", entityRef(flow.EntityShot, req.ID))}, webVersionFields,
		flow.WithOrder(flow.Order{FieldName: "version_number", Direction: "desc"}),
		flow.WithLimit(1))
	if err != nil {
		return fail(c, errors.NewRemote(err))
	}
	nextVersion := 1
	if len(versions) > 0 {
		nextVersion = versions[0].Int("version_number") + 1
	}

	next, err := current.WithShot(pipe.Shot{ID: req.ID, Code: req.Code, Sequence: req.Sequence}, nextVersion)
	if err != nil {
		return fail(c, errors.NewInvalidRequest(err.Error()))
	}
	s.mu.Lock()
	s.pipe = next
	s.mu.Unlock()
	return ok(c, map[string]any{"pipe": next, "next_version": nextVersion})
}

func (s *Server) handleHistory(c echo.Context) error {
	if s.hist == nil {
		return ok(c, map[string]any{"entries": []history.Entry{}})
	}

	in := history.ListInput{Kind: c.QueryParam("kind")}
	if raw := c.QueryParam("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return fail(c, errors.NewInvalidRequest("limit must be an integer"))
		}
		in.Limit = v
	}
	if raw := c.QueryParam("offset"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return fail(c, errors.NewInvalidRequest("offset must be an integer"))
		}
		in.Offset = v
	}

	entries, err := history.List(c.Request().Context(), s.hist, in)
	if err != nil {
		return fail(c, errors.NewInternal(err))
	}
	return ok(c, map[string]any{"entries": entries})
}
