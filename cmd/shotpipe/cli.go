package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/kmori/shotpipe/internal/config"
	"github.com/kmori/shotpipe/internal/errors"
	"github.com/kmori/shotpipe/internal/flow"
	"github.com/kmori/shotpipe/internal/history"
	"github.com/kmori/shotpipe/internal/ops"
	"github.com/kmori/shotpipe/internal/pipe"
	"github.com/kmori/shotpipe/internal/session"
	"github.com/kmori/shotpipe/internal/web"
)

// newCLIApp creates the CLI application with all commands. The pipe context
// flows between commands as JSON: each command prints its output (including
// the updated pipe) and the next reads it from stdin or --pipe, so
// `shotpipe projects | shotpipe shots --filter SH010` composes.
func newCLIApp(cache *session.Cache, cfg *config.Config, hist *sql.DB) *cli.App {
	app := &cli.App{
		Name:    "shotpipe",
		Usage:   "Flow production-tracking bridge",
		Version: Version,
		Commands: []*cli.Command{
			loginCmd(cache, cfg),
			projectsCmd(cache, cfg),
			shotsCmd(cache, cfg),
			tasksCmd(cache, cfg),
			versionsCmd(cache, cfg),
			publishCmd(cache, cfg, hist),
			noteCmd(cache, cfg, hist),
			filenameCmd(),
			historyCmd(hist),
			webCmd(cache, cfg, hist),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// connect dials the configured site, reusing a cached connection when live.
func connect(ctx context.Context, cache *session.Cache, cfg *config.Config) (flow.Session, error) {
	site, creds := ops.LoginInput{}.ResolveCredentials(cfg)
	if site == "" {
		return nil, errors.NewNotConnected()
	}
	sess, _, err := cache.Connect(ctx, site, creds)
	return sess, err
}

func loginCmd(cache *session.Cache, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Connect to the Flow site and verify credentials",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "site", Usage: "Site URL (defaults to FLOW_SITE_URL)"},
			&cli.StringFlag{Name: "method", Usage: "Auth method: user|script"},
			&cli.StringFlag{Name: "login", Usage: "Login for user auth"},
			&cli.StringFlag{Name: "password", Usage: "Password for user auth"},
			&cli.StringFlag{Name: "script-name", Usage: "Script name for script auth"},
			&cli.StringFlag{Name: "api-key", Usage: "API key for script auth"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Login(c.Context, cache, cfg, ops.LoginInput{
				SiteURL:    c.String("site"),
				AuthMethod: c.String("method"),
				Login:      c.String("login"),
				Password:   c.String("password"),
				ScriptName: c.String("script-name"),
				APIKey:     c.String("api-key"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

func projectsCmd(cache *session.Cache, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "projects",
		Usage: "Select an active project and start a fresh pipe",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "filter", Aliases: []string{"f"}, Usage: "Substring filter on the project name"},
		},
		Action: func(c *cli.Context) error {
			sess, err := connect(c.Context, cache, cfg)
			if err != nil {
				return outputError(err)
			}
			output, err := ops.BrowseProject(c.Context, sess, ops.BrowseProjectInput{
				NameFilter: c.String("filter"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

func shotsCmd(cache *session.Cache, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "shots",
		Usage: "Select a shot in the pipe's project (pipe JSON from stdin or --pipe)",
		Flags: []cli.Flag{
			pipeFlag(),
			&cli.StringFlag{Name: "filter", Aliases: []string{"f"}, Usage: "Substring filter on the shot code"},
			&cli.BoolFlag{Name: "set-in-progress", Value: true, Usage: "Flip the shot status to in progress"},
		},
		Action: func(c *cli.Context) error {
			p, err := readPipe(c)
			if err != nil {
				return outputError(err)
			}
			sess, err := connect(c.Context, cache, cfg)
			if err != nil {
				return outputError(err)
			}
			setInProgress := c.Bool("set-in-progress")
			output, err := ops.BrowseShot(c.Context, sess, cfg, ops.BrowseShotInput{
				Pipe:          p,
				CodeFilter:    c.String("filter"),
				SetInProgress: &setInProgress,
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

func tasksCmd(cache *session.Cache, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "tasks",
		Usage: "Select a task on the pipe's shot (pipe JSON from stdin or --pipe)",
		Flags: []cli.Flag{
			pipeFlag(),
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Substring filter on the task name (default comp)"},
			&cli.BoolFlag{Name: "assign", Value: true, Usage: "Assign the task to the active user"},
		},
		Action: func(c *cli.Context) error {
			p, err := readPipe(c)
			if err != nil {
				return outputError(err)
			}
			sess, err := connect(c.Context, cache, cfg)
			if err != nil {
				return outputError(err)
			}
			assign := c.Bool("assign")
			output, err := ops.SelectTask(c.Context, sess, cfg, ops.SelectTaskInput{
				Pipe:       p,
				TaskName:   c.String("name"),
				AssignToMe: &assign,
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

func versionsCmd(cache *session.Cache, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "versions",
		Usage: "List versions for a shot, newest first",
		Flags: []cli.Flag{
			pipeFlag(),
			&cli.IntFlag{Name: "shot-id", Usage: "Shot ID (defaults to the pipe's shot)"},
		},
		Action: func(c *cli.Context) error {
			shotID := c.Int("shot-id")
			if shotID == 0 {
				p, err := readPipe(c)
				if err != nil {
					return outputError(err)
				}
				if p.Shot == nil {
					return outputError(errors.NewInvalidRequest("--shot-id or a pipe with a shot is required"))
				}
				shotID = p.Shot.ID
			}

			sess, err := connect(c.Context, cache, cfg)
			if err != nil {
				return outputError(err)
			}
			records, err := sess.Find(c.Context, flow.EntityVersion,
				[]flow.Filter{flow.Eq("entity", flow.Ref{Type: flow.EntityShot, ID: shotID})},
				[]string{"code", "version_number", "sg_status_list", "sg_path_to_frames", "sg_path_to_movie"},
				flow.WithOrder(flow.Order{FieldName: "version_number", Direction: "desc"}))
			if err != nil {
				return outputError(errors.NewRemote(err))
			}
			return outputJSON(map[string]any{"versions": records})
		},
	}
}

func publishCmd(cache *session.Cache, cfg *config.Config, hist *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "publish",
		Usage: "Publish a rendered file as a new version (pipe JSON from stdin or --pipe)",
		Flags: []cli.Flag{
			pipeFlag(),
			&cli.StringFlag{Name: "file", Required: true, Usage: "Path to the rendered file"},
			&cli.StringFlag{Name: "description", Aliases: []string{"d"}, Usage: "Version description"},
			&cli.StringFlag{Name: "status", Usage: "Version status: rev|vwd|apr"},
			&cli.BoolFlag{Name: "do-publish", Usage: "Must be set to actually publish"},
		},
		Action: func(c *cli.Context) error {
			p, err := readPipe(c)
			if err != nil {
				return outputError(err)
			}

			input := ops.PublishInput{
				Pipe:        p,
				FilePath:    c.String("file"),
				Description: c.String("description"),
				Status:      c.String("status"),
				DoPublish:   c.Bool("do-publish"),
			}
			if !input.DoPublish {
				output, _ := ops.Publish(c.Context, nil, cfg, nil, ops.PublishInput{})
				return outputJSON(output)
			}

			sess, err := connect(c.Context, cache, cfg)
			if err != nil {
				return outputError(err)
			}
			input.Site = cfg.Flow.SiteURL
			output, err := ops.Publish(c.Context, sess, cfg, hist, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

func noteCmd(cache *session.Cache, cfg *config.Config, hist *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "note",
		Usage: "Create a note on the pipe's project (pipe JSON from stdin or --pipe)",
		Flags: []cli.Flag{
			pipeFlag(),
			&cli.StringFlag{Name: "body", Required: true, Usage: "Note body in markdown; a leading heading becomes the subject"},
			&cli.IntFlag{Name: "version-id", Usage: "Version ID to link"},
			&cli.BoolFlag{Name: "do-create", Usage: "Must be set to actually create the note"},
		},
		Action: func(c *cli.Context) error {
			p, err := readPipe(c)
			if err != nil {
				return outputError(err)
			}

			if !c.Bool("do-create") {
				output, _ := ops.CreateNote(c.Context, nil, nil, ops.CreateNoteInput{})
				return outputJSON(output)
			}

			sess, err := connect(c.Context, cache, cfg)
			if err != nil {
				return outputError(err)
			}
			output, err := ops.CreateNote(c.Context, sess, hist, ops.CreateNoteInput{
				Pipe:      p,
				Body:      c.String("body"),
				VersionID: c.Int("version-id"),
				DoCreate:  true,
				Site:      cfg.Flow.SiteURL,
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

func filenameCmd() *cli.Command {
	return &cli.Command{
		Name:  "filename",
		Usage: "Print the resolved filename for a pipe (pipe JSON from stdin or --pipe)",
		Flags: []cli.Flag{
			pipeFlag(),
			&cli.StringFlag{Name: "suffix", Usage: "Suffix appended verbatim, e.g. _beauty"},
		},
		Action: func(c *cli.Context) error {
			p, err := readPipe(c)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(ops.Filename(ops.FilenameInput{Pipe: p, Suffix: c.String("suffix")}))
		},
	}
}

func historyCmd(hist *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List logged publishes and notes, newest first",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "kind", Usage: "Filter by kind: publish|note"},
			&cli.StringFlag{Name: "site", Usage: "Filter by site URL"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: 20, Usage: "Maximum items to return"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Items to skip"},
		},
		Action: func(c *cli.Context) error {
			entries, err := history.List(c.Context, hist, history.ListInput{
				Kind:   c.String("kind"),
				Site:   c.String("site"),
				Limit:  c.Int("limit"),
				Offset: c.Int("offset"),
			})
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			return outputJSON(map[string]any{"entries": entries})
		},
	}
}

func webCmd(cache *session.Cache, cfg *config.Config, hist *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "web",
		Usage: "Start the HTTP surface",
		Action: func(c *cli.Context) error {
			return web.NewServer(cache, cfg, hist, nil).Run()
		},
	}
}

// Helper functions

func pipeFlag() *cli.StringFlag {
	return &cli.StringFlag{Name: "pipe", Usage: "Pipe JSON (defaults to stdin when piped)"}
}

// readPipe reads the pipe context from --pipe or piped stdin. Accepts both a
// bare pipe object and a previous command's output wrapping one under "pipe".
// Returns the empty pipe when neither source is present.
func readPipe(c *cli.Context) (pipe.Pipe, error) {
	raw := c.String("pipe")
	if raw == "" && stdinHasData() {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return pipe.Pipe{}, errors.NewInternal(err)
		}
		raw = strings.TrimSpace(string(data))
	}
	if raw == "" {
		return pipe.Pipe{}, nil
	}
	return parsePipe([]byte(raw))
}

// parsePipe decodes pipe JSON, unwrapping a top-level "pipe" key when present.
func parsePipe(data []byte) (pipe.Pipe, error) {
	var wrapper struct {
		Pipe *pipe.Pipe `json:"pipe"`
	}
	if err := json.Unmarshal(data, &wrapper); err == nil && wrapper.Pipe != nil {
		return *wrapper.Pipe, nil
	}

	var p pipe.Pipe
	if err := json.Unmarshal(data, &p); err != nil {
		return pipe.Pipe{}, errors.NewInvalidRequest("invalid pipe JSON: " + err.Error())
	}
	return p, nil
}

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if pipeErr, ok := err.(*errors.PipeError); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", pipeErr.Code, pipeErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}
