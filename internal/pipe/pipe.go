// Package pipe defines the context record threaded between node
// invocations. A Pipe accumulates the current selection (project, shot,
// task, user) plus a derived filename; every transition copies the record,
// so an instance handed downstream is never mutated.
package pipe

import (
	"fmt"
	"path"
)

// DefaultTemplate documents the derived-filename shape. The derivation is
// fixed in Filename; the template travels with the pipe so hosts can
// display it.
const DefaultTemplate = "{project}_{sequence}_{shot}_{task}_v{version:03d}"

// Project is the selected project.
type Project struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Shot is the selected shot.
type Shot struct {
	ID       int    `json:"id"`
	Code     string `json:"code"`
	Sequence string `json:"sequence"`
	CutIn    int    `json:"cut_in,omitempty"`
	CutOut   int    `json:"cut_out,omitempty"`
}

// Task is the selected task.
type Task struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// User is the user the task was assigned to.
type User struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Pipe is the selection context. The zero value is the empty context.
// Selection progresses linearly: project, then shot, then task; there are
// no back transitions.
type Pipe struct {
	Project          *Project `json:"project,omitempty"`
	Shot             *Shot    `json:"shot,omitempty"`
	Task             *Task    `json:"task,omitempty"`
	User             *User    `json:"user,omitempty"`
	VersionNumber    int      `json:"version_number,omitempty"`
	Template         string   `json:"filename_template,omitempty"`
	ResolvedFilename string   `json:"resolved_filename,omitempty"`
}

// NewWithProject returns a fresh pipe for the given project, as produced by
// the project browse step.
func NewWithProject(p Project) Pipe {
	return Pipe{
		Project:       &p,
		VersionNumber: 1,
		Template:      DefaultTemplate,
	}
}

// clone returns a deep copy. Field structs are small; copying them keeps
// the copy-on-write contract without sharing pointers.
func (p Pipe) clone() Pipe {
	out := p
	if p.Project != nil {
		cp := *p.Project
		out.Project = &cp
	}
	if p.Shot != nil {
		cp := *p.Shot
		out.Shot = &cp
	}
	if p.Task != nil {
		cp := *p.Task
		out.Task = &cp
	}
	if p.User != nil {
		cp := *p.User
		out.User = &cp
	}
	return out
}

// WithShot returns a copy with the shot and next version number set and the
// filename re-derived. The task is cleared: selecting a shot restarts the
// task step. Requires a project.
func (p Pipe) WithShot(s Shot, nextVersion int) (Pipe, error) {
	if p.Project == nil {
		return p, fmt.Errorf("pipe: shot selection requires a project")
	}
	out := p.clone()
	out.Shot = &s
	out.Task = nil
	out.User = nil
	out.VersionNumber = nextVersion
	out.ResolvedFilename = out.Filename()
	return out, nil
}

// WithTask returns a copy with the task (and optionally the assigned user)
// set and the filename re-derived. Requires a shot.
func (p Pipe) WithTask(t Task, u *User) (Pipe, error) {
	if p.Shot == nil {
		return p, fmt.Errorf("pipe: task selection requires a shot")
	}
	out := p.clone()
	out.Task = &t
	if u != nil {
		cu := *u
		out.User = &cu
	}
	out.ResolvedFilename = out.Filename()
	return out, nil
}

// Filename derives the working filename from whichever fields are
// populated: project, sequence, shot code, optional task, zero-padded
// version. Pure; no sanitization of special characters is applied.
func (p Pipe) Filename() string {
	project := "proj"
	if p.Project != nil && p.Project.Name != "" {
		project = p.Project.Name
	}
	sequence := "SEQ"
	shot := "shot"
	if p.Shot != nil {
		if p.Shot.Sequence != "" {
			sequence = p.Shot.Sequence
		}
		if p.Shot.Code != "" {
			shot = p.Shot.Code
		}
	}
	version := p.VersionNumber
	if version <= 0 {
		version = 1
	}
	if p.Task != nil && p.Task.Name != "" {
		return fmt.Sprintf("%s_%s_%s_%s_v%03d", project, sequence, shot, p.Task.Name, version)
	}
	return fmt.Sprintf("%s_%s_%s_v%03d", project, sequence, shot, version)
}

// FolderSuggestion returns the conventional render folder for the current
// selection: project/sequence/shot/render.
func (p Pipe) FolderSuggestion() string {
	project := "project"
	if p.Project != nil && p.Project.Name != "" {
		project = p.Project.Name
	}
	sequence := "SEQ"
	shot := "shot"
	if p.Shot != nil {
		if p.Shot.Sequence != "" {
			sequence = p.Shot.Sequence
		}
		if p.Shot.Code != "" {
			shot = p.Shot.Code
		}
	}
	return path.Join(project, sequence, shot, "render")
}
