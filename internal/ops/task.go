package ops

import (
	"context"
	"fmt"

	"github.com/kmori/shotpipe/internal/config"
	"github.com/kmori/shotpipe/internal/errors"
	"github.com/kmori/shotpipe/internal/flow"
	"github.com/kmori/shotpipe/internal/pipe"
)

// SelectTaskInput contains parameters for the SelectTask operation.
type SelectTaskInput struct {
	Pipe     pipe.Pipe
	TaskName string

	// AssignToMe assigns the task to the first active human user and marks
	// it in progress. Defaults to true. Assignment failures are swallowed:
	// the selection still succeeds with no user attached.
	AssignToMe *bool
}

// SelectTaskOutput contains the result of the SelectTask operation.
type SelectTaskOutput struct {
	Pipe     pipe.Pipe  `json:"pipe"`
	Task     pipe.Task  `json:"task"`
	User     *pipe.User `json:"user,omitempty"`
	Assigned bool       `json:"assigned"`
	Info     string     `json:"info"`
}

// SelectTask selects the first task on the pipe's shot matching the name
// filter and optionally self-assigns it.
func SelectTask(ctx context.Context, sess flow.Session, cfg *config.Config, input SelectTaskInput) (*SelectTaskOutput, error) {
	if input.Pipe.Shot == nil {
		return nil, errors.NewInvalidRequest("task selection requires a selected shot")
	}

	name := input.TaskName
	if name == "" {
		name = "comp"
	}

	tasks, err := sess.Find(ctx, flow.EntityTask,
		[]flow.Filter{
			flow.Eq("entity", shotRef(input.Pipe.Shot.ID)),
			flow.Contains("content", name),
		}, taskFields)
	if err != nil {
		return nil, errors.NewRemote(err)
	}
	if len(tasks) == 0 {
		return nil, errors.NewNotFound("tasks", name)
	}

	selected := pipe.Task{ID: tasks[0].Int("id"), Name: tasks[0].Str("content")}

	var user *pipe.User
	assigned := false
	if boolOrDefault(input.AssignToMe, true) {
		user, assigned = assignTask(ctx, sess, cfg, selected.ID)
	}

	out, err := input.Pipe.WithTask(selected, user)
	if err != nil {
		return nil, errors.NewInvalidRequest(err.Error())
	}

	assignee := "Unknown"
	if user != nil {
		assignee = user.Name
	}
	info := joinInfo(
		fmt.Sprintf("Task: %s", selected.Name),
		fmt.Sprintf("Assigned to: %s", assignee),
		fmt.Sprintf("Filename: %s", out.ResolvedFilename),
	)

	return &SelectTaskOutput{
		Pipe:     out,
		Task:     selected,
		User:     user,
		Assigned: assigned,
		Info:     info,
	}, nil
}

// assignTask resolves the active human user and assigns the task to them.
// All failures degrade to "skipped": a nil user and assigned=false.
func assignTask(ctx context.Context, sess flow.Session, cfg *config.Config, taskID int) (*pipe.User, bool) {
	me, err := sess.FindOne(ctx, flow.EntityUser,
		[]flow.Filter{flow.Eq("sg_status_list", activeUserStatus)}, userFields)
	if err != nil || me == nil {
		return nil, false
	}

	user := &pipe.User{ID: me.Int("id"), Name: me.Str("name")}
	if user.Name == "" {
		user.Name = me.Str("login")
	}
	if user.Name == "" {
		user.Name = "Unknown"
	}

	if _, err := sess.Update(ctx, flow.EntityTask, taskID, map[string]any{
		"task_assignees": []flow.Ref{{Type: flow.EntityUser, ID: user.ID}},
		"sg_status_list": cfg.Publish.InProgressStatus,
	}); err != nil {
		// Assignment is best effort; the user still appears in the pipe so
		// the publish step can credit them.
		return user, false
	}
	return user, true
}
