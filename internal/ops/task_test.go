package ops

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmori/shotpipe/internal/config"
	perrors "github.com/kmori/shotpipe/internal/errors"
	"github.com/kmori/shotpipe/internal/flow"
	"github.com/kmori/shotpipe/internal/flow/flowtest"
	"github.com/kmori/shotpipe/internal/pipe"
)

func shotPipe(t *testing.T) pipe.Pipe {
	t.Helper()
	p, err := projectPipe().WithShot(pipe.Shot{ID: 42, Code: "SH010", Sequence: "SEQ01"}, 4)
	require.NoError(t, err)
	return p
}

func taskFake() *flowtest.Fake {
	return &flowtest.Fake{
		FindResults: map[string][]flow.Record{
			flow.EntityTask: {
				{"type": "Task", "id": 99, "content": "comp"},
				{"type": "Task", "id": 100, "content": "comp_cleanup"},
			},
			flow.EntityUser: {
				{"type": "HumanUser", "id": 5, "name": "Ada Artist", "login": "ada"},
			},
		},
	}
}

func TestSelectTask_AssignsAndRederivesFilename(t *testing.T) {
	fake := taskFake()

	out, err := SelectTask(context.Background(), fake, config.DefaultConfig(), SelectTaskInput{
		Pipe: shotPipe(t), TaskName: "comp",
	})
	require.NoError(t, err)
	assert.Equal(t, 99, out.Task.ID)
	assert.True(t, out.Assigned)
	require.NotNil(t, out.User)
	assert.Equal(t, "Ada Artist", out.User.Name)
	assert.Equal(t, "Alpha_SEQ01_SH010_comp_v004", out.Pipe.ResolvedFilename)

	updates := fake.CallsTo("update", flow.EntityTask)
	require.Len(t, updates, 1)
	assert.Equal(t, 99, updates[0].ID)
	assert.Equal(t, "ip", updates[0].Data["sg_status_list"])
}

func TestSelectTask_AssignToMeFalse(t *testing.T) {
	fake := taskFake()
	off := false

	out, err := SelectTask(context.Background(), fake, config.DefaultConfig(), SelectTaskInput{
		Pipe: shotPipe(t), TaskName: "comp", AssignToMe: &off,
	})
	require.NoError(t, err)
	assert.Nil(t, out.User)
	assert.False(t, out.Assigned)
	assert.Empty(t, fake.CallsTo("find", flow.EntityUser))
	assert.Empty(t, fake.CallsTo("update", flow.EntityTask))
	assert.Contains(t, out.Info, "Assigned to: Unknown")
}

func TestSelectTask_AssignmentFailureDegradesToSkipped(t *testing.T) {
	fake := taskFake()
	fake.UpdateErr = errors.New("permission denied")

	out, err := SelectTask(context.Background(), fake, config.DefaultConfig(), SelectTaskInput{
		Pipe: shotPipe(t), TaskName: "comp",
	})
	require.NoError(t, err, "assignment errors must not fail the selection")
	assert.False(t, out.Assigned)
	require.NotNil(t, out.User, "resolved user still travels in the pipe")
}

func TestSelectTask_UserLookupFailureDegrades(t *testing.T) {
	fake := taskFake()
	fake.FindErr = map[string]error{flow.EntityUser: errors.New("boom")}

	out, err := SelectTask(context.Background(), fake, config.DefaultConfig(), SelectTaskInput{
		Pipe: shotPipe(t), TaskName: "comp",
	})
	require.NoError(t, err)
	assert.Nil(t, out.User)
	assert.False(t, out.Assigned)
}

func TestSelectTask_DefaultsToComp(t *testing.T) {
	fake := taskFake()

	_, err := SelectTask(context.Background(), fake, config.DefaultConfig(), SelectTaskInput{Pipe: shotPipe(t)})
	require.NoError(t, err)

	calls := fake.CallsTo("find", flow.EntityTask)
	require.Len(t, calls, 1)
	assert.Equal(t, "comp", calls[0].Filters[1].Value)
}

func TestSelectTask_RequiresShot(t *testing.T) {
	_, err := SelectTask(context.Background(), &flowtest.Fake{}, config.DefaultConfig(), SelectTaskInput{
		Pipe: projectPipe(),
	})
	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.ErrInvalidRequest))
}

func TestSelectTask_NoneFound(t *testing.T) {
	fake := &flowtest.Fake{}
	_, err := SelectTask(context.Background(), fake, config.DefaultConfig(), SelectTaskInput{
		Pipe: shotPipe(t), TaskName: "roto",
	})
	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.ErrNotFound))
}
