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

func projectPipe() pipe.Pipe {
	return pipe.NewWithProject(pipe.Project{ID: 7, Name: "Alpha"})
}

func shotFake() *flowtest.Fake {
	return &flowtest.Fake{
		FindResults: map[string][]flow.Record{
			flow.EntityShot: {
				{
					"type": "Shot", "id": 42, "code": "SH010",
					"sg_status_list": "wtg",
					"sg_sequence":    map[string]any{"type": "Sequence", "id": 11, "name": "SEQ01"},
					"sg_cut_in":      float64(1001), "sg_cut_out": float64(1096),
				},
			},
			flow.EntityVersion: {
				{
					"type": "Version", "id": 300, "code": "Alpha_SEQ01_SH010_v003",
					"version_number":    float64(3),
					"sg_path_to_frames": "/renders/SH010/v003/SH010.%04d.exr",
				},
			},
		},
	}
}

func TestBrowseShot_PopulatesPipeAndNextVersion(t *testing.T) {
	fake := shotFake()
	cfg := config.DefaultConfig()

	out, err := BrowseShot(context.Background(), fake, cfg, BrowseShotInput{
		Pipe: projectPipe(), CodeFilter: "SH",
	})
	require.NoError(t, err)
	assert.Equal(t, "SH010", out.Shot.Code)
	assert.Equal(t, "SEQ01", out.Shot.Sequence)
	assert.Equal(t, 1001, out.Shot.CutIn)
	assert.Equal(t, 4, out.NextVersion)
	assert.Equal(t, "/renders/SH010/v003/SH010.%04d.exr", out.LatestPath)
	assert.Equal(t, "Alpha_SEQ01_SH010_v004", out.Pipe.ResolvedFilename)

	// Default flips the shot to in progress.
	updates := fake.CallsTo("update", flow.EntityShot)
	require.Len(t, updates, 1)
	assert.Equal(t, 42, updates[0].ID)
	assert.Equal(t, "ip", updates[0].Data["sg_status_list"])
}

func TestBrowseShot_SetInProgressFalseNeverMutates(t *testing.T) {
	fake := shotFake()
	off := false

	out, err := BrowseShot(context.Background(), fake, config.DefaultConfig(), BrowseShotInput{
		Pipe: projectPipe(), SetInProgress: &off,
	})
	require.NoError(t, err)
	assert.Empty(t, fake.CallsTo("update", flow.EntityShot))
	assert.Contains(t, out.Info, "Status: wtg")
}

func TestBrowseShot_MoviePathFallback(t *testing.T) {
	fake := shotFake()
	fake.FindResults[flow.EntityVersion] = []flow.Record{
		{"type": "Version", "id": 300, "version_number": float64(7),
			"sg_path_to_movie": "/renders/SH010/v007/SH010.mov"},
	}

	out, err := BrowseShot(context.Background(), fake, config.DefaultConfig(), BrowseShotInput{Pipe: projectPipe()})
	require.NoError(t, err)
	assert.Equal(t, "/renders/SH010/v007/SH010.mov", out.LatestPath)
	assert.Equal(t, 8, out.NextVersion)
}

func TestBrowseShot_NoVersionsStartsAtOne(t *testing.T) {
	fake := shotFake()
	delete(fake.FindResults, flow.EntityVersion)

	out, err := BrowseShot(context.Background(), fake, config.DefaultConfig(), BrowseShotInput{Pipe: projectPipe()})
	require.NoError(t, err)
	assert.Equal(t, 1, out.NextVersion)
	assert.Empty(t, out.LatestPath)
}

func TestBrowseShot_MissingSequenceDefaults(t *testing.T) {
	fake := shotFake()
	fake.FindResults[flow.EntityShot] = []flow.Record{
		{"type": "Shot", "id": 42, "code": "SH010"},
	}

	out, err := BrowseShot(context.Background(), fake, config.DefaultConfig(), BrowseShotInput{Pipe: projectPipe()})
	require.NoError(t, err)
	assert.Equal(t, "SEQ", out.Shot.Sequence)
}

func TestBrowseShot_RequiresProject(t *testing.T) {
	_, err := BrowseShot(context.Background(), &flowtest.Fake{}, config.DefaultConfig(), BrowseShotInput{})
	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.ErrInvalidRequest))
}

func TestBrowseShot_NoneFound(t *testing.T) {
	_, err := BrowseShot(context.Background(), &flowtest.Fake{}, config.DefaultConfig(), BrowseShotInput{
		Pipe: projectPipe(), CodeFilter: "SH999",
	})
	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.ErrNotFound))
}

func TestBrowseShot_InputPipeUnchangedOnError(t *testing.T) {
	fake := shotFake()
	fake.FindErr = map[string]error{flow.EntityVersion: errors.New("boom")}

	in := projectPipe()
	_, err := BrowseShot(context.Background(), fake, config.DefaultConfig(), BrowseShotInput{Pipe: in})
	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.ErrRemote))
	assert.Nil(t, in.Shot, "caller's pipe must stay unchanged on failure")
}
