package ops

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/kmori/shotpipe/internal/config"
	"github.com/kmori/shotpipe/internal/errors"
	"github.com/kmori/shotpipe/internal/flow"
	"github.com/kmori/shotpipe/internal/pipe"
)

// BrowseShotInput contains parameters for the BrowseShot operation.
type BrowseShotInput struct {
	Pipe       pipe.Pipe
	CodeFilter string

	// SetInProgress flips the selected shot's status. Defaults to true.
	SetInProgress *bool
}

// BrowseShotOutput contains the result of the BrowseShot operation.
type BrowseShotOutput struct {
	Pipe        pipe.Pipe `json:"pipe"`
	Shot        pipe.Shot `json:"shot"`
	LatestPath  string    `json:"latest_version_path,omitempty"`
	NextVersion int       `json:"next_version"`
	Info        string    `json:"info"`
}

// BrowseShot selects the first shot in the pipe's project matching the
// filter, optionally marks it in progress, and looks up the latest version
// to derive the next version number and latest render path.
func BrowseShot(ctx context.Context, sess flow.Session, cfg *config.Config, input BrowseShotInput) (*BrowseShotOutput, error) {
	if input.Pipe.Project == nil {
		return nil, errors.NewInvalidRequest("shot browse requires a selected project")
	}

	filters := []flow.Filter{flow.Eq("project", projectRef(input.Pipe.Project.ID))}
	if input.CodeFilter != "" {
		filters = append(filters, flow.Contains("code", input.CodeFilter))
	}

	shots, err := sess.Find(ctx, flow.EntityShot, filters, shotFields)
	if err != nil {
		return nil, errors.NewRemote(err)
	}
	if len(shots) == 0 {
		return nil, errors.NewNotFound("shots", input.CodeFilter)
	}

	record := shots[0]
	selected := pipe.Shot{
		ID:     record.Int("id"),
		Code:   record.Str("code"),
		CutIn:  record.Int("sg_cut_in"),
		CutOut: record.Int("sg_cut_out"),
	}
	selected.Sequence = "SEQ"
	if seq, ok := record.Ref("sg_sequence"); ok && seq.Name != "" {
		selected.Sequence = seq.Name
	}

	setInProgress := boolOrDefault(input.SetInProgress, true)
	if setInProgress {
		if _, err := sess.Update(ctx, flow.EntityShot, selected.ID,
			map[string]any{"sg_status_list": cfg.Publish.InProgressStatus}); err != nil {
			return nil, errors.NewRemote(err)
		}
	}

	// Latest version, service-sorted descending; first row wins.
	versions, err := sess.Find(ctx, flow.EntityVersion,
		[]flow.Filter{flow.Eq("entity", shotRef(selected.ID))}, versionFields,
		flow.WithOrder(flow.Order{FieldName: "version_number", Direction: "desc"}),
		flow.WithLimit(1))
	if err != nil {
		return nil, errors.NewRemote(err)
	}

	latestPath := ""
	nextVersion := 1
	if len(versions) > 0 {
		v := versions[0]
		latestPath = v.Str("sg_path_to_frames")
		if latestPath == "" {
			latestPath = v.Str("sg_path_to_movie")
		}
		nextVersion = v.Int("version_number") + 1
	}

	out, err := input.Pipe.WithShot(selected, nextVersion)
	if err != nil {
		return nil, errors.NewInvalidRequest(err.Error())
	}

	statusLine := fmt.Sprintf("Status: %s", record.Str("sg_status_list"))
	if setInProgress {
		statusLine = "Status: In Progress"
	}
	lines := []string{
		fmt.Sprintf("Shot: %s", selected.Code),
		fmt.Sprintf("Sequence: %s", selected.Sequence),
		statusLine,
		fmt.Sprintf("Next Version: v%03d", nextVersion),
	}
	if latestPath != "" {
		lines = append(lines, fmt.Sprintf("Latest: %s", filepath.Base(latestPath)))
	}

	return &BrowseShotOutput{
		Pipe:        out,
		Shot:        selected,
		LatestPath:  latestPath,
		NextVersion: nextVersion,
		Info:        joinInfo(lines...),
	}, nil
}
