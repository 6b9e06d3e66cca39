package ops

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/kmori/shotpipe/internal/config"
	"github.com/kmori/shotpipe/internal/errors"
	"github.com/kmori/shotpipe/internal/flow"
	"github.com/kmori/shotpipe/internal/history"
	"github.com/kmori/shotpipe/internal/pipe"
)

// PublishInput contains parameters for the Publish operation.
type PublishInput struct {
	Pipe        pipe.Pipe
	FilePath    string
	Description string

	// Status is the version status: rev, vwd, or apr. Empty uses the
	// configured default.
	Status string

	// DoPublish must be set explicitly; when false no remote call is made.
	DoPublish bool

	// Site tags the history entry. Informational only.
	Site string
}

// PublishOutput contains the result of the Publish operation.
type PublishOutput struct {
	VersionID         int    `json:"version_id,omitempty"`
	Code              string `json:"code,omitempty"`
	Status            string `json:"status,omitempty"`
	ThumbnailUploaded bool   `json:"thumbnail_uploaded"`
	Skipped           bool   `json:"skipped"`
	Info              string `json:"info"`
}

// Publish creates a version record for the pipe's selection. Guarded by
// DoPublish: with the flag unset the operation performs no remote call of
// any kind. Thumbnail upload and history logging are best effort.
func Publish(ctx context.Context, sess flow.Session, cfg *config.Config, hist *sql.DB, input PublishInput) (*PublishOutput, error) {
	if !input.DoPublish {
		return &PublishOutput{
			Skipped: true,
			Info:    "Publish disabled\nEnable 'do_publish' to upload to Flow",
		}, nil
	}

	p := input.Pipe
	if p.Project == nil || p.Shot == nil {
		return nil, errors.NewInvalidRequest("publish requires a project and shot in the pipe")
	}
	if input.FilePath == "" {
		return nil, errors.NewInvalidRequest("file_path is required")
	}
	if _, err := os.Stat(input.FilePath); err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("file not found: %s", input.FilePath))
	}

	status := input.Status
	if status == "" {
		status = cfg.Publish.DefaultStatus
	}
	if !publishStatuses[status] {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("unknown version status: %s", status))
	}

	code := p.ResolvedFilename
	if code == "" {
		code = fmt.Sprintf("v%03d", max(p.VersionNumber, 1))
	}

	data := map[string]any{
		"project":           projectRef(p.Project.ID),
		"entity":            shotRef(p.Shot.ID),
		"code":              code,
		"description":       input.Description,
		"sg_status_list":    status,
		"sg_path_to_frames": input.FilePath,
	}
	if p.Task != nil {
		data["sg_task"] = flow.Ref{Type: flow.EntityTask, ID: p.Task.ID}
	}
	if p.User != nil && p.User.ID != 0 {
		data["user"] = flow.Ref{Type: flow.EntityUser, ID: p.User.ID}
	}

	version, err := sess.Create(ctx, flow.EntityVersion, data)
	if err != nil {
		return nil, errors.NewRemote(err)
	}
	versionID := version.Int("id")

	thumbnailUploaded := false
	if thumbnailExts[strings.ToLower(filepath.Ext(input.FilePath))] {
		if err := sess.UploadThumbnail(ctx, flow.EntityVersion, versionID, input.FilePath); err != nil {
			slog.Warn("thumbnail upload skipped", "version_id", versionID, "error", err)
		} else {
			thumbnailUploaded = true
		}
	}

	if hist != nil {
		entry := history.Entry{
			Kind:          history.KindPublish,
			Site:          input.Site,
			Project:       p.Project.Name,
			Shot:          p.Shot.Code,
			VersionNumber: p.VersionNumber,
			Filename:      code,
			RemoteID:      versionID,
			Detail:        input.Description,
		}
		if p.Task != nil {
			entry.Task = p.Task.Name
		}
		if _, err := history.Record(ctx, hist, entry); err != nil {
			slog.Warn("history write failed", "kind", history.KindPublish, "error", err)
		}
	}

	info := joinInfo(
		"Published to Flow",
		fmt.Sprintf("Version ID: %d", versionID),
		fmt.Sprintf("Code: %s", code),
		fmt.Sprintf("Status: %s", status),
	)

	return &PublishOutput{
		VersionID:         versionID,
		Code:              code,
		Status:            status,
		ThumbnailUploaded: thumbnailUploaded,
		Info:              info,
	}, nil
}
