// Package ops implements the node operations: each one takes the current
// pipe (or none) plus a filter, queries the production-tracking service,
// optionally performs an opt-in status update, and returns a new pipe with
// one more field populated. Callers render returned errors as
// human-readable strings alongside the unchanged input pipe; ops never
// partially mutate a pipe.
package ops

import (
	"strings"

	"github.com/kmori/shotpipe/internal/flow"
)

// Field lists requested from the remote service per entity.
var (
	projectFields = []string{"name", "sg_status"}
	shotFields    = []string{"code", "sg_status_list", "sg_sequence", "sg_cut_in", "sg_cut_out"}
	versionFields = []string{"code", "sg_path_to_movie", "sg_path_to_frames", "version_number"}
	taskFields    = []string{"content", "task_assignees", "sg_status_list"}
	userFields    = []string{"name", "login"}
)

// Version statuses accepted by Publish.
var publishStatuses = map[string]bool{
	"rev": true, // pending review
	"vwd": true, // viewed
	"apr": true, // approved
}

// activeProjectStatus filters project browsing to live productions.
const activeProjectStatus = "Active"

// activeUserStatus selects the human user auto-assignment picks.
const activeUserStatus = "act"

// thumbnailExts are the file extensions Publish attaches a thumbnail for.
var thumbnailExts = map[string]bool{
	".exr": true, ".jpg": true, ".png": true, ".tif": true, ".tiff": true,
}

// projectRef builds an entity link for filter and create payloads.
func projectRef(id int) flow.Ref {
	return flow.Ref{Type: flow.EntityProject, ID: id}
}

func shotRef(id int) flow.Ref {
	return flow.Ref{Type: flow.EntityShot, ID: id}
}

// boolOrDefault resolves an optional flag: nil means the default.
func boolOrDefault(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// joinInfo builds the multi-line info string shown next to a node.
func joinInfo(lines ...string) string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}
