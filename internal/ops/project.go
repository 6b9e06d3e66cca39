package ops

import (
	"context"
	"fmt"

	"github.com/kmori/shotpipe/internal/errors"
	"github.com/kmori/shotpipe/internal/flow"
	"github.com/kmori/shotpipe/internal/pipe"
)

// BrowseProjectInput contains parameters for the BrowseProject operation.
type BrowseProjectInput struct {
	// NameFilter narrows the match with a substring filter; empty selects
	// the first active project in service order.
	NameFilter string
}

// BrowseProjectOutput contains the result of the BrowseProject operation.
type BrowseProjectOutput struct {
	Pipe    pipe.Pipe    `json:"pipe"`
	Project pipe.Project `json:"project"`
	Matches int          `json:"matches"`
	Info    string       `json:"info"`
}

// BrowseProject selects the first active project matching the filter and
// starts a fresh pipe from it.
func BrowseProject(ctx context.Context, sess flow.Session, input BrowseProjectInput) (*BrowseProjectOutput, error) {
	filters := []flow.Filter{flow.Eq("sg_status", activeProjectStatus)}
	if input.NameFilter != "" {
		filters = append(filters, flow.Contains("name", input.NameFilter))
	}

	projects, err := sess.Find(ctx, flow.EntityProject, filters, projectFields)
	if err != nil {
		return nil, errors.NewRemote(err)
	}
	if len(projects) == 0 {
		return nil, errors.NewNotFound("projects", input.NameFilter)
	}

	selected := pipe.Project{ID: projects[0].Int("id"), Name: projects[0].Str("name")}

	lines := []string{fmt.Sprintf("Project: %s", selected.Name)}
	if len(projects) > 1 {
		lines = append(lines, fmt.Sprintf("\nOther matches (%d):", len(projects)-1))
		for _, p := range projects[1:min(len(projects), 5)] {
			lines = append(lines, fmt.Sprintf("  - %s", p.Str("name")))
		}
	}

	return &BrowseProjectOutput{
		Pipe:    pipe.NewWithProject(selected),
		Project: selected,
		Matches: len(projects),
		Info:    joinInfo(lines...),
	}, nil
}
