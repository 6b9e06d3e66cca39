package ops

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/kmori/shotpipe/internal/errors"
	"github.com/kmori/shotpipe/internal/flow"
	"github.com/kmori/shotpipe/internal/history"
	"github.com/kmori/shotpipe/internal/pipe"
)

// CreateNoteInput contains parameters for the CreateNote operation.
type CreateNoteInput struct {
	Pipe pipe.Pipe

	// Body is the note in markdown. A leading heading becomes the subject.
	Body string

	// VersionID optionally links the note to a published version.
	VersionID int

	// DoCreate must be set explicitly; when false no remote call is made.
	DoCreate bool

	// Site tags the history entry. Informational only.
	Site string
}

// CreateNoteOutput contains the result of the CreateNote operation.
type CreateNoteOutput struct {
	NoteID  int    `json:"note_id,omitempty"`
	Subject string `json:"subject,omitempty"`
	Skipped bool   `json:"skipped"`
	Info    string `json:"info"`
}

// CreateNote creates a note on the remote service linked to the pipe's
// selection. Guarded by DoCreate: nothing is sent unless the caller opts
// in for this invocation.
func CreateNote(ctx context.Context, sess flow.Session, hist *sql.DB, input CreateNoteInput) (*CreateNoteOutput, error) {
	if !input.DoCreate {
		return &CreateNoteOutput{
			Skipped: true,
			Info:    "Note disabled\nEnable 'do_create' to send to Flow",
		}, nil
	}

	if input.Pipe.Project == nil {
		return nil, errors.NewInvalidRequest("note creation requires a selected project")
	}
	if input.Body == "" {
		return nil, errors.NewInvalidRequest("note body is required")
	}

	subject, content := splitNoteBody(input.Body)
	if subject == "" {
		subject = "Note from shotpipe"
	}

	data := map[string]any{
		"project": projectRef(input.Pipe.Project.ID),
		"subject": subject,
		"content": content,
	}
	links := []flow.Ref{}
	if input.Pipe.Shot != nil {
		links = append(links, shotRef(input.Pipe.Shot.ID))
	}
	if input.VersionID != 0 {
		links = append(links, flow.Ref{Type: flow.EntityVersion, ID: input.VersionID})
	}
	if len(links) > 0 {
		data["note_links"] = links
	}

	note, err := sess.Create(ctx, flow.EntityNote, data)
	if err != nil {
		return nil, errors.NewRemote(err)
	}
	noteID := note.Int("id")

	if hist != nil {
		entry := history.Entry{
			Kind:     history.KindNote,
			Site:     input.Site,
			Project:  input.Pipe.Project.Name,
			RemoteID: noteID,
			Detail:   subject,
		}
		if input.Pipe.Shot != nil {
			entry.Shot = input.Pipe.Shot.Code
		}
		if _, err := history.Record(ctx, hist, entry); err != nil {
			slog.Warn("history write failed", "kind", history.KindNote, "error", err)
		}
	}

	return &CreateNoteOutput{
		NoteID:  noteID,
		Subject: subject,
		Info:    fmt.Sprintf("Note created\nID: %d\nSubject: %s", noteID, subject),
	}, nil
}
