package ops

import (
	"fmt"

	"github.com/kmori/shotpipe/internal/pipe"
)

// FilenameInput contains parameters for the Filename operation.
type FilenameInput struct {
	Pipe pipe.Pipe

	// Suffix is appended verbatim, e.g. "_beauty".
	Suffix string
}

// FilenameOutput contains the result of the Filename operation.
type FilenameOutput struct {
	Filename string `json:"filename"`
	Folder   string `json:"folder_suggestion"`
	Info     string `json:"info"`
}

// Filename extracts the resolved filename and a conventional output folder
// from the pipe. Purely local; never touches the remote service.
func Filename(input FilenameInput) *FilenameOutput {
	name := input.Pipe.ResolvedFilename
	if name == "" {
		name = "output"
	}
	name += input.Suffix

	folder := input.Pipe.FolderSuggestion()
	return &FilenameOutput{
		Filename: name,
		Folder:   folder,
		Info:     fmt.Sprintf("Filename: %s\nFolder: %s", name, folder),
	}
}
