package ops

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// maxSubjectLen caps subjects derived from body text rather than a heading.
const maxSubjectLen = 60

// splitNoteBody derives a note subject and content from a markdown body.
// A leading heading becomes the subject and is stripped from the content;
// otherwise the first line (truncated) serves as the subject and the whole
// body as content.
func splitNoteBody(body string) (subject, content string) {
	src := []byte(body)
	doc := goldmark.DefaultParser().Parse(text.NewReader(src))

	first := doc.FirstChild()
	if heading, ok := first.(*ast.Heading); ok {
		subject = string(heading.Text(src))
		content = contentAfter(heading, src)
		return subject, content
	}

	trimmed := strings.TrimSpace(body)
	line := trimmed
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	line = strings.TrimSpace(line)
	if len(line) > maxSubjectLen {
		line = line[:maxSubjectLen]
	}
	return line, trimmed
}

// contentAfter returns the source text following the given block node,
// trimmed of surrounding whitespace.
func contentAfter(node ast.Node, src []byte) string {
	lines := node.Lines()
	if lines.Len() == 0 {
		return strings.TrimSpace(string(src))
	}
	last := lines.At(lines.Len() - 1)
	if last.Stop >= len(src) {
		return ""
	}
	return strings.TrimSpace(string(src[last.Stop:]))
}
