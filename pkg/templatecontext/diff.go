package templatecontext

import (
	"html"
	"html/template"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

type DiffType string

const (
	DiffUnchanged DiffType = "unchanged"
	DiffAdded     DiffType = "added"
	DiffDeleted   DiffType = "deleted"
)

// DiffChunk is a run of words sharing one diff outcome.
type DiffChunk struct {
	Type DiffType
	Text string
}

// DiffHelper renders word level differences of changed field values.
type DiffHelper struct{}

// Words diffs two values word by word.
func (DiffHelper) Words(from, to string) []DiffChunk {
	a, b := strings.Fields(from), strings.Fields(to)
	var chunks []DiffChunk
	for _, op := range difflib.NewMatcher(a, b).GetOpCodes() {
		switch op.Tag {
		case 'e':
			chunks = append(chunks, DiffChunk{DiffUnchanged, strings.Join(a[op.I1:op.I2], " ")})
		case 'd':
			chunks = append(chunks, DiffChunk{DiffDeleted, strings.Join(a[op.I1:op.I2], " ")})
		case 'i':
			chunks = append(chunks, DiffChunk{DiffAdded, strings.Join(b[op.J1:op.J2], " ")})
		case 'r':
			chunks = append(chunks,
				DiffChunk{DiffDeleted, strings.Join(a[op.I1:op.I2], " ")},
				DiffChunk{DiffAdded, strings.Join(b[op.J1:op.J2], " ")})
		}
	}
	return chunks
}

// HTML renders the diff with <del> and <ins> markup. Word text is escaped.
func (d DiffHelper) HTML(from, to string) template.HTML {
	var sb strings.Builder
	for i, c := range d.Words(from, to) {
		if i > 0 {
			sb.WriteByte(' ')
		}
		text := html.EscapeString(c.Text)
		switch c.Type {
		case DiffAdded:
			sb.WriteString(`<ins class="diffaddedchars">` + text + `</ins>`)
		case DiffDeleted:
			sb.WriteString(`<del class="diffremovedchars">` + text + `</del>`)
		default:
			sb.WriteString(text)
		}
	}
	return template.HTML(sb.String()) //nolint:gosec // every fragment is escaped above
}
