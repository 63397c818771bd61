package mail

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"io/fs"
	"strings"
	texttemplate "text/template"

	"github.com/Masterminds/sprig/v3"

	"github.com/telekom/issuemail/pkg/domain"
	"github.com/telekom/issuemail/pkg/templatecontext"
)

//go:embed templates
var templateFS embed.FS

// TemplateEngine renders mail bodies and subjects by template name. Bodies
// come in a text and an optional HTML variant.
type TemplateEngine struct {
	html     *htmltemplate.Template
	text     *texttemplate.Template
	subjects *texttemplate.Template
}

// NewTemplateEngine parses the embedded templates.
func NewTemplateEngine() (*TemplateEngine, error) {
	return NewTemplateEngineFS(templateFS)
}

// NewTemplateEngineFS parses templates from fsys, laid out as
// templates/{html,text,subject}/<name>.{html,txt}.
func NewTemplateEngineFS(fsys fs.FS) (*TemplateEngine, error) {
	html, err := htmltemplate.New("html").Funcs(sprig.HtmlFuncMap()).Funcs(htmlFuncs()).
		ParseFS(fsys, "templates/html/*.html")
	if err != nil {
		return nil, fmt.Errorf("parsing html templates: %w", err)
	}
	text, err := texttemplate.New("text").Funcs(sprig.TxtFuncMap()).Funcs(textFuncs()).
		ParseFS(fsys, "templates/text/*.txt")
	if err != nil {
		return nil, fmt.Errorf("parsing text templates: %w", err)
	}
	subjects, err := texttemplate.New("subject").Funcs(sprig.TxtFuncMap()).Funcs(textFuncs()).
		ParseFS(fsys, "templates/subject/*.txt")
	if err != nil {
		return nil, fmt.Errorf("parsing subject templates: %w", err)
	}
	return &TemplateEngine{html: html, text: text, subjects: subjects}, nil
}

// Exists reports whether a body template of the given format is available.
func (e *TemplateEngine) Exists(name string, format domain.Format) bool {
	if format == domain.FormatHTML {
		return e.html.Lookup(name+".html") != nil
	}
	return e.text.Lookup(name+".txt") != nil
}

// Render renders the body template name in the given format.
func (e *TemplateEngine) Render(name string, format domain.Format, params map[string]any) (string, error) {
	var b bytes.Buffer
	var err error
	if format == domain.FormatHTML {
		t := e.html.Lookup(name + ".html")
		if t == nil {
			return "", fmt.Errorf("html template %q not found", name)
		}
		err = t.Execute(&b, params)
	} else {
		t := e.text.Lookup(name + ".txt")
		if t == nil {
			return "", fmt.Errorf("text template %q not found", name)
		}
		err = t.Execute(&b, params)
	}
	if err != nil {
		return "", fmt.Errorf("rendering %s template %q: %w", format, name, err)
	}
	return b.String(), nil
}

// RenderSubject renders the subject template name as a single line.
func (e *TemplateEngine) RenderSubject(name string, params map[string]any) (string, error) {
	t := e.subjects.Lookup(name + ".txt")
	if t == nil {
		return "", fmt.Errorf("subject template %q not found", name)
	}
	var b bytes.Buffer
	if err := t.Execute(&b, params); err != nil {
		return "", fmt.Errorf("rendering subject template %q: %w", name, err)
	}
	return strings.Join(strings.Fields(b.String()), " "), nil
}

func textFuncs() texttemplate.FuncMap {
	return texttemplate.FuncMap{
		"displayName": displayName,
		"humanize":    humanizeEventType,
	}
}

func htmlFuncs() htmltemplate.FuncMap {
	return htmltemplate.FuncMap{
		"displayName": displayName,
		"humanize":    humanizeEventType,
		// safeHTML marks markup produced by the markup renderer as trusted.
		"safeHTML": func(v any) htmltemplate.HTML {
			if v == nil {
				return ""
			}
			return htmltemplate.HTML(fmt.Sprint(v)) //nolint:gosec // rendered by the markup renderer
		},
	}
}

func displayName(v any) string {
	switch u := v.(type) {
	case *templatecontext.UserView:
		if u != nil {
			return u.DisplayName
		}
	case *domain.User:
		if u != nil {
			if u.DisplayName != "" {
				return u.DisplayName
			}
			return u.Name
		}
	}
	return ""
}

// humanizeEventType turns "issue_comment_edited" into "comment edited".
func humanizeEventType(v any) string {
	s, _ := v.(string)
	s = strings.TrimPrefix(s, "issue_")
	return strings.ReplaceAll(s, "_", " ")
}
