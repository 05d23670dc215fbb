package journal

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/Conceptual-Machines/daytale-api/pkg/embedded"
)

// Template names. Guided is the canonical contract; gentle is the shorter
// variant without the closing reflection and crisis redirection.
const (
	TemplateGuided = "guided"
	TemplateGentle = "gentle"
)

// Template pairs a system instruction with a user-prompt template
type Template struct {
	name   string
	system string
	prompt *template.Template
}

// LoadTemplate returns the named embedded template
func LoadTemplate(name string) (*Template, error) {
	var system, body []byte
	switch name {
	case TemplateGuided:
		system, body = embedded.GuidedSystemTxt, embedded.GuidedPromptTmpl
	case TemplateGentle:
		system, body = embedded.GentleSystemTxt, embedded.GentlePromptTmpl
	default:
		return nil, fmt.Errorf("unknown prompt template %q", name)
	}

	tmpl, err := template.New(name).Option("missingkey=error").Parse(strings.TrimSpace(string(body)))
	if err != nil {
		return nil, fmt.Errorf("parse %s template: %w", name, err)
	}
	return &Template{
		name:   name,
		system: strings.TrimSpace(string(system)),
		prompt: tmpl,
	}, nil
}

// MustLoadTemplate is like LoadTemplate but panics on error
func MustLoadTemplate(name string) *Template {
	t, err := LoadTemplate(name)
	if err != nil {
		panic(err)
	}
	return t
}

// Name returns the template name
func (t *Template) Name() string {
	return t.name
}

// SystemPrompt returns the instruction sent as the system turn
func (t *Template) SystemPrompt() string {
	return t.system
}

// UserPrompt returns the user turn for a request. Prompt requests are passed
// through verbatim; notes requests are rendered through the template.
func (t *Template) UserPrompt(req GenerationRequest) (string, error) {
	switch req.Kind {
	case PromptRequest:
		return req.Prompt, nil
	case NotesRequest:
		var b strings.Builder
		if err := t.prompt.Execute(&b, req); err != nil {
			return "", fmt.Errorf("render %s template: %w", t.name, err)
		}
		return b.String(), nil
	default:
		return "", fmt.Errorf("unsupported request kind %v", req.Kind)
	}
}
