package reasoning

import (
	"fmt"
	"sort"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"questmaster/shared"
)

var roleLabels = map[shared.Role]string{
	shared.RoleSystem:    "Context",
	shared.RoleUser:      "Client",
	shared.RoleAssistant: "Assistant",
}

var templateFuncs = template.FuncMap{
	"transcript": transcript,
	"numbered":   numbered,
	"trim":       strings.TrimSpace,
}

// transcript renders turns as labelled lines, one turn per paragraph.
func transcript(turns []shared.Turn) string {
	var builder strings.Builder
	for i, turn := range turns {
		if i > 0 {
			builder.WriteString("\n\n")
		}
		label, ok := roleLabels[turn.Role]
		if !ok {
			label = string(turn.Role)
		}
		builder.WriteString(fmt.Sprintf("%s: %s", label, strings.TrimSpace(turn.Text)))
	}
	return builder.String()
}

func numbered(items []string) string {
	var builder strings.Builder
	for i, item := range items {
		builder.WriteString(fmt.Sprintf("%d. %s\n", i+1, item))
	}
	return builder.String()
}

// Template is a named prompt template. Missing bindings are errors.
type Template struct {
	name string
	tmpl *template.Template
}

func ParseTemplate(name, text string) (*Template, error) {
	tmpl, err := template.New(name).Funcs(templateFuncs).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", name, err)
	}
	return &Template{name: name, tmpl: tmpl}, nil
}

func (t *Template) Name() string {
	return t.name
}

func (t *Template) Render(bindings any) (string, error) {
	var builder strings.Builder
	if err := t.tmpl.Execute(&builder, bindings); err != nil {
		return "", fmt.Errorf("render template %s: %w", t.name, err)
	}
	return strings.TrimSpace(builder.String()), nil
}

type Templates map[string]*Template

// LoadTemplates parses a YAML mapping of template name to template text.
func LoadTemplates(data []byte) (Templates, error) {
	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode templates: %w", err)
	}
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	templates := make(Templates, len(raw))
	for _, name := range names {
		tmpl, err := ParseTemplate(name, raw[name])
		if err != nil {
			return nil, err
		}
		templates[name] = tmpl
	}
	return templates, nil
}

// Require returns the named templates, failing on the first missing one.
func (ts Templates) Require(names ...string) ([]*Template, error) {
	res := make([]*Template, 0, len(names))
	for _, name := range names {
		tmpl, ok := ts[name]
		if !ok {
			return nil, fmt.Errorf("template %s not defined", name)
		}
		res = append(res, tmpl)
	}
	return res, nil
}
