package extractor

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultPrompts []byte

// PromptTemplate is the pair of templates for one extractor.
type PromptTemplate struct {
	System string `yaml:"system"`
	User   string `yaml:"user"`
}

// Prompts is a parsed prompt bundle keyed by extractor name.
type Prompts map[string]PromptTemplate

// LoadPrompts reads the prompt bundle at path, or the embedded one when path is empty.
func LoadPrompts(path string) (Prompts, error) {
	data := defaultPrompts
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading prompts: %w", err)
		}
		data = b
	}

	var p Prompts
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing prompts: %w", err)
	}
	return p, nil
}

type compiledPrompt struct {
	system *template.Template
	user   *template.Template
}

func (p Prompts) compile(name string) (*compiledPrompt, error) {
	pt, ok := p[name]
	if !ok || strings.TrimSpace(pt.User) == "" {
		return nil, fmt.Errorf("prompt %q not found", name)
	}
	system, err := template.New(name + ".system").Option("missingkey=error").Parse(pt.System)
	if err != nil {
		return nil, fmt.Errorf("parsing %s system prompt: %w", name, err)
	}
	user, err := template.New(name + ".user").Option("missingkey=error").Parse(pt.User)
	if err != nil {
		return nil, fmt.Errorf("parsing %s user prompt: %w", name, err)
	}
	return &compiledPrompt{system: system, user: user}, nil
}

type promptData struct {
	Language            string
	Categories          string
	RetrievedContexts   string
	RetrievedIdentities string
	Username            string
	SessionDate         string
	TopK                int
}

func newPromptData(opts Options) promptData {
	d := promptData{
		Language:            opts.Language,
		Categories:          strings.Join(opts.categories(), ", "),
		RetrievedContexts:   strings.Join(opts.RetrievedContexts, "\n\n"),
		RetrievedIdentities: opts.RetrievedIdentities,
		Username:            opts.Username,
		TopK:                opts.TopK,
	}
	if d.Language == "" {
		d.Language = DefaultLanguage
	}
	if !opts.SessionDate.IsZero() {
		d.SessionDate = opts.SessionDate.UTC().Format(time.DateOnly)
	}
	return d
}

func render(t *template.Template, data promptData) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", fmt.Errorf("rendering %s: %w", t.Name(), err)
	}
	return strings.TrimSpace(b.String()), nil
}
