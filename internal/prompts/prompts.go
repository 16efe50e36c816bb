// Package prompts holds the stage prompt templates and renders them with
// checked variables.
package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"text/template"
)

//go:embed templates/*.tmpl
var bundled embed.FS

// Template names.
const (
	HierarchicalDraft  = "hierarchical_draft"
	HierarchicalRefine = "hierarchical_refine"
	HierarchicalPolish = "hierarchical_polish"
	AtomicDraft        = "atomic_draft"
	AtomicMerge        = "atomic_merge"
)

// Variable names used by the templates.
const (
	VarInstruction = "Instruction"
	VarContext     = "Context"
	VarText        = "Text"
	VarDraftGrok   = "DraftGrok"
	VarDraftSonnet = "DraftSonnet"
	VarDraftGemini = "DraftGemini"
	VarMinChars    = "MinChars"
	VarMaxChars    = "MaxChars"
)

// Vars supplies template variables by name.
type Vars map[string]any

var required = map[string][]string{
	HierarchicalDraft:  {VarInstruction, VarContext, VarMinChars, VarMaxChars},
	HierarchicalRefine: {VarInstruction, VarText, VarMinChars, VarMaxChars},
	HierarchicalPolish: {VarInstruction, VarText, VarMinChars, VarMaxChars},
	AtomicDraft:        {VarInstruction, VarContext, VarMinChars, VarMaxChars},
	AtomicMerge:        {VarInstruction, VarDraftGrok, VarDraftSonnet, VarDraftGemini, VarMinChars, VarMaxChars},
}

// MissingVariableError reports variables a template needs but was not given.
type MissingVariableError struct {
	Template string
	Missing  []string
}

func (e *MissingVariableError) Error() string {
	return fmt.Sprintf("prompt %s: missing variable(s) %s", e.Template, strings.Join(e.Missing, ", "))
}

// Template is a parsed prompt plus the variables it requires.
type Template struct {
	Name     string
	Required []string
	tmpl     *template.Template
}

// Render validates vars and executes the template. No output is produced
// when a required variable is absent.
func (t *Template) Render(vars Vars) (string, error) {
	var missing []string
	for _, name := range t.Required {
		if v, ok := vars[name]; !ok || v == nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return "", &MissingVariableError{Template: t.Name, Missing: missing}
	}

	var buf bytes.Buffer
	if err := t.tmpl.Execute(&buf, map[string]any(vars)); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", t.Name, err)
	}
	return buf.String(), nil
}

// Set is a named collection of templates.
type Set struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// Load parses the bundled templates. When dir is set, any <name>.tmpl file
// found there replaces the bundled template of the same name.
func Load(dir string) (*Set, error) {
	set := &Set{templates: make(map[string]*Template)}
	for name := range required {
		src, err := fs.ReadFile(bundled, "templates/"+name+".tmpl")
		if err != nil {
			return nil, fmt.Errorf("read bundled prompt %s: %w", name, err)
		}
		if dir != "" {
			override, err := os.ReadFile(filepath.Join(dir, name+".tmpl"))
			switch {
			case err == nil:
				src = override
			case !errors.Is(err, fs.ErrNotExist):
				return nil, fmt.Errorf("read prompt override %s: %w", name, err)
			}
		}
		if err := set.Add(name, string(src), required[name]...); err != nil {
			return nil, err
		}
	}
	return set, nil
}

// MustLoadDefault returns the bundled templates and panics if they do not parse.
func MustLoadDefault() *Set {
	set, err := Load("")
	if err != nil {
		panic(err)
	}
	return set
}

// Add parses src and registers it under name, replacing any previous template.
func (s *Set) Add(name, src string, requiredVars ...string) error {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(src)
	if err != nil {
		return fmt.Errorf("parse prompt %s: %w", name, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.templates == nil {
		s.templates = make(map[string]*Template)
	}
	s.templates[name] = &Template{Name: name, Required: requiredVars, tmpl: tmpl}
	return nil
}

// Get returns the template registered under name.
func (s *Set) Get(name string) (*Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[name]
	if !ok {
		return nil, fmt.Errorf("unknown prompt template %q", name)
	}
	return t, nil
}

// Render looks up name and renders it with vars.
func (s *Set) Render(name string, vars Vars) (string, error) {
	t, err := s.Get(name)
	if err != nil {
		return "", err
	}
	return t.Render(vars)
}

// Names lists the registered templates in sorted order.
func (s *Set) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.templates))
	for name := range s.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
