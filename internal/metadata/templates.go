package metadata

import (
	"embed"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/spaceterm/muxd/internal/muxerr"
)

//go:embed builtin_templates.yaml
var builtinTemplatesYAML embed.FS

// TemplateStore persists named session blueprints, one JSON file per
// template under <data_dir>/templates/, plus a small set of built-ins
// bootstrapped from a YAML file at construction time.
type TemplateStore struct {
	dir string
	mu  sync.Mutex
}

func NewTemplateStore(dataDir string) (*TemplateStore, error) {
	ts := &TemplateStore{dir: filepath.Join(dataDir, "templates")}
	if err := os.MkdirAll(ts.dir, 0o755); err != nil {
		return nil, muxerr.NewPersistenceError("create templates dir", err)
	}
	if err := ts.bootstrapBuiltins(); err != nil {
		return nil, err
	}
	return ts, nil
}

func (ts *TemplateStore) bootstrapBuiltins() error {
	data, err := builtinTemplatesYAML.ReadFile("builtin_templates.yaml")
	if err != nil {
		return muxerr.NewPersistenceError("read builtin templates", err)
	}

	var raw struct {
		Templates []Template `yaml:"templates"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return muxerr.NewPersistenceError("parse builtin templates yaml", err)
	}

	for _, t := range raw.Templates {
		t.Builtin = true
		if t.CreatedAt.IsZero() {
			t.CreatedAt = time.Unix(0, 0).UTC()
		}
		// Only seed if absent so an operator's edits survive restarts.
		if _, err := ts.Get(t.Name); err != nil {
			if writeErr := ts.write(t); writeErr != nil {
				return writeErr
			}
		}
	}
	return nil
}

func (ts *TemplateStore) pathFor(name string) string {
	return filepath.Join(ts.dir, sanitizeName(name)+".json")
}

func sanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' {
			return '_'
		}
		return r
	}, name)
}

func (ts *TemplateStore) write(t Template) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return muxerr.NewPersistenceError("marshal template", err)
	}
	path := ts.pathFor(t.Name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return muxerr.NewPersistenceError("write template tmp file", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return muxerr.NewPersistenceError("rename template file", err)
	}
	return nil
}

// CreateFromSession stores a new template with the given pane blueprints,
// as produced by the caller from a live session's panes.
func (ts *TemplateStore) CreateFromSession(name, description string, panes []PaneTemplate) (Template, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	t := Template{
		Name:        name,
		Description: description,
		Panes:       panes,
		CreatedAt:   time.Now(),
	}
	if err := ts.write(t); err != nil {
		return Template{}, err
	}
	return t, nil
}

// Get reads a template by name and, like List, does NOT bump usage
// statistics — only MarkUsed does, which template.instantiate calls:
// templates are read freely, usage tracks actual construction.
func (ts *TemplateStore) Get(name string) (Template, error) {
	data, err := os.ReadFile(ts.pathFor(name))
	if err != nil {
		if os.IsNotExist(err) {
			return Template{}, muxerr.NewNotFound("template", name)
		}
		return Template{}, muxerr.NewPersistenceError("read template", err)
	}
	var t Template
	if err := json.Unmarshal(data, &t); err != nil {
		return Template{}, muxerr.NewPersistenceError("malformed template: "+name, err)
	}
	return t, nil
}

// MarkUsed bumps use_count/last_used, called when a session is actually
// instantiated from this template.
func (ts *TemplateStore) MarkUsed(name string) error {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	t, err := ts.Get(name)
	if err != nil {
		return err
	}
	t.UseCount++
	now := time.Now()
	t.LastUsed = &now
	return ts.write(t)
}

// List returns every stored template.
func (ts *TemplateStore) List() ([]Template, error) {
	entries, err := os.ReadDir(ts.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, muxerr.NewPersistenceError("list templates dir", err)
	}
	var out []Template
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".json" {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".json")
		t, err := ts.Get(name)
		if err != nil {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}
