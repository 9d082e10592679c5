package level

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	ijs "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// Manifest lists the levels of a pack.
type Manifest struct {
	Name   string  `yaml:"name" json:"name" jsonschema:"required,minLength=1"`
	Levels []Entry `yaml:"levels" json:"levels" jsonschema:"required,minItems=1"`

	dir string
}

// Entry is one level in a pack. Empty policy fields fall back to tuning.
type Entry struct {
	ID      string `yaml:"id" json:"id" jsonschema:"required,minLength=1"`
	File    string `yaml:"file" json:"file" jsonschema:"required,minLength=1"`
	Trigger string `yaml:"trigger,omitempty" json:"trigger,omitempty" jsonschema:"enum=input,enum=tick"`
	TickMs  int    `yaml:"tick_ms,omitempty" json:"tick_ms,omitempty" jsonschema:"minimum=1"`

	GoalAirForBoxes  *bool  `yaml:"goal_air_for_boxes,omitempty" json:"goal_air_for_boxes,omitempty"`
	GoalAirForActors *bool  `yaml:"goal_air_for_actors,omitempty" json:"goal_air_for_actors,omitempty"`
	PortalMode       string `yaml:"portal_mode,omitempty" json:"portal_mode,omitempty" jsonschema:"enum=floor,enum=walkin"`
	Traversal        string `yaml:"traversal,omitempty" json:"traversal,omitempty" jsonschema:"enum=layered,enum=column"`
}

const manifestSchemaURL = "mem://voxelpush/manifest.schema.json"

// ManifestSchema reflects the JSON schema of Manifest.
func ManifestSchema() *ijs.Schema {
	r := ijs.Reflector{
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
	}
	s := r.Reflect(new(Manifest))
	s.Title = "voxelpush level pack"
	s.Description = "Ordered list of level layouts and their per-level rule overrides."
	return s
}

var (
	manifestOnce     sync.Once
	compiledManifest *jsonschema.Schema
	manifestErr      error
)

func manifestValidator() (*jsonschema.Schema, error) {
	manifestOnce.Do(func() {
		compiledManifest, manifestErr = compileManifest()
	})
	return compiledManifest, manifestErr
}

func compileManifest() (*jsonschema.Schema, error) {
	raw, err := json.Marshal(ManifestSchema())
	if err != nil {
		return nil, fmt.Errorf("marshal manifest schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(manifestSchemaURL, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add manifest schema: %w", err)
	}
	s, err := c.Compile(manifestSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile manifest schema: %w", err)
	}
	return s, nil
}

// LoadManifest reads and validates a pack manifest. Level files are resolved
// relative to the manifest.
func LoadManifest(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := ParseManifest(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m.dir = filepath.Dir(path)
	return m, nil
}

func ParseManifest(raw []byte) (*Manifest, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("manifest yaml: %w", err)
	}
	// The validator wants JSON-shaped values.
	js, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("manifest to json: %w", err)
	}
	var inst any
	if err := json.Unmarshal(js, &inst); err != nil {
		return nil, err
	}
	v, err := manifestValidator()
	if err != nil {
		return nil, err
	}
	if err := v.Validate(inst); err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("manifest yaml: %w", err)
	}
	seen := map[string]bool{}
	for _, e := range m.Levels {
		if seen[e.ID] {
			return nil, fmt.Errorf("manifest: duplicate level id %q", e.ID)
		}
		seen[e.ID] = true
	}
	return &m, nil
}

func (m *Manifest) Entry(id string) (Entry, bool) {
	for _, e := range m.Levels {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// Next returns the level after id, if any.
func (m *Manifest) Next(id string) (Entry, bool) {
	for i, e := range m.Levels {
		if e.ID == id && i+1 < len(m.Levels) {
			return m.Levels[i+1], true
		}
	}
	return Entry{}, false
}

// Load parses the layout of entry e.
func (m *Manifest) Load(e Entry) (*Level, error) {
	f, err := os.Open(filepath.Join(m.dir, e.File))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(e.ID, f)
}
