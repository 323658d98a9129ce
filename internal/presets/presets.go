package presets

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"ephemcp/internal/api"
	"ephemcp/pkg/logging"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// Source tells where a preset was loaded from.
type Source string

const (
	SourceBuiltin Source = "builtin"
	SourceUser    Source = "user"
)

// Preset is a named server spec.
type Preset struct {
	Name        string         `yaml:"name" json:"name"`
	Description string         `yaml:"description,omitempty" json:"description,omitempty"`
	RequiredEnv []string       `yaml:"requiredEnv,omitempty" json:"requiredEnv,omitempty"`
	Spec        api.ServerSpec `yaml:"spec" json:"spec"`
	Source      Source         `yaml:"-" json:"source"`
	Path        string         `yaml:"-" json:"path,omitempty"`
}

// Apply returns the preset's spec with env merged over the preset's own
// environment. Missing required variables are an InvalidSpec error.
func (p Preset) Apply(env map[string]string) (api.ServerSpec, error) {
	spec := p.Spec
	merged := make(map[string]string, len(p.Spec.Env)+len(env))
	for k, v := range p.Spec.Env {
		merged[k] = v
	}
	for k, v := range env {
		merged[k] = v
	}
	var missing []string
	for _, key := range p.RequiredEnv {
		if strings.TrimSpace(merged[key]) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return api.ServerSpec{}, api.NewInvalidSpecError("preset %s requires env %s", p.Name, strings.Join(missing, ", "))
	}
	if len(merged) > 0 {
		spec.Env = merged
	}
	if p.Spec.Runtime != nil {
		rt := *p.Spec.Runtime
		spec.Runtime = &rt
	}
	return spec, nil
}

// Catalog holds the built-in and user presets.
type Catalog struct {
	dir string

	mu      sync.RWMutex
	presets map[string]Preset
}

// NewCatalog loads the built-in presets and, when dir is set, the YAML files
// in dir.
func NewCatalog(dir string) (*Catalog, error) {
	c := &Catalog{dir: dir}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Dir returns the user preset directory, if any.
func (c *Catalog) Dir() string {
	return c.dir
}

// Reload rereads all presets. On error the previous set stays in place.
func (c *Catalog) Reload() error {
	presets, err := loadFS(builtinFS, "builtin", SourceBuiltin)
	if err != nil {
		return fmt.Errorf("failed to load built-in presets: %w", err)
	}

	if c.dir != "" {
		user, err := loadDir(c.dir)
		if err != nil {
			return err
		}
		for name, p := range user {
			if _, exists := presets[name]; exists {
				logging.Debug("Presets", "User preset %s overrides built-in preset", name)
			}
			presets[name] = p
		}
	}

	c.mu.Lock()
	c.presets = presets
	c.mu.Unlock()
	logging.Debug("Presets", "Loaded %d presets", len(presets))
	return nil
}

// Get returns the preset called name.
func (c *Catalog) Get(name string) (Preset, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.presets[name]
	if !ok {
		return Preset{}, api.NewNotFoundError("preset", name)
	}
	return p, nil
}

// List returns all presets sorted by name.
func (c *Catalog) List() []Preset {
	c.mu.RLock()
	out := make([]Preset, 0, len(c.presets))
	for _, p := range c.presets {
		out = append(out, p)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func loadFS(fsys fs.FS, root string, source Source) (map[string]Preset, error) {
	presets := make(map[string]Preset)
	err := fs.WalkDir(fsys, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isYAMLFile(path) {
			return nil
		}
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return err
		}
		p, err := parse(data, path)
		if err != nil {
			return err
		}
		p.Source = source
		if _, dup := presets[p.Name]; dup {
			return fmt.Errorf("duplicate preset %q in %s", p.Name, path)
		}
		presets[p.Name] = p
		return nil
	})
	return presets, err
}

func loadDir(dir string) (map[string]Preset, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		logging.Debug("Presets", "Preset directory %s does not exist, skipping", dir)
		return map[string]Preset{}, nil
	}
	presets, err := loadFS(os.DirFS(dir), ".", SourceUser)
	if err != nil {
		return nil, fmt.Errorf("failed to load presets from %s: %w", dir, err)
	}
	for name, p := range presets {
		p.Path = filepath.Join(dir, p.Path)
		presets[name] = p
	}
	return presets, nil
}

func parse(data []byte, path string) (Preset, error) {
	var p Preset
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return Preset{}, fmt.Errorf("invalid preset %s: %w", path, err)
	}
	if p.Name == "" {
		p.Name = strings.TrimSuffix(strings.TrimSuffix(filepath.Base(path), ".yaml"), ".yml")
	}
	if p.Spec.Image == "" && p.Spec.Runtime == nil {
		return Preset{}, fmt.Errorf("invalid preset %s: spec needs an image or a runtime", path)
	}
	p.Path = path
	return p, nil
}

func isYAMLFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
