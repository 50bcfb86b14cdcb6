// Package templates resolves template names to images. Templates are
// declared in YAML manifests and decoded lazily, with an optional
// preload pass for suites that want the disk I/O up front.
package templates

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/canonical/yarf/internal/cv"
)

// Definition is one template declaration from a manifest.
type Definition struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
	// Tolerance overrides the session default for this template, in
	// percent. Zero means no override.
	Tolerance float64 `yaml:"tolerance,omitempty"`
	// Preload decodes the image during LoadManifest instead of on first
	// use.
	Preload bool `yaml:"preload,omitempty"`
}

type manifest struct {
	Templates []Definition `yaml:"templates"`
}

// Registry maps template names to their image files. Relative manifest
// paths resolve against the registry base path.
type Registry struct {
	mu       sync.RWMutex
	defs     map[string]Definition
	basePath string
	cache    *imageCache
}

// NewRegistry creates an empty registry rooted at basePath.
func NewRegistry(basePath string) *Registry {
	return &Registry{
		defs:     make(map[string]Definition),
		basePath: basePath,
		cache:    newImageCache(),
	}
}

// LoadManifest reads one YAML manifest and registers its templates.
func (r *Registry) LoadManifest(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read template manifest: %w", err)
	}
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("parse template manifest %s: %w", path, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i, def := range m.Templates {
		if def.Name == "" {
			return fmt.Errorf("%s: template %d has no name", path, i+1)
		}
		if def.Path == "" {
			return fmt.Errorf("%s: template %q has no path", path, def.Name)
		}
		if !filepath.IsAbs(def.Path) {
			def.Path = filepath.Join(r.basePath, def.Path)
		}
		r.defs[def.Name] = def
	}
	return nil
}

// LoadDirectory registers every .yaml and .yml manifest in a directory.
func (r *Registry) LoadDirectory(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read template directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch filepath.Ext(entry.Name()) {
		case ".yaml", ".yml":
		default:
			continue
		}
		if err := r.LoadManifest(filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

// Resolve turns a template reference into a loaded template. A registered
// name resolves through its definition; anything ending in .png is
// treated as a path, relative ones against the base path.
func (r *Registry) Resolve(ref string) (cv.Template, error) {
	r.mu.RLock()
	def, ok := r.defs[ref]
	r.mu.RUnlock()

	path := def.Path
	if !ok {
		if !strings.HasSuffix(ref, ".png") {
			return cv.Template{}, fmt.Errorf("unknown template %q", ref)
		}
		path = ref
		if !filepath.IsAbs(path) {
			path = filepath.Join(r.basePath, path)
		}
	}

	img, err := r.cache.get(path)
	if err != nil {
		return cv.Template{}, fmt.Errorf("template %q: %w", ref, err)
	}
	return cv.Template{Name: ref, Img: img}, nil
}

// Definition returns the manifest entry for a registered name.
func (r *Registry) Definition(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[name]
	return def, ok
}

// Has reports whether a name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Definition(name)
	return ok
}

// List returns all registered names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	return names
}

// Preload decodes every template marked for preloading.
func (r *Registry) Preload() error {
	r.mu.RLock()
	var paths []string
	for _, def := range r.defs {
		if def.Preload {
			paths = append(paths, def.Path)
		}
	}
	r.mu.RUnlock()

	for _, path := range paths {
		if _, err := r.cache.get(path); err != nil {
			return fmt.Errorf("preload %s: %w", path, err)
		}
	}
	return nil
}

// Unload drops all decoded images; definitions stay registered.
func (r *Registry) Unload() {
	r.cache.clear()
}

// CacheStats reports image cache effectiveness.
func (r *Registry) CacheStats() CacheStats {
	return r.cache.stats()
}
