package plugin

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Namespace is the fixed extension-point namespace under which plugin
// declarations for plugflow are registered.
const Namespace = "plugflow.plugins"

// Factory constructs a plugin instance. Factories replace runtime class
// loading: compiled-in plugins export their constructor through
// RegisterFactory or RegisterExtension, typically from an init function.
type Factory func() (Plugin, error)

// Candidate is a discovered plugin candidate: the constructor, the origin
// label, and optional configuration overrides to apply once registered.
type Candidate struct {
	Factory Factory
	Source  string
	Config  map[string]any
}

// Source enumerates plugin candidates. Discovery never fails as a whole:
// per-candidate problems are logged and skipped inside the source, and a
// returned error only signals that this source produced nothing.
type Source interface {
	Discover() ([]Candidate, error)
}

// --- factory table ---

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// RegisterFactory makes a plugin constructor available to the directory
// source under the given name. It panics if the factory is nil or the
// name is already taken, mirroring database/sql driver registration.
func RegisterFactory(name string, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	if factory == nil {
		panic("plugin: RegisterFactory factory is nil")
	}
	if _, dup := factories[name]; dup {
		panic("plugin: RegisterFactory called twice for factory " + name)
	}
	factories[name] = factory
}

// LookupFactory returns the factory registered under name.
func LookupFactory(name string) (Factory, bool) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	f, ok := factories[name]
	return f, ok
}

// Factories returns the names of all registered factories, sorted.
func Factories() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// --- extension points ---

// ExtensionDecl is a single declared extension: a name bound to a
// loadable plugin constructor.
type ExtensionDecl struct {
	Name    string
	Factory Factory
}

// ExtensionRegistry enumerates declared extensions for a namespace. The
// host environment provides the real implementation; tests substitute
// their own.
type ExtensionRegistry interface {
	Extensions(namespace string) ([]ExtensionDecl, error)
}

// extensionTable is the process-global default ExtensionRegistry,
// populated by RegisterExtension calls at init time.
type extensionTable struct {
	mu    sync.RWMutex
	decls map[string][]ExtensionDecl
}

var defaultExtensions = &extensionTable{decls: make(map[string][]ExtensionDecl)}

// RegisterExtension declares an extension in the process-global registry.
// Compiled-in plugins call this from init to make themselves discoverable
// through the extension-point source.
func RegisterExtension(namespace, name string, factory Factory) {
	defaultExtensions.mu.Lock()
	defer defaultExtensions.mu.Unlock()
	defaultExtensions.decls[namespace] = append(defaultExtensions.decls[namespace], ExtensionDecl{
		Name:    name,
		Factory: factory,
	})
}

func (t *extensionTable) Extensions(namespace string) ([]ExtensionDecl, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	decls := t.decls[namespace]
	out := make([]ExtensionDecl, len(decls))
	copy(out, decls)
	return out, nil
}

// DefaultExtensions returns the process-global extension registry.
func DefaultExtensions() ExtensionRegistry {
	return defaultExtensions
}

// ExtensionSource discovers plugins declared in an ExtensionRegistry
// under a fixed namespace, labeling candidates entry:<declared-name>.
type ExtensionSource struct {
	registry  ExtensionRegistry
	namespace string
	logger    *zap.Logger
}

// NewExtensionSource creates an extension-point source. A nil registry
// falls back to the process-global table.
func NewExtensionSource(registry ExtensionRegistry, logger *zap.Logger) *ExtensionSource {
	if registry == nil {
		registry = DefaultExtensions()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExtensionSource{
		registry:  registry,
		namespace: Namespace,
		logger:    logger.With(zap.String("component", "extension_source")),
	}
}

// Discover enumerates the namespace's declarations. An unavailable
// registry degrades to empty with a warning; a broken declaration is
// logged and skipped without aborting the rest.
func (s *ExtensionSource) Discover() ([]Candidate, error) {
	decls, err := s.registry.Extensions(s.namespace)
	if err != nil {
		s.logger.Warn("extension registry unavailable",
			zap.String("namespace", s.namespace),
			zap.Error(err))
		return nil, nil
	}

	candidates := make([]Candidate, 0, len(decls))
	for _, decl := range decls {
		if decl.Factory == nil {
			s.logger.Error("extension declaration has no factory",
				zap.String("name", decl.Name))
			continue
		}
		candidates = append(candidates, Candidate{
			Factory: decl.Factory,
			Source:  "entry:" + decl.Name,
		})
	}
	return candidates, nil
}

// DirSource discovers plugins from a local directory, one immediate
// subdirectory per plugin, labeling candidates local:<directory-name>.
type DirSource struct {
	root   string
	logger *zap.Logger
}

// NewDirSource creates a directory source rooted at root.
func NewDirSource(root string, logger *zap.Logger) *DirSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirSource{
		root:   root,
		logger: logger.With(zap.String("component", "dir_source")),
	}
}

// Discover scans the root for plugin folders. Subdirectories whose names
// start with an underscore or dot are skipped, as are folders without a
// manifest. A failure in one folder never aborts the others; an unset or
// missing root yields nothing.
func (s *DirSource) Discover() ([]Candidate, error) {
	if s.root == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		s.logger.Warn("cannot read plugins directory",
			zap.String("dir", s.root),
			zap.Error(err))
		return nil, nil
	}

	var candidates []Candidate
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") {
			continue
		}

		cand, err := s.loadDir(name)
		if err != nil {
			s.logger.Error("failed to load plugin directory",
				zap.String("dir", name),
				zap.Error(err))
			continue
		}
		if cand == nil {
			// No manifest: not a plugin folder.
			continue
		}
		candidates = append(candidates, *cand)
	}
	return candidates, nil
}

// loadDir resolves one plugin folder to a candidate, or nil when the
// folder carries no manifest.
func (s *DirSource) loadDir(dir string) (*Candidate, error) {
	var manifestPath string
	for _, name := range manifestNames {
		path := filepath.Join(s.root, dir, name)
		if _, err := os.Stat(path); err == nil {
			manifestPath = path
			break
		}
	}
	if manifestPath == "" {
		return nil, nil
	}

	m, err := LoadManifest(manifestPath)
	if err != nil {
		return nil, err
	}

	factory, ok := LookupFactory(m.Factory)
	if !ok {
		return nil, fmt.Errorf("manifest %s: no factory registered as %q", manifestPath, m.Factory)
	}

	return &Candidate{
		Factory: factory,
		Source:  "local:" + dir,
		Config:  m.Config,
	}, nil
}
