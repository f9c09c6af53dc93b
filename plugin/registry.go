package plugin

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Sentinel errors for the plugin registry.
var (
	ErrPluginNameEmpty = errors.New("plugin name must not be empty")
	ErrPluginDisabled  = errors.New("plugin disabled by configuration")
	ErrPluginDuplicate = errors.New("plugin already registered")
	ErrPluginNotFound  = errors.New("plugin not found")
)

// Registry holds the set of currently-loaded plugin instances keyed by
// unique name. Registration enforces the disable-list and duplicate
// rejection; the first successful registration for a name wins.
//
// The registry assumes single-writer usage around registration and
// removal, consistent with application startup/shutdown timing; the
// mutex protects concurrent readers during request handling.
type Registry struct {
	mu       sync.RWMutex
	plugins  map[string]*Instance
	order    []string
	disabled map[string]struct{}
	logger   *zap.Logger
}

// NewRegistry creates a registry with the given disable-list.
func NewRegistry(disabled []string, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	set := make(map[string]struct{}, len(disabled))
	for _, name := range disabled {
		set[name] = struct{}{}
	}
	return &Registry{
		plugins:  make(map[string]*Instance),
		disabled: set,
		logger:   logger.With(zap.String("component", "plugin_registry")),
	}
}

// Register instantiates a candidate via its factory and registers the
// result under its descriptor name. On success the plugin's OnLoad hook
// has already run. Skips are reported through sentinel errors
// (ErrPluginDisabled, ErrPluginDuplicate, ErrPluginNameEmpty); any error
// leaves the registry unchanged.
func (r *Registry) Register(factory Factory, source string) (*Instance, error) {
	if factory == nil {
		return nil, fmt.Errorf("plugin factory must not be nil")
	}

	p, err := construct(factory)
	if err != nil {
		return nil, fmt.Errorf("construct plugin from %s: %w", source, err)
	}

	desc := p.Descriptor()
	if desc.Name == "" {
		return nil, fmt.Errorf("%w: source %s", ErrPluginNameEmpty, source)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, off := r.disabled[desc.Name]; off {
		return nil, fmt.Errorf("%w: %s", ErrPluginDisabled, desc.Name)
	}
	if _, exists := r.plugins[desc.Name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrPluginDuplicate, desc.Name)
	}

	if err := capture(p.OnLoad); err != nil {
		return nil, fmt.Errorf("plugin %s OnLoad: %w", desc.Name, err)
	}

	inst := &Instance{
		plugin:  p,
		desc:    desc,
		id:      uuid.NewString(),
		source:  source,
		enabled: true,
		config:  copyConfig(desc.DefaultConfig),
	}
	r.plugins[desc.Name] = inst
	r.order = append(r.order, desc.Name)

	r.logger.Info("plugin registered",
		zap.String("name", desc.Name),
		zap.String("version", desc.Version),
		zap.String("source", source),
		zap.String("instance_id", inst.id))
	return inst, nil
}

// Get returns the instance registered under name.
func (r *Registry) Get(name string) (*Instance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.plugins[name]
	return inst, ok
}

// Remove deletes the instance registered under name. It does not invoke
// any lifecycle hook; the Loader drives OnUnload before removal.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.plugins[name]; !ok {
		return false
	}
	delete(r.plugins, name)
	for idx, n := range r.order {
		if n == name {
			r.order = append(r.order[:idx], r.order[idx+1:]...)
			break
		}
	}
	return true
}

// Instances returns all registered instances in registration order.
func (r *Registry) Instances() []*Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Instance, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.plugins[name])
	}
	return result
}

// Names returns all registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]string, len(r.order))
	copy(result, r.order)
	return result
}

// Len returns the number of registered plugins.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// construct runs the factory, converting a panic into an error.
func construct(factory Factory) (p Plugin, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("factory panic: %v", rec)
		}
	}()
	p, err = factory()
	if err == nil && p == nil {
		err = fmt.Errorf("factory returned nil plugin")
	}
	return p, err
}

// capture runs a hook, converting a panic into an error.
func capture(hook func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("hook panic: %v", rec)
		}
	}()
	return hook()
}

func copyConfig(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
