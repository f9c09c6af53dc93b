package plugin

import (
	"net/http"
	"sync"

	"github.com/BaSui01/plugflow/app"
)

// Descriptor holds the immutable identity and metadata of a plugin.
type Descriptor struct {
	// Name is the unique key of the plugin across the registry.
	Name string `json:"name" yaml:"name"`
	// Version is informational.
	Version     string `json:"version" yaml:"version"`
	Description string `json:"description,omitempty" yaml:"description"`
	Author      string `json:"author,omitempty" yaml:"author"`
	// Dependencies names plugins that must initialize before this one.
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies"`
	// DefaultConfig seeds the instance configuration state.
	DefaultConfig map[string]any `json:"default_config,omitempty" yaml:"default_config"`
}

// MenuItem is a navigation entry contributed by a plugin.
type MenuItem struct {
	Label string `json:"label"`
	URL   string `json:"url"`
	Icon  string `json:"icon,omitempty"`
}

// AdminView is an administrative page contributed by a plugin.
type AdminView struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Handler http.HandlerFunc `json:"-"`
}

// CLICommand is a command-line command contributed by a plugin.
type CLICommand struct {
	Name  string
	Usage string
	Run   func(args []string) error
}

// Health status values.
const (
	HealthOK    = "ok"
	HealthError = "error"
)

// HealthStatus is the payload returned by a plugin's health hook.
type HealthStatus struct {
	Status  string         `json:"status"`
	Plugin  string         `json:"plugin"`
	Version string         `json:"version,omitempty"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Plugin is the capability interface every plugin implements.
//
// InitApp is the only required hook; embed Base to inherit safe no-op
// defaults for everything else.
type Plugin interface {
	// Descriptor returns the plugin identity and metadata.
	Descriptor() Descriptor

	// InitApp integrates the plugin with the shared application context.
	// Called once, during the ordered initialization pass.
	InitApp(a *app.App) error

	// OnLoad is called immediately after construction, before the
	// application context is known.
	OnLoad() error

	// OnUnload is called when the plugin is removed from the registry.
	OnUnload() error

	// Configure applies configuration values to the plugin.
	Configure(cfg map[string]any) error

	// MenuItems returns navigation entries contributed by the plugin.
	MenuItems() []MenuItem

	// AdminViews returns administrative pages contributed by the plugin.
	AdminViews() []AdminView

	// CLICommands returns CLI commands contributed by the plugin.
	CLICommands() []CLICommand

	// Healthcheck reports the plugin's health.
	Healthcheck() (HealthStatus, error)
}

// Base provides no-op defaults for every optional hook. Plugins embed it
// and implement InitApp plus whichever hooks they need.
type Base struct {
	// Desc is returned by Descriptor.
	Desc Descriptor
}

// Descriptor returns the embedded descriptor.
func (b *Base) Descriptor() Descriptor { return b.Desc }

// OnLoad is a no-op.
func (b *Base) OnLoad() error { return nil }

// OnUnload is a no-op.
func (b *Base) OnUnload() error { return nil }

// Configure is a no-op.
func (b *Base) Configure(cfg map[string]any) error { return nil }

// MenuItems returns no entries.
func (b *Base) MenuItems() []MenuItem { return nil }

// AdminViews returns no views.
func (b *Base) AdminViews() []AdminView { return nil }

// CLICommands returns no commands.
func (b *Base) CLICommands() []CLICommand { return nil }

// Healthcheck reports ok with the plugin identity.
func (b *Base) Healthcheck() (HealthStatus, error) {
	return HealthStatus{
		Status:  HealthOK,
		Plugin:  b.Desc.Name,
		Version: b.Desc.Version,
	}, nil
}

// Instance is a live, registry-owned plugin. It pairs the Plugin with its
// mutable lifecycle state: the enabled flag, the configuration state
// seeded from DefaultConfig, and the application context assigned during
// initialization.
type Instance struct {
	plugin Plugin
	desc   Descriptor
	id     string
	source string

	mu      sync.RWMutex
	enabled bool
	config  map[string]any
	app     *app.App
}

// Plugin returns the underlying plugin.
func (i *Instance) Plugin() Plugin { return i.plugin }

// Descriptor returns the descriptor captured at registration time.
func (i *Instance) Descriptor() Descriptor { return i.desc }

// Name returns the unique plugin name.
func (i *Instance) Name() string { return i.desc.Name }

// ID returns the per-load instance identifier used for log correlation.
func (i *Instance) ID() string { return i.id }

// Source returns the discovery origin label (entry:<name> or local:<dir>).
func (i *Instance) Source() string { return i.source }

// Enabled reports whether the plugin is active.
func (i *Instance) Enabled() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.enabled
}

func (i *Instance) setEnabled(v bool) {
	i.mu.Lock()
	i.enabled = v
	i.mu.Unlock()
}

// App returns the application context, nil before initialization.
func (i *Instance) App() *app.App {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.app
}

func (i *Instance) setApp(a *app.App) {
	i.mu.Lock()
	i.app = a
	i.mu.Unlock()
}

// Config returns a copy of the current configuration state.
func (i *Instance) Config() map[string]any {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make(map[string]any, len(i.config))
	for k, v := range i.config {
		out[k] = v
	}
	return out
}

// Configure merges overrides into the configuration state and invokes the
// plugin's Configure hook with a snapshot of the merged result.
func (i *Instance) Configure(overrides map[string]any) error {
	i.mu.Lock()
	if i.config == nil {
		i.config = make(map[string]any, len(overrides))
	}
	for k, v := range overrides {
		i.config[k] = v
	}
	snapshot := make(map[string]any, len(i.config))
	for k, v := range i.config {
		snapshot[k] = v
	}
	i.mu.Unlock()

	return i.plugin.Configure(snapshot)
}
