package plugin

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/plugflow/app"
	"github.com/BaSui01/plugflow/internal/metrics"
)

// ExtensionKey is the app extension slot where the loader stores itself.
const ExtensionKey = "plugflow"

// Loader drives the plugin lifecycle: discovery, registration, ordered
// initialization, health aggregation, and unloading. Per-plugin failures
// are absorbed and logged; no error escapes a public Loader operation.
//
// The Loader assumes single-writer usage of LoadAll/Unload, consistent
// with application startup and shutdown timing.
type Loader struct {
	logger  *zap.Logger
	metrics *metrics.Collector

	extensionReg ExtensionRegistry
	extraSources []Source

	app      *app.App
	registry *Registry
	sources  []Source
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the loader's logger. Defaults to the app logger at
// InitApp time.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Loader) { l.logger = logger }
}

// WithMetrics attaches a metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(l *Loader) { l.metrics = c }
}

// WithExtensionRegistry substitutes the extension-point registry used by
// discovery. Defaults to the process-global table.
func WithExtensionRegistry(reg ExtensionRegistry) Option {
	return func(l *Loader) { l.extensionReg = reg }
}

// WithSource appends an extra discovery source.
func WithSource(s Source) Option {
	return func(l *Loader) {
		if s != nil {
			l.extraSources = append(l.extraSources, s)
		}
	}
}

// NewLoader creates a Loader. InitApp must be called before LoadAll.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// InitApp binds the loader to the shared application context. It stores
// the loader under the ExtensionKey extension slot, reads the disable-list
// and plugins directory from the app configuration, assembles the
// discovery sources, and registers a template-context processor injecting
// the active-plugin list and the aggregated menu items.
func (l *Loader) InitApp(a *app.App) {
	l.app = a

	if l.logger == nil {
		l.logger = a.Logger()
	}
	l.logger = l.logger.With(zap.String("component", "plugin_loader"))

	pcfg := a.Config().Plugins
	l.registry = NewRegistry(pcfg.Disabled, l.logger)

	l.sources = []Source{NewExtensionSource(l.extensionReg, l.logger)}
	if pcfg.Dir != "" {
		l.sources = append(l.sources, NewDirSource(pcfg.Dir, l.logger))
	}
	l.sources = append(l.sources, l.extraSources...)

	a.SetExtension(ExtensionKey, l)
	a.AddContextProcessor(func() map[string]any {
		return map[string]any{
			"plugins":    l.Active(),
			"menu_items": l.MenuItems(),
		}
	})
}

// LoadAll runs every discovery source into the registry, orders the
// result by dependencies, and initializes each plugin with the shared
// application context. Initialization failure of one plugin disables that
// plugin and never blocks the others; LoadAll always runs to completion.
func (l *Loader) LoadAll() {
	if l.app == nil {
		l.log().Error("LoadAll called before InitApp, nothing to do")
		return
	}

	l.logger.Info("loading plugins", zap.Int("sources", len(l.sources)))

	for _, src := range l.sources {
		candidates, err := src.Discover()
		if err != nil {
			l.logger.Warn("discovery source failed", zap.Error(err))
			continue
		}
		for _, cand := range candidates {
			l.register(cand)
		}
	}

	ordered := l.registry.SortByDependencies()
	for _, inst := range ordered {
		l.initPlugin(inst)
	}

	active := l.Active()
	l.metrics.SetActive(len(active))
	l.logger.Info("plugins loaded",
		zap.Int("registered", l.registry.Len()),
		zap.Int("active", len(active)))
}

// register applies the registration rules to one candidate. All skip
// conditions are absorbed here.
func (l *Loader) register(cand Candidate) {
	inst, err := l.registry.Register(cand.Factory, cand.Source)
	switch {
	case errors.Is(err, ErrPluginDisabled):
		l.logger.Info("plugin disabled by configuration, skipping",
			zap.String("source", cand.Source))
		l.metrics.RegistrationSkipped("disabled")
		return
	case errors.Is(err, ErrPluginDuplicate):
		l.logger.Warn("duplicate plugin name, keeping first registration",
			zap.String("source", cand.Source),
			zap.Error(err))
		l.metrics.RegistrationSkipped("duplicate")
		return
	case err != nil:
		l.logger.Error("failed to register plugin candidate",
			zap.String("source", cand.Source),
			zap.Error(err))
		l.metrics.RegistrationSkipped("construct")
		return
	}

	l.metrics.PluginRegistered(cand.Source)

	// Manifest overrides first, then host configuration on top.
	if len(cand.Config) > 0 {
		if cfgErr := inst.Configure(cand.Config); cfgErr != nil {
			l.logger.Warn("plugin rejected manifest configuration",
				zap.String("name", inst.Name()),
				zap.Error(cfgErr))
		}
	}
	if overrides := l.app.Config().Plugins.PluginConfig(inst.Name()); len(overrides) > 0 {
		if cfgErr := inst.Configure(overrides); cfgErr != nil {
			l.logger.Warn("plugin rejected host configuration",
				zap.String("name", inst.Name()),
				zap.Error(cfgErr))
		}
	}
}

// initPlugin assigns the app context and runs InitApp, disabling the
// plugin on failure.
func (l *Loader) initPlugin(inst *Instance) {
	inst.setApp(l.app)

	err := capture(func() error { return inst.plugin.InitApp(l.app) })
	if err != nil {
		l.logger.Error("plugin initialization failed",
			zap.String("name", inst.Name()),
			zap.String("source", inst.Source()),
			zap.Error(err))
		inst.setEnabled(false)
		l.metrics.InitFailed()
		return
	}

	l.logger.Info("plugin initialized",
		zap.String("name", inst.Name()),
		zap.String("version", inst.Descriptor().Version))
}

// Healthcheck invokes every registered plugin's health hook, regardless
// of the enabled flag. A hook error or panic is converted into an
// error-status entry carrying the message; Healthcheck never fails.
func (l *Loader) Healthcheck() map[string]HealthStatus {
	results := make(map[string]HealthStatus)
	if l.registry == nil {
		return results
	}

	for _, inst := range l.registry.Instances() {
		name := inst.Name()
		status, err := healthcheck(inst.plugin)
		if err != nil {
			status = HealthStatus{
				Status:  HealthError,
				Plugin:  name,
				Message: err.Error(),
			}
		} else if status.Plugin == "" {
			status.Plugin = name
		}
		results[name] = status
		l.metrics.SetHealth(name, status.Status == HealthOK)
	}
	return results
}

// healthcheck runs the hook, converting a panic into an error.
func healthcheck(p Plugin) (status HealthStatus, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("hook panic: %v", rec)
		}
	}()
	return p.Healthcheck()
}

// Unload removes the named plugin from the registry after invoking its
// OnUnload hook. It reports false for an unknown name and, when the hook
// fails, leaves the plugin registered exactly as before the attempt.
// Unload is one-shot: a second call for the same name reports false.
func (l *Loader) Unload(name string) bool {
	if l.registry == nil {
		return false
	}

	inst, ok := l.registry.Get(name)
	if !ok {
		l.log().Warn("unload requested for unknown plugin", zap.String("name", name))
		l.metrics.Unloaded(false)
		return false
	}

	if err := capture(inst.plugin.OnUnload); err != nil {
		l.log().Error("plugin unload failed, keeping plugin registered",
			zap.String("name", name),
			zap.Error(err))
		l.metrics.Unloaded(false)
		return false
	}

	inst.setEnabled(false)
	l.registry.Remove(name)
	l.metrics.Unloaded(true)
	l.metrics.ForgetPlugin(name)
	l.metrics.SetActive(len(l.Active()))
	l.log().Info("plugin unloaded", zap.String("name", name))
	return true
}

// UnloadAll unloads every registered plugin in reverse dependency order.
func (l *Loader) UnloadAll() {
	if l.registry == nil {
		return
	}
	ordered := l.registry.SortByDependencies()
	for i := len(ordered) - 1; i >= 0; i-- {
		l.Unload(ordered[i].Name())
	}
}

// Get returns the instance registered under name.
func (l *Loader) Get(name string) (*Instance, bool) {
	if l.registry == nil {
		return nil, false
	}
	return l.registry.Get(name)
}

// Active returns all enabled instances in registration order.
func (l *Loader) Active() []*Instance {
	if l.registry == nil {
		return nil
	}
	var active []*Instance
	for _, inst := range l.registry.Instances() {
		if inst.Enabled() {
			active = append(active, inst)
		}
	}
	return active
}

// MenuItems concatenates the menu contributions of every active plugin,
// in active-plugin order, without deduplication.
func (l *Loader) MenuItems() []MenuItem {
	var items []MenuItem
	for _, inst := range l.Active() {
		items = append(items, inst.plugin.MenuItems()...)
	}
	return items
}

// AdminViews concatenates the admin view contributions of every active
// plugin, in active-plugin order.
func (l *Loader) AdminViews() []AdminView {
	var views []AdminView
	for _, inst := range l.Active() {
		views = append(views, inst.plugin.AdminViews()...)
	}
	return views
}

// CLICommands concatenates the CLI command contributions of every active
// plugin, in active-plugin order.
func (l *Loader) CLICommands() []CLICommand {
	var cmds []CLICommand
	for _, inst := range l.Active() {
		cmds = append(cmds, inst.plugin.CLICommands()...)
	}
	return cmds
}

// Registry exposes the underlying registry.
func (l *Loader) Registry() *Registry {
	return l.registry
}

// log returns a usable logger even before InitApp ran.
func (l *Loader) log() *zap.Logger {
	if l.logger == nil {
		l.logger = zap.NewNop()
	}
	return l.logger
}
