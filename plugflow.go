// Package plugflow provides a top-level convenience entry point for
// hosting plugins with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/plugflow"
//
//	loader := plugflow.New(cfg, logger)
//	defer loader.UnloadAll()
//
//	health := loader.Healthcheck()
//
// This is a thin wrapper around [app.New] and [plugin.NewLoader]; use
// those packages directly when you need finer control over wiring.
package plugflow

import (
	"go.uber.org/zap"

	"github.com/BaSui01/plugflow/app"
	"github.com/BaSui01/plugflow/config"
	"github.com/BaSui01/plugflow/plugin"
)

// Option configures the loader created by [New].
type Option = plugin.Option

// New creates an application context, binds a plugin loader to it, and
// loads every discovered plugin. A nil cfg gets defaults and a nil
// logger is replaced with a no-op logger.
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) *plugin.Loader {
	a := app.New(cfg, logger)
	l := plugin.NewLoader(opts...)
	l.InitApp(a)
	l.LoadAll()
	return l
}

// Re-export the registration hooks and loader options so simple hosts
// and plugins never need to import plugin/ directly.

// RegisterFactory publishes a named plugin constructor for
// manifest-based discovery.
var RegisterFactory = plugin.RegisterFactory

// RegisterExtension publishes a plugin constructor on the process-global
// extension table.
var RegisterExtension = plugin.RegisterExtension

// WithLogger sets the loader's logger.
var WithLogger = plugin.WithLogger

// WithMetrics attaches a metrics collector to the loader.
var WithMetrics = plugin.WithMetrics

// WithSource appends an extra discovery source.
var WithSource = plugin.WithSource

// WithExtensionRegistry substitutes the extension-point registry used
// by discovery.
var WithExtensionRegistry = plugin.WithExtensionRegistry
