// Package app provides the shared application context handed to every
// plugin during initialization.
//
// The App is owned by the host process. It exposes a string-keyed
// extension registry where subsystems (including the plugin loader itself)
// store their handles, a configuration view, and template-context
// processors that supply extra values before a page is rendered.
package app

import (
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/plugflow/config"
)

// ContextProcessor supplies extra template values before a page render.
type ContextProcessor func() map[string]any

// App is the shared application context.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	mu         sync.RWMutex
	extensions map[string]any
	processors []ContextProcessor
}

// New creates an application context. A nil config gets defaults and a
// nil logger is replaced with a no-op logger.
func New(cfg *config.Config, logger *zap.Logger) *App {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{
		cfg:        cfg,
		logger:     logger,
		extensions: make(map[string]any),
	}
}

// Config returns the application configuration.
func (a *App) Config() *config.Config {
	return a.cfg
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// SetExtension stores a subsystem handle under key. Later writes replace
// earlier ones.
func (a *App) SetExtension(key string, value any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.extensions[key] = value
}

// Extension returns the handle stored under key.
func (a *App) Extension(key string) (any, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	v, ok := a.extensions[key]
	return v, ok
}

// AddContextProcessor registers a template-context processor. Processors
// run in registration order; later processors override earlier keys.
func (a *App) AddContextProcessor(p ContextProcessor) {
	if p == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.processors = append(a.processors, p)
}

// TemplateContext merges the output of all registered processors.
func (a *App) TemplateContext() map[string]any {
	a.mu.RLock()
	processors := make([]ContextProcessor, len(a.processors))
	copy(processors, a.processors)
	a.mu.RUnlock()

	merged := make(map[string]any)
	for _, p := range processors {
		for k, v := range p() {
			merged[k] = v
		}
	}
	return merged
}
