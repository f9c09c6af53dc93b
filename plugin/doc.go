// Package plugin provides the plugin registry and lifecycle coordinator
// for plugflow.
//
// It defines the Plugin capability interface, discovery sources that
// enumerate plugin candidates from the extension-point table and from a
// local plugin directory, a Registry of live instances keyed by unique
// name, a dependency orderer, and the Loader that drives loading,
// ordered initialization, health aggregation, and unloading.
//
// Usage:
//
//	loader := plugin.NewLoader(plugin.WithLogger(logger))
//	loader.InitApp(a)
//	loader.LoadAll()
//	defer loader.UnloadAll()
package plugin
