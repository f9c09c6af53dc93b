package plugin

import "go.uber.org/zap"

// SortByDependencies returns every registered instance exactly once, in an
// order where each plugin appears after all of its dependencies that are
// themselves present in the registry. Dependencies on unregistered names
// are ignored.
//
// The walk is a depth-first post-order traversal seeded from each
// registered name in registration order. A dependency cycle cannot be
// honored; it is reported with a warning and broken at the back edge, so
// the traversal always terminates and still covers every plugin once.
func (r *Registry) SortByDependencies() []*Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Instance, 0, len(r.order))
	visited := make(map[string]struct{}, len(r.order))
	onStack := make(map[string]struct{})

	var visit func(name string)
	visit = func(name string) {
		if _, ok := visited[name]; ok {
			return
		}
		visited[name] = struct{}{}
		onStack[name] = struct{}{}

		inst := r.plugins[name]
		for _, dep := range inst.desc.Dependencies {
			if _, present := r.plugins[dep]; !present {
				continue
			}
			if _, active := onStack[dep]; active {
				r.logger.Warn("dependency cycle detected, breaking at back edge",
					zap.String("plugin", name),
					zap.String("dependency", dep))
				continue
			}
			visit(dep)
		}

		delete(onStack, name)
		result = append(result, inst)
	}

	for _, name := range r.order {
		visit(name)
	}

	return result
}
