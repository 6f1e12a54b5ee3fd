package backend

import "github.com/necessist/necessist/internal/model"

// DetectOrder fixes the priority used when --framework auto is given and
// more than one backend's Applicable(root) returns true: most
// manifest-specific frameworks are probed first (grounded in
// original_source/'s framework-detection order; see SPEC_FULL §3).
var DetectOrder = []model.Framework{
	model.FrameworkRust,
	model.FrameworkGo,
	model.FrameworkFoundry,
	model.FrameworkHardhat,
	model.FrameworkAnchor,
	model.FrameworkVitest,
}

// Registry maps framework names to their Backend implementation.
type Registry struct {
	backends map[model.Framework]Backend
}

// NewRegistry builds a Registry from the given backends, keyed by Name().
func NewRegistry(backends ...Backend) *Registry {
	r := &Registry{backends: make(map[model.Framework]Backend, len(backends))}

	for _, b := range backends {
		r.backends[b.Name()] = b
	}

	return r
}

// Get looks up a backend by explicit framework name.
func (r *Registry) Get(name model.Framework) (Backend, bool) {
	b, ok := r.backends[name]
	return b, ok
}

// Detect runs Applicable in DetectOrder and returns the first match, or
// false if no registered backend claims root.
func (r *Registry) Detect(root string) (Backend, bool) {
	for _, name := range DetectOrder {
		b, ok := r.backends[name]
		if !ok {
			continue
		}

		if b.Applicable(root) {
			return b, true
		}
	}

	return nil, false
}
