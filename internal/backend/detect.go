package backend

import (
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/necessist/necessist/internal/model"
)

// DetectConcurrent probes every registered backend's Applicable(root)
// concurrently — cheap manifest/extension checks that only read the
// filesystem, safe to run in parallel since detection never mutates the
// tree (unlike a trial, which the scheduler always runs single-threaded,
// spec §5). It then resolves ties using the fixed DetectOrder priority,
// same as Detect.
func (r *Registry) DetectConcurrent(root string) (Backend, bool) {
	results := make(map[model.Framework]bool, len(r.backends))

	var (
		g  errgroup.Group
		mu sync.Mutex
	)

	for name, b := range r.backends {
		name, b := name, b

		g.Go(func() error {
			ok := b.Applicable(root)

			mu.Lock()
			results[name] = ok
			mu.Unlock()

			return nil
		})
	}

	_ = g.Wait()

	for _, name := range DetectOrder {
		if results[name] {
			return r.backends[name], true
		}
	}

	return nil, false
}
