package resilience

import "sync/atomic"

// Generation is a monotonically increasing tag used to detect and discard stale
// asynchronous results: capture Next() at dispatch, compare with Current()
// before applying. A newer dispatch always supersedes an older one.
type Generation struct {
	n atomic.Uint64
}

// Next advances the counter and returns the new generation.
func (g *Generation) Next() uint64 {
	return g.n.Add(1)
}

// Current returns the latest dispatched generation.
func (g *Generation) Current() uint64 {
	return g.n.Load()
}

// IsCurrent reports whether the captured generation is still the live one.
func (g *Generation) IsCurrent(gen uint64) bool {
	return g.n.Load() == gen
}
