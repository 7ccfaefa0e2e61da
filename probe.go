package cssfeatures

import "sync"

// CapabilityProbe answers whether the host natively supports a CSS property
// with a given value. It is the only point where [Evaluate] touches the host.
//
// An error means the probe itself failed, not that the pair is unsupported.
type CapabilityProbe interface {
	Supports(property, value string) (bool, error)
}

// ProbeFunc adapts an ordinary function to [CapabilityProbe].
type ProbeFunc func(property, value string) (bool, error)

// Supports calls f(property, value).
func (f ProbeFunc) Supports(property, value string) (bool, error) {
	return f(property, value)
}

// NoSupport is the probe for hosts without a CSS capability query:
// nothing is supported.
var NoSupport CapabilityProbe = ProbeFunc(func(string, string) (bool, error) {
	return false, nil
})

// AllSupported is a probe for which every pair is supported.
var AllSupported CapabilityProbe = ProbeFunc(func(string, string) (bool, error) {
	return true, nil
})

// CountingProbe wraps a probe and records every call made through it.
type CountingProbe struct {
	Probe CapabilityProbe

	mu    sync.Mutex
	calls []Pair
}

// Supports records the call and delegates to the wrapped probe.
func (c *CountingProbe) Supports(property, value string) (bool, error) {
	c.mu.Lock()
	c.calls = append(c.calls, Pair{Property: property, Value: value})
	c.mu.Unlock()
	return c.Probe.Supports(property, value)
}

// Calls returns the probed pairs in call order.
func (c *CountingProbe) Calls() []Pair {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Pair, len(c.calls))
	copy(out, c.calls)
	return out
}

// Count returns the number of probe calls.
func (c *CountingProbe) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}
