package memory

import "sync/atomic"

// Switch is the process-wide on/off flag for memory operations exposed to
// providers. It can be flipped while engines stay open.
type Switch struct {
	enabled atomic.Bool
}

// NewSwitch creates a switch in the given state
func NewSwitch(enabled bool) *Switch {
	s := &Switch{}
	s.enabled.Store(enabled)
	return s
}

// Enabled reports the current state. A nil switch is always on.
func (s *Switch) Enabled() bool {
	if s == nil {
		return true
	}
	return s.enabled.Load()
}

// Set changes the state and reports whether it changed
func (s *Switch) Set(enabled bool) bool {
	return s.enabled.Swap(enabled) != enabled
}
