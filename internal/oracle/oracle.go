package oracle

import (
	"sync"
	"time"
)

// Oracle supplies the current time as a signed count of seconds.
type Oracle interface {
	Now() int64
}

// Func adapts a plain function to the Oracle interface.
type Func func() int64

// Now calls f.
func (f Func) Now() int64 {
	return f()
}

// System reads the wall clock in Unix seconds.
type System struct{}

// Now returns the current Unix time.
func (System) Now() int64 {
	return time.Now().Unix()
}

// Fixed always returns the same instant.
type Fixed int64

// Now returns the fixed value.
func (f Fixed) Now() int64 {
	return int64(f)
}

// Monotonic wraps an oracle so that it never goes backwards.
type Monotonic struct {
	src  Oracle
	mu   sync.Mutex
	last int64
	seen bool
}

// NewMonotonic wraps src.
func NewMonotonic(src Oracle) *Monotonic {
	return &Monotonic{src: src}
}

// Now returns the source time, or the highest value already returned if the
// source moved backwards.
func (m *Monotonic) Now() int64 {
	t := m.src.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.seen && t < m.last {
		return m.last
	}

	m.last = t
	m.seen = true

	return t
}
