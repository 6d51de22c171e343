package testutil

import (
	"fmt"
	"net"
	"sync"
)

// PortAllocator hands out distinct local TCP ports.
//
// Tests create one and pass it to whatever needs addresses; there is no
// package-level counter, so parallel tests never share allocator state.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type PortAllocator struct {
	mu   sync.Mutex
	next int
	max  int
}

// NewPortAllocator allocates ports from [base, base+count).
func NewPortAllocator(base, count int) *PortAllocator {
	return &PortAllocator{next: base, max: base + count}
}

// Next returns the next port in range that can currently be bound.
func (a *PortAllocator) Next() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for a.next < a.max {
		port := a.next
		a.next++
		l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err != nil {
			continue
		}
		l.Close()
		return port, nil
	}
	return 0, fmt.Errorf("port allocator exhausted at %d", a.max)
}

// Addr returns "127.0.0.1:<port>" for the next free port.
func (a *PortAllocator) Addr() (string, error) {
	port, err := a.Next()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("127.0.0.1:%d", port), nil
}
