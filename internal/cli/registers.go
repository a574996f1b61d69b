package cli

import (
	"fmt"
	"sync"
)

// freeRegisters hands out general purpose registers x1..x31 in rotation,
// never x0. Within one instance every slot gets a distinct register as long
// as the body has at most 31 slots.
type freeRegisters struct {
	mu   sync.Mutex
	next int
}

func newFreeRegisters() *freeRegisters { return &freeRegisters{} }

func (f *freeRegisters) Allocate(string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	reg := fmt.Sprintf("x%d", f.next%31+1)
	f.next++
	return reg, nil
}
