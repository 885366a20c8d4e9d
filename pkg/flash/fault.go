package flash

import (
	"context"
	"fmt"
	"sync"
)

// FaultDevice wraps a Device and cuts power after a fixed number of erase or
// program operations. Once tripped, every further mutation is dropped, which
// leaves the underlying medium exactly as a power loss at that step would.
type FaultDevice struct {
	Device

	mu      sync.Mutex
	budget  int
	torn    bool
	issued  int
	tripped bool
}

// NewFaultDevice allows budget mutating operations before the power fails.
// A negative budget never trips. With torn set, the program that trips the
// device lands a word-aligned prefix of its data first.
func NewFaultDevice(dev Device, budget int, torn bool) *FaultDevice {
	return &FaultDevice{Device: dev, budget: budget, torn: torn}
}

// Issued returns how many operations were passed through to the device.
func (f *FaultDevice) Issued() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.issued
}

// Tripped reports whether the simulated power loss has happened.
func (f *FaultDevice) Tripped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tripped
}

// admit consumes one unit of budget, returning false once power is gone
func (f *FaultDevice) admit() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.tripped {
		return false
	}
	if f.budget >= 0 && f.issued >= f.budget {
		f.tripped = true
		return false
	}
	f.issued++
	return true
}

func (f *FaultDevice) Erase(page int) error {
	if !f.admit() {
		return fmt.Errorf("%w: erase of page %d dropped", ErrPowerLoss, page)
	}
	return f.Device.Erase(page)
}

func (f *FaultDevice) Program(addr uint32, data []byte) error {
	if f.admit() {
		return f.Device.Program(addr, data)
	}

	f.mu.Lock()
	tear := f.torn && len(data) > WordSize
	f.torn = false
	f.mu.Unlock()

	if tear {
		prefix := (len(data) / 2) &^ (WordSize - 1)
		if err := f.Device.Program(addr, data[:prefix]); err == nil {
			f.Device.Wait(context.Background())
		}
	}
	return fmt.Errorf("%w: program of %d bytes at 0x%X dropped", ErrPowerLoss, len(data), addr)
}
