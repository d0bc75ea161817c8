package usecase

import "context"

// AdmissionGate is a counting gate of fixed capacity bounding how many
// synthesis runs execute at once. Acquire blocks until a slot frees or the
// context is done; Release must be called exactly once per successful
// Acquire. Wake order under contention is whatever the runtime gives
// channel receivers, which is close enough to FIFO for this workload.
type AdmissionGate struct {
	slots chan struct{}
}

func NewAdmissionGate(capacity int) *AdmissionGate {
	if capacity <= 0 {
		capacity = 1
	}
	return &AdmissionGate{slots: make(chan struct{}, capacity)}
}

func (g *AdmissionGate) Acquire(ctx context.Context) error {
	select {
	case g.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire grabs a slot without blocking.
func (g *AdmissionGate) TryAcquire() bool {
	select {
	case g.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

func (g *AdmissionGate) Release() {
	<-g.slots
}

func (g *AdmissionGate) Capacity() int { return cap(g.slots) }

// InFlight reports how many slots are currently held.
func (g *AdmissionGate) InFlight() int { return len(g.slots) }
