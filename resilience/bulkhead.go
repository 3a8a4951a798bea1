package resilience

import "context"

// Bulkhead bounds concurrent work with a semaphore. The migration
// manager uses it to cap how many copy units are in flight at once.
type Bulkhead struct {
	sem chan struct{}
}

// NewBulkhead creates a bulkhead allowing maxConcurrent slots.
func NewBulkhead(maxConcurrent int) *Bulkhead {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Bulkhead{sem: make(chan struct{}, maxConcurrent)}
}

// Acquire blocks until a slot is free or ctx is done.
func (b *Bulkhead) Acquire(ctx context.Context) error {
	select {
	case b.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a previously acquired slot.
func (b *Bulkhead) Release() {
	<-b.sem
}

// Execute runs fn within an acquired slot.
func (b *Bulkhead) Execute(ctx context.Context, fn func() error) error {
	if err := b.Acquire(ctx); err != nil {
		return err
	}
	defer b.Release()
	return fn()
}

// InFlight returns the number of currently held slots.
func (b *Bulkhead) InFlight() int {
	return len(b.sem)
}
