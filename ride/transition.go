package ride

import (
	"context"
	"fmt"
)

// CompletionHook receives exactly one call per genuine transition of a ride
// into the completed state.
type CompletionHook interface {
	OnRideCompleted(ctx context.Context, rideID string) error
}

// CompletionHookFunc adapts a function to the CompletionHook interface.
type CompletionHookFunc func(ctx context.Context, rideID string) error

func (f CompletionHookFunc) OnRideCompleted(ctx context.Context, rideID string) error {
	return f(ctx, rideID)
}

// Detector is an edge trigger on ride status writes. It fires registered
// hooks iff the new status is completed and the previous status was not
// already completed. A nil previous status (initial insert) counts as
// non-terminal, so an insert written directly as completed still fires.
type Detector struct {
	hooks []CompletionHook
}

func NewDetector(hooks ...CompletionHook) *Detector {
	return &Detector{hooks: hooks}
}

// Register appends a hook. Not safe for concurrent use with Observe.
func (d *Detector) Register(hook CompletionHook) {
	if hook != nil {
		d.hooks = append(d.hooks, hook)
	}
}

// Observe evaluates a single status write. Hooks run in registration order;
// the first hook error aborts the remainder and is returned to the caller,
// which is expected to retry delivery (hooks are idempotent under replay).
func (d *Detector) Observe(ctx context.Context, rideID string, previous *Status, next Status) error {
	if next != StatusCompleted {
		return nil
	}
	if previous != nil && *previous == StatusCompleted {
		return nil
	}

	for _, hook := range d.hooks {
		if err := hook.OnRideCompleted(ctx, rideID); err != nil {
			return fmt.Errorf("ride: completion hook: %w", err)
		}
	}

	return nil
}
