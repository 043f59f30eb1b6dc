package capture

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// CaptureResult is the gateway's acknowledgement of a finalized charge.
type CaptureResult struct {
	CaptureRef string
}

// Gateway finalizes a previously authorized hold. Implementations talk to the
// real payment processor; this package only ever sees the port.
type Gateway interface {
	Capture(ctx context.Context, externalRef string, amount int64) (CaptureResult, error)
}

// RejectionError is a domain rejection from the gateway (declined capture,
// expired authorization). It marks the task failed and is never retried
// automatically; transient transport errors are plain errors instead.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("capture: gateway rejected: %s", e.Reason)
}

// isTimeout reports whether the gateway call exceeded its deadline. Such a
// task is left in processing rather than failed: the call may still land on
// the gateway side, and reverting to pending could double-submit it.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
