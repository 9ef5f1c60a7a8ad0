package notifier

import "context"

// Notifier delivers a verification code to a target address. Delivery
// failures are reported to the caller but never roll back state the caller
// already committed.
type Notifier interface {
	Deliver(ctx context.Context, target, code string) error
}
