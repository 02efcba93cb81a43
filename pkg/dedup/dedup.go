// Package dedup implements the TTL-bounded idempotency cache that keeps
// repeat deliveries of the same (platform, message_id) from being
// processed twice within the dedup window.
package dedup

import "context"

// Store is the idempotency cache contract. MarkSeen records the key and
// reports whether it was already present within the TTL window. Check and
// mark are one atomic step: of any number of concurrent calls with the
// same key, exactly one observes it as new. Implementations must be safe
// for concurrent use by multiple adapter loops.
type Store interface {
	MarkSeen(ctx context.Context, key string) (bool, error)
}
