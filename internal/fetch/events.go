// Package fetch coordinates asynchronous, deduplicated, cancellable
// page fetches against the registry client and assembles them into
// cached collection sequences.
package fetch

import (
	"harbormast/internal/cachemanager"
	"harbormast/internal/registry"
)

// Result is the payload of fetch events published on the coordinator's
// broker. On success Entry is a snapshot of the cache entry after the
// page was applied; on failure Err carries the classified error.
type Result struct {
	Key    registry.Key
	Cursor string
	Seq    uint64
	Entry  cachemanager.Entry
	Err    *registry.Error
}

// Failed reports whether the result is a failure.
func (r Result) Failed() bool { return r.Err != nil }
