package registry

import "context"

// Page is one page of a paginated listing. NextCursor is opaque to the
// caller; an empty cursor means the sequence is exhausted.
type Page struct {
	Items      []Item
	NextCursor string
}

// Client is the narrow interface to the remote registry API. The fetch
// coordinator is its sole caller; all caching, dedup and retry policy
// live above this interface.
//
// Implementations return *Error so failures can be classified.
type Client interface {
	// List fetches one page of the collection of kind under parent.
	// An empty cursor requests the first page.
	List(ctx context.Context, kind Kind, parent, cursor string, pageSize int) (Page, error)

	// Get fetches a single item by its stable identifier.
	Get(ctx context.Context, kind Kind, id string) (Item, error)
}

// Deleter is implemented by clients that support destructive actions.
// The UI invalidates the affected cache prefix after a successful call.
type Deleter interface {
	// Delete removes the identified resource upstream.
	Delete(ctx context.Context, kind Kind, id string) error
}
