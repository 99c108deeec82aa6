package pagination

// DefaultPageSize is the number of items emitted per page.
const DefaultPageSize = 5

// Page is a slice of a ranked list starting at a cursor position.
type Page[T any] struct {
	Items []T
	// Sent is the cursor position after this page was emitted.
	Sent int
	// Remaining is the number of items left after this page.
	Remaining int
}

// HasMore reports whether further pages remain.
func (p Page[T]) HasMore() bool {
	return p.Remaining > 0
}

// Exhausted reports whether the page carries nothing because the list was already fully sent.
func (p Page[T]) Exhausted() bool {
	return len(p.Items) == 0
}

// Next returns the page that follows sent. The cursor advances by the number of items actually
// returned, so asking again after exhaustion yields an empty page rather than a repeat.
func Next[T any](items []T, sent, size int) Page[T] {
	if size <= 0 {
		size = DefaultPageSize
	}
	if sent < 0 {
		sent = 0
	}
	if sent > len(items) {
		sent = len(items)
	}

	end := min(sent+size, len(items))
	page := items[sent:end:end]

	return Page[T]{
		Items:     page,
		Sent:      end,
		Remaining: len(items) - end,
	}
}
