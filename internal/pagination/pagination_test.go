package pagination

import "testing"

func TestNextWalksTheList(t *testing.T) {
	t.Parallel()

	items := make([]int, 12)
	for i := range items {
		items[i] = i
	}

	sent := 0
	var sizes []int
	for range 4 {
		page := Next(items, sent, DefaultPageSize)
		sizes = append(sizes, len(page.Items))
		sent = page.Sent
	}

	expect := []int{5, 5, 2, 0}
	for i := range expect {
		if sizes[i] != expect[i] {
			t.Fatalf("expected page sizes %v, got %v", expect, sizes)
		}
	}
	if sent != 12 {
		t.Fatalf("expected cursor to end at 12, got %d", sent)
	}
}

func TestNextPageFlags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		total     int
		sent      int
		size      int
		items     int
		remaining int
		exhausted bool
	}{
		{name: "first page", total: 12, sent: 0, size: 5, items: 5, remaining: 7},
		{name: "last partial page", total: 12, sent: 10, size: 5, items: 2, remaining: 0},
		{name: "exhausted", total: 12, sent: 12, size: 5, exhausted: true},
		{name: "cursor beyond list", total: 3, sent: 9, size: 5, exhausted: true},
		{name: "negative cursor", total: 3, sent: -2, size: 5, items: 3},
		{name: "default size", total: 7, sent: 0, size: 0, items: 5, remaining: 2},
		{name: "empty list", total: 0, sent: 0, size: 5, exhausted: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			page := Next(make([]string, tt.total), tt.sent, tt.size)
			if len(page.Items) != tt.items {
				t.Fatalf("expected %d items, got %d", tt.items, len(page.Items))
			}
			if page.Remaining != tt.remaining || page.HasMore() != (tt.remaining > 0) {
				t.Fatalf("expected %d remaining, got %d", tt.remaining, page.Remaining)
			}
			if page.Exhausted() != tt.exhausted {
				t.Fatalf("expected exhausted=%v", tt.exhausted)
			}
		})
	}
}

func TestNextDoesNotRepeatPages(t *testing.T) {
	t.Parallel()

	items := []string{"a", "b", "c"}
	first := Next(items, 0, 5)
	second := Next(items, first.Sent, 5)
	if len(second.Items) != 0 {
		t.Fatalf("expected second request to be empty, got %v", second.Items)
	}
	if second.Sent != first.Sent {
		t.Fatalf("expected cursor to stay at %d, got %d", first.Sent, second.Sent)
	}
}
