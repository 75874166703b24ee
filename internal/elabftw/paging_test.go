package elabftw

import (
	"context"
	"errors"
	"testing"
	"time"
)

// timeoutErr mimics a net.Error timeout.
type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func itemsWithIDs(ids ...int) []Item {
	out := make([]Item, len(ids))
	for i, id := range ids {
		out[i] = Item{ID: id}
	}
	return out
}

func idsOf(items []Item) []int {
	out := make([]int, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ============================================================
// Timeout recovery
// ============================================================

func TestFetchAllPages_RetriesAndReducesLimit(t *testing.T) {
	var calls [][2]int

	page := func(ctx context.Context, limit, offset int) ([]Item, error) {
		calls = append(calls, [2]int{limit, offset})
		switch len(calls) {
		case 1, 2:
			return nil, timeoutErr{}
		default:
			return itemsWithIDs(offset, offset+1, offset+2), nil
		}
	}

	items, err := fetchAllPages(context.Background(), page, pageSettings{
		pageSize:   6,
		minLimit:   2,
		maxRetries: 3,
		retryDelay: time.Microsecond,
	})
	if err != nil {
		t.Fatalf("fetchAllPages() error = %v", err)
	}

	if got, want := idsOf(items), []int{0, 1, 2, 2, 3, 4}; !equalInts(got, want) {
		t.Errorf("items = %v, want %v", got, want)
	}

	// The limit halves after each timeout (never below minLimit), the
	// offset advances by the limit that finally succeeded, and the next
	// page starts back at the full page size.
	wantCalls := [][2]int{{6, 0}, {3, 0}, {2, 0}, {6, 2}}
	if len(calls) != len(wantCalls) {
		t.Fatalf("calls = %v, want %v", calls, wantCalls)
	}
	for i, want := range wantCalls {
		if calls[i] != want {
			t.Errorf("call %d = %v, want %v", i, calls[i], want)
		}
	}
}

// ============================================================
// Termination
// ============================================================

func TestFetchAllPages_StopsWhenPageShort(t *testing.T) {
	pages := [][]Item{itemsWithIDs(1, 2), itemsWithIDs(3)}
	var call int

	page := func(ctx context.Context, limit, offset int) ([]Item, error) {
		if call >= len(pages) {
			return nil, nil
		}
		p := pages[call]
		call++
		return p, nil
	}

	items, err := fetchAllPages(context.Background(), page, pageSettings{
		pageSize: 2,
	})
	if err != nil {
		t.Fatalf("fetchAllPages() error = %v", err)
	}
	if got, want := idsOf(items), []int{1, 2, 3}; !equalInts(got, want) {
		t.Errorf("items = %v, want %v", got, want)
	}
	if call != 2 {
		t.Errorf("page calls = %d, want 2", call)
	}
}

func TestFetchAllPages_EmptyFirstPage(t *testing.T) {
	page := func(ctx context.Context, limit, offset int) ([]Item, error) {
		return nil, nil
	}

	items, err := fetchAllPages(context.Background(), page, pageSettings{pageSize: 10})
	if err != nil {
		t.Fatalf("fetchAllPages() error = %v", err)
	}
	if len(items) != 0 {
		t.Errorf("items = %v, want empty", items)
	}
}

// ============================================================
// Failure propagation
// ============================================================

func TestFetchAllPages_NonTimeoutErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	page := func(ctx context.Context, limit, offset int) ([]Item, error) {
		return nil, boom
	}

	_, err := fetchAllPages(context.Background(), page, pageSettings{
		pageSize:   10,
		maxRetries: 3,
		retryDelay: time.Microsecond,
	})
	if !errors.Is(err, boom) {
		t.Fatalf("fetchAllPages() error = %v, want %v", err, boom)
	}
}

func TestFetchAllPages_RetriesExhausted(t *testing.T) {
	var calls int
	page := func(ctx context.Context, limit, offset int) ([]Item, error) {
		calls++
		return nil, timeoutErr{}
	}

	_, err := fetchAllPages(context.Background(), page, pageSettings{
		pageSize:   10,
		minLimit:   1,
		maxRetries: 2,
		retryDelay: time.Microsecond,
	})
	if !IsTimeout(err) {
		t.Fatalf("fetchAllPages() error = %v, want timeout", err)
	}
	if calls != 3 {
		t.Errorf("page calls = %d, want 3 (initial + 2 retries)", calls)
	}
}

func TestFetchAllPages_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	page := func(ctx context.Context, limit, offset int) ([]Item, error) {
		t.Fatal("page should not be called after cancellation")
		return nil, nil
	}

	_, err := fetchAllPages(ctx, page, pageSettings{pageSize: 10})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("fetchAllPages() error = %v, want context.Canceled", err)
	}
}

// ============================================================
// Timeout detection
// ============================================================

func TestIsTimeout(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("nope"), false},
		{"net timeout", timeoutErr{}, true},
		{"wrapped net timeout", errors.Join(errors.New("get page"), timeoutErr{}), true},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"cancelled", context.Canceled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTimeout(tt.err); got != tt.want {
				t.Errorf("IsTimeout(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
