package elabftw

import (
	"context"
	"time"
)

// pageFunc fetches one listing page of at most limit records starting at
// offset.
type pageFunc func(ctx context.Context, limit, offset int) ([]Item, error)

// pageSettings tunes the paged fetch loop.
type pageSettings struct {
	startOffset int
	pageSize    int
	minLimit    int
	maxRetries  int
	// retryDelay is overridable so tests do not sleep.
	retryDelay time.Duration
}

// fetchAllPages drains a listing endpoint page by page.
//
// Large installs time out on big pages, so each page starts at the full
// pageSize and, on a timeout, the limit is halved (never below minLimit)
// and the page refetched, up to maxRetries times. The limit resets to
// pageSize for the next page. The offset advances by the limit that
// succeeded, and a page shorter than its limit ends the fetch.
func fetchAllPages(ctx context.Context, page pageFunc, s pageSettings) ([]Item, error) {
	if s.pageSize <= 0 {
		s.pageSize = 1000
	}
	if s.minLimit <= 0 {
		s.minLimit = 1
	}
	if s.retryDelay <= 0 {
		s.retryDelay = 1 * time.Second
	}

	var all []Item
	offset := s.startOffset

	for {
		limit := s.pageSize
		retries := 0

		var items []Item
		for {
			if err := ctx.Err(); err != nil {
				return all, err
			}

			var err error
			items, err = page(ctx, limit, offset)
			if err == nil {
				break
			}
			if !IsTimeout(err) || retries >= s.maxRetries {
				return all, err
			}
			retries++
			if err := sleepBackoff(ctx, s.retryDelay); err != nil {
				return all, err
			}
			if half := limit / 2; half >= s.minLimit {
				limit = half
			} else {
				limit = s.minLimit
			}
		}

		all = append(all, items...)
		if len(items) < limit {
			return all, nil
		}
		offset += limit
	}
}
