// Package fetcher downloads raw discussion pages from the rate-limited
// source site and persists them for the parser.
package fetcher

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mikroblog/discussions/internal/storage"
	"github.com/sirupsen/logrus"
)

// RetryPolicy controls how fetch attempts are repeated on rate limiting or
// transport failure. MaxAttempts of 0 retries forever, which matches the
// source site's behavior of eventually letting a patient client through, but
// can be capped so an unreachable source fails the run instead of hanging it.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// Fetcher retrieves raw markup pages per discussion ID, handling pagination
// and throttling, and persists them through the storage seam.
type Fetcher struct {
	baseURL string
	policy  RetryPolicy
	timeout time.Duration
	store   storage.Interface
	client  *resty.Client

	// hasPagination detects the more-pages marker in page markup.
	hasPagination func(markup string) bool
}

// New creates a fetcher for the given site base URL.
func New(baseURL string, policy RetryPolicy, timeout time.Duration, store storage.Interface, hasPagination func(string) bool) *Fetcher {
	return &Fetcher{
		baseURL:       baseURL,
		policy:        policy,
		timeout:       timeout,
		store:         store,
		client:        resty.New().SetTimeout(timeout),
		hasPagination: hasPagination,
	}
}

// FetchRange downloads page 1 of every discussion in the half-open ID range
// [idStart, idEnd), then sweeps pages 2, 3, ... for the discussions whose
// markup indicated more pages. A discussion whose first page never succeeds
// is simply absent from storage, not an error. FetchRange fails only when
// the context is canceled or a capped retry budget runs out.
func (f *Fetcher) FetchRange(ctx context.Context, idStart, idEnd int) error {
	logrus.Infof("Fetching discussions %d-%d", idStart, idEnd)

	var morePages []int

	for id := idStart; id < idEnd; id++ {
		exists, more, err := f.fetchPage(ctx, id, 1)
		if err != nil {
			return err
		}
		if exists && more {
			morePages = append(morePages, id)
		}
	}

	// Sweep additional pages breadth-first: page 2 for every marked ID,
	// then page 3 for those that still had one, and so on. An ID drops out
	// as soon as a page comes back not found.
	for page := 2; len(morePages) > 0; page++ {
		var next []int
		for _, id := range morePages {
			exists, _, err := f.fetchPage(ctx, id, page)
			if err != nil {
				return err
			}
			if exists {
				next = append(next, id)
			}
		}
		morePages = next
	}

	logrus.Infof("Finished fetching discussions %d-%d", idStart, idEnd)
	return nil
}

// fetchPage downloads and persists a single page. It retries on rate
// limiting and transport failure per the retry policy, recreating the HTTP
// client after transport failures. exists is false when the page does not
// exist on the site; a failure to persist an existing page is logged but
// does not clear it. more is meaningful only for page 1 and reports the
// pagination marker.
func (f *Fetcher) fetchPage(ctx context.Context, id, page int) (exists bool, more bool, err error) {
	url := f.pageURL(id, page)

	attempts := 0
	for {
		attempts++

		resp, reqErr := f.client.R().SetContext(ctx).Get(url)

		if reqErr != nil {
			if ctx.Err() != nil {
				return false, false, ctx.Err()
			}

			logrus.Errorf("Discussion %d page %d: transport failure: %v", id, page, reqErr)
			// A broken connection pool keeps failing; start over with a
			// fresh client before the next attempt.
			f.client = resty.New().SetTimeout(f.timeout)

			if waitErr := f.wait(ctx, id, page, attempts); waitErr != nil {
				return false, false, waitErr
			}
			continue
		}

		if resp.StatusCode() == 429 {
			logrus.Debugf("Discussion %d page %d: rate limited", id, page)
			if waitErr := f.wait(ctx, id, page, attempts); waitErr != nil {
				return false, false, waitErr
			}
			continue
		}

		if !resp.IsSuccess() {
			logrus.Debugf("Discussion %d page %d: status %d, treating as absent", id, page, resp.StatusCode())
			return false, false, nil
		}

		markup := string(resp.Body())
		if storeErr := f.store.Store(storage.PageKey(id, page), resp.Body()); storeErr != nil {
			// Scoped to this one artifact. The page does exist, so the
			// pagination sweep must still see it.
			logrus.Errorf("Discussion %d page %d: failed to persist: %v", id, page, storeErr)
		}

		if page == 1 {
			more = f.hasPagination != nil && f.hasPagination(markup)
		} else {
			// Any successful later page may be followed by another one.
			more = true
		}

		return true, more, nil
	}
}

// wait sleeps the retry delay, honoring cancellation, and fails once a
// capped retry budget is exhausted.
func (f *Fetcher) wait(ctx context.Context, id, page, attempts int) error {
	if f.policy.MaxAttempts > 0 && attempts >= f.policy.MaxAttempts {
		return fmt.Errorf("discussion %d page %d: giving up after %d attempts", id, page, attempts)
	}

	select {
	case <-time.After(f.policy.Delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Fetcher) pageURL(id, page int) string {
	if page == 1 {
		return fmt.Sprintf("%s/%d", f.baseURL, id)
	}
	return fmt.Sprintf("%s/%d/page/%d", f.baseURL, id, page)
}
