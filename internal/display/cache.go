package display

import (
	"sync"
	"time"
)

// Cached wraps fn so that geometry is re-read at most once per ttl. Errors
// are not cached.
func Cached(fn BoundsFunc, ttl time.Duration) BoundsFunc {
	var (
		mu      sync.Mutex
		rect    Rect
		fetched time.Time
	)
	return func() (Rect, error) {
		mu.Lock()
		defer mu.Unlock()
		if !fetched.IsZero() && time.Since(fetched) < ttl {
			return rect, nil
		}
		r, err := fn()
		if err != nil {
			return Rect{}, err
		}
		rect, fetched = r, time.Now()
		return rect, nil
	}
}
