package keyprovider

import (
	"context"
	"time"
)

// DefaultSyncInterval is the interval between routine sync-only refreshes
// (spec §5).
const DefaultSyncInterval = time.Hour

// DefaultErrorRetryInterval is how soon the loop retries after a failed
// refresh (spec §5).
const DefaultErrorRetryInterval = 5 * time.Minute

// Refresher runs a cancellable background loop that periodically calls
// RefreshKey on a KeyProvider, grounded on confmsg's CancellableTimer:
// sync_only is true whenever less than RolloverInterval has elapsed since
// the last successful refresh, so routine ticks stay cheap and only a
// stale key triggers an actual rollover attempt.
type Refresher struct {
	Provider           KeyProvider
	SyncInterval       time.Duration
	ErrorRetryInterval time.Duration
	RolloverInterval   time.Duration

	onError func(error)
}

// NewRefresher constructs a Refresher with spec-default intervals.
func NewRefresher(provider KeyProvider, rolloverInterval time.Duration) *Refresher {
	return &Refresher{
		Provider:           provider,
		SyncInterval:       DefaultSyncInterval,
		ErrorRetryInterval: DefaultErrorRetryInterval,
		RolloverInterval:   rolloverInterval,
	}
}

// OnError installs a callback invoked with every refresh error, used by
// callers to log or surface metrics; a nil callback (the default) drops
// errors silently.
func (r *Refresher) OnError(f func(error)) {
	r.onError = f
}

// Run blocks until ctx is cancelled, ticking the refresh loop. On cancel
// the loop exits promptly rather than waiting out the current interval.
func (r *Refresher) Run(ctx context.Context) {
	timer := time.NewTimer(r.nextInterval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			syncOnly := time.Since(r.Provider.LastRefreshed()) < r.RolloverInterval
			_, err := r.Provider.RefreshKey(ctx, syncOnly)
			if err != nil && r.onError != nil {
				r.onError(err)
			}
			if err != nil {
				timer.Reset(r.ErrorRetryInterval)
			} else {
				timer.Reset(r.SyncInterval)
			}
		}
	}
}

func (r *Refresher) nextInterval() time.Duration {
	if r.SyncInterval <= 0 {
		return DefaultSyncInterval
	}
	return r.SyncInterval
}
