package throttle

import (
	"context"
	"sync"
	"time"
)

// UnknownClient is the key used when a request carries no usable identity.
const UnknownClient = "unknown"

// Decision is the outcome of evaluating one request.
type Decision struct {
	Admitted bool
	Limit    int
	// Remaining is the number of requests still admissible in the current window.
	Remaining int
	// ResetAt is the unix time (seconds) at which the caller may assume a fresh window.
	ResetAt int64
	// RetryAfter is set only on rejection, in seconds.
	RetryAfter int
}

// RequestThrottle enforces a sliding-window request quota per client key.
type RequestThrottle struct {
	maxRequests   int
	windowSeconds int64
	clock         func() time.Time

	mu      sync.Mutex
	records map[string]*windowRecord
}

// windowRecord is the request log for one client. Timestamps are unix seconds in
// non-decreasing order; q[head:] holds the live entries.
type windowRecord struct {
	q    []int64
	head int
}

// New creates a throttle admitting maxRequests per window. Non-positive values are
// raised to 1 and windows are truncated to whole seconds.
func New(maxRequests int, window time.Duration) *RequestThrottle {
	if maxRequests < 1 {
		maxRequests = 1
	}
	seconds := int64(window / time.Second)
	if seconds < 1 {
		seconds = 1
	}

	return &RequestThrottle{
		maxRequests:   maxRequests,
		windowSeconds: seconds,
		clock:         time.Now,
		records:       make(map[string]*windowRecord),
	}
}

// WithClock replaces the time source used by Allow and Sweep.
func (t *RequestThrottle) WithClock(clock func() time.Time) *RequestThrottle {
	if clock != nil {
		t.clock = clock
	}
	return t
}

// Limit returns the configured ceiling per window.
func (t *RequestThrottle) Limit() int {
	return t.maxRequests
}

// WindowSeconds returns the configured window length.
func (t *RequestThrottle) WindowSeconds() int {
	return int(t.windowSeconds)
}

// Allow evaluates clientKey against the throttle's clock.
func (t *RequestThrottle) Allow(clientKey string) Decision {
	return t.Evaluate(clientKey, t.clock())
}

// Evaluate prunes expired entries for clientKey, then admits and records the
// request if fewer than the limit remain in the window. Rejected requests are not
// recorded.
func (t *RequestThrottle) Evaluate(clientKey string, now time.Time) Decision {
	if clientKey == "" {
		clientKey = UnknownClient
	}
	ts := now.Unix()

	t.mu.Lock()
	defer t.mu.Unlock()

	rec := t.records[clientKey]
	if rec == nil {
		rec = &windowRecord{}
		t.records[clientKey] = rec
	}

	// A clock that steps backwards must not reorder the log.
	if n := len(rec.q); n > rec.head && ts < rec.q[n-1] {
		ts = rec.q[n-1]
	}

	rec.prune(ts - t.windowSeconds)
	prior := rec.size()

	decision := Decision{
		Limit:   t.maxRequests,
		ResetAt: ts + t.windowSeconds,
	}

	if prior >= t.maxRequests {
		decision.RetryAfter = int(t.windowSeconds)
		return decision
	}

	rec.q = append(rec.q, ts)
	decision.Admitted = true
	decision.Remaining = max(0, t.maxRequests-(prior+1))
	return decision
}

// Sweep drops every record whose entries have all expired and returns how many
// were removed.
func (t *RequestThrottle) Sweep() int {
	cutoff := t.clock().Unix() - t.windowSeconds

	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for key, rec := range t.records {
		rec.prune(cutoff)
		if rec.size() == 0 {
			delete(t.records, key)
			removed++
		}
	}
	return removed
}

// Tracked returns the number of client keys currently holding a record.
func (t *RequestThrottle) Tracked() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}

// StartSweeper runs Sweep every interval until ctx is done or the returned stop
// function is called. onSweep, if non-nil, receives each sweep's removed count and
// the number of keys still tracked.
func (t *RequestThrottle) StartSweeper(ctx context.Context, interval time.Duration, onSweep func(removed, tracked int)) func() {
	if interval <= 0 {
		return func() {}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	var once sync.Once

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				removed := t.Sweep()
				if onSweep != nil {
					onSweep(removed, t.Tracked())
				}
			case <-ctx.Done():
				return
			case <-done:
				return
			}
		}
	}()

	return func() {
		once.Do(func() { close(done) })
	}
}

// prune evicts entries strictly older than cutoff. An entry stamped exactly
// cutoff (now-window) still counts, so the window is [now-w, now] and a
// request made at t stops counting at t+w+1, not t+w.
func (r *windowRecord) prune(cutoff int64) {
	for r.head < len(r.q) && r.q[r.head] < cutoff {
		r.head++
	}

	if r.head == len(r.q) {
		r.q = r.q[:0]
		r.head = 0
		return
	}

	if r.head > 0 && r.head*2 >= len(r.q) {
		r.q = append([]int64(nil), r.q[r.head:]...)
		r.head = 0
	}
}

func (r *windowRecord) size() int {
	return len(r.q) - r.head
}
