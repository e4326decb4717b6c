package slideshow

import "time"

// DefaultRadarTimeout is the ceiling on waiting for the radar image.
const DefaultRadarTimeout = 10 * time.Second

// ErrRadarTimeout is the placeholder message for a radar load that took too long.
const ErrRadarTimeout = "Radar loading timeout"

// RadarLoadState is the lifecycle of one radar slide showing.
type RadarLoadState string

const (
	RadarIdle    RadarLoadState = "idle"
	RadarLoading RadarLoadState = "loading"
	RadarLoaded  RadarLoadState = "loaded"
	RadarFailed  RadarLoadState = "failed"
)

// RadarWatch tracks the current radar load. Every showing of the radar slide
// gets a fresh token, so reports about an earlier showing are ignored.
// Not safe for concurrent use.
type RadarWatch struct {
	timeout time.Duration
	token   uint64
	started time.Time
	state   RadarLoadState
	reason  string
}

func NewRadarWatch(timeout time.Duration) *RadarWatch {
	if timeout <= 0 {
		timeout = DefaultRadarTimeout
	}
	return &RadarWatch{timeout: timeout, state: RadarIdle}
}

// Begin starts a new load and returns its token.
func (w *RadarWatch) Begin(now time.Time) uint64 {
	w.token++
	w.started = now
	w.state = RadarLoading
	w.reason = ""
	return w.token
}

// Loaded marks the load done. It is refused for stale tokens, for loads that
// already failed, and for loads that overran the timeout.
func (w *RadarWatch) Loaded(token uint64, now time.Time) bool {
	if token != w.token || w.state != RadarLoading {
		return false
	}
	if w.Expire(now) {
		return false
	}
	w.state = RadarLoaded
	return true
}

// Fail marks the load failed with reason.
func (w *RadarWatch) Fail(token uint64, reason string) bool {
	if token != w.token || w.state != RadarLoading {
		return false
	}
	w.state = RadarFailed
	w.reason = reason
	return true
}

// Expire fails a load that has been waiting for at least the timeout.
func (w *RadarWatch) Expire(now time.Time) bool {
	if w.state != RadarLoading || now.Sub(w.started) < w.timeout {
		return false
	}
	w.state = RadarFailed
	w.reason = ErrRadarTimeout
	return true
}

// Deadline reports when the pending load times out.
func (w *RadarWatch) Deadline() (time.Time, bool) {
	if w.state != RadarLoading {
		return time.Time{}, false
	}
	return w.started.Add(w.timeout), true
}

// Cancel abandons any pending load; the slide moved on.
func (w *RadarWatch) Cancel() {
	w.state = RadarIdle
	w.reason = ""
}

func (w *RadarWatch) Token() uint64         { return w.token }
func (w *RadarWatch) State() RadarLoadState { return w.state }
func (w *RadarWatch) Reason() string        { return w.reason }
