package slideshow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRadarWatch_LoadedInTime(t *testing.T) {
	w := NewRadarWatch(0)
	token := w.Begin(t0)

	deadline, ok := w.Deadline()
	assert.True(t, ok)
	assert.Equal(t, t0.Add(10*time.Second), deadline)

	assert.True(t, w.Loaded(token, t0.Add(9*time.Second)))
	assert.Equal(t, RadarLoaded, w.State())
	_, ok = w.Deadline()
	assert.False(t, ok)
}

func TestRadarWatch_LateLoadIsRejected(t *testing.T) {
	w := NewRadarWatch(10 * time.Second)
	token := w.Begin(t0)

	assert.False(t, w.Loaded(token, t0.Add(11*time.Second)))
	assert.Equal(t, RadarFailed, w.State())
	assert.Equal(t, ErrRadarTimeout, w.Reason())
}

func TestRadarWatch_Expire(t *testing.T) {
	w := NewRadarWatch(10 * time.Second)
	token := w.Begin(t0)

	assert.False(t, w.Expire(t0.Add(5*time.Second)))
	assert.True(t, w.Expire(t0.Add(10*time.Second)))
	assert.False(t, w.Loaded(token, t0.Add(10*time.Second)))
	assert.False(t, w.Expire(t0.Add(20*time.Second)))
}

func TestRadarWatch_StaleTokens(t *testing.T) {
	w := NewRadarWatch(10 * time.Second)
	first := w.Begin(t0)
	second := w.Begin(t0.Add(time.Second))

	assert.NotEqual(t, first, second)
	assert.False(t, w.Fail(first, "old"))
	assert.False(t, w.Loaded(first, t0.Add(2*time.Second)))
	assert.True(t, w.Fail(second, "decode error"))
	assert.Equal(t, "decode error", w.Reason())
}

func TestRadarWatch_Cancel(t *testing.T) {
	w := NewRadarWatch(10 * time.Second)
	token := w.Begin(t0)
	w.Cancel()

	assert.Equal(t, RadarIdle, w.State())
	assert.False(t, w.Loaded(token, t0))
	assert.False(t, w.Expire(t0.Add(time.Minute)))
}
