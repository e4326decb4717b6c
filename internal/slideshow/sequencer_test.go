package slideshow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func refs(names ...string) []ImageRef {
	out := make([]ImageRef, len(names))
	for i, n := range names {
		out[i] = ImageRef(n)
	}
	return out
}

func newSeq(t *testing.T, radarEnabled bool, set ...string) *Sequencer {
	t.Helper()
	cfg := DefaultSequencerConfig()
	cfg.RadarEnabled = radarEnabled
	s := NewSequencer(cfg)
	if len(set) > 0 {
		_, render := s.SetImageSet(refs(set...), t0)
		require.True(t, render)
	}
	return s
}

func TestShouldShowRadar_EveryFifthPosition(t *testing.T) {
	s := newSeq(t, true, "A", "B", "C")

	for cursor, want := range map[int]bool{3: false, 4: true, 8: false, 9: true} {
		s.slideCursor = cursor
		assert.Equal(t, want, s.ShouldShowRadar(), "slideCursor=%d", cursor)
	}

	s.slideCursor = -1
	assert.False(t, s.ShouldShowRadar())
}

func TestShouldShowRadar_DisabledOrEmpty(t *testing.T) {
	s := newSeq(t, false, "A", "B")
	s.slideCursor = 4
	assert.False(t, s.ShouldShowRadar())

	empty := newSeq(t, true)
	empty.slideCursor = 4
	assert.False(t, empty.ShouldShowRadar())
	assert.Equal(t, KindEmpty, empty.Current().Kind)
}

func TestAdvance_WrapsAround(t *testing.T) {
	s := newSeq(t, false, "A", "B", "C", "D")
	start := s.photoCursor

	for i := 0; i < 4; i++ {
		s.Advance(t0)
	}
	assert.Equal(t, start, s.photoCursor)
	assert.Equal(t, 3, s.slideCursor)
}

func TestAdvance_InterleavesRadar(t *testing.T) {
	s := newSeq(t, true, "A", "B", "C")
	require.Equal(t, ImageRef("A"), s.Current().Image)

	var shown []ImageRef
	for i := 0; i < 4; i++ {
		d := s.Advance(t0)
		require.Equal(t, KindPhoto, d.Kind)
		shown = append(shown, d.Image)
	}
	assert.Equal(t, refs("B", "C", "A", "B"), shown)

	d := s.Advance(t0)
	assert.Equal(t, KindRadar, d.Kind)
	assert.Empty(t, d.Image)
	assert.Equal(t, 4, d.SlideCursor)

	// The photo skipped by radar comes next.
	d = s.Advance(t0)
	assert.Equal(t, KindPhoto, d.Kind)
	assert.Equal(t, ImageRef("C"), d.Image)
}

func TestAdvance_SingleImage(t *testing.T) {
	s := newSeq(t, false, "A")
	for i := 0; i < 3; i++ {
		assert.Equal(t, ImageRef("A"), s.Advance(t0).Image)
		assert.Equal(t, ImageRef("A"), s.Retreat(t0).Image)
	}
}

func TestAdvance_EmptyIsNoop(t *testing.T) {
	s := newSeq(t, true)
	d := s.Advance(t0)
	assert.Equal(t, KindEmpty, d.Kind)
	assert.Equal(t, -1, d.SlideCursor)
}

func TestRetreat_ClampsSlideCursor(t *testing.T) {
	s := newSeq(t, false, "A", "B", "C")
	s.slideCursor = 0

	d := s.Retreat(t0)
	assert.Equal(t, 0, d.SlideCursor)
	assert.Equal(t, ImageRef("C"), d.Image)

	// From the initial position too.
	s = newSeq(t, false, "A", "B", "C")
	d = s.Retreat(t0)
	assert.Equal(t, 0, d.SlideCursor)
	assert.Equal(t, 2, d.PhotoCursor)
}

func TestRetreat_LandsOnRadar(t *testing.T) {
	s := newSeq(t, true, "A", "B", "C")
	s.slideCursor = 5
	s.photoCursor = 1

	d := s.Retreat(t0)
	assert.Equal(t, KindRadar, d.Kind)
	assert.Equal(t, 1, d.PhotoCursor)
}

func TestTogglePlay_Twice(t *testing.T) {
	s := newSeq(t, true, "A", "B")
	_, _ = s.Tick(t0.Add(2 * time.Second))
	require.Greater(t, s.Current().Progress, 0.0)

	d := s.TogglePlay(t0.Add(2 * time.Second))
	assert.False(t, d.Playing)
	assert.Zero(t, d.Progress)

	d = s.TogglePlay(t0.Add(3 * time.Second))
	assert.True(t, d.Playing)
	assert.Zero(t, d.Progress)
}

func TestTick_ProgressAndAdvance(t *testing.T) {
	s := newSeq(t, false, "A", "B")

	d, advanced := s.Tick(t0.Add(2500 * time.Millisecond))
	assert.False(t, advanced)
	assert.InDelta(t, 0.5, d.Progress, 1e-9)

	d, advanced = s.Tick(t0.Add(5 * time.Second))
	assert.True(t, advanced)
	assert.Equal(t, ImageRef("B"), d.Image)
	assert.Zero(t, d.Progress)

	// Dwell restarts from the advance.
	_, advanced = s.Tick(t0.Add(9 * time.Second))
	assert.False(t, advanced)
}

func TestTick_PausedDoesNothing(t *testing.T) {
	s := newSeq(t, false, "A", "B")
	s.TogglePlay(t0)

	d, advanced := s.Tick(t0.Add(time.Minute))
	assert.False(t, advanced)
	assert.Equal(t, ImageRef("A"), d.Image)
	assert.Zero(t, d.Progress)
}

func TestSetImageSet_IdenticalKeepsCursors(t *testing.T) {
	s := newSeq(t, true, "A", "B", "C")
	s.Advance(t0)
	s.Advance(t0)
	before := s.Current()

	d, render := s.SetImageSet(refs("A", "B", "C"), t0.Add(time.Second))
	assert.False(t, render)
	assert.Equal(t, before.PhotoCursor, d.PhotoCursor)
	assert.Equal(t, before.SlideCursor, d.SlideCursor)
}

func TestSetImageSet_ChangedMidSequence(t *testing.T) {
	s := newSeq(t, false, "A", "B", "C")
	s.Advance(t0)
	s.Advance(t0)
	require.Equal(t, 2, s.photoCursor)

	d, render := s.SetImageSet(refs("N", "A"), t0)
	assert.False(t, render)
	assert.Equal(t, 1, d.PhotoCursor)
	assert.Equal(t, 1, d.SlideCursor)
	assert.Equal(t, 2, d.ImageCount)
}

func TestSetImageSet_EmptyTransitions(t *testing.T) {
	s := newSeq(t, true)
	assert.Equal(t, KindEmpty, s.Current().Kind)

	d, render := s.SetImageSet(nil, t0)
	assert.False(t, render)
	assert.Equal(t, KindEmpty, d.Kind)

	d, render = s.SetImageSet(refs("A"), t0)
	assert.True(t, render)
	assert.Equal(t, KindPhoto, d.Kind)
	assert.Equal(t, ImageRef("A"), d.Image)

	d, render = s.SetImageSet([]ImageRef{}, t0)
	assert.True(t, render)
	assert.Equal(t, KindEmpty, d.Kind)
}

func TestSetImageSet_CopiesInput(t *testing.T) {
	in := refs("A", "B")
	s := NewSequencer(DefaultSequencerConfig())
	s.SetImageSet(in, t0)
	in[0] = "Z"
	assert.Equal(t, ImageRef("A"), s.Current().Image)
}

func TestOnRadarFailure_KeepsCounters(t *testing.T) {
	s := newSeq(t, true, "A", "B", "C")
	s.slideCursor = 4
	before := s.Current()

	d, onRadar := s.OnRadarFailure("decode error")
	assert.True(t, onRadar)
	assert.Equal(t, before, d)

	d = s.Advance(t0)
	assert.Equal(t, KindPhoto, d.Kind)
	assert.Equal(t, 5, d.SlideCursor)
}

func TestNewSequencer_Defaults(t *testing.T) {
	s := NewSequencer(SequencerConfig{})
	cfg := s.Config()
	assert.Equal(t, 5, cfg.RadarFrequency)
	assert.Equal(t, 5*time.Second, cfg.Dwell)
	assert.Equal(t, 50*time.Millisecond, cfg.ProgressTick)
	assert.True(t, s.Playing())
	assert.True(t, s.Empty())
}
