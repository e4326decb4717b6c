package slideshow

import (
	"slices"
	"time"
)

// ImageRef identifies one stored photo (its URL).
type ImageRef string

// Kind is what the display shows for a slide position.
type Kind string

const (
	KindEmpty Kind = "empty"
	KindPhoto Kind = "photo"
	KindRadar Kind = "radar"
)

// SequencerConfig is fixed at construction.
type SequencerConfig struct {
	// RadarFrequency: every Nth slide position shows radar instead of a photo.
	RadarFrequency int
	// Dwell is the autoplay interval.
	Dwell time.Duration
	// ProgressTick is the progress refresh granularity.
	ProgressTick time.Duration
	// RadarEnabled is forced false by the caller when there is no radar surface.
	RadarEnabled bool
}

// DefaultSequencerConfig returns the display defaults.
func DefaultSequencerConfig() SequencerConfig {
	return SequencerConfig{
		RadarFrequency: 5,
		Dwell:          5 * time.Second,
		ProgressTick:   50 * time.Millisecond,
		RadarEnabled:   true,
	}
}

// Decision is what the display should render right now.
type Decision struct {
	Kind        Kind     `json:"kind"`
	Image       ImageRef `json:"image,omitempty"`
	SlideCursor int      `json:"slideCursor"`
	PhotoCursor int      `json:"photoCursor"`
	ImageCount  int      `json:"imageCount"`
	Playing     bool     `json:"playing"`
	Progress    float64  `json:"progress"`
}

// Sequencer decides, per slide position, whether a photo or the radar panel
// is shown, and tracks autoplay progress. It holds no timers and performs no
// I/O; callers pass the current time in and serialize all calls.
type Sequencer struct {
	cfg SequencerConfig

	imageSet    []ImageRef
	photoCursor int
	// slideCursor only drives radar interleaving. -1 means the first photo is
	// on screen and no navigation has happened yet.
	slideCursor int
	playing     bool
	progress    float64
	slideStart  time.Time
}

// NewSequencer returns a playing sequencer in the empty state.
func NewSequencer(cfg SequencerConfig) *Sequencer {
	def := DefaultSequencerConfig()
	if cfg.RadarFrequency <= 0 {
		cfg.RadarFrequency = def.RadarFrequency
	}
	if cfg.Dwell <= 0 {
		cfg.Dwell = def.Dwell
	}
	if cfg.ProgressTick <= 0 {
		cfg.ProgressTick = def.ProgressTick
	}
	return &Sequencer{
		cfg:         cfg,
		slideCursor: -1,
		playing:     true,
	}
}

// Config returns the effective configuration.
func (s *Sequencer) Config() SequencerConfig { return s.cfg }

// Playing reports whether autoplay is on.
func (s *Sequencer) Playing() bool { return s.playing }

// Empty reports whether there is nothing to show.
func (s *Sequencer) Empty() bool { return len(s.imageSet) == 0 }

// SetImageSet replaces the image set when its contents differ. The returned
// flag is true when the display must re-render: the set became empty, or it
// became non-empty after being empty. A refresh in the middle of a sequence
// keeps both cursors so the display does not jump.
func (s *Sequencer) SetImageSet(set []ImageRef, now time.Time) (Decision, bool) {
	if slices.Equal(set, s.imageSet) {
		return s.Current(), false
	}

	wasEmpty := len(s.imageSet) == 0
	s.imageSet = slices.Clone(set)

	if len(s.imageSet) == 0 {
		s.progress = 0
		return s.Current(), true
	}

	if s.photoCursor >= len(s.imageSet) {
		s.photoCursor = len(s.imageSet) - 1
	}
	if wasEmpty {
		s.restart(now)
		return s.Current(), true
	}
	return s.Current(), false
}

// Advance moves to the next slide position.
func (s *Sequencer) Advance(now time.Time) Decision {
	n := len(s.imageSet)
	if n == 0 {
		return s.Current()
	}

	s.slideCursor++
	if !s.ShouldShowRadar() {
		s.photoCursor = (s.photoCursor + 1) % n
	}
	s.restart(now)
	return s.Current()
}

// Retreat moves to the previous slide position. The slide cursor never goes
// below zero; the photo cursor wraps.
func (s *Sequencer) Retreat(now time.Time) Decision {
	n := len(s.imageSet)
	if n == 0 {
		return s.Current()
	}

	s.slideCursor = max(0, s.slideCursor-1)
	if !s.ShouldShowRadar() {
		if s.photoCursor == 0 {
			s.photoCursor = n - 1
		} else {
			s.photoCursor--
		}
	}
	s.restart(now)
	return s.Current()
}

// ShouldShowRadar is a pure function of the slide cursor and configuration.
func (s *Sequencer) ShouldShowRadar() bool {
	return s.cfg.RadarEnabled &&
		len(s.imageSet) > 0 &&
		s.slideCursor >= 0 &&
		(s.slideCursor+1)%s.cfg.RadarFrequency == 0
}

// TogglePlay flips autoplay. Turning it on restarts the dwell from zero;
// turning it off zeroes the displayed progress.
func (s *Sequencer) TogglePlay(now time.Time) Decision {
	s.playing = !s.playing
	if s.playing {
		s.restart(now)
	} else {
		s.progress = 0
	}
	return s.Current()
}

// Tick updates progress and advances once the dwell has elapsed. The flag
// reports whether the slide changed.
func (s *Sequencer) Tick(now time.Time) (Decision, bool) {
	if !s.playing || len(s.imageSet) == 0 {
		return s.Current(), false
	}

	elapsed := now.Sub(s.slideStart)
	if elapsed >= s.cfg.Dwell {
		return s.Advance(now), true
	}
	s.progress = min(float64(elapsed)/float64(s.cfg.Dwell), 1)
	if s.progress < 0 {
		s.progress = 0
	}
	return s.Current(), false
}

// OnRadarFailure records that the radar surface could not be shown. The
// radar slide still counts as shown; counters are untouched. The flag is
// false when the current slide is not the radar panel.
func (s *Sequencer) OnRadarFailure(reason string) (Decision, bool) {
	return s.Current(), s.ShouldShowRadar()
}

// Current renders the state into a decision.
func (s *Sequencer) Current() Decision {
	d := Decision{
		SlideCursor: s.slideCursor,
		PhotoCursor: s.photoCursor,
		ImageCount:  len(s.imageSet),
		Playing:     s.playing,
		Progress:    s.progress,
	}
	switch {
	case len(s.imageSet) == 0:
		d.Kind = KindEmpty
	case s.ShouldShowRadar():
		d.Kind = KindRadar
	default:
		d.Kind = KindPhoto
		d.Image = s.imageSet[s.photoCursor]
	}
	return d
}

func (s *Sequencer) restart(now time.Time) {
	s.slideStart = now
	s.progress = 0
}
