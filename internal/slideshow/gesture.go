package slideshow

import (
	"math"
	"time"
)

// Intent is a navigation request derived from input.
type Intent string

const (
	IntentNone     Intent = "none"
	IntentNext     Intent = "next"
	IntentPrevious Intent = "previous"
	IntentToggle   Intent = "toggle"
)

// GestureConfig holds the touch thresholds, in CSS pixels.
type GestureConfig struct {
	MinSwipeDistance    float64
	MaxVerticalDistance float64
	TapSlop             float64
	TapTimeout          time.Duration
}

// DefaultGestureConfig matches the display's touch behaviour.
func DefaultGestureConfig() GestureConfig {
	return GestureConfig{
		MinSwipeDistance:    25,
		MaxVerticalDistance: 60,
		TapSlop:             10,
		TapTimeout:          300 * time.Millisecond,
	}
}

// Gesture is a completed touch: displacement from touch start to release.
type Gesture struct {
	DX       float64       `json:"dx"`
	DY       float64       `json:"dy"`
	Duration time.Duration `json:"-"`
}

// Classify resolves a released gesture. A tap toggles playback; a mostly
// horizontal drag goes to the previous slide when dragged right and to the
// next slide when dragged left.
func (c GestureConfig) Classify(g Gesture) Intent {
	adx, ady := math.Abs(g.DX), math.Abs(g.DY)

	if adx < c.TapSlop && ady < c.TapSlop && g.Duration < c.TapTimeout {
		return IntentToggle
	}
	if adx >= c.MinSwipeDistance && ady < c.MaxVerticalDistance {
		if g.DX > 0 {
			return IntentPrevious
		}
		return IntentNext
	}
	return IntentNone
}
