package slideshow

import "math"

// Orientation classifies an image by its aspect ratio.
type Orientation string

const (
	Portrait  Orientation = "portrait"
	Landscape Orientation = "landscape"
	Square    Orientation = "square"
)

// FitMode is the scaling hint handed to the renderer.
type FitMode string

const (
	// FitCover crops overflow to fill the viewport.
	FitCover FitMode = "cover"
	// FitContain letterboxes to show the whole image.
	FitContain FitMode = "contain"
)

// landscapeCoverDelta is the largest image/viewport ratio difference for which
// a landscape image is cropped instead of letterboxed.
const landscapeCoverDelta = 0.5

// Classify returns the orientation of an image with aspect ratio r (w/h).
// Portrait is tested first, then landscape; only an exact 1 is square.
func Classify(r float64) Orientation {
	switch {
	case r < 1:
		return Portrait
	case r > 1:
		return Landscape
	default:
		return Square
	}
}

// Fit picks the scaling mode for an image of aspect ratio r in a viewport of
// aspect ratio c.
func Fit(r, c float64) FitMode {
	if !validRatio(r) || !validRatio(c) {
		return FitContain
	}

	switch Classify(r) {
	case Portrait:
		if r > c {
			return FitCover
		}
		return FitContain
	case Landscape:
		if math.Abs(r-c) < landscapeCoverDelta {
			return FitCover
		}
		return FitContain
	default:
		return FitContain
	}
}

func validRatio(r float64) bool {
	return r > 0 && !math.IsInf(r, 0) && !math.IsNaN(r)
}
