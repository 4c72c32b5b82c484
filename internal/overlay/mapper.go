// Package overlay maps normalized pose landmarks into view coordinates and
// draws the skeleton overlay.
package overlay

import (
	"math"

	"github.com/ayusman/gaitpose/internal/pose"
)

// FitMode describes how the source image is fitted into the destination view.
type FitMode int

const (
	// Letterbox scales the image so it fits entirely inside the view.
	Letterbox FitMode = iota
	// Fill scales the image so it covers the whole view, cropping the overflow.
	Fill
)

func (f FitMode) String() string {
	if f == Fill {
		return "fill"
	}
	return "letterbox"
}

// FitModeFor returns the fit mode used for a running mode. Still images and
// video are letterboxed; the live preview fills its view.
func FitModeFor(mode pose.RunningMode) FitMode {
	if mode == pose.ModeLiveStream {
		return Fill
	}
	return Letterbox
}

// ScaleFactor returns the multiplier from source pixels to view pixels.
// Zero-sized source dimensions are not guarded.
func ScaleFactor(srcW, srcH, viewW, viewH int, fit FitMode) float64 {
	sx := float64(viewW) / float64(srcW)
	sy := float64(viewH) / float64(srcH)
	if fit == Fill {
		return math.Max(sx, sy)
	}
	return math.Min(sx, sy)
}

// Point is a position in view pixels.
type Point struct {
	X float64
	Y float64
}

// Mapper converts normalized landmarks to view pixels for one frame.
type Mapper struct {
	Scale        float64
	SourceWidth  int
	SourceHeight int
}

// NewMapper builds the mapper for a frame of size srcW x srcH shown in a
// viewW x viewH view.
func NewMapper(srcW, srcH, viewW, viewH int, fit FitMode) Mapper {
	return Mapper{
		Scale:        ScaleFactor(srcW, srcH, viewW, viewH, fit),
		SourceWidth:  srcW,
		SourceHeight: srcH,
	}
}

// Map returns the view position of l.
func (m Mapper) Map(l pose.Landmark) Point {
	return Point{
		X: l.X * float64(m.SourceWidth) * m.Scale,
		Y: l.Y * float64(m.SourceHeight) * m.Scale,
	}
}
