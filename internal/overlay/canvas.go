package overlay

import (
	"image"
	"image/color"
	"math"

	"gocv.io/x/gocv"
)

// Style is the paint used for a point or a line.
type Style struct {
	Color       color.RGBA
	StrokeWidth float64
}

// Canvas is a 2D drawing surface.
type Canvas interface {
	DrawPoint(p Point, s Style)
	DrawLine(from, to Point, s Style)
}

// MatCanvas draws onto an OpenCV image.
type MatCanvas struct {
	Mat *gocv.Mat
}

// NewMatCanvas returns a Canvas backed by img.
func NewMatCanvas(img *gocv.Mat) *MatCanvas {
	return &MatCanvas{Mat: img}
}

// DrawPoint draws a filled dot whose diameter is the stroke width.
func (c *MatCanvas) DrawPoint(p Point, s Style) {
	radius := int(math.Max(1, math.Round(s.StrokeWidth/2)))
	gocv.Circle(c.Mat, toImagePoint(p), radius, s.Color, -1)
}

// DrawLine draws a stroked line.
func (c *MatCanvas) DrawLine(from, to Point, s Style) {
	thickness := int(math.Max(1, math.Round(s.StrokeWidth)))
	gocv.Line(c.Mat, toImagePoint(from), toImagePoint(to), s.Color, thickness)
}

func toImagePoint(p Point) image.Point {
	return image.Pt(int(math.Round(p.X)), int(math.Round(p.Y)))
}
