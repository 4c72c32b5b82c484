package overlay

import (
	"image/color"
	"sync"

	"github.com/ayusman/gaitpose/internal/pose"
)

// LandmarkStrokeWidth is the default width of points and lines in view pixels.
const LandmarkStrokeWidth = 12

var (
	// PointColor is the default landmark color (yellow).
	PointColor = color.RGBA{R: 255, G: 255, B: 0, A: 255}
	// LineColor is the default bone color (#007F8B).
	LineColor = color.RGBA{R: 0, G: 127, B: 139, A: 255}
)

// Observer is notified whenever a new frame result is set on a View.
type Observer interface {
	OnResult(result *pose.FrameResult)
}

// View holds the latest frame result and draws it as a skeleton overlay.
// Each SetResults call replaces the previous frame.
type View struct {
	mu        sync.RWMutex
	width     int
	height    int
	result    *pose.FrameResult
	mapper    Mapper
	pointPen  Style
	linePen   Style
	observers []Observer
}

// NewView creates a View covering a width x height destination.
func NewView(width, height int) *View {
	v := &View{width: width, height: height}
	v.initPaints()
	return v
}

func (v *View) initPaints() {
	v.pointPen = Style{Color: PointColor, StrokeWidth: LandmarkStrokeWidth}
	v.linePen = Style{Color: LineColor, StrokeWidth: LandmarkStrokeWidth}
}

// Observe registers o to receive every result passed to SetResults.
func (v *View) Observe(o Observer) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.observers = append(v.observers, o)
}

// Resize changes the destination size. It applies from the next SetResults call.
func (v *View) Resize(width, height int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.width = width
	v.height = height
}

// Size returns the destination size.
func (v *View) Size() (int, int) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.width, v.height
}

// SetStyles overrides the point and line paints until the next Clear.
func (v *View) SetStyles(point, line Style) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pointPen = point
	v.linePen = line
}

// Styles returns the current point and line paints.
func (v *View) Styles() (Style, Style) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.pointPen, v.linePen
}

// SetResults replaces the frame being shown and recomputes the scale factor
// for the given running mode.
func (v *View) SetResults(result *pose.FrameResult, mode pose.RunningMode) {
	v.mu.Lock()
	v.result = result
	if result != nil {
		v.mapper = NewMapper(result.ImageWidth, result.ImageHeight, v.width, v.height, FitModeFor(mode))
	}
	observers := append([]Observer(nil), v.observers...)
	v.mu.Unlock()

	// Notify outside the lock so observers may call back into the view
	for _, o := range observers {
		o.OnResult(result)
	}
}

// Result returns the frame currently shown, or nil.
func (v *View) Result() *pose.FrameResult {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.result
}

// Scale returns the scale factor of the current frame.
func (v *View) Scale() float64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.mapper.Scale
}

// Clear drops the current result and resets the paints.
func (v *View) Clear() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.result = nil
	v.mapper = Mapper{}
	v.initPaints()
}

// Draw paints a point for every landmark of every pose and the skeleton of
// the first pose. Bones of additional poses are not drawn. Nothing is drawn
// when no result is set.
func (v *View) Draw(c Canvas) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.result == nil {
		return
	}

	for i := range v.result.Poses {
		for _, l := range v.result.Poses[i] {
			c.DrawPoint(v.mapper.Map(l), v.pointPen)
		}
	}

	first := v.result.First()
	if first == nil {
		return
	}
	for _, b := range pose.Connections {
		c.DrawLine(v.mapper.Map(first[b.Start]), v.mapper.Map(first[b.End]), v.linePen)
	}
}
