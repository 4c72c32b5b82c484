// Package testdata generates synthetic frames, images and videos for tests
// that exercise the OpenCV paths.
package testdata

import (
	"fmt"
	"image"
	"image/color"
	"path/filepath"

	"gocv.io/x/gocv"
)

// Default fixture frame size.
const (
	Width  = 320
	Height = 240
)

// SolidFrame returns a BGR frame filled with grey level v.
func SolidFrame(width, height int, v uint8) *gocv.Mat {
	mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(float64(v), float64(v), float64(v), 0), height, width, gocv.MatTypeCV8UC3)
	return &mat
}

// FigureFrame returns a dark frame with a light stick figure whose legs are
// offset by stride pixels, so consecutive frames with different strides differ.
func FigureFrame(width, height, stride int) *gocv.Mat {
	mat := SolidFrame(width, height, 20)
	white := color.RGBA{R: 230, G: 230, B: 230}

	cx := width / 2
	hip := image.Pt(cx, height/2)
	gocv.Circle(mat, image.Pt(cx, height/8), height/16, white, -1)
	gocv.Line(mat, image.Pt(cx, height/5), hip, white, 6)
	gocv.Line(mat, hip, image.Pt(cx-stride, height*7/8), white, 6)
	gocv.Line(mat, hip, image.Pt(cx+stride, height*7/8), white, 6)

	return mat
}

// WalkSequence returns n figure frames alternating between wide and narrow
// strides. Every consecutive pair differs enough to register as motion.
func WalkSequence(n int) []*gocv.Mat {
	frames := make([]*gocv.Mat, n)
	for i := range frames {
		stride := 10
		if i%2 == 1 {
			stride = 60
		}
		frames[i] = FigureFrame(Width, Height, stride)
	}
	return frames
}

// CloseAll releases every frame.
func CloseAll(frames []*gocv.Mat) {
	for _, f := range frames {
		if f != nil {
			f.Close()
		}
	}
}

// WriteImage writes a figure frame to dir/name and returns its path.
func WriteImage(dir, name string) (string, error) {
	mat := FigureFrame(Width, Height, 30)
	defer mat.Close()

	path := filepath.Join(dir, name)
	if ok := gocv.IMWrite(path, *mat); !ok {
		return "", fmt.Errorf("write image %s", path)
	}
	return path, nil
}

// WriteVideo writes an MJPG AVI of n walk frames at fps to dir/name and
// returns its path.
func WriteVideo(dir, name string, n int, fps float64) (string, error) {
	path := filepath.Join(dir, name)

	writer, err := gocv.VideoWriterFile(path, "MJPG", fps, Width, Height, true)
	if err != nil {
		return "", fmt.Errorf("create video %s: %w", path, err)
	}

	frames := WalkSequence(n)
	defer CloseAll(frames)

	for i, f := range frames {
		if err := writer.Write(*f); err != nil {
			writer.Close()
			return "", fmt.Errorf("write video frame %d: %w", i, err)
		}
	}

	if err := writer.Close(); err != nil {
		return "", err
	}
	return path, nil
}
