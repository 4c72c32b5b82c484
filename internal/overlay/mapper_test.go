package overlay

import (
	"math"
	"testing"

	"github.com/ayusman/gaitpose/internal/pose"
)

const epsilon = 1e-9

func TestScaleFactor(t *testing.T) {
	tests := []struct {
		name         string
		srcW, srcH   int
		viewW, viewH int
		fit          FitMode
		want         float64
	}{
		{"letterbox wide view", 640, 480, 1280, 720, Letterbox, 1.5},
		{"fill wide view", 640, 480, 1280, 720, Fill, 2.0},
		{"letterbox tall view", 480, 640, 1080, 1920, Letterbox, 2.25},
		{"fill tall view", 480, 640, 1080, 1920, Fill, 3.0},
		{"letterbox downscale", 1920, 1080, 960, 960, Letterbox, 0.5},
		{"same size", 640, 480, 640, 480, Fill, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ScaleFactor(tt.srcW, tt.srcH, tt.viewW, tt.viewH, tt.fit)
			if math.Abs(got-tt.want) > epsilon {
				t.Errorf("ScaleFactor() = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestFitModeFor(t *testing.T) {
	tests := []struct {
		mode pose.RunningMode
		want FitMode
	}{
		{pose.ModeImage, Letterbox},
		{pose.ModeVideo, Letterbox},
		{pose.ModeLiveStream, Fill},
	}

	for _, tt := range tests {
		if got := FitModeFor(tt.mode); got != tt.want {
			t.Errorf("FitModeFor(%v) = %v, want %v", tt.mode, got, tt.want)
		}
	}
}

func TestMapper_Map(t *testing.T) {
	m := NewMapper(640, 480, 1280, 720, Letterbox)

	tests := []struct {
		name  string
		in    pose.Landmark
		wantX float64
		wantY float64
	}{
		{"origin", pose.Landmark{X: 0, Y: 0}, 0, 0},
		{"centre", pose.Landmark{X: 0.5, Y: 0.5}, 480, 360},
		{"far corner", pose.Landmark{X: 1, Y: 1}, 960, 720},
		{"outside frame", pose.Landmark{X: 1.1, Y: -0.1}, 1056, -72},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.Map(tt.in)
			if math.Abs(got.X-tt.wantX) > epsilon || math.Abs(got.Y-tt.wantY) > epsilon {
				t.Errorf("Map() = (%f, %f), want (%f, %f)", got.X, got.Y, tt.wantX, tt.wantY)
			}
		})
	}
}
