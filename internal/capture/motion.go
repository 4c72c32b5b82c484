package capture

import (
	"image"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// Motion detection constants
const (
	// GaussianBlurSize is the kernel size for Gaussian blur (21x21)
	GaussianBlurSize = 21
	// DiffThreshold is the binary threshold for difference detection
	DiffThreshold = 25
	// DefaultMotionThreshold is the percentage of changed pixels that counts as motion.
	DefaultMotionThreshold = 1.0
	// DefaultIdleTimeout is how long the gate stays open after the last motion.
	DefaultIdleTimeout = 2 * time.Second
)

// MotionGate decides whether a live frame is worth running pose inference on.
// It opens when consecutive frames differ by more than the threshold and
// closes again after the idle timeout passes without motion.
type MotionGate struct {
	threshold   float64
	idleTimeout time.Duration
	prevGray    gocv.Mat
	initialized bool
	open        bool
	lastMotion  time.Time
	now         func() time.Time
	mu          sync.Mutex
}

// NewMotionGate creates a gate. threshold is the percentage of pixels that
// must change; values <= 0 select DefaultMotionThreshold.
func NewMotionGate(threshold float64, idleTimeout time.Duration) *MotionGate {
	if threshold <= 0 {
		threshold = DefaultMotionThreshold
	}
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &MotionGate{
		threshold:   threshold,
		idleTimeout: idleTimeout,
		prevGray:    gocv.NewMat(),
		now:         time.Now,
	}
}

// Allow feeds frame to the gate and reports whether inference should run.
func (g *MotionGate) Allow(frame *gocv.Mat) bool {
	moved, _ := g.Detect(frame)

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if moved {
		g.open = true
		g.lastMotion = now
	} else if g.open && now.Sub(g.lastMotion) > g.idleTimeout {
		g.open = false
	}
	return g.open
}

// IsOpen reports the gate state after the last Allow call.
func (g *MotionGate) IsOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open
}

// Detect compares frame with the previous one and returns whether the share
// of changed pixels exceeds the threshold, and that share in percent.
// The first frame only establishes the baseline.
func (g *MotionGate) Detect(frame *gocv.Mat) (bool, float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if frame == nil || frame.Empty() {
		return false, 0
	}

	gray := gocv.NewMat()
	defer gray.Close()

	if frame.Channels() > 1 {
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Point{X: GaussianBlurSize, Y: GaussianBlurSize}, 0, 0, gocv.BorderDefault)

	if !g.initialized || blurred.Rows() != g.prevGray.Rows() || blurred.Cols() != g.prevGray.Cols() {
		blurred.CopyTo(&g.prevGray)
		g.initialized = true
		return false, 0
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(blurred, g.prevGray, &diff)

	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.Threshold(diff, &thresh, DiffThreshold, 255, gocv.ThresholdBinary)

	changePercent := float64(gocv.CountNonZero(thresh)) / float64(thresh.Rows()*thresh.Cols()) * 100.0

	blurred.CopyTo(&g.prevGray)

	return changePercent > g.threshold, changePercent
}

// Reset forgets the baseline frame and closes the gate.
func (g *MotionGate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.prevGray.Close()
	g.prevGray = gocv.NewMat()
	g.initialized = false
	g.open = false
}

// Close releases resources used by the gate.
func (g *MotionGate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.prevGray.Close()
	g.initialized = false
	g.open = false
}
