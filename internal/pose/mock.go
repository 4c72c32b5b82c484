package pose

import (
	"math"
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu      sync.Mutex
	results []*FrameResult
	next    int
	err     error
	calls   int
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetPoses makes every call to Detect return a result with the given poses.
func (m *MockDetector) SetPoses(poses []Pose) {
	m.SetResults(&FrameResult{Poses: poses})
}

// SetResults sets the results returned by successive Detect calls.
// The last result is repeated once the sequence is exhausted.
func (m *MockDetector) SetResults(results ...*FrameResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = results
	m.next = 0
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times Detect has been called.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Detect returns the pre-configured result or error. When a frame is given,
// the image dimensions of the returned copy are taken from it.
func (m *MockDetector) Detect(frame *gocv.Mat) (*FrameResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.err != nil {
		return nil, m.err
	}

	result := &FrameResult{}
	if len(m.results) > 0 {
		i := m.next
		if i >= len(m.results) {
			i = len(m.results) - 1
		} else {
			m.next++
		}
		if src := m.results[i]; src != nil {
			*result = *src
			result.Poses = append([]Pose(nil), src.Poses...)
		}
	}

	if frame != nil && !frame.Empty() {
		result.ImageWidth = frame.Cols()
		result.ImageHeight = frame.Rows()
	}

	return result, nil
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// StandingPose returns a front-facing upright body centred in the frame with
// every landmark fully visible.
func StandingPose() Pose {
	var p Pose

	set := func(i int, x, y float64) {
		p[i] = Landmark{X: x, Y: y, Z: 0, Visibility: 0.99, Presence: 0.99}
	}

	set(Nose, 0.50, 0.12)
	set(LeftEyeInner, 0.51, 0.10)
	set(LeftEye, 0.52, 0.10)
	set(LeftEyeOuter, 0.53, 0.10)
	set(RightEyeInner, 0.49, 0.10)
	set(RightEye, 0.48, 0.10)
	set(RightEyeOuter, 0.47, 0.10)
	set(LeftEar, 0.55, 0.11)
	set(RightEar, 0.45, 0.11)
	set(MouthLeft, 0.52, 0.14)
	set(MouthRight, 0.48, 0.14)

	set(LeftShoulder, 0.58, 0.25)
	set(RightShoulder, 0.42, 0.25)
	set(LeftElbow, 0.61, 0.38)
	set(RightElbow, 0.39, 0.38)
	set(LeftWrist, 0.62, 0.50)
	set(RightWrist, 0.38, 0.50)
	set(LeftPinky, 0.63, 0.53)
	set(RightPinky, 0.37, 0.53)
	set(LeftIndex, 0.62, 0.54)
	set(RightIndex, 0.38, 0.54)
	set(LeftThumb, 0.61, 0.52)
	set(RightThumb, 0.39, 0.52)

	set(LeftHip, 0.55, 0.52)
	set(RightHip, 0.45, 0.52)
	set(LeftKnee, 0.55, 0.70)
	set(RightKnee, 0.45, 0.70)
	set(LeftAnkle, 0.55, 0.88)
	set(RightAnkle, 0.45, 0.88)
	set(LeftHeel, 0.55, 0.90)
	set(RightHeel, 0.45, 0.90)
	set(LeftFootIndex, 0.57, 0.92)
	set(RightFootIndex, 0.43, 0.92)

	return p
}

// StridePose returns a StandingPose with the legs swung through a walking
// cycle. phase is in radians; 0 and pi are mid-stance, pi/2 and 3pi/2 are
// maximum stride with the left and right foot forward respectively.
func StridePose(phase float64) Pose {
	p := StandingPose()

	swing := 0.06 * math.Sin(phase)
	lift := 0.03 * math.Max(0, math.Cos(phase))

	for _, i := range []int{LeftKnee, LeftAnkle, LeftHeel, LeftFootIndex} {
		p[i].X += swing
	}
	for _, i := range []int{RightKnee, RightAnkle, RightHeel, RightFootIndex} {
		p[i].X -= swing
	}
	for _, i := range []int{LeftAnkle, LeftHeel, LeftFootIndex} {
		p[i].Y -= lift
	}
	for _, i := range []int{RightAnkle, RightHeel, RightFootIndex} {
		p[i].Y -= 0.03 * math.Max(0, -math.Cos(phase))
	}

	return p
}
