package pose

import (
	"errors"
	"fmt"
	"strings"

	"gocv.io/x/gocv"
)

// Detector defines the interface for pose landmark detection implementations.
type Detector interface {
	// Detect analyzes a frame and returns the detected poses.
	// A result with no poses is returned when nobody is in view.
	Detect(frame *gocv.Mat) (*FrameResult, error)

	// Close releases any resources held by the detector.
	Close() error
}

// ErrDelegateUnavailable is returned when the requested inference delegate
// cannot be used and the caller should retry on CPU.
var ErrDelegateUnavailable = errors.New("inference delegate unavailable")

// RunningMode is the input mode a frame was captured in.
type RunningMode int

const (
	ModeImage RunningMode = iota
	ModeVideo
	ModeLiveStream
)

func (m RunningMode) String() string {
	switch m {
	case ModeImage:
		return "image"
	case ModeVideo:
		return "video"
	case ModeLiveStream:
		return "live_stream"
	}
	return fmt.Sprintf("RunningMode(%d)", int(m))
}

// ParseRunningMode parses the string form produced by RunningMode.String.
func ParseRunningMode(s string) (RunningMode, error) {
	switch strings.ToLower(s) {
	case "image":
		return ModeImage, nil
	case "video":
		return ModeVideo, nil
	case "live_stream", "live":
		return ModeLiveStream, nil
	}
	return 0, fmt.Errorf("unknown running mode %q", s)
}

// Delegate selects the hardware used for inference.
type Delegate int

const (
	DelegateCPU Delegate = iota
	DelegateGPU
)

func (d Delegate) String() string {
	if d == DelegateGPU {
		return "gpu"
	}
	return "cpu"
}

// Model selects the pose landmarker model variant.
type Model int

const (
	ModelFull Model = iota
	ModelLite
	ModelHeavy
)

func (m Model) String() string {
	switch m {
	case ModelLite:
		return "lite"
	case ModelHeavy:
		return "heavy"
	}
	return "full"
}

// ParseModel parses "lite", "full" or "heavy".
func ParseModel(s string) (Model, error) {
	switch strings.ToLower(s) {
	case "full", "":
		return ModelFull, nil
	case "lite":
		return ModelLite, nil
	case "heavy":
		return ModelHeavy, nil
	}
	return 0, fmt.Errorf("unknown model %q", s)
}

// Threshold step and bounds used when nudging confidence values up or down.
const (
	ThresholdStep  = 0.1
	ThresholdFloor = 0.2
	ThresholdCeil  = 0.8
)

// Config holds configuration options for pose detection.
type Config struct {
	// MinPoseDetectionConfidence is the minimum score for a pose to be detected (0.0-1.0).
	MinPoseDetectionConfidence float64 `json:"min_pose_detection_confidence"`

	// MinPoseTrackingConfidence is the minimum tracking score between frames (0.0-1.0).
	MinPoseTrackingConfidence float64 `json:"min_pose_tracking_confidence"`

	// MinPosePresenceConfidence is the minimum pose presence score (0.0-1.0).
	MinPosePresenceConfidence float64 `json:"min_pose_presence_confidence"`

	Delegate Delegate `json:"delegate"`
	Model    Model    `json:"model"`

	// MaxPoses is the maximum number of bodies to detect (default: 1).
	MaxPoses int `json:"max_poses"`
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		MinPoseDetectionConfidence: 0.5,
		MinPoseTrackingConfidence:  0.5,
		MinPosePresenceConfidence:  0.5,
		Delegate:                   DelegateCPU,
		Model:                      ModelFull,
		MaxPoses:                   1,
	}
}

// Validate checks that every threshold lies in [0, 1] and MaxPoses is positive.
func (c Config) Validate() error {
	for name, v := range map[string]float64{
		"detection": c.MinPoseDetectionConfidence,
		"tracking":  c.MinPoseTrackingConfidence,
		"presence":  c.MinPosePresenceConfidence,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s confidence %.2f out of range [0, 1]", name, v)
		}
	}
	if c.MaxPoses < 1 {
		return fmt.Errorf("max poses must be at least 1, got %d", c.MaxPoses)
	}
	return nil
}

// Threshold names accepted by Config.Threshold, RaiseThreshold and LowerThreshold.
const (
	ThresholdDetection = "detection"
	ThresholdTracking  = "tracking"
	ThresholdPresence  = "presence"
)

func (c *Config) threshold(name string) (*float64, error) {
	switch name {
	case ThresholdDetection:
		return &c.MinPoseDetectionConfidence, nil
	case ThresholdTracking:
		return &c.MinPoseTrackingConfidence, nil
	case ThresholdPresence:
		return &c.MinPosePresenceConfidence, nil
	}
	return nil, fmt.Errorf("unknown threshold %q", name)
}

// RaiseThreshold increases the named threshold by ThresholdStep if it is
// currently at or below ThresholdCeil. It reports whether the value changed.
func (c *Config) RaiseThreshold(name string) (bool, error) {
	v, err := c.threshold(name)
	if err != nil {
		return false, err
	}
	if *v > ThresholdCeil+1e-6 {
		return false, nil
	}
	*v = roundStep(*v + ThresholdStep)
	return true, nil
}

// LowerThreshold decreases the named threshold by ThresholdStep if it is
// currently at or above ThresholdFloor. It reports whether the value changed.
func (c *Config) LowerThreshold(name string) (bool, error) {
	v, err := c.threshold(name)
	if err != nil {
		return false, err
	}
	if *v < ThresholdFloor-1e-6 {
		return false, nil
	}
	*v = roundStep(*v - ThresholdStep)
	return true, nil
}

// roundStep keeps repeated 0.1 steps from drifting (0.30000000000000004).
func roundStep(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
