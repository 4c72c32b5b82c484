// Package pose defines the pose landmark data model and the detector interface
// that produces it.
package pose

import "time"

// Pose landmark indices following the MediaPipe Pose Landmarker topology.
// See: https://developers.google.com/mediapipe/solutions/vision/pose_landmarker
const (
	Nose           = 0
	LeftEyeInner   = 1
	LeftEye        = 2
	LeftEyeOuter   = 3
	RightEyeInner  = 4
	RightEye       = 5
	RightEyeOuter  = 6
	LeftEar        = 7
	RightEar       = 8
	MouthLeft      = 9
	MouthRight     = 10
	LeftShoulder   = 11
	RightShoulder  = 12
	LeftElbow      = 13
	RightElbow     = 14
	LeftWrist      = 15
	RightWrist     = 16
	LeftPinky      = 17
	RightPinky     = 18
	LeftIndex      = 19
	RightIndex     = 20
	LeftThumb      = 21
	RightThumb     = 22
	LeftHip        = 23
	RightHip       = 24
	LeftKnee       = 25
	RightKnee      = 26
	LeftAnkle      = 27
	RightAnkle     = 28
	LeftHeel       = 29
	RightHeel      = 30
	LeftFootIndex  = 31
	RightFootIndex = 32
	NumLandmarks   = 33
)

var landmarkNames = [NumLandmarks]string{
	"nose", "left_eye_inner", "left_eye", "left_eye_outer",
	"right_eye_inner", "right_eye", "right_eye_outer",
	"left_ear", "right_ear", "mouth_left", "mouth_right",
	"left_shoulder", "right_shoulder", "left_elbow", "right_elbow",
	"left_wrist", "right_wrist", "left_pinky", "right_pinky",
	"left_index", "right_index", "left_thumb", "right_thumb",
	"left_hip", "right_hip", "left_knee", "right_knee",
	"left_ankle", "right_ankle", "left_heel", "right_heel",
	"left_foot_index", "right_foot_index",
}

// LandmarkName returns the snake_case name of landmark i, or "" if i is out of range.
func LandmarkName(i int) string {
	if i < 0 || i >= NumLandmarks {
		return ""
	}
	return landmarkNames[i]
}

// Landmark is a single body keypoint. X and Y are normalized to the source
// image (0-1 nominal), Z is depth relative to the hips.
type Landmark struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Visibility float64 `json:"visibility"`
	Presence   float64 `json:"presence"`
}

// Pose holds the landmarks of one detected body.
type Pose [NumLandmarks]Landmark

// FrameResult is one frame's worth of detected poses together with the
// dimensions of the image they were detected on.
type FrameResult struct {
	Poses         []Pose        `json:"poses"`
	ImageWidth    int           `json:"image_width"`
	ImageHeight   int           `json:"image_height"`
	TimestampMs   int64         `json:"timestamp_ms"`
	InferenceTime time.Duration `json:"inference_time"`
}

// Empty reports whether the result is nil or carries no poses.
func (r *FrameResult) Empty() bool {
	return r == nil || len(r.Poses) == 0
}

// First returns the first detected pose, or nil if there is none.
func (r *FrameResult) First() *Pose {
	if r.Empty() {
		return nil
	}
	return &r.Poses[0]
}
