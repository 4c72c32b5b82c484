package capture

import (
	"errors"
	"fmt"
	"io"
	"time"

	"gocv.io/x/gocv"
)

// VideoFile samples frames from a video file at a fixed interval.
type VideoFile struct {
	path       string
	capture    *gocv.VideoCapture
	interval   time.Duration
	durationMs int64
	width      int
	height     int
	next       int
}

// OpenVideo opens path for sampling one frame every interval.
func OpenVideo(path string, interval time.Duration) (*VideoFile, error) {
	if interval <= 0 {
		return nil, errors.New("sampling interval must be positive")
	}

	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("open video %s: %w", path, err)
	}

	fps := capture.Get(gocv.VideoCaptureFPS)
	frames := capture.Get(gocv.VideoCaptureFrameCount)
	if fps <= 0 || frames <= 0 {
		capture.Close()
		return nil, fmt.Errorf("video %s reports no frames", path)
	}

	return &VideoFile{
		path:       path,
		capture:    capture,
		interval:   interval,
		durationMs: int64(frames / fps * 1000),
		width:      int(capture.Get(gocv.VideoCaptureFrameWidth)),
		height:     int(capture.Get(gocv.VideoCaptureFrameHeight)),
	}, nil
}

// Size returns the frame dimensions.
func (v *VideoFile) Size() (int, int) {
	return v.width, v.height
}

// FrameCount returns how many frames Next will yield.
func (v *VideoFile) FrameCount() int {
	return SampleCount(v.durationMs, v.interval)
}

// SampleCount returns the number of samples taken from a video of durationMs
// when sampling at every interval, including the frame at time zero.
func SampleCount(durationMs int64, interval time.Duration) int {
	step := interval.Milliseconds()
	if step <= 0 || durationMs < 0 {
		return 0
	}
	return int(durationMs/step) + 1
}

// Next returns the next sampled frame and its position in the video in
// milliseconds. It returns io.EOF once every sample has been read.
// The caller is responsible for closing the returned Mat.
func (v *VideoFile) Next() (*gocv.Mat, int64, error) {
	if v.next >= v.FrameCount() {
		return nil, 0, io.EOF
	}

	timestampMs := int64(v.next) * v.interval.Milliseconds()
	v.next++

	mat, err := v.At(timestampMs)
	if err != nil {
		// Container durations are often rounded up past the last decodable frame
		if v.next >= v.FrameCount() {
			return nil, 0, io.EOF
		}
		return nil, timestampMs, err
	}

	return mat, timestampMs, nil
}

// At returns the frame shown at timestampMs without moving the sampling
// position of Next. The caller is responsible for closing the returned Mat.
func (v *VideoFile) At(timestampMs int64) (*gocv.Mat, error) {
	v.capture.Set(gocv.VideoCapturePosMsec, float64(timestampMs))

	mat := gocv.NewMat()
	if ok := v.capture.Read(&mat); !ok || mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("read frame at %dms", timestampMs)
	}
	return &mat, nil
}

// Close releases the underlying capture.
func (v *VideoFile) Close() error {
	return v.capture.Close()
}
