package pose

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// IdleTimeout is how long the Python service may sit unused before it is stopped.
const IdleTimeout = 30 * time.Second

// gpuErrorCode is the error_code the service reports when the GPU delegate fails.
const gpuErrorCode = 1

// MediaPipeDetector implements Detector using a Python MediaPipe Pose Landmarker subprocess.
type MediaPipeDetector struct {
	config     Config
	mode       RunningMode
	scriptPath string
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	stdout     *bufio.Reader
	mu         sync.Mutex
	started    bool
	startedAt  time.Time
	idleTimer  *time.Timer
}

// NewMediaPipeDetector creates a new MediaPipe detector for the given running mode.
// The Python process is started lazily on first detection.
func NewMediaPipeDetector(config Config, mode RunningMode) (*MediaPipeDetector, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	scriptPath := findServiceScript()
	if scriptPath == "" {
		return nil, fmt.Errorf("pose_service.py not found")
	}

	return &MediaPipeDetector{
		config:     config,
		mode:       mode,
		scriptPath: scriptPath,
	}, nil
}

// Detect analyzes a frame and returns the detected poses.
func (d *MediaPipeDetector) Detect(frame *gocv.Mat) (*FrameResult, error) {
	if frame == nil || frame.Empty() {
		return nil, errors.New("empty frame")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ensureStarted(); err != nil {
		return nil, err
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	data := buf.GetBytes()

	// Write length (4 bytes big-endian) + data, then the stream timestamp
	header := make([]byte, 12)
	binary.BigEndian.PutUint32(header[:4], uint32(len(data)))
	timestampMs := time.Since(d.startedAt).Milliseconds()
	binary.BigEndian.PutUint64(header[4:], uint64(timestampMs))

	if _, err := d.stdin.Write(header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	if _, err := d.stdin.Write(data); err != nil {
		return nil, fmt.Errorf("write data: %w", err)
	}

	line, err := d.stdout.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var response jsonResponse
	if err := json.Unmarshal([]byte(line), &response); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	if err := response.err(); err != nil {
		return nil, err
	}

	result := response.toFrameResult()
	result.ImageWidth = frame.Cols()
	result.ImageHeight = frame.Rows()
	result.TimestampMs = timestampMs

	d.resetIdleTimer()

	return result, nil
}

// Close shuts down the Python process.
func (d *MediaPipeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shutdown()
}

func (d *MediaPipeDetector) args() []string {
	return []string{
		d.scriptPath,
		"--mode", d.mode.String(),
		"--model", d.config.Model.String(),
		"--delegate", d.config.Delegate.String(),
		"--num-poses", strconv.Itoa(d.config.MaxPoses),
		"--min-detection", strconv.FormatFloat(d.config.MinPoseDetectionConfidence, 'f', 2, 64),
		"--min-tracking", strconv.FormatFloat(d.config.MinPoseTrackingConfidence, 'f', 2, 64),
		"--min-presence", strconv.FormatFloat(d.config.MinPosePresenceConfidence, 'f', 2, 64),
	}
}

func (d *MediaPipeDetector) ensureStarted() error {
	if d.started {
		return nil
	}

	// Use virtual environment Python if available
	pythonPath := findVenvPython()
	if pythonPath == "" {
		pythonPath = "python3"
	}

	d.cmd = exec.Command(pythonPath, d.args()...)

	stdin, err := d.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := d.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	d.cmd.Stderr = os.Stderr

	if err := d.cmd.Start(); err != nil {
		return fmt.Errorf("start pose service: %w", err)
	}

	d.stdin = stdin
	d.stdout = bufio.NewReader(stdout)
	d.started = true
	d.startedAt = time.Now()

	return nil
}

func (d *MediaPipeDetector) shutdown() error {
	if !d.started {
		return nil
	}

	if d.idleTimer != nil {
		d.idleTimer.Stop()
		d.idleTimer = nil
	}

	if d.stdin != nil {
		d.stdin.Close()
	}

	err := d.cmd.Wait()
	d.started = false
	d.cmd = nil
	d.stdin = nil
	d.stdout = nil

	return err
}

func (d *MediaPipeDetector) resetIdleTimer() {
	if d.idleTimer != nil {
		d.idleTimer.Stop()
	}
	d.idleTimer = time.AfterFunc(IdleTimeout, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.shutdown()
	})
}

func findServiceScript() string {
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		"scripts/pose_service.py",
		"../scripts/pose_service.py",
		filepath.Join(execDir, "scripts/pose_service.py"),
		filepath.Join(os.Getenv("HOME"), ".gaitpose/scripts/pose_service.py"),
	}

	return firstExisting(candidates)
}

// findVenvPython looks for a Python interpreter in a virtual environment.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	return firstExisting([]string{
		"venv/bin/python",
		"../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".gaitpose/venv/bin/python"),
	})
}

func firstExisting(paths []string) string {
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}

// jsonResponse is the JSON line written by the Python service for each frame.
type jsonResponse struct {
	Poses       [][]Landmark `json:"poses"`
	InferenceMs int64        `json:"inference_ms"`
	Error       string       `json:"error,omitempty"`
	ErrorCode   int          `json:"error_code,omitempty"`
}

// err maps a service error to a Go error. GPU failures wrap
// ErrDelegateUnavailable so callers can fall back to CPU.
func (r jsonResponse) err() error {
	if r.Error == "" {
		return nil
	}
	if r.ErrorCode == gpuErrorCode {
		return fmt.Errorf("%w: %s", ErrDelegateUnavailable, r.Error)
	}
	return fmt.Errorf("pose service: %s", r.Error)
}

func (r jsonResponse) toFrameResult() *FrameResult {
	result := &FrameResult{
		Poses:         make([]Pose, 0, len(r.Poses)),
		InferenceTime: time.Duration(r.InferenceMs) * time.Millisecond,
	}

	for _, landmarks := range r.Poses {
		// Partial bodies would break the bone table invariant
		if len(landmarks) != NumLandmarks {
			continue
		}
		var p Pose
		copy(p[:], landmarks)
		result.Poses = append(result.Poses, p)
	}

	return result
}
