package app

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ayusman/gaitpose/internal/capture"
	"github.com/ayusman/gaitpose/internal/gaitlog"
	"github.com/ayusman/gaitpose/internal/pose"
	"github.com/ayusman/gaitpose/internal/store"
	"github.com/ayusman/gaitpose/testdata"
	"gocv.io/x/gocv"
)

// fakeVideo serves in-memory frames spaced interval apart.
type fakeVideo struct {
	frames   []*gocv.Mat
	interval time.Duration
	next     int
}

func (v *fakeVideo) Next() (*gocv.Mat, int64, error) {
	if v.next >= len(v.frames) {
		return nil, 0, io.EOF
	}
	ts := int64(v.next) * v.interval.Milliseconds()
	m := v.frames[v.next].Clone()
	v.next++
	return &m, ts, nil
}

func (v *fakeVideo) At(timestampMs int64) (*gocv.Mat, error) {
	i := int(timestampMs / v.interval.Milliseconds())
	if i >= len(v.frames) {
		i = len(v.frames) - 1
	}
	m := v.frames[i].Clone()
	return &m, nil
}

func (v *fakeVideo) Size() (int, int) { return testdata.Width, testdata.Height }
func (v *fakeVideo) FrameCount() int  { return len(v.frames) }
func (v *fakeVideo) Close() error     { return nil }

type failingSink struct{}

func (failingSink) Check(ctx context.Context) error { return gaitlog.ErrStorageUnavailable }
func (failingSink) Save(ctx context.Context, name string, data []byte) (string, error) {
	return "", errors.New("unreachable")
}

type testEnv struct {
	app      *App
	store    *store.Store
	detector *pose.MockDetector
	dir      string
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()

	dir := t.TempDir()
	s, err := store.New(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	det := pose.NewMockDetector()
	frames := testdata.WalkSequence(4)
	t.Cleanup(func() { testdata.CloseAll(frames) })

	cfg := Config{
		Store: s,
		NewDetector: func(pose.Config, pose.RunningMode) (pose.Detector, error) {
			return det, nil
		},
		LogPath:   filepath.Join(dir, "landmarks.csv"),
		OutputDir: filepath.Join(dir, "out"),
		Camera:    capture.NewMockCamera(frames, true),
	}
	if mutate != nil {
		mutate(&cfg)
	}

	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(a.Close)

	a.openVideo = func(path string, interval time.Duration) (videoSource, error) {
		return &fakeVideo{frames: frames, interval: interval}, nil
	}

	return &testEnv{app: a, store: s, detector: det, dir: dir}
}

func readLines(t *testing.T, path string) []string {
	t.Helper()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan %s: %v", path, err)
	}
	return lines
}

func TestApp_RunImage(t *testing.T) {
	env := newTestEnv(t, nil)
	env.detector.SetPoses([]pose.Pose{pose.StandingPose()})

	path, err := testdata.WriteImage(env.dir, "walker.png")
	if err != nil {
		t.Fatalf("WriteImage() error = %v", err)
	}

	res, err := env.app.RunImage(context.Background(), path)
	if err != nil {
		t.Fatalf("RunImage() error = %v", err)
	}

	if len(res.Result.Poses) != 1 {
		t.Errorf("poses = %d, want 1", len(res.Result.Poses))
	}
	if res.Result.ImageWidth != testdata.Width || res.Result.ImageHeight != testdata.Height {
		t.Errorf("size = %dx%d", res.Result.ImageWidth, res.Result.ImageHeight)
	}

	if _, err := os.Stat(res.AnnotatedPath); err != nil {
		t.Errorf("annotated image missing: %v", err)
	}
	if filepath.Base(res.AnnotatedPath) != "walker_pose.png" {
		t.Errorf("annotated name = %s", filepath.Base(res.AnnotatedPath))
	}

	lines := readLines(t, filepath.Join(env.dir, "landmarks.csv"))
	if len(lines) != 1 {
		t.Fatalf("block log has %d lines, want 1", len(lines))
	}
	if !strings.HasSuffix(lines[0], gaitlog.BlockTerminator) {
		t.Errorf("block does not end with terminator: %q", lines[0])
	}

	sess, err := env.store.Sessions().GetByID(res.SessionID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if sess.Mode != pose.ModeImage || sess.Frames != 1 {
		t.Errorf("session = %+v, want image session with 1 frame", sess)
	}
}

func TestApp_RunImage_OutputUnwritable(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0644); err != nil {
		t.Fatal(err)
	}

	env := newTestEnv(t, func(c *Config) {
		c.OutputDir = filepath.Join(blocker, "out")
	})
	env.detector.SetPoses([]pose.Pose{pose.StandingPose()})

	path, err := testdata.WriteImage(env.dir, "walker.png")
	if err != nil {
		t.Fatalf("WriteImage() error = %v", err)
	}

	if _, err := env.app.RunImage(context.Background(), path); err == nil {
		t.Fatal("RunImage() succeeded with an unwritable output directory")
	}

	sessions, err := env.store.Sessions().List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("sessions = %d after failed write, want 0", len(sessions))
	}
}

func TestApp_RunImage_Unsupported(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, name := range []string{"notes.txt", "walk.mp4", "noext"} {
		t.Run(name, func(t *testing.T) {
			_, err := env.app.RunImage(context.Background(), filepath.Join(env.dir, name))
			if !errors.Is(err, capture.ErrUnsupportedMedia) {
				t.Errorf("RunImage(%s) error = %v, want ErrUnsupportedMedia", name, err)
			}
		})
	}

	if _, err := env.app.RunVideo(context.Background(), "photo.jpg", nil); !errors.Is(err, capture.ErrUnsupportedMedia) {
		t.Errorf("RunVideo(photo.jpg) error = %v, want ErrUnsupportedMedia", err)
	}
}

func TestApp_RunVideo(t *testing.T) {
	env := newTestEnv(t, nil)
	env.detector.SetResults(
		&pose.FrameResult{Poses: []pose.Pose{pose.StridePose(0)}},
		&pose.FrameResult{Poses: []pose.Pose{}},
		&pose.FrameResult{Poses: []pose.Pose{pose.StridePose(1)}},
	)

	var progress [][2]int
	vr, err := env.app.RunVideo(context.Background(), "walk.mp4", func(done, total int) {
		progress = append(progress, [2]int{done, total})
	})
	if err != nil {
		t.Fatalf("RunVideo() error = %v", err)
	}

	if len(vr.Results) != 4 {
		t.Fatalf("results = %d, want 4", len(vr.Results))
	}
	for i, r := range vr.Results {
		if want := int64(i) * 300; r.TimestampMs != want {
			t.Errorf("result %d TimestampMs = %d, want %d", i, r.TimestampMs, want)
		}
	}
	if len(vr.Results[1].Poses) != 0 {
		t.Errorf("result 1 should have no poses")
	}

	if len(progress) != 4 || progress[3] != [2]int{4, 4} {
		t.Errorf("progress = %v", progress)
	}

	lines := readLines(t, vr.ExportLocation)
	if len(lines) != 5 {
		t.Fatalf("export has %d lines, want header + 4", len(lines))
	}
	if !strings.HasPrefix(lines[0], "Timestamp,11_x") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.HasPrefix(filepath.Base(vr.ExportLocation), "pose_landmarks_") {
		t.Errorf("export name = %s", vr.ExportLocation)
	}

	sess, err := env.store.Sessions().GetByID(vr.SessionID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if sess.ExportLocation != vr.ExportLocation || sess.Frames != 4 || sess.IntervalMs != 300 {
		t.Errorf("session = %+v", sess)
	}

	// Video processing does not log blocks; playback does
	if _, err := os.Stat(filepath.Join(env.dir, "landmarks.csv")); !os.IsNotExist(err) {
		t.Errorf("block log should not exist before playback: %v", err)
	}
}

func TestApp_RunVideo_ExportFailure(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.Sink = failingSink{} })
	env.detector.SetPoses([]pose.Pose{pose.StandingPose()})

	vr, err := env.app.RunVideo(context.Background(), "walk.mp4", nil)
	if !errors.Is(err, gaitlog.ErrStorageUnavailable) {
		t.Fatalf("RunVideo() error = %v, want ErrStorageUnavailable", err)
	}
	if vr == nil || len(vr.Results) != 4 {
		t.Fatal("results should still be returned when export fails")
	}
}

func TestApp_RunVideo_Cancelled(t *testing.T) {
	env := newTestEnv(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := env.app.RunVideo(ctx, "walk.mp4", nil); !errors.Is(err, context.Canceled) {
		t.Errorf("RunVideo() error = %v, want context.Canceled", err)
	}
}

func TestApp_RunVideo_Analyzers(t *testing.T) {
	analyzerDir := t.TempDir()
	dir := filepath.Join(analyzerDir, "echo")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	manifest := `{"name":"echo","executable":"run.sh","formats":["columns"]}`
	if err := os.WriteFile(filepath.Join(dir, "analyzer.json"), []byte(manifest), 0644); err != nil {
		t.Fatal(err)
	}
	script := "#!/bin/sh\ncat > /dev/null\necho '{\"success\":true,\"data\":{\"ok\":1}}'\n"
	if err := os.WriteFile(filepath.Join(dir, "run.sh"), []byte(script), 0755); err != nil {
		t.Fatal(err)
	}

	env := newTestEnv(t, func(c *Config) { c.AnalyzerDir = analyzerDir })
	env.detector.SetPoses([]pose.Pose{pose.StandingPose()})

	vr, err := env.app.RunVideo(context.Background(), "walk.mp4", nil)
	if err != nil {
		t.Fatalf("RunVideo() error = %v", err)
	}

	if len(vr.Analyses) != 1 {
		t.Fatalf("analyses = %d, want 1", len(vr.Analyses))
	}
	if a := vr.Analyses[0]; a.Analyzer != "echo" || a.Response == nil || !a.Response.Success {
		t.Errorf("analysis = %+v", a)
	}
}

func TestApp_Replay(t *testing.T) {
	env := newTestEnv(t, nil)
	env.detector.SetPoses([]pose.Pose{pose.StandingPose()})

	vr, err := env.app.RunVideo(context.Background(), "walk.mp4", nil)
	if err != nil {
		t.Fatalf("RunVideo() error = %v", err)
	}
	vr.Interval = 20 * time.Millisecond

	var mu sync.Mutex
	var indices []int
	n, err := env.app.Replay(context.Background(), vr, func(index int, frame *gocv.Mat, r *pose.FrameResult) {
		mu.Lock()
		indices = append(indices, index)
		mu.Unlock()
		if frame.Empty() || r == nil {
			t.Errorf("frame %d rendered without data", index)
		}
	})
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}

	if n == 0 || len(indices) != n {
		t.Fatalf("rendered %d frames, callback saw %d", n, len(indices))
	}
	if indices[0] != 0 {
		t.Errorf("first rendered index = %d, want 0", indices[0])
	}
	for i := 1; i < len(indices); i++ {
		if indices[i] <= indices[i-1] || indices[i] >= len(vr.Results) {
			t.Errorf("indices not increasing within range: %v", indices)
			break
		}
	}

	lines := readLines(t, filepath.Join(env.dir, "landmarks.csv"))
	if len(lines) != n {
		t.Errorf("block log has %d lines, want one per rendered frame (%d)", len(lines), n)
	}
}

func TestApp_StepThreshold(t *testing.T) {
	env := newTestEnv(t, nil)

	cfg, err := env.app.StepThreshold(pose.ThresholdDetection, true)
	if err != nil {
		t.Fatalf("StepThreshold() error = %v", err)
	}
	if cfg.MinPoseDetectionConfidence != 0.6 {
		t.Errorf("detection = %v, want 0.6", cfg.MinPoseDetectionConfidence)
	}

	saved, err := env.store.Settings().LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if saved != cfg {
		t.Errorf("saved = %+v, want %+v", saved, cfg)
	}

	for i := 0; i < 10; i++ {
		cfg, err = env.app.StepThreshold(pose.ThresholdDetection, true)
		if err != nil {
			t.Fatalf("StepThreshold() error = %v", err)
		}
	}
	if cfg.MinPoseDetectionConfidence != 0.9 {
		t.Errorf("detection after repeated raises = %v, want 0.9", cfg.MinPoseDetectionConfidence)
	}

	if _, err := env.app.StepThreshold("bogus", false); err == nil {
		t.Error("unknown threshold should fail")
	}
}

func TestApp_SettingsLoadedFromStore(t *testing.T) {
	dir := t.TempDir()
	s, err := store.New(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	want := pose.DefaultConfig()
	want.MinPosePresenceConfidence = 0.3
	if err := s.Settings().SaveConfig(want); err != nil {
		t.Fatal(err)
	}

	a, err := New(Config{Store: s, OutputDir: dir, Camera: capture.NewMockCamera(nil, false)})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()

	if got := a.Settings(); got != want {
		t.Errorf("Settings() = %+v, want %+v", got, want)
	}
}

// gpuFailDetector fails every frame with ErrDelegateUnavailable.
type gpuFailDetector struct{}

func (gpuFailDetector) Detect(*gocv.Mat) (*pose.FrameResult, error) {
	return nil, pose.ErrDelegateUnavailable
}
func (gpuFailDetector) Close() error { return nil }

func TestApp_GPUFallback(t *testing.T) {
	var created []pose.Delegate
	det := pose.NewMockDetector()
	det.SetPoses([]pose.Pose{pose.StandingPose()})

	env := newTestEnv(t, func(c *Config) {
		c.NewDetector = func(cfg pose.Config, mode pose.RunningMode) (pose.Detector, error) {
			created = append(created, cfg.Delegate)
			if cfg.Delegate == pose.DelegateGPU {
				return gpuFailDetector{}, nil
			}
			return det, nil
		}
	})

	cfg := env.app.Settings()
	cfg.Delegate = pose.DelegateGPU
	if err := env.app.UpdateSettings(cfg); err != nil {
		t.Fatal(err)
	}

	path, err := testdata.WriteImage(env.dir, "walker.jpg")
	if err != nil {
		t.Fatal(err)
	}

	res, err := env.app.RunImage(context.Background(), path)
	if err != nil {
		t.Fatalf("RunImage() error = %v", err)
	}
	if len(res.Result.Poses) != 1 {
		t.Errorf("poses = %d, want 1", len(res.Result.Poses))
	}
	if got := env.app.Settings().Delegate; got != pose.DelegateCPU {
		t.Errorf("delegate after fallback = %v, want CPU", got)
	}
	if len(created) != 2 || created[0] != pose.DelegateGPU || created[1] != pose.DelegateCPU {
		t.Errorf("detectors created with %v", created)
	}
}

func TestApp_Live(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping live pipeline test")
	}

	env := newTestEnv(t, nil)
	env.detector.SetPoses([]pose.Pose{pose.StandingPose()})

	results, unsubscribe := env.app.Subscribe()
	defer unsubscribe()

	if err := env.app.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !env.app.IsRunning() {
		t.Error("IsRunning() = false after Start")
	}

	select {
	case r := <-results:
		if len(r.Poses) != 1 {
			t.Errorf("live result poses = %d, want 1", len(r.Poses))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no live result within 5s")
	}

	env.app.Stop()
	if env.app.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}

	cam := env.app.config.Camera.(*capture.MockCamera)
	history := cam.FPSHistory()
	if len(history) < 2 || history[0] != IdleFPS || history[1] != ActiveFPS {
		t.Errorf("camera FPS history = %v, want idle then active", history)
	}

	if env.app.Latest() == nil {
		t.Error("Latest() = nil after a live result")
	}
	if len(env.app.LatestJPEG()) == 0 {
		t.Error("LatestJPEG() empty after live frames")
	}

	frames, err := env.store.Frames().ListBySession(env.app.LiveSession())
	if err != nil {
		t.Fatalf("ListBySession() error = %v", err)
	}
	if len(frames) == 0 {
		t.Error("live frames were not stored")
	}
}

func TestApp_DetectAfterClose(t *testing.T) {
	env := newTestEnv(t, nil)
	env.app.Close()

	frame := testdata.SolidFrame(8, 8, 0)
	defer frame.Close()

	if _, err := env.app.detect(pose.ModeImage, frame); !errors.Is(err, ErrStopped) {
		t.Errorf("detect after Close error = %v, want ErrStopped", err)
	}
}
