// Package app ties pose detection, overlay rendering, landmark logging,
// persistence and analysis together for still images, videos and the live camera.
package app

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ayusman/gaitpose/internal/analyzer"
	"github.com/ayusman/gaitpose/internal/capture"
	"github.com/ayusman/gaitpose/internal/gaitlog"
	"github.com/ayusman/gaitpose/internal/overlay"
	"github.com/ayusman/gaitpose/internal/playback"
	"github.com/ayusman/gaitpose/internal/pose"
	"github.com/ayusman/gaitpose/internal/store"
	"gocv.io/x/gocv"
)

// DetectorFactory creates a detector for one running mode.
type DetectorFactory func(cfg pose.Config, mode pose.RunningMode) (pose.Detector, error)

// Config holds configuration options for the application.
type Config struct {
	Store *store.Store

	// NewDetector defaults to the MediaPipe subprocess detector.
	NewDetector DetectorFactory

	// Sink receives video exports. Defaults to a DirSink on OutputDir.
	Sink gaitlog.Sink
	// ExportFormat is the CSV layout used for video exports.
	ExportFormat gaitlog.Format

	// LogPath is the measurement block log. Empty disables block logging.
	LogPath string
	// OutputDir receives annotated images and playback frames.
	OutputDir string
	// Interval is the video sampling interval.
	Interval time.Duration

	AnalyzerDir     string
	AnalyzerTimeout time.Duration

	Camera          capture.Camera
	CameraConfig    capture.CameraConfig
	MotionThreshold float64
}

// App orchestrates detection for every input kind. All inference runs on a
// single background worker so frames are processed one at a time.
type App struct {
	config    Config
	worker    *worker
	logger    *gaitlog.BlockLogger
	analyzers *analyzer.Manager
	executor  *analyzer.Executor
	driver    *playback.Driver
	openVideo func(path string, interval time.Duration) (videoSource, error)

	mu        sync.RWMutex
	settings  pose.Config
	detectors map[pose.RunningMode]pose.Detector
	// retired detectors are closed on the worker before the next inference
	retired []pose.Detector

	live *liveState
}

// New creates an App. Saved detection settings are loaded from the store.
func New(config Config) (*App, error) {
	if config.Interval <= 0 {
		config.Interval = playback.DefaultInterval
	}
	if config.OutputDir == "" {
		config.OutputDir = gaitlog.DefaultExportDir()
	}
	if config.Sink == nil {
		config.Sink = gaitlog.DirSink{Dir: config.OutputDir}
	}
	if config.NewDetector == nil {
		config.NewDetector = func(cfg pose.Config, mode pose.RunningMode) (pose.Detector, error) {
			return pose.NewMediaPipeDetector(cfg, mode)
		}
	}
	if config.Camera == nil {
		if config.CameraConfig == (capture.CameraConfig{}) {
			config.CameraConfig = capture.DefaultCameraConfig()
		}
		config.Camera = capture.NewCamera(config.CameraConfig)
	}

	settings := pose.DefaultConfig()
	if config.Store != nil {
		saved, err := config.Store.Settings().LoadConfig()
		if err != nil {
			return nil, fmt.Errorf("load settings: %w", err)
		}
		settings = saved
	}

	a := &App{
		config:    config,
		worker:    newWorker(),
		analyzers: analyzer.NewManager(config.AnalyzerDir),
		executor:  analyzer.NewExecutor(config.AnalyzerTimeout),
		driver:    playback.NewDriver(),
		openVideo: openVideoFile,
		settings:  settings,
		detectors: make(map[pose.RunningMode]pose.Detector),
		live:      newLiveState(),
	}

	if config.LogPath != "" {
		a.logger = gaitlog.NewBlockLogger(config.LogPath)
	}

	if config.AnalyzerDir != "" {
		if err := a.analyzers.Discover(); err != nil {
			log.Printf("Analyzer discovery failed: %v", err)
		} else {
			log.Printf("Discovered %d analyzers in %s", len(a.analyzers.List()), config.AnalyzerDir)
		}
	}

	return a, nil
}

// Close stops the live pipeline and releases every detector.
func (a *App) Close() {
	a.Stop()
	a.driver.Hide()
	a.worker.stop()

	a.mu.Lock()
	defer a.mu.Unlock()
	a.retireDetectorsLocked()
	a.closeRetiredLocked()
}

// Settings returns the current detection settings.
func (a *App) Settings() pose.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.settings
}

// UpdateSettings validates, persists and applies cfg. Detectors are rebuilt
// with the new settings on their next use.
func (a *App) UpdateSettings(cfg pose.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if a.config.Store != nil {
		if err := a.config.Store.Settings().SaveConfig(cfg); err != nil {
			return fmt.Errorf("save settings: %w", err)
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.settings = cfg
	a.retireDetectorsLocked()
	return nil
}

// StepThreshold raises or lowers the named confidence threshold by one step.
// A value already at its limit is left unchanged.
func (a *App) StepThreshold(name string, raise bool) (pose.Config, error) {
	cfg := a.Settings()

	var changed bool
	var err error
	if raise {
		changed, err = cfg.RaiseThreshold(name)
	} else {
		changed, err = cfg.LowerThreshold(name)
	}
	if err != nil || !changed {
		return cfg, err
	}

	if err := a.UpdateSettings(cfg); err != nil {
		return a.Settings(), err
	}
	return cfg, nil
}

// Analyzers returns the analyzer manager.
func (a *App) Analyzers() *analyzer.Manager {
	return a.analyzers
}

// Playback returns the playback driver.
func (a *App) Playback() *playback.Driver {
	return a.driver
}

// detector returns the cached detector for mode, creating it on first use.
func (a *App) detector(mode pose.RunningMode) (pose.Detector, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.closeRetiredLocked()

	if d, ok := a.detectors[mode]; ok {
		return d, nil
	}

	d, err := a.config.NewDetector(a.settings, mode)
	if err != nil {
		return nil, fmt.Errorf("create %s detector: %w", mode, err)
	}
	a.detectors[mode] = d
	return d, nil
}

// detect runs one inference on the worker. When the GPU delegate fails the
// settings fall back to CPU and the frame is retried once.
func (a *App) detect(mode pose.RunningMode, frame *gocv.Mat) (*pose.FrameResult, error) {
	var result *pose.FrameResult
	var err error

	werr := a.worker.do(func() {
		result, err = a.detectOnce(mode, frame)
		if errors.Is(err, pose.ErrDelegateUnavailable) && a.Settings().Delegate == pose.DelegateGPU {
			log.Printf("GPU delegate unavailable, falling back to CPU")
			cfg := a.Settings()
			cfg.Delegate = pose.DelegateCPU
			if uerr := a.UpdateSettings(cfg); uerr != nil {
				err = uerr
				return
			}
			result, err = a.detectOnce(mode, frame)
		}
	})
	if werr != nil {
		return nil, werr
	}

	return result, err
}

func (a *App) detectOnce(mode pose.RunningMode, frame *gocv.Mat) (*pose.FrameResult, error) {
	d, err := a.detector(mode)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := d.Detect(frame)
	if err != nil {
		return nil, err
	}
	if result.InferenceTime == 0 {
		result.InferenceTime = time.Since(start)
	}
	if result.ImageWidth == 0 || result.ImageHeight == 0 {
		result.ImageWidth = frame.Cols()
		result.ImageHeight = frame.Rows()
	}
	return result, nil
}

func (a *App) retireDetectorsLocked() {
	for mode, d := range a.detectors {
		a.retired = append(a.retired, d)
		delete(a.detectors, mode)
	}
}

func (a *App) closeRetiredLocked() {
	for _, d := range a.retired {
		if err := d.Close(); err != nil {
			log.Printf("Error closing detector: %v", err)
		}
	}
	a.retired = nil
}

// newView creates an overlay view sized to the source frame, logging every
// result it is given when block logging is enabled.
func (a *App) newView(width, height int) *overlay.View {
	v := overlay.NewView(width, height)
	if a.logger != nil {
		v.Observe(a.logger)
	}
	return v
}
