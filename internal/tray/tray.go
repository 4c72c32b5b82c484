// Package tray provides the system tray menu for controlling live pose
// detection.
package tray

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ayusman/gaitpose/internal/pose"
	"github.com/getlantern/systray"
)

// refreshInterval is how often the inference time item is updated.
const refreshInterval = time.Second

// Live is the live pipeline controlled from the menu.
type Live interface {
	Start() error
	Stop()
	IsRunning() bool
	LastInferenceTime() time.Duration
}

// Tray represents the system tray application.
type Tray struct {
	live       Live
	onSettings func()
	onStep     func(name string, raise bool) (pose.Config, error)
	onQuit     func()
	mu         sync.RWMutex

	menuToggle    *systray.MenuItem
	menuInference *systray.MenuItem
	menuThreshold map[string]*systray.MenuItem
	stop          chan struct{}
}

// New creates a new Tray controlling live.
func New(live Live) *Tray {
	return &Tray{
		live:          live,
		menuThreshold: make(map[string]*systray.MenuItem),
		stop:          make(chan struct{}),
	}
}

// OnSettings sets the callback called when the settings menu item is clicked.
func (t *Tray) OnSettings(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onSettings = fn
}

// OnStep sets the callback used by the threshold raise and lower items.
func (t *Tray) OnStep(fn func(name string, raise bool) (pose.Config, error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onStep = fn
}

// OnQuit sets the callback called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("Gaitpose")
	systray.SetTooltip("Gaitpose Pose Detection")

	t.menuToggle = systray.AddMenuItem(toggleTitle(t.live.IsRunning()), "Start or stop live detection")
	systray.AddSeparator()

	t.menuInference = systray.AddMenuItem(inferenceTitle(0), "Last inference time")
	t.menuInference.Disable()
	systray.AddSeparator()

	menuThresholds := systray.AddMenuItem("Thresholds", "Detection confidence thresholds")
	type step struct {
		name  string
		raise bool
	}
	steps := make(map[*systray.MenuItem]step)
	for _, name := range []string{pose.ThresholdDetection, pose.ThresholdTracking, pose.ThresholdPresence} {
		t.menuThreshold[name] = menuThresholds.AddSubMenuItem(name, name+" confidence")
		t.menuThreshold[name].Disable()
		steps[menuThresholds.AddSubMenuItem("  Raise "+name, "")] = step{name, true}
		steps[menuThresholds.AddSubMenuItem("  Lower "+name, "")] = step{name, false}
	}

	menuSettings := systray.AddMenuItem("Open Settings...", "Open settings in browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit Gaitpose")

	for item, s := range steps {
		go func(item *systray.MenuItem, s step) {
			for range item.ClickedCh {
				t.handleStep(s.name, s.raise)
			}
		}(item, s)
	}

	go t.refresh()

	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuSettings.ClickedCh:
				t.handleSettings()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

// onExit is called when the system tray is about to exit.
func (t *Tray) onExit() {
	close(t.stop)
}

// refresh keeps the inference time and toggle title current.
func (t *Tray) refresh() {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.menuInference.SetTitle(inferenceTitle(t.live.LastInferenceTime()))
			t.menuToggle.SetTitle(toggleTitle(t.live.IsRunning()))
		}
	}
}

// handleToggle starts or stops live detection.
func (t *Tray) handleToggle() {
	if t.live.IsRunning() {
		t.live.Stop()
	} else if err := t.live.Start(); err != nil {
		log.Printf("Failed to start live detection: %v", err)
	}
	t.menuToggle.SetTitle(toggleTitle(t.live.IsRunning()))
}

// handleStep raises or lowers a threshold and shows the new value.
func (t *Tray) handleStep(name string, raise bool) {
	t.mu.RLock()
	callback := t.onStep
	t.mu.RUnlock()

	if callback == nil {
		return
	}
	cfg, err := callback(name, raise)
	if err != nil {
		log.Printf("Failed to change %s threshold: %v", name, err)
		return
	}
	t.SetThresholds(cfg)
}

// handleSettings handles the settings menu item click.
func (t *Tray) handleSettings() {
	t.mu.RLock()
	callback := t.onSettings
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// handleQuit handles the quit menu item click.
func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// Quit closes the tray, making Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

// SetThresholds updates the threshold labels in the menu.
func (t *Tray) SetThresholds(cfg pose.Config) {
	for name, v := range thresholdValues(cfg) {
		if item := t.menuThreshold[name]; item != nil {
			item.SetTitle(fmt.Sprintf("%s: %.1f", name, v))
		}
	}
}

func thresholdValues(cfg pose.Config) map[string]float64 {
	return map[string]float64{
		pose.ThresholdDetection: cfg.MinPoseDetectionConfidence,
		pose.ThresholdTracking:  cfg.MinPoseTrackingConfidence,
		pose.ThresholdPresence:  cfg.MinPosePresenceConfidence,
	}
}

func toggleTitle(running bool) string {
	if running {
		return "● Live"
	}
	return "○ Stopped"
}

func inferenceTitle(d time.Duration) string {
	if d <= 0 {
		return "Inference: -"
	}
	return fmt.Sprintf("Inference: %d ms", d.Milliseconds())
}
