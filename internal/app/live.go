package app

import (
	"log"
	"sync"
	"time"

	"github.com/ayusman/gaitpose/internal/capture"
	"github.com/ayusman/gaitpose/internal/overlay"
	"github.com/ayusman/gaitpose/internal/pose"
	"gocv.io/x/gocv"
)

// Live pipeline frame rates.
const (
	// IdleFPS is the camera rate while the motion gate is closed.
	IdleFPS = 5
	// ActiveFPS is the camera rate while poses are being detected.
	ActiveFPS = 15
)

// subscriberBuffer is how many results a slow subscriber may lag behind
// before results are dropped for it.
const subscriberBuffer = 4

type liveState struct {
	mu      sync.RWMutex
	stopCh  chan struct{}
	done    chan struct{}
	session string

	latest        *pose.FrameResult
	jpeg          []byte
	lastInference time.Duration
	subs          map[chan *pose.FrameResult]struct{}
}

func newLiveState() *liveState {
	return &liveState{subs: make(map[chan *pose.FrameResult]struct{})}
}

// Start opens the camera and begins live detection. Calling Start on a
// running pipeline does nothing.
func (a *App) Start() error {
	a.live.mu.Lock()
	defer a.live.mu.Unlock()

	if a.live.stopCh != nil {
		return nil
	}

	if err := a.config.Camera.Open(); err != nil {
		return err
	}
	a.config.Camera.SetFPS(IdleFPS)

	width, height := a.config.Camera.Size()
	sessionID, err := a.record("camera", pose.ModeLiveStream, width, height, 0, nil)
	if err != nil {
		a.config.Camera.Close()
		return err
	}

	a.live.session = sessionID
	a.live.stopCh = make(chan struct{})
	a.live.done = make(chan struct{})

	go a.runLive(a.live.stopCh, a.live.done, sessionID)

	log.Println("Live detection started")
	return nil
}

// Stop halts live detection and waits for the pipeline to finish.
func (a *App) Stop() {
	a.live.mu.Lock()
	if a.live.stopCh == nil {
		a.live.mu.Unlock()
		return
	}
	close(a.live.stopCh)
	done := a.live.done
	a.live.stopCh = nil
	a.live.done = nil
	a.live.mu.Unlock()

	<-done

	if err := a.config.Camera.Close(); err != nil {
		log.Printf("Error closing camera: %v", err)
	}

	log.Println("Live detection stopped")
}

// IsRunning reports whether live detection is active.
func (a *App) IsRunning() bool {
	a.live.mu.RLock()
	defer a.live.mu.RUnlock()
	return a.live.stopCh != nil
}

// LiveSession returns the session the live pipeline records into.
func (a *App) LiveSession() string {
	a.live.mu.RLock()
	defer a.live.mu.RUnlock()
	return a.live.session
}

// Latest returns the most recent live result, or nil.
func (a *App) Latest() *pose.FrameResult {
	a.live.mu.RLock()
	defer a.live.mu.RUnlock()
	return a.live.latest
}

// LatestJPEG returns the most recent annotated live frame as JPEG, or nil.
func (a *App) LatestJPEG() []byte {
	a.live.mu.RLock()
	defer a.live.mu.RUnlock()
	return a.live.jpeg
}

// LastInferenceTime returns how long the most recent live inference took.
func (a *App) LastInferenceTime() time.Duration {
	a.live.mu.RLock()
	defer a.live.mu.RUnlock()
	return a.live.lastInference
}

// Subscribe returns a channel receiving every live result and a function
// that unsubscribes and closes the channel.
func (a *App) Subscribe() (<-chan *pose.FrameResult, func()) {
	ch := make(chan *pose.FrameResult, subscriberBuffer)

	a.live.mu.Lock()
	a.live.subs[ch] = struct{}{}
	a.live.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			a.live.mu.Lock()
			delete(a.live.subs, ch)
			a.live.mu.Unlock()
			close(ch)
		})
	}
}

func (a *App) publish(result *pose.FrameResult) {
	a.live.mu.Lock()
	defer a.live.mu.Unlock()

	a.live.latest = result
	a.live.lastInference = result.InferenceTime

	for ch := range a.live.subs {
		select {
		case ch <- result:
		default:
		}
	}
}

func (a *App) setLiveFrame(jpeg []byte) {
	a.live.mu.Lock()
	defer a.live.mu.Unlock()
	a.live.jpeg = jpeg
}

// runLive reads camera frames at the current rate, runs detection while the
// motion gate is open and publishes the annotated frame and result.
func (a *App) runLive(stop <-chan struct{}, done chan<- struct{}, sessionID string) {
	defer close(done)

	camera := a.config.Camera
	gate := capture.NewMotionGate(a.config.MotionThreshold, 0)
	defer gate.Close()

	width, height := camera.Size()
	view := a.newView(width, height)
	defer view.Clear()

	start := time.Now()
	index := 0
	active := false

	ticker := time.NewTicker(time.Second / IdleFPS)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		frame, err := camera.ReadFrame()
		if err != nil {
			log.Printf("Error reading frame: %v", err)
			continue
		}

		open := gate.Allow(frame)
		if open != active {
			active = open
			fps, state := IdleFPS, "idle"
			if active {
				fps, state = ActiveFPS, "active"
			}
			camera.SetFPS(fps)
			ticker.Reset(time.Second / time.Duration(fps))
			log.Printf("Switched to %s mode", state)
			if !active {
				view.Clear()
			}
		}

		if active {
			a.liveDetect(frame, view, sessionID, index, start)
			index++
		}

		view.Draw(overlay.NewMatCanvas(frame))
		a.encodeLiveFrame(frame)
		frame.Close()
	}
}

func (a *App) liveDetect(frame *gocv.Mat, view *overlay.View, sessionID string, index int, start time.Time) {
	result, err := a.detect(pose.ModeLiveStream, frame)
	if err != nil {
		log.Printf("Error detecting poses: %v", err)
		return
	}
	result.TimestampMs = time.Since(start).Milliseconds()

	view.SetResults(result, pose.ModeLiveStream)

	if a.config.Store != nil && sessionID != "" {
		if err := a.config.Store.Frames().Append(sessionID, index, result); err != nil {
			log.Printf("Failed to store live frame: %v", err)
		}
	}

	a.publish(result)
}

func (a *App) encodeLiveFrame(frame *gocv.Mat) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		log.Printf("Error encoding frame: %v", err)
		return
	}
	defer buf.Close()

	a.setLiveFrame(append([]byte(nil), buf.GetBytes()...))
}
