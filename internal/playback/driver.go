// Package playback replays precomputed frame results in step with elapsed
// video playback time.
package playback

import (
	"context"
	"sync"
	"time"

	"github.com/ayusman/gaitpose/internal/pose"
)

// DefaultInterval is the spacing between sampled video frames.
const DefaultInterval = 300 * time.Millisecond

// RenderFunc draws one frame result. index is its position in the results.
type RenderFunc func(index int, result *pose.FrameResult)

// Driver schedules frame results at a fixed rate while playback is visible.
type Driver struct {
	mu      sync.Mutex
	visible bool
	now     func() time.Time
}

// NewDriver returns a visible Driver.
func NewDriver() *Driver {
	return &Driver{visible: true, now: time.Now}
}

// Hide marks playback as hidden; a running schedule stops on its next tick.
func (d *Driver) Hide() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.visible = false
}

// Show marks playback as visible again.
func (d *Driver) Show() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.visible = true
}

// Visible reports whether playback is shown.
func (d *Driver) Visible() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.visible
}

// Run ticks every interval starting immediately. On each tick the result at
// index elapsed/interval is rendered. It returns when the index runs past the
// results, when playback is hidden, or when ctx is done. results is only read.
// It returns the number of renders performed.
func (d *Driver) Run(ctx context.Context, results []*pose.FrameResult, interval time.Duration, render RenderFunc) int {
	if interval <= 0 {
		interval = DefaultInterval
	}

	start := d.now()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	rendered := 0
	for {
		index := int(d.now().Sub(start) / interval)
		if index >= len(results) || !d.Visible() {
			return rendered
		}

		render(index, results[index])
		rendered++

		select {
		case <-ctx.Done():
			return rendered
		case <-ticker.C:
		}
	}
}

// Start runs the schedule on its own goroutine. The returned channel receives
// the render count and is closed when the schedule ends.
func (d *Driver) Start(ctx context.Context, results []*pose.FrameResult, interval time.Duration, render RenderFunc) <-chan int {
	done := make(chan int, 1)
	go func() {
		defer close(done)
		done <- d.Run(ctx, results, interval, render)
	}()
	return done
}
