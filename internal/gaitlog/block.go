// Package gaitlog records pose landmarks to CSV for offline gait analysis.
package gaitlog

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/ayusman/gaitpose/internal/pose"
)

// BlockTerminator ends every measurement block.
const BlockTerminator = "END OF MEASUREMENT BLOCK"

// FormatTimestamp renders t as yyyy-MM-dd:HH:mm:ss:SSS.
func FormatTimestamp(t time.Time) string {
	return fmt.Sprintf("%s:%03d", t.Format("2006-01-02:15:04:05"), t.Nanosecond()/int(time.Millisecond))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// BlockRecord returns the fields of one measurement block: the timestamp,
// x,y,z,visibility,presence for every landmark of every pose, and the
// terminator.
func BlockRecord(ts time.Time, r *pose.FrameResult) []string {
	n := 0
	if r != nil {
		n = len(r.Poses) * pose.NumLandmarks * 5
	}

	record := make([]string, 0, n+2)
	record = append(record, FormatTimestamp(ts))
	if r != nil {
		for _, p := range r.Poses {
			for _, l := range p {
				record = append(record,
					formatFloat(l.X),
					formatFloat(l.Y),
					formatFloat(l.Z),
					formatFloat(l.Visibility),
					formatFloat(l.Presence),
				)
			}
		}
	}
	return append(record, BlockTerminator)
}

// WriteBlock writes one measurement block line to w.
func WriteBlock(w io.Writer, ts time.Time, r *pose.FrameResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(BlockRecord(ts, r)); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// BlockLogger appends a measurement block per frame to a file. It assumes a
// single producer; the mutex only keeps blocks from interleaving.
type BlockLogger struct {
	path string
	now  func() time.Time
	mu   sync.Mutex
}

// NewBlockLogger creates a logger appending to path.
func NewBlockLogger(path string) *BlockLogger {
	return &BlockLogger{path: path, now: time.Now}
}

// Path returns the file the logger appends to.
func (l *BlockLogger) Path() string {
	return l.path
}

// Append writes the block for r. Blocks are never rewritten.
func (l *BlockLogger) Append(r *pose.FrameResult) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open landmark log: %w", err)
	}

	if err := WriteBlock(f, l.now(), r); err != nil {
		f.Close()
		return fmt.Errorf("append landmark block: %w", err)
	}

	return f.Close()
}

// OnResult implements overlay.Observer. A nil result (a cleared view) is not logged.
func (l *BlockLogger) OnResult(r *pose.FrameResult) {
	if r == nil {
		return
	}
	if err := l.Append(r); err != nil {
		log.Printf("Landmark logging failed: %v", err)
	}
}
