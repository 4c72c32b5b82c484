package gaitlog

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/ayusman/gaitpose/internal/pose"
)

// Format selects the CSV layout of an export.
type Format int

const (
	// FormatColumns writes a header and one row per frame with the gait
	// landmarks of the first pose.
	FormatColumns Format = iota
	// FormatBlocks writes one measurement block per frame with every landmark.
	FormatBlocks
)

func (f Format) String() string {
	if f == FormatBlocks {
		return "blocks"
	}
	return "columns"
}

// ParseFormat parses "columns" or "blocks".
func ParseFormat(s string) (Format, error) {
	switch s {
	case "columns", "":
		return FormatColumns, nil
	case "blocks":
		return FormatBlocks, nil
	}
	return 0, fmt.Errorf("unknown export format %q", s)
}

// Exporter renders a sequence of frame results as a single CSV document.
type Exporter struct {
	Format Format
	// Indices are the landmarks written in column format. Defaults to GaitIndices.
	Indices []int
	// Start is the wall-clock time of the first frame; block timestamps are
	// Start plus the frame's TimestampMs.
	Start time.Time
}

// Encode writes frames to w.
func (e Exporter) Encode(w io.Writer, frames []*pose.FrameResult) error {
	cw := csv.NewWriter(w)

	switch e.Format {
	case FormatBlocks:
		for _, r := range frames {
			ts := e.Start
			if r != nil {
				ts = ts.Add(time.Duration(r.TimestampMs) * time.Millisecond)
			}
			if err := cw.Write(BlockRecord(ts, r)); err != nil {
				return err
			}
		}
	default:
		indices := e.Indices
		if len(indices) == 0 {
			indices = GaitIndices
		}
		for _, i := range indices {
			if i < 0 || i >= pose.NumLandmarks {
				return fmt.Errorf("landmark index %d out of range", i)
			}
		}
		if err := cw.Write(ColumnHeader(indices)); err != nil {
			return err
		}
		for _, r := range frames {
			if err := cw.Write(ColumnRecord(r, indices)); err != nil {
				return err
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

// Bytes renders the whole document in memory.
func (e Exporter) Bytes(frames []*pose.FrameResult) ([]byte, error) {
	var buf bytes.Buffer
	if err := e.Encode(&buf, frames); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FileName returns the export file name for a save made at t.
func FileName(t time.Time) string {
	return fmt.Sprintf("pose_landmarks_%d.csv", t.UnixMilli())
}

// Export checks the sink, builds the CSV in memory and stores it with a
// single write. It returns the location reported by the sink.
func Export(ctx context.Context, e Exporter, frames []*pose.FrameResult, sink Sink) (string, error) {
	if err := sink.Check(ctx); err != nil {
		return "", err
	}

	data, err := e.Bytes(frames)
	if err != nil {
		return "", fmt.Errorf("encode csv: %w", err)
	}

	location, err := sink.Save(ctx, FileName(time.Now()), data)
	if err != nil {
		return "", fmt.Errorf("save csv: %w", err)
	}
	return location, nil
}
