package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ayusman/gaitpose/internal/analyzer"
	"github.com/ayusman/gaitpose/internal/capture"
	"github.com/ayusman/gaitpose/internal/gaitlog"
	"github.com/ayusman/gaitpose/internal/overlay"
	"github.com/ayusman/gaitpose/internal/pose"
	"github.com/ayusman/gaitpose/internal/store"
	"gocv.io/x/gocv"
)

// ImageResult is the outcome of RunImage.
type ImageResult struct {
	SessionID     string
	Result        *pose.FrameResult
	AnnotatedPath string
}

// VideoResult is the outcome of RunVideo. Results are ordered by sample
// index and are only read after RunVideo returns.
type VideoResult struct {
	SessionID      string
	Source         string
	Interval       time.Duration
	Results        []*pose.FrameResult
	ExportLocation string
	Analyses       []analyzer.Result
}

// ProgressFunc reports that done of total video samples were processed.
type ProgressFunc func(done, total int)

// videoSource is the part of capture.VideoFile the app needs.
type videoSource interface {
	Next() (*gocv.Mat, int64, error)
	At(timestampMs int64) (*gocv.Mat, error)
	Size() (int, int)
	FrameCount() int
	Close() error
}

func openVideoFile(path string, interval time.Duration) (videoSource, error) {
	return capture.OpenVideo(path, interval)
}

// RunImage detects poses in a still image, writes an annotated copy to the
// output directory and records the result. Nothing is recorded when the
// annotated copy cannot be written.
func (a *App) RunImage(ctx context.Context, path string) (*ImageResult, error) {
	if capture.DetectMediaType(path) != capture.MediaImage {
		return nil, fmt.Errorf("%s: %w", path, capture.ErrUnsupportedMedia)
	}

	img, err := capture.LoadImage(path)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := a.detect(pose.ModeImage, img)
	if err != nil {
		return nil, fmt.Errorf("detect %s: %w", path, err)
	}

	out := &ImageResult{Result: result}

	annotated := img.Clone()
	defer annotated.Close()

	view := a.newView(img.Cols(), img.Rows())
	view.SetResults(result, pose.ModeImage)
	view.Draw(overlay.NewMatCanvas(&annotated))

	// The session is only recorded once the annotated image exists.
	out.AnnotatedPath = filepath.Join(a.config.OutputDir, stem(path)+"_pose.png")
	if err := writeImage(out.AnnotatedPath, annotated); err != nil {
		return nil, err
	}

	out.SessionID, err = a.record(path, pose.ModeImage, img.Cols(), img.Rows(), 0, []*pose.FrameResult{result})
	if err != nil {
		os.Remove(out.AnnotatedPath)
		return nil, err
	}

	log.Printf("Image %s: %d poses in %v", filepath.Base(path), len(result.Poses), result.InferenceTime)
	return out, nil
}

// RunVideo samples the video every interval, detects poses in each sample,
// stores and exports the results and runs the analyzers on the export.
// When only the export fails the results are returned along with the error.
func (a *App) RunVideo(ctx context.Context, path string, progress ProgressFunc) (*VideoResult, error) {
	if capture.DetectMediaType(path) != capture.MediaVideo {
		return nil, fmt.Errorf("%s: %w", path, capture.ErrUnsupportedMedia)
	}

	src, err := a.openVideo(path, a.config.Interval)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	width, height := src.Size()
	total := src.FrameCount()
	started := time.Now()

	vr := &VideoResult{
		Source:   path,
		Interval: a.config.Interval,
		Results:  make([]*pose.FrameResult, 0, total),
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		frame, ts, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Printf("Skipping sample at %dms: %v", ts, err)
			continue
		}

		result, err := a.detect(pose.ModeVideo, frame)
		frame.Close()
		if err != nil {
			return nil, fmt.Errorf("detect sample at %dms: %w", ts, err)
		}
		result.TimestampMs = ts
		vr.Results = append(vr.Results, result)

		if progress != nil {
			progress(len(vr.Results), total)
		}
	}

	vr.SessionID, err = a.record(path, pose.ModeVideo, width, height, a.config.Interval.Milliseconds(), vr.Results)
	if err != nil {
		return nil, err
	}

	exporter := gaitlog.Exporter{Format: a.config.ExportFormat, Start: started}
	location, err := gaitlog.Export(ctx, exporter, vr.Results, a.config.Sink)
	if err != nil {
		return vr, fmt.Errorf("export landmarks: %w", err)
	}
	vr.ExportLocation = location
	log.Printf("Saved landmark CSV to %s", location)

	if a.config.Store != nil && vr.SessionID != "" {
		if err := a.config.Store.Sessions().SetExportLocation(vr.SessionID, location); err != nil {
			log.Printf("Failed to record export location: %v", err)
		}
	}

	vr.Analyses = a.analyze(ctx, vr.SessionID, location, exporter.Format)
	return vr, nil
}

// analyze runs the discovered analyzers over a local export.
func (a *App) analyze(ctx context.Context, sessionID, location string, format gaitlog.Format) []analyzer.Result {
	list := a.analyzers.List()
	if len(list) == 0 {
		return nil
	}
	if _, err := os.Stat(location); err != nil {
		log.Printf("Export %s is not a local file, skipping analyzers", location)
		return nil
	}

	return a.executor.RunAll(ctx, list, &analyzer.Request{
		Session: sessionID,
		CSVPath: location,
		Format:  format.String(),
	})
}

// RenderFrame is called by Replay for each annotated frame.
type RenderFrame func(index int, frame *gocv.Mat, result *pose.FrameResult)

// Replay plays the video's precomputed results back through the playback
// driver. Each tick draws the current result over the matching video frame
// and hands it to render. It returns the number of frames rendered.
func (a *App) Replay(ctx context.Context, vr *VideoResult, render RenderFrame) (int, error) {
	src, err := a.openVideo(vr.Source, vr.Interval)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	width, height := src.Size()
	view := a.newView(width, height)
	defer view.Clear()

	a.driver.Show()
	n := a.driver.Run(ctx, vr.Results, vr.Interval, func(index int, result *pose.FrameResult) {
		frame, err := src.At(result.TimestampMs)
		if err != nil {
			log.Printf("Playback frame %d: %v", index, err)
			return
		}
		defer frame.Close()

		view.SetResults(result, pose.ModeVideo)
		view.Draw(overlay.NewMatCanvas(frame))

		if render != nil {
			render(index, frame, result)
		}
	})

	return n, nil
}

// WriteFrames returns a RenderFrame that saves each annotated frame as a PNG
// in dir.
func WriteFrames(dir string) RenderFrame {
	return func(index int, frame *gocv.Mat, _ *pose.FrameResult) {
		path := filepath.Join(dir, fmt.Sprintf("frame_%04d.png", index))
		if err := writeImage(path, *frame); err != nil {
			log.Printf("Playback frame %d: %v", index, err)
		}
	}
}

// record stores a session and its frames. Without a store it does nothing.
func (a *App) record(source string, mode pose.RunningMode, width, height int, intervalMs int64, results []*pose.FrameResult) (string, error) {
	if a.config.Store == nil {
		return "", nil
	}

	sess := &store.Session{
		Source:      source,
		Mode:        mode,
		ImageWidth:  width,
		ImageHeight: height,
		IntervalMs:  intervalMs,
		Config:      a.Settings(),
	}
	if err := a.config.Store.Sessions().Create(sess); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}

	for i, r := range results {
		if err := a.config.Store.Frames().Append(sess.ID, i, r); err != nil {
			return sess.ID, fmt.Errorf("store frame %d: %w", i, err)
		}
	}
	return sess.ID, nil
}

func writeImage(path string, img gocv.Mat) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if ok := gocv.IMWrite(path, img); !ok {
		return fmt.Errorf("failed to write image %s", path)
	}
	return nil
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
