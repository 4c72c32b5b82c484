package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/ayusman/gaitpose/internal/app"
	"github.com/ayusman/gaitpose/internal/capture"
	"github.com/ayusman/gaitpose/internal/gaitlog"
	"github.com/ayusman/gaitpose/internal/playback"
	"github.com/ayusman/gaitpose/internal/pose"
	"github.com/ayusman/gaitpose/internal/server"
	"github.com/ayusman/gaitpose/internal/store"
	"github.com/ayusman/gaitpose/internal/tray"
	"github.com/cheggaaa/pb/v3"
	"github.com/joho/godotenv"
)

type options struct {
	image     string
	video     string
	replay    string
	serve     bool
	tray      bool
	addr      string
	out       string
	data      string
	csv       string
	format    string
	analyzers string
	interval  time.Duration
	camera    int

	detection float64
	tracking  float64
	presence  float64
	maxPoses  int
	model     string
	gpu       bool
}

func parseFlags() options {
	var o options
	flag.StringVar(&o.image, "image", "", "detect poses in a still image")
	flag.StringVar(&o.video, "video", "", "detect poses in a video file")
	flag.StringVar(&o.replay, "replay", "", "after -video, write annotated playback frames to this directory")
	flag.BoolVar(&o.serve, "serve", false, "run the HTTP server")
	flag.BoolVar(&o.tray, "tray", false, "show the system tray menu (implies -serve)")
	flag.StringVar(&o.addr, "addr", ":8080", "HTTP listen address")
	flag.StringVar(&o.out, "out", gaitlog.DefaultExportDir(), "directory for exports and annotated images")
	flag.StringVar(&o.data, "data", defaultDataDir(), "directory for the session database")
	flag.StringVar(&o.csv, "csv", "", "append measurement blocks to this CSV log (default <data>/landmarks.csv, \"-\" disables)")
	flag.StringVar(&o.format, "format", "columns", "video export layout: columns or blocks")
	flag.StringVar(&o.analyzers, "analyzers", "", "directory of post-export analyzers")
	flag.DurationVar(&o.interval, "interval", playback.DefaultInterval, "video sampling interval")
	flag.IntVar(&o.camera, "camera", 0, "camera device ID")

	flag.Float64Var(&o.detection, "detection", -1, "minimum pose detection confidence")
	flag.Float64Var(&o.tracking, "tracking", -1, "minimum pose tracking confidence")
	flag.Float64Var(&o.presence, "presence", -1, "minimum pose presence confidence")
	flag.IntVar(&o.maxPoses, "max-poses", 0, "maximum number of poses per frame")
	flag.StringVar(&o.model, "model", "", "pose model: lite, full or heavy")
	flag.BoolVar(&o.gpu, "gpu", false, "use the GPU delegate")
	flag.Parse()
	return o
}

func main() {
	o := parseFlags()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	if o.image == "" && o.video == "" && !o.serve && !o.tray {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(o.data, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}
	st, err := store.New(filepath.Join(o.data, "gaitpose.db"))
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer st.Close()

	format, err := gaitlog.ParseFormat(o.format)
	if err != nil {
		log.Fatal(err)
	}

	sink, err := sinkFromEnv(o.out)
	if err != nil {
		log.Fatalf("Failed to configure export storage: %v", err)
	}

	camCfg := capture.DefaultCameraConfig()
	camCfg.DeviceID = o.camera

	a, err := app.New(app.Config{
		Store:        st,
		Sink:         sink,
		ExportFormat: format,
		LogPath:      blockLogPath(o.csv, o.data),
		OutputDir:    o.out,
		Interval:     o.interval,
		AnalyzerDir:  o.analyzers,
		CameraConfig: camCfg,
	})
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer a.Close()

	if err := applySettingFlags(a, o); err != nil {
		log.Fatalf("Invalid detection settings: %v", err)
	}

	if o.image != "" {
		if err := runImage(ctx, a, o.image); err != nil {
			log.Fatalf("Image failed: %v", err)
		}
	}

	if o.video != "" {
		if err := runVideo(ctx, a, o.video, o.replay); err != nil {
			log.Fatalf("Video failed: %v", err)
		}
	}

	if o.serve || o.tray {
		if err := serve(ctx, stop, a, st, o); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	}
}

// applySettingFlags overrides the saved detection settings with any
// threshold flags given on the command line.
func applySettingFlags(a *app.App, o options) error {
	cfg := a.Settings()
	changed := false

	set := func(dst *float64, v float64) {
		if v >= 0 {
			*dst = v
			changed = true
		}
	}
	set(&cfg.MinPoseDetectionConfidence, o.detection)
	set(&cfg.MinPoseTrackingConfidence, o.tracking)
	set(&cfg.MinPosePresenceConfidence, o.presence)

	if o.maxPoses > 0 {
		cfg.MaxPoses = o.maxPoses
		changed = true
	}
	if o.model != "" {
		m, err := pose.ParseModel(o.model)
		if err != nil {
			return err
		}
		cfg.Model = m
		changed = true
	}
	if o.gpu {
		cfg.Delegate = pose.DelegateGPU
		changed = true
	}

	if !changed {
		return nil
	}
	return a.UpdateSettings(cfg)
}

func runImage(ctx context.Context, a *app.App, path string) error {
	res, err := a.RunImage(ctx, path)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d poses in %v, annotated image %s\n",
		filepath.Base(path), len(res.Result.Poses), res.Result.InferenceTime, res.AnnotatedPath)
	return nil
}

const progressTemplate = `{{ string . "prefix" }} {{counters . "%s/%s" "%s/?"}} {{bar . }} {{percent . "%.01f%%" "?"}} {{etime . "%s elapsed"}}`

func runVideo(ctx context.Context, a *app.App, path, replayDir string) error {
	bar := pb.ProgressBarTemplate(progressTemplate).Start(0)
	bar.Set("prefix", filepath.Base(path))

	vr, err := a.RunVideo(ctx, path, func(done, total int) {
		bar.SetTotal(int64(total))
		bar.SetCurrent(int64(done))
	})
	bar.Finish()

	if vr == nil {
		return err
	}
	if err != nil {
		// Results are still usable for playback when only the export failed.
		log.Printf("Export failed: %v", err)
	} else {
		fmt.Printf("Exported %d samples to %s\n", len(vr.Results), vr.ExportLocation)
	}

	for _, r := range vr.Analyses {
		if r.Err != "" {
			fmt.Printf("  %s: %s\n", r.Analyzer, r.Err)
			continue
		}
		fmt.Printf("  %s: %s\n", r.Analyzer, r.Response.Data)
	}

	if replayDir == "" {
		return nil
	}
	if err := os.MkdirAll(replayDir, 0755); err != nil {
		return err
	}
	n, err := a.Replay(ctx, vr, app.WriteFrames(replayDir))
	if err != nil {
		return err
	}
	fmt.Printf("Wrote %d playback frames to %s\n", n, replayDir)
	return nil
}

func serve(ctx context.Context, stop context.CancelFunc, a *app.App, st *store.Store, o options) error {
	webDir := findWebDir()
	if webDir != "" {
		log.Printf("Serving static files from: %s", webDir)
	}

	srv := server.New(server.Config{
		StaticDir: webDir,
		Store:     st,
		Settings:  a,
		Live:      a,
	}).HTTPServer(o.addr)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting server on %s", o.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	if o.tray {
		t := tray.New(a)
		t.OnStep(a.StepThreshold)
		t.OnSettings(func() { openBrowser(settingsURL(o.addr)) })
		t.OnQuit(stop)
		go func() {
			<-ctx.Done()
			t.Quit()
		}()
		t.Run()
	} else {
		select {
		case <-ctx.Done():
		case err := <-errCh:
			return err
		}
	}

	log.Println("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// settingsURL returns the browser URL of the server listening on addr.
func settingsURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr + "/"
	}
	if host == "" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port) + "/"
}

func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		log.Printf("Failed to open browser: %v", err)
	}
}

// blockLogPath resolves the -csv flag. An empty value logs under the data
// directory and "-" turns block logging off.
func blockLogPath(csv, data string) string {
	switch csv {
	case "":
		return filepath.Join(data, "landmarks.csv")
	case "-":
		return ""
	}
	return csv
}

func defaultDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".gaitpose"
	}
	return filepath.Join(homeDir, ".gaitpose")
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.gaitpose/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	homeWebDir := filepath.Join(defaultDataDir(), "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}
