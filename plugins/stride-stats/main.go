// Package main provides an analyzer that summarises ankle motion from a
// column-format landmark export.
package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Request represents the input from the analyzer executor.
type Request struct {
	Session string `json:"session"`
	CSVPath string `json:"csv_path"`
	Format  string `json:"format"`
}

// Response represents the output to the analyzer executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// AnkleStats summarises one ankle's normalized trajectory.
type AnkleStats struct {
	MeanY   float64 `json:"mean_y"`
	StdDevY float64 `json:"stddev_y"`
	MedianY float64 `json:"median_y"`
	RangeX  float64 `json:"range_x"`
}

// Summary is returned as the response data.
type Summary struct {
	Frames      int        `json:"frames"`
	Detected    int        `json:"detected"`
	LeftAnkle   AnkleStats `json:"left_ankle"`
	RightAnkle  AnkleStats `json:"right_ankle"`
	StepCount   int        `json:"step_count"`
	Correlation float64    `json:"correlation"`
}

const (
	leftAnkle  = 27
	rightAnkle = 28
)

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	if req.Format != "" && req.Format != "columns" {
		writeErrorResponse(fmt.Sprintf("unsupported format: %s", req.Format))
		return
	}

	f, err := os.Open(req.CSVPath)
	if err != nil {
		writeErrorResponse(fmt.Sprintf("failed to open csv: %v", err))
		return
	}
	defer f.Close()

	summary, err := analyze(f)
	if err != nil {
		writeErrorResponse(err.Error())
		return
	}

	data, err := json.Marshal(summary)
	if err != nil {
		writeErrorResponse(fmt.Sprintf("failed to encode summary: %v", err))
		return
	}
	writeResponse(Response{Success: true, Data: data})
}

// analyze reads a column export and computes ankle statistics over frames
// where both ankles were detected.
func analyze(r io.Reader) (*Summary, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("no frames in export")
	}

	header := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		header[name] = i
	}

	cols := make(map[string]int)
	for _, idx := range []int{leftAnkle, rightAnkle} {
		for _, axis := range []string{"x", "y"} {
			name := fmt.Sprintf("%d_%s", idx, axis)
			c, ok := header[name]
			if !ok {
				return nil, fmt.Errorf("missing column %s", name)
			}
			cols[name] = c
		}
	}

	var lx, ly, rx, ry []float64
	for _, rec := range records[1:] {
		vals := make(map[string]float64, len(cols))
		ok := true
		for name, c := range cols {
			if c >= len(rec) || rec[c] == "" {
				ok = false
				break
			}
			v, err := strconv.ParseFloat(rec[c], 64)
			if err != nil {
				return nil, fmt.Errorf("bad value in column %s: %w", name, err)
			}
			vals[name] = v
		}
		if !ok {
			continue
		}
		lx = append(lx, vals["27_x"])
		ly = append(ly, vals["27_y"])
		rx = append(rx, vals["28_x"])
		ry = append(ry, vals["28_y"])
	}

	s := &Summary{Frames: len(records) - 1, Detected: len(lx)}
	if len(lx) == 0 {
		return s, nil
	}

	s.LeftAnkle = ankleStats(lx, ly)
	s.RightAnkle = ankleStats(rx, ry)

	// Feet cross whenever the horizontal separation changes sign
	sep := make([]float64, len(lx))
	floats.SubTo(sep, lx, rx)
	s.StepCount = signChanges(sep)

	if len(ly) > 1 {
		s.Correlation = finite(stat.Correlation(ly, ry, nil))
	}

	return s, nil
}

func ankleStats(xs, ys []float64) AnkleStats {
	mean, std := stat.MeanStdDev(ys, nil)

	sorted := append([]float64(nil), ys...)
	sort.Float64s(sorted)

	return AnkleStats{
		MeanY:   mean,
		StdDevY: finite(std),
		MedianY: stat.Quantile(0.5, stat.Empirical, sorted, nil),
		RangeX:  floats.Max(xs) - floats.Min(xs),
	}
}

// finite maps NaN (single sample, constant series) to zero so the summary stays valid JSON.
func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func signChanges(xs []float64) int {
	n := 0
	prev := 0.0
	for _, v := range xs {
		if v == 0 {
			continue
		}
		if prev != 0 && (v > 0) != (prev > 0) {
			n++
		}
		prev = v
	}
	return n
}

// writeErrorResponse writes an error response to stdout.
func writeErrorResponse(msg string) {
	writeResponse(Response{Success: false, Error: msg})
}

func writeResponse(resp Response) {
	json.NewEncoder(os.Stdout).Encode(resp)
}
