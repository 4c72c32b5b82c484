package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os/exec"
	"time"
)

// DefaultTimeout bounds a single analyzer run.
const DefaultTimeout = 30 * time.Second

// Executor runs analyzers with a timeout.
type Executor struct {
	timeout time.Duration
}

// NewExecutor creates an Executor. A non-positive timeout means DefaultTimeout.
func NewExecutor(timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Executor{timeout: timeout}
}

// Execute sends req to the analyzer on stdin and parses its stdout as a Response.
func (e *Executor) Execute(ctx context.Context, a *Analyzer, req *Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	reqJSON, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	cmd := exec.CommandContext(ctx, a.Executable)
	cmd.Dir = a.Path
	cmd.Stdin = bytes.NewReader(reqJSON)
	// Children of a killed script may hold stdout open
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("analyzer %s timed out after %s", a.Manifest.Name, e.timeout)
	}

	if err != nil {
		if stderr.Len() > 0 {
			return nil, fmt.Errorf("analyzer %s failed: %w, stderr: %s", a.Manifest.Name, err, stderr.String())
		}
		return nil, fmt.Errorf("analyzer %s failed: %w", a.Manifest.Name, err)
	}

	var resp Response
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("failed to parse analyzer response: %w, stdout: %s", err, stdout.String())
	}

	return &resp, nil
}

// Result pairs an analyzer with the outcome of one run.
type Result struct {
	Analyzer string    `json:"analyzer"`
	Response *Response `json:"response,omitempty"`
	Err      string    `json:"error,omitempty"`
}

// RunAll executes every analyzer that accepts req.Format, one after another.
// A failing analyzer is logged and recorded; the rest still run.
func (e *Executor) RunAll(ctx context.Context, analyzers []*Analyzer, req *Request) []Result {
	var results []Result
	for _, a := range analyzers {
		if !a.Manifest.Accepts(req.Format) {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		r := Result{Analyzer: a.Manifest.Name}
		resp, err := e.Execute(ctx, a, req)
		if err != nil {
			log.Printf("Analyzer %s: %v", a.Manifest.Name, err)
			r.Err = err.Error()
		} else {
			r.Response = resp
		}
		results = append(results, r)
	}
	return results
}
