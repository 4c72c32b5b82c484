// Package analyzer discovers and runs external programs that post-process
// exported landmark CSV files.
package analyzer

import "encoding/json"

// ManifestFile is the name of the manifest each analyzer directory must contain.
const ManifestFile = "analyzer.json"

// Manifest describes an analyzer's metadata.
type Manifest struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description"`
	Executable  string   `json:"executable"`
	Formats     []string `json:"formats"`
}

// Accepts reports whether the analyzer understands CSV files in format.
// An empty format list accepts everything.
func (m Manifest) Accepts(format string) bool {
	if len(m.Formats) == 0 {
		return true
	}
	for _, f := range m.Formats {
		if f == format {
			return true
		}
	}
	return false
}

// Request is written as JSON to the analyzer's stdin.
type Request struct {
	Session string `json:"session"`
	CSVPath string `json:"csv_path"`
	Format  string `json:"format"`
}

// Response is read as JSON from the analyzer's stdout.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Analyzer is a discovered analyzer with its manifest and location.
type Analyzer struct {
	Manifest   Manifest
	Path       string
	Executable string
}
