package analyzer

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// ErrAnalyzerNotFound is returned when a requested analyzer cannot be found.
var ErrAnalyzerNotFound = errors.New("analyzer not found")

// Manager discovers analyzers below a directory.
type Manager struct {
	dir       string
	analyzers map[string]*Analyzer
	mu        sync.RWMutex
}

// NewManager creates a Manager rooted at dir.
func NewManager(dir string) *Manager {
	return &Manager{
		dir:       dir,
		analyzers: make(map[string]*Analyzer),
	}
}

// Discover scans each subdirectory of the analyzer directory for a manifest.
// A missing directory is not an error; unreadable manifests are skipped.
func (m *Manager) Discover() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.analyzers = make(map[string]*Analyzer)

	info, err := os.Stat(m.dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return nil
	}

	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		path := filepath.Join(m.dir, entry.Name())
		data, err := os.ReadFile(filepath.Join(path, ManifestFile))
		if err != nil {
			continue
		}

		var manifest Manifest
		if err := json.Unmarshal(data, &manifest); err != nil {
			log.Printf("Skipping analyzer %s: %v", entry.Name(), err)
			continue
		}
		if manifest.Name == "" || manifest.Executable == "" {
			log.Printf("Skipping analyzer %s: manifest needs name and executable", entry.Name())
			continue
		}

		m.analyzers[manifest.Name] = &Analyzer{
			Manifest:   manifest,
			Path:       path,
			Executable: filepath.Join(path, manifest.Executable),
		}
	}

	return nil
}

// Get returns an analyzer by name.
func (m *Manager) Get(name string) (*Analyzer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.analyzers[name]
	if !ok {
		return nil, ErrAnalyzerNotFound
	}
	return a, nil
}

// List returns all discovered analyzers sorted by name.
func (m *Manager) List() []*Analyzer {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]*Analyzer, 0, len(m.analyzers))
	for _, a := range m.analyzers {
		list = append(list, a)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Manifest.Name < list[j].Manifest.Name
	})
	return list
}

// Dir returns the analyzer directory.
func (m *Manager) Dir() string {
	return m.dir
}
