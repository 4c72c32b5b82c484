package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ayusman/gaitpose/internal/pose"
)

// fakeSettings keeps settings in memory.
type fakeSettings struct {
	cfg pose.Config
}

func (f *fakeSettings) Settings() pose.Config { return f.cfg }

func (f *fakeSettings) UpdateSettings(cfg pose.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	f.cfg = cfg
	return nil
}

func (f *fakeSettings) StepThreshold(name string, raise bool) (pose.Config, error) {
	cfg := f.cfg
	var err error
	if raise {
		_, err = cfg.RaiseThreshold(name)
	} else {
		_, err = cfg.LowerThreshold(name)
	}
	if err != nil {
		return f.cfg, err
	}
	f.cfg = cfg
	return cfg, nil
}

func decodeConfig(t *testing.T, rec *httptest.ResponseRecorder) pose.Config {
	t.Helper()

	var cfg pose.Config
	if err := json.NewDecoder(rec.Body).Decode(&cfg); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return cfg
}

func TestSettingsHandler_Get(t *testing.T) {
	handler := NewSettingsHandler(&fakeSettings{cfg: pose.DefaultConfig()})

	req := httptest.NewRequest(http.MethodGet, "/api/settings", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if cfg := decodeConfig(t, rec); cfg != pose.DefaultConfig() {
		t.Errorf("got %+v, want defaults", cfg)
	}
}

func TestSettingsHandler_Put(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantPres   float64
	}{
		{"partial update", `{"min_pose_presence_confidence": 0.7}`, http.StatusOK, 0.7},
		{"out of range", `{"min_pose_presence_confidence": 1.7}`, http.StatusBadRequest, 0.5},
		{"invalid json", `{nope`, http.StatusBadRequest, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeSettings{cfg: pose.DefaultConfig()}
			handler := NewSettingsHandler(svc)

			req := httptest.NewRequest(http.MethodPut, "/api/settings", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if svc.cfg.MinPosePresenceConfidence != tt.wantPres {
				t.Errorf("presence = %v, want %v", svc.cfg.MinPosePresenceConfidence, tt.wantPres)
			}
			if svc.cfg.MinPoseDetectionConfidence != 0.5 {
				t.Errorf("detection changed to %v", svc.cfg.MinPoseDetectionConfidence)
			}
		})
	}
}

func TestSettingsHandler_Step(t *testing.T) {
	tests := []struct {
		path       string
		wantStatus int
		want       float64
	}{
		{"/api/settings/tracking/raise", http.StatusOK, 0.6},
		{"/api/settings/tracking/lower", http.StatusOK, 0.4},
		{"/api/settings/bogus/raise", http.StatusBadRequest, 0.5},
		{"/api/settings/tracking/sideways", http.StatusNotFound, 0.5},
		{"/api/settings/tracking", http.StatusNotFound, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			svc := &fakeSettings{cfg: pose.DefaultConfig()}
			handler := NewSettingsHandler(svc)

			req := httptest.NewRequest(http.MethodPost, tt.path, nil)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if svc.cfg.MinPoseTrackingConfidence != tt.want {
				t.Errorf("tracking = %v, want %v", svc.cfg.MinPoseTrackingConfidence, tt.want)
			}
		})
	}
}

func TestSettingsHandler_MethodNotAllowed(t *testing.T) {
	handler := NewSettingsHandler(&fakeSettings{cfg: pose.DefaultConfig()})

	for _, tt := range []struct{ method, path string }{
		{http.MethodDelete, "/api/settings"},
		{http.MethodGet, "/api/settings/detection/raise"},
	} {
		req := httptest.NewRequest(tt.method, tt.path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s: expected status %d, got %d", tt.method, tt.path, http.StatusMethodNotAllowed, rec.Code)
		}
	}
}
