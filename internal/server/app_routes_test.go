package server

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bernardo/visionups/internal/app"
	"github.com/bernardo/visionups/internal/capture"
	"github.com/bernardo/visionups/internal/detector"
	"github.com/bernardo/visionups/internal/pipeline"
)

func newTestApp(t *testing.T, preview bool) (*app.App, *detector.MockDetector) {
	t.Helper()
	det := detector.NewMockDetector()
	a := app.New(app.Config{
		Camera:   capture.NewMockCamera([]capture.MockFrame{capture.SolidFrame(16, 16, 3, 90)}, true),
		Detector: det,
		Display:  pipeline.DisplaySize{Width: 640, Height: 480},
		Preview:  preview,
	})
	t.Cleanup(func() { a.Close() })
	return a, det
}

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	s := New(cfg)
	t.Cleanup(s.Close)
	return s
}

func TestServer_HealthReportsDetector(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		a, _ := newTestApp(t, false)
		s := newTestServer(t, Config{App: a})

		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

		var response map[string]interface{}
		json.NewDecoder(rec.Body).Decode(&response)
		if response["status"] != "ok" || response["detector"] != "ready" {
			t.Errorf("unexpected health response: %v", response)
		}
	})

	t.Run("model not found", func(t *testing.T) {
		cfg := detector.DefaultConfig()
		cfg.ModelPath = filepath.Join(t.TempDir(), "missing.onnx")
		a := app.New(app.Config{Camera: capture.NewMockCamera(nil, true), DetectorConfig: cfg})
		defer a.Close()
		s := newTestServer(t, Config{App: a})

		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		var response map[string]interface{}
		json.NewDecoder(rec.Body).Decode(&response)
		if response["status"] != "degraded" || response["detector"] != "model not found" {
			t.Errorf("unexpected health response: %v", response)
		}
	})
}

func TestServer_OverlayAndStats(t *testing.T) {
	a, det := newTestApp(t, false)
	det.SetResult("14,0.9,160,160,32,32|")
	s := newTestServer(t, Config{App: a})

	if err := a.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer a.Stop()

	deadline := time.Now().Add(3 * time.Second)
	var msg overlayMessage
	for {
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/overlay", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		if err := json.NewDecoder(rec.Body).Decode(&msg); err != nil {
			t.Fatalf("failed to decode overlay: %v", err)
		}
		if len(msg.Detections) > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for detections")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if msg.Detections[0].Caption != "Worker 90%" {
		t.Errorf("Caption = %q, want %q", msg.Detections[0].Caption, "Worker 90%")
	}
	if msg.Version == 0 {
		t.Error("Version = 0 after publish")
	}

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	var stats pipeline.Stats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("failed to decode stats: %v", err)
	}
	if stats.Completed == 0 {
		t.Errorf("stats = %+v, want completed frames", stats)
	}
}

func TestServer_OverlayEmptyBeforePublish(t *testing.T) {
	a, _ := newTestApp(t, false)
	s := newTestServer(t, Config{App: a})

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/overlay", nil))

	if !strings.Contains(rec.Body.String(), `"detections":[]`) {
		t.Errorf("expected empty detections array, got %s", rec.Body.String())
	}
}

func TestServer_ControlRoutes(t *testing.T) {
	a, _ := newTestApp(t, false)
	s := newTestServer(t, Config{App: a})

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/control", bytes.NewBufferString(`{"enabled": false}`)))
	if rec.Code != http.StatusOK || a.IsEnabled() {
		t.Errorf("PUT /api/control: status %d, enabled %v", rec.Code, a.IsEnabled())
	}

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/display", bytes.NewBufferString(`{"width": 320, "height": 240}`)))
	if rec.Code != http.StatusOK {
		t.Errorf("PUT /api/display: status %d", rec.Code)
	}
	if got := a.DisplaySize(); got != (pipeline.DisplaySize{Width: 320, Height: 240}) {
		t.Errorf("DisplaySize() = %+v, want 320x240", got)
	}
}

func TestServer_OverlayWebSocket(t *testing.T) {
	a, det := newTestApp(t, false)
	det.SetResult("6,0.75,160,160,64,64|")
	s := newTestServer(t, Config{App: a})

	ts := httptest.NewServer(s)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/overlay/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	// Initial snapshot arrives before anything is published.
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var msg overlayMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() initial error = %v", err)
	}
	if msg.Version != 0 || len(msg.Detections) != 0 {
		t.Errorf("initial message = %+v, want empty version 0", msg)
	}

	if err := a.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer a.Stop()

	for {
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("ReadJSON() error = %v", err)
		}
		if len(msg.Detections) > 0 {
			break
		}
	}
	if msg.Detections[0].Caption != "Hard Hat ON 75%" {
		t.Errorf("Caption = %q, want %q", msg.Detections[0].Caption, "Hard Hat ON 75%")
	}
}

func TestServer_Stream(t *testing.T) {
	a, _ := newTestApp(t, true)
	s := newTestServer(t, Config{App: a})

	ts := httptest.NewServer(s)
	defer ts.Close()

	if err := a.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer a.Stop()

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(ts.URL + "/api/stream")
	if err != nil {
		t.Fatalf("GET /api/stream error = %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "multipart/x-mixed-replace; boundary=frame" {
		t.Errorf("Content-Type = %q", ct)
	}

	r := bufio.NewReader(resp.Body)
	boundary, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read boundary: %v", err)
	}
	if boundary != "--frame\r\n" {
		t.Errorf("boundary = %q, want %q", boundary, "--frame\r\n")
	}
	partType, _ := r.ReadString('\n')
	if partType != "Content-Type: image/jpeg\r\n" {
		t.Errorf("part Content-Type = %q", partType)
	}
}

func TestServer_StreamDisabledWithoutPreview(t *testing.T) {
	a, _ := newTestApp(t, false)
	s := newTestServer(t, Config{App: a})

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stream", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}
