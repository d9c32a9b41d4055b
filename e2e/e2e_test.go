package e2e

import (
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
	"github.com/bernardo/visionups/internal/codec"
	"github.com/bernardo/visionups/internal/detector"
	"github.com/bernardo/visionups/internal/server"
	"github.com/bernardo/visionups/internal/store"
)

// paddedFrame returns an RGBA frame template whose rows carry padding, as
// camera buffers often do.
func paddedFrame(width, height int) capture.MockFrame {
	stride := width*4 + 16
	return capture.MockFrame{
		Data:     make([]byte, stride*height),
		Width:    width,
		Height:   height,
		Stride:   stride,
		Channels: 4,
	}
}

type overlayMessage struct {
	Detections []struct {
		Rect struct {
			Left, Top, Right, Bottom float64
		} `json:"rect"`
		Caption string `json:"caption"`
	} `json:"detections"`
	FPS     float64 `json:"fps"`
	Version uint64  `json:"version"`
}

func TestE2E_CompleteWorkflow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	s, err := store.New(filepath.Join(t.TempDir(), "data.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer s.Close()

	cam := capture.NewMockCamera([]capture.MockFrame{paddedFrame(64, 48)}, true)
	det := detector.NewMockDetector()
	det.SetDetections([]codec.Detection{
		{ClassID: 14, Score: 0.88, CenterX: 160, CenterY: 160, Width: 320, Height: 320},
		{ClassID: 42, Score: 0.3, CenterX: 80, CenterY: 80, Width: 32, Height: 32},
	})

	application := app.New(app.Config{
		Store:    s,
		Camera:   cam,
		Detector: det,
	})
	defer application.Close()

	srv := server.New(server.Config{Store: s, App: application})
	defer srv.Close()
	ts := httptest.NewServer(srv)
	defer ts.Close()

	client := ts.Client()

	t.Run("Health", func(t *testing.T) {
		resp, err := client.Get(ts.URL + "/api/health")
		if err != nil {
			t.Fatalf("health error = %v", err)
		}
		defer resp.Body.Close()

		var health map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&health)
		if health["detector"] != "ready" {
			t.Errorf("detector = %v, want ready", health["detector"])
		}
	})

	t.Run("SetDisplaySize", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPut, ts.URL+"/api/display", strings.NewReader(`{"width": 800, "height": 600}`))
		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("display error = %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
		}
	})

	if err := application.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	t.Run("OverlayFeed", func(t *testing.T) {
		url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/overlay/ws"
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			t.Fatalf("Dial() error = %v", err)
		}
		defer conn.Close()

		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var msg overlayMessage
		for len(msg.Detections) == 0 {
			if err := conn.ReadJSON(&msg); err != nil {
				t.Fatalf("ReadJSON() error = %v", err)
			}
		}

		if len(msg.Detections) != 2 {
			t.Fatalf("len(detections) = %d, want 2", len(msg.Detections))
		}
		if got := msg.Detections[0]; got.Caption != "Worker 88%" || got.Rect.Right != 800 || got.Rect.Bottom != 600 {
			t.Errorf("detections[0] = %+v, want Worker 88%% covering 800x600", got)
		}
		if got := msg.Detections[1].Caption; got != "Obj 30%" {
			t.Errorf("detections[1].Caption = %q, want %q", got, "Obj 30%")
		}
	})

	t.Run("Disable", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPut, ts.URL+"/api/control", strings.NewReader(`{"enabled": false}`))
		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("control error = %v", err)
		}
		resp.Body.Close()

		// Let any in-flight cycle finish, then the detector must go quiet.
		time.Sleep(200 * time.Millisecond)
		calls := det.Calls()
		time.Sleep(300 * time.Millisecond)
		if got := det.Calls(); got != calls {
			t.Errorf("detector calls went from %d to %d while disabled", calls, got)
		}
	})

	application.Stop()

	if n := cam.Outstanding(); n != 0 {
		t.Errorf("%d camera frames never released", n)
	}

	t.Run("SessionRecorded", func(t *testing.T) {
		resp, err := client.Get(ts.URL + "/api/sessions")
		if err != nil {
			t.Fatalf("sessions error = %v", err)
		}
		defer resp.Body.Close()

		var list struct {
			Sessions []struct {
				ID              string     `json:"id"`
				EndedAt         *time.Time `json:"ended_at"`
				FramesCaptured  uint64     `json:"frames_captured"`
				FramesCompleted uint64     `json:"frames_completed"`
			} `json:"sessions"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
			t.Fatalf("decode sessions: %v", err)
		}
		if len(list.Sessions) != 1 {
			t.Fatalf("len(sessions) = %d, want 1", len(list.Sessions))
		}

		sess := list.Sessions[0]
		if sess.EndedAt == nil {
			t.Error("session not finished after Stop()")
		}
		if sess.FramesCaptured == 0 || sess.FramesCompleted == 0 {
			t.Errorf("session counters = %+v, want non-zero", sess)
		}
	})
}
