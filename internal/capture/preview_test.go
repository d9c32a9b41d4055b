package capture

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/bernardo/visionups/internal/frame"
)

func newTestPreview() (*Preview, *int) {
	calls := 0
	p := NewPreview()
	p.encode = func(f *frame.Raw) ([]byte, error) {
		calls++
		return []byte{f.Data[0]}, nil
	}
	return p, &calls
}

func TestPreview_SkipsEncodingWithoutWatchers(t *testing.T) {
	p, calls := newTestPreview()
	tmpl := SolidFrame(2, 2, 3, 5)

	if err := p.Update(frame.New(tmpl.Data, 2, 2, 6, 3, 0, nil)); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if *calls != 0 {
		t.Errorf("encode called %d times without watchers, want 0", *calls)
	}
	if data, version := p.Latest(); data != nil || version != 0 {
		t.Errorf("Latest() = %v, %d, want nil, 0", data, version)
	}
}

func TestPreview_NotifiesWatchers(t *testing.T) {
	p, _ := newTestPreview()
	ch, cancel := p.Watch()
	defer cancel()

	for _, v := range []byte{1, 2, 3} {
		tmpl := SolidFrame(2, 2, 3, v)
		if err := p.Update(frame.New(tmpl.Data, 2, 2, 6, 3, 0, nil)); err != nil {
			t.Fatalf("Update() error = %v", err)
		}
	}

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("watcher was not notified")
	}

	data, version := p.Latest()
	if !bytes.Equal(data, []byte{3}) {
		t.Errorf("Latest() data = %v, want [3]", data)
	}
	if version != 3 {
		t.Errorf("Latest() version = %d, want 3", version)
	}
}

func TestPreview_CancelUnregisters(t *testing.T) {
	p, _ := newTestPreview()
	_, cancel := p.Watch()
	if !p.Watched() {
		t.Fatal("Watched() = false after Watch()")
	}
	cancel()
	cancel()
	if p.Watched() {
		t.Error("Watched() = true after cancel")
	}
}

func TestPreview_EncodeError(t *testing.T) {
	p := NewPreview()
	p.encode = func(*frame.Raw) ([]byte, error) { return nil, errors.New("boom") }
	_, cancel := p.Watch()
	defer cancel()

	tmpl := SolidFrame(2, 2, 3, 1)
	if err := p.Update(frame.New(tmpl.Data, 2, 2, 6, 3, 0, nil)); err == nil {
		t.Error("Update() error = nil, want encode error")
	}
}

func TestEncodeJPEG(t *testing.T) {
	tmpl := SolidFrame(16, 16, 3, 200)
	data, err := EncodeJPEG(frame.New(tmpl.Data, 16, 16, 48, 3, 0, nil))
	if err != nil {
		t.Fatalf("EncodeJPEG() error = %v", err)
	}
	if len(data) < 2 || data[0] != 0xFF || data[1] != 0xD8 {
		t.Errorf("EncodeJPEG() output does not start with a JPEG SOI marker")
	}
}
