package app

import (
	"context"
	"log"
	"time"

	"github.com/bernardo/visionups/internal/pipeline"
	"github.com/bernardo/visionups/internal/store"
)

// captureLoop reads frames at the camera's cadence and offers them to the
// pipeline. Every frame read is either submitted, which hands ownership to
// the pipeline, or released here.
func (a *App) captureLoop(ctx context.Context, p *pipeline.Pipeline) error {
	fps := a.camera.FPS()
	if fps <= 0 {
		fps = 1
	}

	ticker := a.clock.Ticker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	// Only the first error of a streak is logged so a missing camera
	// doesn't flood the log at frame rate.
	failing := false

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			f, err := a.camera.ReadFrame()
			if err != nil {
				if !failing {
					log.Printf("Error reading frame: %v", err)
					failing = true
				}
				continue
			}
			if failing {
				log.Println("Camera recovered")
				failing = false
			}

			if a.preview != nil {
				if err := a.preview.Update(f); err != nil {
					log.Printf("Error updating preview: %v", err)
				}
			}

			// Skip detection if disabled
			if !a.IsEnabled() {
				f.Release()
				continue
			}

			p.Submit(f)
		}
	}
}

// sampleLoop periodically records throughput for the running session.
func (a *App) sampleLoop(ctx context.Context, p *pipeline.Pipeline, sessionID string) error {
	ticker := a.clock.Ticker(a.config.SampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			sample := &store.SessionSample{
				SessionID: sessionID,
				FPS:       p.FPS(),
				Objects:   len(a.state.Current()),
			}
			if err := a.config.Store.Sessions().AddSample(sample); err != nil {
				log.Printf("Failed to record session sample: %v", err)
			}
		}
	}
}
