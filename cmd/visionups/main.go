package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/bernardo/visionups/internal/app"
	"github.com/bernardo/visionups/internal/config"
	"github.com/bernardo/visionups/internal/detector"
	"github.com/bernardo/visionups/internal/overlay"
	"github.com/bernardo/visionups/internal/pipeline"
	"github.com/bernardo/visionups/internal/server"
	"github.com/bernardo/visionups/internal/store"
	"github.com/bernardo/visionups/internal/tray"
)

const (
	flagEnvFile       = "env-file"
	flagAddr          = "addr"
	flagCamera        = "camera"
	flagModel         = "model"
	flagModelSize     = "model-size"
	flagDisplayWidth  = "display-width"
	flagDisplayHeight = "display-height"
	flagScaleMode     = "scale-mode"
	flagDetectTimeout = "detect-timeout"
	flagDataDir       = "data-dir"
	flagStaticDir     = "static-dir"
	flagPreview       = "preview"
	flagTray          = "tray"
)

func main() {
	cliApp := &cli.App{
		Name:  "visionups",
		Usage: "real-time object detection on a camera feed",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  flagEnvFile,
				Value: config.DefaultEnvFile,
				Usage: "load environment from `FILE` if it exists",
			},
			&cli.StringFlag{Name: flagAddr, Usage: "HTTP listen address (env ADDR)"},
			&cli.IntFlag{Name: flagCamera, Usage: "camera device id (env CAMERA_ID)"},
			&cli.StringFlag{Name: flagModel, Usage: "path to the YOLOv8 ONNX `FILE` (env MODEL_PATH)"},
			&cli.IntFlag{Name: flagModelSize, Usage: "model coordinate space and input size (env MODEL_SIZE)"},
			&cli.IntFlag{Name: flagDisplayWidth, Usage: "initial display width (env DISPLAY_WIDTH)"},
			&cli.IntFlag{Name: flagDisplayHeight, Usage: "initial display height (env DISPLAY_HEIGHT)"},
			&cli.StringFlag{Name: flagScaleMode, Usage: "stretch or letterbox (env SCALE_MODE)"},
			&cli.DurationFlag{Name: flagDetectTimeout, Usage: "give up on a detection after this long, 0 waits (env DETECT_TIMEOUT_MS)"},
			&cli.StringFlag{Name: flagDataDir, Usage: "directory for the database (env DATA_DIR)"},
			&cli.StringFlag{Name: flagStaticDir, Usage: "directory of the web viewer (env STATIC_DIR)"},
			&cli.BoolFlag{Name: flagPreview, Usage: "serve the MJPEG camera preview (env PREVIEW)"},
			&cli.BoolFlag{Name: flagTray, Usage: "show the system tray status (env TRAY)"},
		},
		Action: run,
	}

	if err := cliApp.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// applyFlags overrides cfg with flags given on the command line.
func applyFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet(flagAddr) {
		cfg.Addr = c.String(flagAddr)
	}
	if c.IsSet(flagCamera) {
		cfg.CameraID = c.Int(flagCamera)
	}
	if c.IsSet(flagModel) {
		cfg.ModelPath = c.String(flagModel)
	}
	if c.IsSet(flagModelSize) {
		cfg.ModelSize = c.Int(flagModelSize)
		cfg.InputSize = cfg.ModelSize
	}
	if c.IsSet(flagDisplayWidth) {
		cfg.DisplayWidth = c.Int(flagDisplayWidth)
	}
	if c.IsSet(flagDisplayHeight) {
		cfg.DisplayHeight = c.Int(flagDisplayHeight)
	}
	if c.IsSet(flagScaleMode) {
		cfg.ScaleMode = c.String(flagScaleMode)
	}
	if c.IsSet(flagDetectTimeout) {
		cfg.DetectTimeout = c.Duration(flagDetectTimeout)
	}
	if c.IsSet(flagDataDir) {
		cfg.DataDir = c.String(flagDataDir)
	}
	if c.IsSet(flagStaticDir) {
		cfg.StaticDir = c.String(flagStaticDir)
	}
	if c.IsSet(flagPreview) {
		cfg.Preview = c.Bool(flagPreview)
	}
	if c.IsSet(flagTray) {
		cfg.Tray = c.Bool(flagTray)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String(flagEnvFile))
	if err != nil {
		return err
	}
	applyFlags(c, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	mode, err := overlay.ParseScaleMode(cfg.ScaleMode)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	st, err := store.New(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	defer st.Close()

	a := app.New(app.Config{
		Store:    st,
		CameraID: cfg.CameraID,
		DetectorConfig: detector.Config{
			ModelPath:     cfg.ModelPath,
			InputSize:     cfg.InputSize,
			ConfThreshold: cfg.ConfThreshold,
			NMSThreshold:  cfg.NMSThreshold,
		},
		ModelSize:     cfg.ModelSize,
		Display:       pipeline.DisplaySize{Width: float64(cfg.DisplayWidth), Height: float64(cfg.DisplayHeight)},
		ScaleMode:     mode,
		DetectTimeout: cfg.DetectTimeout,
		Preview:       cfg.Preview,
	})
	defer a.Close()

	// Keep serving status even when detection cannot start.
	if err := a.Start(); err != nil {
		log.Printf("Detection not started: %v", err)
	}

	staticDir := findWebDir(cfg.StaticDir, cfg.DataDir)
	if staticDir != "" {
		log.Printf("Serving static files from: %s", staticDir)
	}

	srv := server.New(server.Config{
		StaticDir: staticDir,
		Store:     st,
		App:       a,
	})
	defer srv.Close()
	httpSrv := srv.HTTPServer(cfg.Addr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("Starting server on %s", cfg.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if cfg.Tray {
		t := tray.New()
		t.SetEnabled(a.IsEnabled())
		t.OnToggle(a.SetEnabled)
		t.OnOpen(func() { openBrowser(viewerURL(cfg.Addr)) })
		t.OnQuit(stop)

		g.Go(func() error {
			followStatus(gctx, a, t)
			t.Quit()
			return nil
		})

		// The tray event loop must own the main thread.
		t.Run()
		stop()
	}

	return g.Wait()
}

// followStatus refreshes the tray on every publish and once a second, so
// the frame rate keeps updating even when nothing is published.
func followStatus(ctx context.Context, a *app.App, t *tray.Tray) {
	updates, cancel := a.Overlay().Subscribe()
	defer cancel()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		snap := a.Overlay().Snapshot()
		t.SetStatus(tray.Status{
			FPS:       a.FPS(),
			Objects:   len(snap.Detections),
			Published: snap.Version > 0,
			Err:       a.InitError(),
		})

		select {
		case <-ctx.Done():
			return
		case <-updates:
		case <-ticker.C:
		}
	}
}

// findWebDir returns dir when set, otherwise the first existing directory
// among "web", "../web", "../../web" and dataDir/web.
func findWebDir(dir, dataDir string) string {
	candidates := []string{"web", "../web", "../../web", filepath.Join(dataDir, "web")}
	if dir != "" && dir != "web" {
		candidates = []string{dir}
	}

	for _, p := range candidates {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if absPath, err := filepath.Abs(p); err == nil {
				return absPath
			}
			return p
		}
	}
	return ""
}

func viewerURL(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		addr = "localhost" + addr
	}
	return "http://" + addr + "/"
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
