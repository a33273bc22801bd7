package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/ayusman/signlink/internal/app"
	"github.com/ayusman/signlink/internal/classifier"
	"github.com/ayusman/signlink/internal/config"
	"github.com/ayusman/signlink/internal/lgr"
	"github.com/ayusman/signlink/internal/server"
	"github.com/ayusman/signlink/internal/store"
	"github.com/ayusman/signlink/internal/tray"
)

var serveOpts struct {
	addr string
	tray bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the recognition loop and the web interface",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVarP(&serveOpts.addr, "addr", "a", "", "Listen address (default from SIGNLINK_ADDR)")
	serveCmd.Flags().BoolVarP(&serveOpts.tray, "tray", "t", false, "Show a system tray menu")

	rootCmd.AddCommand(serveCmd)
}

// modelLoader opens the configured ONNX model.
func modelLoader(c config.Config) app.ModelLoader {
	return func(ctx context.Context) (classifier.Classifier, error) {
		return classifier.NewONNXClassifier(classifier.ONNXConfig{
			ModelPath:         c.ModelPath,
			InputName:         c.ModelInput,
			OutputName:        c.ModelOutput,
			SharedLibraryPath: c.ORTLib,
		})
	}
}

func runServe(ctx context.Context) error {
	addr := cfg.Addr
	if serveOpts.addr != "" {
		addr = serveOpts.addr
	}

	st, err := store.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	a := app.New(app.Config{
		CameraID:    cfg.CameraID,
		FPS:         cfg.FPS,
		Model:       modelLoader(cfg),
		Calibration: cfg.Calibration,
	})
	defer a.Close()

	// A failed load leaves the app not ready; the web interface still comes
	// up and reports the error on /api/status.
	if err := a.Load(ctx); err == nil {
		if err := a.Start(); err != nil {
			lgr.Logger.Error("failed to start recognition", slog.Any("error", err))
		}
	}

	webDir := findWebDir(cfg.StaticDir)
	if webDir != "" {
		lgr.Logger.Info("serving static files", slog.String("dir", webDir))
	}

	srv := server.New(server.Config{
		StaticDir:  webDir,
		Store:      st,
		Recognizer: a,
		Frames:     a,
		ROI:        a.ROI(),
	})
	httpSrv := srv.HTTPServer(addr)

	errCh := make(chan error, 1)
	go func() {
		lgr.Logger.Info("listening", slog.String("addr", addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if serveOpts.tray {
		t := tray.New()
		t.OnToggle(func(enabled bool) {
			a.SetEnabled(enabled)
			if enabled && !a.Running() {
				if err := a.Start(); err != nil {
					lgr.Logger.Warn("failed to start recognition", slog.Any("error", err))
				}
			}
		})
		t.OnOpen(func() { openBrowser("http://" + addr) })
		t.OnQuit(cancel)
		a.OnPrediction(t.SetPrediction)

		go func() {
			<-ctx.Done()
			t.Quit()
		}()
		// systray needs the main goroutine on some platforms
		t.Run()
		cancel()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	lgr.Logger.Info("shutting down")
	a.Stop()

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	return httpSrv.Shutdown(shutdownCtx)
}

// findWebDir returns dir if it exists, else the first existing directory
// among "web", "../web", "../../web" and ~/.signlink/web.
// It returns "" when none is found.
func findWebDir(dir string) string {
	candidates := []string{"web", "../web", "../../web"}
	if dir != "" {
		candidates = append([]string{dir}, candidates...)
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(homeDir, ".signlink", "web"))
	}

	for _, p := range candidates {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}
	return ""
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
		lgr.Logger.Warn("failed to open browser", slog.String("url", url), slog.Any("error", err))
	}
}
