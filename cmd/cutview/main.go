package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/disintegration/imaging"
	"github.com/spf13/pflag"

	"github.com/ivlev/cutview/internal/compositor"
	"github.com/ivlev/cutview/internal/config"
	"github.com/ivlev/cutview/internal/engine"
	"github.com/ivlev/cutview/internal/logger"
	"github.com/ivlev/cutview/internal/system"
	"github.com/ivlev/cutview/internal/timeline"
)

func main() {
	fs := pflag.NewFlagSet("cutview", pflag.ExitOnError)
	configPath := fs.String("config", "", "YAML config file")
	projectPath := fs.String("project", "", "project file (default: newest file in projects/)")
	mode := fs.String("mode", "frame", "frame, play or export")
	at := fs.Float64("at", 0, "time in seconds: the frame to render, or where playback starts")
	framePath := fs.String("frame-out", "", "PNG path for -mode frame (default: output/<project>_<time>.png)")
	playFor := fs.Duration("play-for", 0, "stop playback after this long (0 = until the end)")
	config.RegisterFlags(fs)
	fs.Parse(os.Args[1:])

	log := logger.WithComponent("cli")
	system.InitResourceLimits(log)

	for _, d := range []string{"projects", "output"} {
		os.MkdirAll(d, 0755)
	}

	cfg, err := config.Load(*configPath, fs)
	if err != nil {
		fatalf("[-] Config error: %v", err)
	}
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		fmt.Printf("[!] Unknown log level %q, keeping info\n", cfg.LogLevel)
	}

	path := *projectPath
	if path == "" {
		latest, err := system.FindLatestProject("projects")
		if err != nil {
			fatalf("[-] Error: %v. Put a project YAML into projects/", err)
		}
		path = latest
		fmt.Printf("[*] Selected project: %s\n", path)
	}

	model, err := timeline.LoadProject(path)
	if err != nil {
		fatalf("[-] Project error: %v", err)
	}
	defer model.Close()

	eng, err := engine.New(cfg, model, engine.Options{Log: logger.WithComponent("engine")})
	if err != nil {
		fatalf("[-] Engine error: %v", err)
	}
	defer eng.Close()

	eng.Subscribe(func(ev engine.Event) {
		if ev.Kind == engine.EventDiagnostic {
			fmt.Printf("[!] %.3fs %v\n", ev.Time, ev.Diagnostic)
		}
	})

	fmt.Println("--- [CUTVIEW] ---")
	fmt.Printf("[*] Project: %s | Duration: %.2fs | Tracks: %d\n", path, model.Duration(), len(model.Tracks()))
	fmt.Printf("[*] Frame: %dx%d @ %d FPS | Tier: %s | Effects: %s\n", cfg.Width, cfg.Height, cfg.FPS, cfg.Tier.Name, cfg.EffectMode)
	fmt.Println("-----------------")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch *mode {
	case "frame":
		err = renderFrame(eng, path, *at, *framePath)
	case "play":
		err = play(ctx, eng, *at, *playFor)
	case "export":
		err = export(ctx, eng, cfg, path)
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}
	if err != nil {
		eng.Close()
		fatalf("[-] %v", err)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func renderFrame(eng *engine.Engine, project string, at float64, out string) error {
	f, err := eng.RenderStill(at)
	if err != nil {
		return err
	}
	defer f.Release()
	if out == "" {
		out = outputName(project, fmt.Sprintf("%07.3fs", f.Time), ".png")
	}
	if err := imaging.Save(f.Image, out); err != nil {
		return fmt.Errorf("save frame: %w", err)
	}
	fmt.Printf("[+++] Frame %s (%d items, %d failed) in %v: %s\n",
		compositor.Timecode(f.Time, eng.Config().FPS), f.Drawn, f.Failed, f.RenderTime.Round(time.Millisecond), out)
	return nil
}

func play(ctx context.Context, eng *engine.Engine, at float64, limit time.Duration) error {
	if limit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, limit)
		defer cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lastReport := time.Now()
	eng.Subscribe(func(ev engine.Event) {
		switch ev.Kind {
		case engine.EventPlayStateChanged:
			if !ev.Playing && !eng.State().Loop {
				cancel()
			}
		case engine.EventRenderStats:
			if time.Since(lastReport) < time.Second {
				return
			}
			lastReport = time.Now()
			s := ev.Stats
			fmt.Printf("[>] %s | %.0f fps | render %.1fms | frames %d | dropped %d\n",
				compositor.Timecode(ev.Time, eng.Config().FPS), s.FPS, s.RenderTimeMs, s.FrameCount, s.DroppedFrames)
		}
	})

	eng.Seek(at)
	eng.Play()
	err := eng.Run(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}

	s := eng.Stats()
	fmt.Printf("[*] Stopped at %s | frames %d | dropped %d\n",
		compositor.Timecode(eng.CurrentTime(), eng.Config().FPS), s.FrameCount, s.DroppedFrames)
	return err
}

func export(ctx context.Context, eng *engine.Engine, cfg *config.Config, project string) error {
	if !system.FFmpegAvailable() {
		return errors.New("ffmpeg not found in PATH")
	}
	out := cfg.Export.Output
	if out == "" {
		out = outputName(project, time.Now().Format("2006-01-02_15-04-05"), ".mp4")
	}

	report, err := eng.Export(ctx, out, func(done, total int) {
		if done%cfg.FPS == 0 || done == total {
			fmt.Printf("[>] Ready: %d/%d\n", done, total)
		}
	})
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if report.Encoder != "libx264" {
		fmt.Printf("[*] Hardware encoder: %s\n", report.Encoder)
	}
	if report.Failed > 0 {
		fmt.Printf("[!] %d item draws failed, see placeholders\n", report.Failed)
	}
	fps := float64(report.Frames) / report.Duration.Seconds()
	fmt.Printf("[+++] Done in %.2fs (%.1f fps): %s\n", report.Duration.Seconds(), fps, out)
	return nil
}

func outputName(project, suffix, ext string) string {
	base := filepath.Base(project)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	name = strings.ReplaceAll(name, " ", "_")
	return filepath.Join("output", fmt.Sprintf("%s_%s%s", name, suffix, ext))
}
