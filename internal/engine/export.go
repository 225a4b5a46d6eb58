package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/cutview/internal/compositor"
	"github.com/ivlev/cutview/internal/config"
	"github.com/ivlev/cutview/internal/system"
	"github.com/ivlev/cutview/internal/video"
	"github.com/ivlev/cutview/internal/viewport"
)

// ExportReport summarises an offline render.
type ExportReport struct {
	Frames   int
	Failed   int
	Duration time.Duration
	Encoder  string
}

// Progress is called after each frame is handed to the encoder.
type Progress func(done, total int)

// NewEncoder opens the frame sink of an export. Tests replace it.
type NewEncoder func(ctx context.Context, opts video.Options) (video.FrameWriter, error)

func ffmpegEncoder(ctx context.Context, opts video.Options) (video.FrameWriter, error) {
	return video.NewFFmpegEncoder(ctx, opts)
}

// Export renders every frame of the timeline at full size with blocking
// asset loads and streams them to ffmpeg. Frames are composed by up to
// Assets.Workers goroutines and written in order.
func (e *Engine) Export(ctx context.Context, output string, progress Progress) (ExportReport, error) {
	return e.export(ctx, output, progress, ffmpegEncoder)
}

func (e *Engine) export(ctx context.Context, output string, progress Progress, open NewEncoder) (ExportReport, error) {
	if e.isClosed() {
		return ExportReport{}, ErrClosed
	}
	start := time.Now()

	e.mu.Lock()
	opts := e.comp.Options()
	e.mu.Unlock()
	opts.Scale = 1
	opts.Overlays = config.Overlays{}
	comp, err := compositor.New(opts, e.still, e.pool, e.log.WithField("component", "export"))
	if err != nil {
		return ExportReport{}, err
	}
	comp.OnDiagnostic = e.diagnostic

	snap := e.model.Snapshot()
	fps := e.cfg.FPS
	if fps <= 0 {
		fps = 30
	}
	total := max(1, int(math.Ceil(snap.Duration()*float64(fps)-1e-9)))

	encoderName := e.cfg.Export.Encoder
	if encoderName == "" {
		encoderName = system.GetBestH264Encoder()
	}
	enc, err := open(ctx, video.Options{
		Width:   opts.Width,
		Height:  opts.Height,
		FPS:     fps,
		Encoder: encoderName,
		Quality: e.cfg.Export.Quality,
		Output:  output,
	})
	if err != nil {
		return ExportReport{}, fmt.Errorf("open encoder: %w", err)
	}

	report := ExportReport{Frames: total, Encoder: encoderName}
	workers := max(1, e.cfg.Assets.Workers)
	view := viewport.Identity()

	e.log.WithFields(logrus.Fields{
		"frames":  total,
		"fps":     fps,
		"encoder": encoderName,
		"output":  output,
	}).Info("export started")

	for first := 0; first < total; first += workers {
		n := min(workers, total-first)
		frames := make([]*compositor.Frame, n)

		g, gctx := errgroup.WithContext(ctx)
		for i := range n {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				t := float64(first+i) / float64(fps)
				frames[i] = comp.Compose(snap, t, view)
				return nil
			})
		}
		err := g.Wait()

		for i, f := range frames {
			if f == nil {
				continue
			}
			report.Failed += f.Failed
			if err == nil {
				if werr := enc.WriteFrame(f.Image); werr != nil {
					err = fmt.Errorf("frame %d: %w", first+i, werr)
				} else if progress != nil {
					progress(first+i+1, total)
				}
			}
			f.Release()
		}
		if err != nil {
			enc.Close()
			return report, err
		}
	}

	if err := enc.Close(); err != nil {
		return report, err
	}
	report.Duration = time.Since(start)
	e.log.WithField("elapsed", report.Duration).Info("export finished")
	return report, nil
}
