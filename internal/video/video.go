// Package video streams rendered frames to ffmpeg for offline export.
package video

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"io"
	"os/exec"
)

var ErrEncoderClosed = errors.New("encoder closed")

// Options describe the output file.
type Options struct {
	Width, Height int
	FPS           int
	Encoder       string
	Quality       int
	Output        string
}

// FrameWriter consumes frames of a fixed size in presentation order.
type FrameWriter interface {
	WriteFrame(img image.Image) error
	Close() error
}

// FFmpegEncoder pipes raw RGBA frames into an ffmpeg process.
type FFmpegEncoder struct {
	opts   Options
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr bytes.Buffer
	frames int
	closed bool
	buf    *image.RGBA
}

// NewFFmpegEncoder starts ffmpeg writing opts.Output. Cancelling ctx kills
// the process.
func NewFFmpegEncoder(ctx context.Context, opts Options) (*FFmpegEncoder, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", opts.Width, opts.Height)
	}
	if opts.Output == "" {
		return nil, errors.New("no output path")
	}
	opts = withDefaults(opts)

	e := &FFmpegEncoder{opts: opts}
	e.cmd = exec.CommandContext(ctx, "ffmpeg", buildFFmpegArgs(opts)...)
	e.cmd.Stderr = &e.stderr

	stdin, err := e.cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe error: %w", err)
	}
	e.stdin = stdin

	if err := e.cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg start error: %w", err)
	}
	return e, nil
}

func withDefaults(opts Options) Options {
	if opts.FPS <= 0 {
		opts.FPS = 30
	}
	if opts.Encoder == "" {
		opts.Encoder = "libx264"
	}
	if opts.Quality <= 0 {
		opts.Quality = defaultQuality(opts.Encoder)
	}
	return opts
}

func defaultQuality(encoder string) int {
	switch encoder {
	case "h264_videotoolbox":
		return 75
	case "h264_nvenc":
		return 23
	default:
		return 20
	}
}

func buildFFmpegArgs(opts Options) []string {
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-f", "rawvideo",
		"-pixel_format", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", opts.Width, opts.Height),
		"-framerate", fmt.Sprintf("%d", opts.FPS),
		"-i", "-",
		"-pix_fmt", "yuv420p",
		"-c:v", opts.Encoder,
	}

	switch opts.Encoder {
	case "h264_videotoolbox":
		// kbit/s: 75 -> 7.5 Mbit/s
		args = append(args, "-b:v", fmt.Sprintf("%dk", opts.Quality*100))
	case "h264_nvenc":
		args = append(args, "-cq", fmt.Sprintf("%d", opts.Quality))
	default: // libx264
		args = append(args, "-crf", fmt.Sprintf("%d", opts.Quality), "-preset", "medium")
	}

	// yuv420p needs even dimensions.
	if opts.Width%2 != 0 || opts.Height%2 != 0 {
		args = append(args, "-vf", "pad=ceil(iw/2)*2:ceil(ih/2)*2")
	}

	return append(args, opts.Output)
}

// WriteFrame sends one frame. Frames of another size are drawn onto a
// canvas of the configured size.
func (e *FFmpegEncoder) WriteFrame(img image.Image) error {
	if e.closed {
		return ErrEncoderClosed
	}
	if err := e.writeRawRGBA(e.stdin, img); err != nil {
		return fmt.Errorf("write raw error: %w: %s", err, e.stderr.String())
	}
	e.frames++
	return nil
}

// Frames is the number of frames written so far.
func (e *FFmpegEncoder) Frames() int { return e.frames }

// Close flushes the pipe and waits for ffmpeg to finish the file.
func (e *FFmpegEncoder) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	e.stdin.Close()
	if err := e.cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg wait error: %w: %s", err, e.stderr.String())
	}
	return nil
}

func (e *FFmpegEncoder) writeRawRGBA(w io.Writer, img image.Image) error {
	rect := image.Rect(0, 0, e.opts.Width, e.opts.Height)
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Rect != rect || rgba.Stride != rect.Dx()*4 {
		if e.buf == nil {
			e.buf = image.NewRGBA(rect)
		}
		rgba = e.buf
		clear(rgba.Pix)
		draw.Draw(rgba, rect, img, img.Bounds().Min, draw.Src)
	}
	_, err := w.Write(rgba.Pix)
	return err
}
