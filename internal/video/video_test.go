package video

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildFFmpegArgsQuality(t *testing.T) {
	tests := []struct {
		encoder string
		quality int
		want    []string
	}{
		{"libx264", 18, []string{"-crf", "18", "-preset", "medium"}},
		{"h264_nvenc", 25, []string{"-cq", "25"}},
		{"h264_videotoolbox", 75, []string{"-b:v", "7500k"}},
	}
	for _, tt := range tests {
		t.Run(tt.encoder, func(t *testing.T) {
			args := buildFFmpegArgs(Options{Width: 640, Height: 360, FPS: 30, Encoder: tt.encoder, Quality: tt.quality, Output: "out.mp4"})
			assert.Subset(t, args, tt.want)
			assert.Equal(t, "out.mp4", args[len(args)-1])
			assert.Contains(t, args, "640x360")
			assert.NotContains(t, args, "-vf")
		})
	}
}

func TestBuildFFmpegArgsPadsOddSizes(t *testing.T) {
	args := buildFFmpegArgs(withDefaults(Options{Width: 641, Height: 360, Output: "o.mp4"}))
	assert.Contains(t, args, "-vf")
	assert.Contains(t, args, "libx264")
	assert.Contains(t, args, "30")
}

func TestWithDefaults(t *testing.T) {
	o := withDefaults(Options{Encoder: "h264_videotoolbox"})
	assert.Equal(t, 30, o.FPS)
	assert.Equal(t, 75, o.Quality)

	o = withDefaults(Options{})
	assert.Equal(t, "libx264", o.Encoder)
	assert.Equal(t, 20, o.Quality)
}

func TestWriteRawRGBAConvertsForeignImages(t *testing.T) {
	e := &FFmpegEncoder{opts: Options{Width: 2, Height: 1}}

	src := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	src.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 255})
	src.SetNRGBA(1, 0, color.NRGBA{B: 255, A: 255})

	var buf bytes.Buffer
	require.NoError(t, e.writeRawRGBA(&buf, src))
	assert.Equal(t, []byte{255, 0, 0, 255, 0, 0, 255, 255}, buf.Bytes())

	direct := image.NewRGBA(image.Rect(0, 0, 2, 1))
	direct.Pix[0] = 7
	buf.Reset()
	require.NoError(t, e.writeRawRGBA(&buf, direct))
	assert.Equal(t, direct.Pix, buf.Bytes())
}

func TestClosedEncoderRejectsFrames(t *testing.T) {
	e := &FFmpegEncoder{closed: true}
	assert.ErrorIs(t, e.WriteFrame(image.NewRGBA(image.Rect(0, 0, 1, 1))), ErrEncoderClosed)
	assert.NoError(t, e.Close())
}
