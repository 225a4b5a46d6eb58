package compositor

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/gogpu/gg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/cutview/internal/config"
	"github.com/ivlev/cutview/internal/logger"
	"github.com/ivlev/cutview/internal/source"
	"github.com/ivlev/cutview/internal/system"
	"github.com/ivlev/cutview/internal/timeline"
	"github.com/ivlev/cutview/internal/viewport"
)

const (
	testW = 64
	testH = 36
)

func solid(c color.NRGBA) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, testW, testH))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

var assets = source.Static{
	"red":   solid(color.NRGBA{R: 255, A: 255}),
	"blue":  solid(color.NRGBA{B: 255, A: 255}),
	"gray":  solid(color.NRGBA{R: 128, G: 128, B: 128, A: 255}),
	"white": solid(color.NRGBA{R: 255, G: 255, B: 255, A: 255}),
}

func newTestCompositor(t *testing.T, provider source.FrameProvider, mutate func(*Options)) (*Compositor, *[]Diagnostic) {
	t.Helper()
	opts := Options{
		Width:      testW,
		Height:     testH,
		Scale:      1,
		FPS:        30,
		Background: color.NRGBA{A: 255},
		EffectMode: config.EffectModeLayered,
	}
	if mutate != nil {
		mutate(&opts)
	}
	c, err := New(opts, provider, system.NewFramePool(), logger.Discard())
	require.NoError(t, err)
	var diags []Diagnostic
	c.OnDiagnostic = func(d Diagnostic) { diags = append(diags, d) }
	return c, &diags
}

type itemSpec struct {
	typ   timeline.ItemType
	asset string
	z     int
	props map[string]timeline.Value
	blend timeline.BlendMode
}

func buildSnapshot(t *testing.T, specs ...itemSpec) (*timeline.Snapshot, []string) {
	t.Helper()
	m := timeline.NewModel()
	tr, err := m.AddTrack(&timeline.Track{Type: timeline.TrackVideo, Visible: true})
	require.NoError(t, err)
	var ids []string
	for _, s := range specs {
		id, err := m.AddItem(tr, &timeline.Item{
			Type:       s.typ,
			Duration:   10,
			ZIndex:     s.z,
			Asset:      s.asset,
			Properties: s.props,
			BlendMode:  s.blend,
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return m.Snapshot(), ids
}

func centre(f *Frame) color.RGBA {
	return f.Image.RGBAAt(testW/2, testH/2)
}

func TestComposeDeterministic(t *testing.T) {
	c, _ := newTestCompositor(t, assets, nil)
	snap, _ := buildSnapshot(t,
		itemSpec{typ: timeline.ItemImage, asset: "red"},
		itemSpec{typ: timeline.ItemImage, asset: "blue", z: 1, props: map[string]timeline.Value{
			timeline.ParamScale:    timeline.Number(0.5),
			timeline.ParamRotation: timeline.Number(30),
			timeline.ParamOpacity:  timeline.Number(0.7),
		}},
		itemSpec{typ: timeline.ItemText, z: 2, props: map[string]timeline.Value{
			timeline.ParamText: timeline.Enum("Hi"),
		}},
	)

	a := c.Compose(snap, 2, viewport.Identity())
	b := c.Compose(snap, 2, viewport.Identity())
	defer a.Release()
	defer b.Release()
	assert.True(t, bytes.Equal(a.Image.Pix, b.Image.Pix))
	assert.Equal(t, 3, a.Drawn)
}

func TestComposeDrawsInOrder(t *testing.T) {
	c, _ := newTestCompositor(t, assets, nil)
	snap, _ := buildSnapshot(t,
		itemSpec{typ: timeline.ItemImage, asset: "blue", z: 1},
		itemSpec{typ: timeline.ItemImage, asset: "red", z: 0},
	)
	f := c.Compose(snap, 1, viewport.Identity())
	defer f.Release()
	assert.Equal(t, color.RGBA{B: 255, A: 255}, centre(f))
}

func TestMissingAssetDoesNotBlankFrame(t *testing.T) {
	c, diags := newTestCompositor(t, assets, nil)
	snap, ids := buildSnapshot(t,
		itemSpec{typ: timeline.ItemImage, asset: "red"},
		itemSpec{typ: timeline.ItemImage, asset: "missing", z: 1, props: map[string]timeline.Value{
			timeline.ParamScale: timeline.Number(0.25),
		}},
	)
	f := c.Compose(snap, 1, viewport.Identity())
	defer f.Release()

	assert.Equal(t, 1, f.Failed)
	assert.Equal(t, color.RGBA{R: 255, A: 255}, f.Image.RGBAAt(2, 2), "other items still drawn")
	assert.NotEqual(t, color.RGBA{R: 255, A: 255}, centre(f), "placeholder drawn where the item would be")

	require.Len(t, *diags, 1)
	assert.Equal(t, ids[1], (*diags)[0].ItemID)
	assert.True(t, errors.Is((*diags)[0].Err, source.ErrAssetUnavailable))
}

func TestPendingAssetIsSkippedQuietly(t *testing.T) {
	pending := source.ProviderFunc(func(asset string, _ float64) (image.Image, error) {
		return nil, source.ErrAssetPending
	})
	c, diags := newTestCompositor(t, pending, nil)
	snap, _ := buildSnapshot(t, itemSpec{typ: timeline.ItemImage, asset: "slow"})

	f := c.Compose(snap, 0, viewport.Identity())
	defer f.Release()
	assert.Equal(t, 1, f.Pending)
	assert.Equal(t, 0, f.Failed)
	assert.Empty(t, *diags)
	assert.Equal(t, color.RGBA{A: 255}, centre(f))
}

func TestPanicBecomesRenderFailure(t *testing.T) {
	boom := source.ProviderFunc(func(string, float64) (image.Image, error) {
		panic("decoder exploded")
	})
	c, diags := newTestCompositor(t, boom, nil)
	snap, _ := buildSnapshot(t, itemSpec{typ: timeline.ItemImage, asset: "x"})

	f := c.Compose(snap, 0, viewport.Identity())
	defer f.Release()
	assert.Equal(t, 1, f.Failed)
	require.Len(t, *diags, 1)
	assert.True(t, errors.Is((*diags)[0].Err, ErrRenderFailure))
}

func TestFailedPassRendersPlaceholderFrame(t *testing.T) {
	c, diags := newTestCompositor(t, assets, nil)
	f := c.Begin(nil, 0, viewport.Identity()).Finish()
	defer f.Release()

	require.Len(t, *diags, 1)
	assert.True(t, errors.Is((*diags)[0].Err, ErrRenderFailure))
	top := f.Image.RGBAAt(testW/2, 2)
	assert.Equal(t, uint8(255), top.R)
	assert.Equal(t, uint8(255), top.B)
}

func TestOverlaysDisabledLeavePixelsAlone(t *testing.T) {
	snap, _ := buildSnapshot(t, itemSpec{typ: timeline.ItemImage, asset: "gray"})

	plain, _ := newTestCompositor(t, assets, nil)
	off, _ := newTestCompositor(t, assets, func(o *Options) {
		o.Overlays = config.Overlays{GridSize: 3}
	})
	on, _ := newTestCompositor(t, assets, func(o *Options) {
		o.Overlays = config.Overlays{Grid: true, SafeZones: true, Rulers: true, Timecode: true, QRSlate: true}
	})

	a := plain.Compose(snap, 1.5, viewport.Identity())
	b := off.Compose(snap, 1.5, viewport.Identity())
	d := on.Compose(snap, 1.5, viewport.Identity())
	defer a.Release()
	defer b.Release()
	defer d.Release()

	assert.True(t, bytes.Equal(a.Image.Pix, b.Image.Pix))
	assert.False(t, bytes.Equal(a.Image.Pix, d.Image.Pix))
}

func TestGuideStrokeErrorsAreReported(t *testing.T) {
	saved := stroke
	stroke = func(*gg.Context) error { return errors.New("rasterizer gone") }
	t.Cleanup(func() { stroke = saved })

	c, diags := newTestCompositor(t, assets, func(o *Options) {
		o.Overlays = config.Overlays{Grid: true, GridSize: 3}
	})
	snap, _ := buildSnapshot(t, itemSpec{typ: timeline.ItemImage, asset: "gray"})
	f := c.Compose(snap, 1, viewport.Identity())
	defer f.Release()

	require.Len(t, *diags, 1)
	assert.ErrorIs(t, (*diags)[0].Err, ErrRenderFailure)
	assert.ErrorContains(t, (*diags)[0].Err, "rasterizer gone")
	assert.Equal(t, 1.0, (*diags)[0].Time)
}

func TestIncrementalPassMatchesCompose(t *testing.T) {
	c, _ := newTestCompositor(t, assets, nil)
	snap, _ := buildSnapshot(t,
		itemSpec{typ: timeline.ItemImage, asset: "red"},
		itemSpec{typ: timeline.ItemImage, asset: "blue", z: 1, props: map[string]timeline.Value{
			timeline.ParamX: timeline.Number(10),
		}},
		itemSpec{typ: timeline.ItemImage, asset: "gray", z: 2, props: map[string]timeline.Value{
			timeline.ParamScale: timeline.Number(0.3),
		}},
	)

	p := c.Begin(snap, 1, viewport.Identity())
	assert.Equal(t, 3, p.Remaining())
	assert.Equal(t, 2, p.Step(2))
	assert.False(t, p.Done())
	assert.Equal(t, 1, p.Step(2))
	assert.True(t, p.Done())
	sliced := p.Finish()
	defer sliced.Release()
	assert.Same(t, sliced, p.Finish())

	whole := c.Compose(snap, 1, viewport.Identity())
	defer whole.Release()
	assert.True(t, bytes.Equal(sliced.Image.Pix, whole.Image.Pix))
}

func TestEffectModes(t *testing.T) {
	specs := []itemSpec{
		{typ: timeline.ItemEffect, props: map[string]timeline.Value{timeline.ParamOpacity: timeline.Number(0.5)}},
		{typ: timeline.ItemImage, asset: "blue", z: 1},
		{typ: timeline.ItemImage, asset: "red", z: 2},
	}
	snap, _ := buildSnapshot(t, specs...)

	layered, _ := newTestCompositor(t, assets, nil)
	f := layered.Compose(snap, 1, viewport.Identity())
	got := centre(f)
	f.Release()
	assert.InDelta(t, 128, int(got.R), 3)
	assert.InDelta(t, 0, int(got.B), 3, "the group fades as a whole")

	inline, _ := newTestCompositor(t, assets, func(o *Options) { o.EffectMode = config.EffectModeInline })
	f = inline.Compose(snap, 1, viewport.Identity())
	got = centre(f)
	f.Release()
	assert.InDelta(t, 128, int(got.R), 3)
	assert.InDelta(t, 64, int(got.B), 3, "each item fades on its own")
}

func TestEffectOnlyAffectsLaterItems(t *testing.T) {
	snap, _ := buildSnapshot(t,
		itemSpec{typ: timeline.ItemImage, asset: "red"},
		itemSpec{typ: timeline.ItemEffect, z: 1, props: map[string]timeline.Value{"invert": timeline.Bool(true)}},
	)
	for _, mode := range []string{config.EffectModeLayered, config.EffectModeInline} {
		c, _ := newTestCompositor(t, assets, func(o *Options) { o.EffectMode = mode })
		f := c.Compose(snap, 1, viewport.Identity())
		assert.Equal(t, color.RGBA{R: 255, A: 255}, centre(f), mode)
		f.Release()
	}
}

func TestBlendMultiply(t *testing.T) {
	c, _ := newTestCompositor(t, assets, nil)
	snap, _ := buildSnapshot(t,
		itemSpec{typ: timeline.ItemImage, asset: "white"},
		itemSpec{typ: timeline.ItemImage, asset: "gray", z: 1, blend: timeline.BlendMultiply},
	)
	f := c.Compose(snap, 1, viewport.Identity())
	defer f.Release()
	got := centre(f)
	assert.InDelta(t, 128, int(got.R), 8)
	assert.Equal(t, uint8(255), got.A)
}

func TestViewportTransformsComposite(t *testing.T) {
	c, _ := newTestCompositor(t, assets, nil)
	snap, _ := buildSnapshot(t, itemSpec{typ: timeline.ItemImage, asset: "red", props: map[string]timeline.Value{
		timeline.ParamScale: timeline.Number(0.25),
	}})

	f := c.Compose(snap, 1, viewport.Identity())
	assert.Equal(t, color.RGBA{A: 255}, f.Image.RGBAAt(4, 4))
	f.Release()

	f = c.Compose(snap, 1, viewport.State{Zoom: 5})
	assert.Equal(t, color.RGBA{R: 255, A: 255}, f.Image.RGBAAt(4, 4), "zoomed in, the item fills the surface")
	f.Release()
}

func TestTextItemDrawsGlyphs(t *testing.T) {
	c, _ := newTestCompositor(t, assets, nil)
	snap, _ := buildSnapshot(t, itemSpec{typ: timeline.ItemText, props: map[string]timeline.Value{
		timeline.ParamText:     timeline.Enum("HELLO"),
		timeline.ParamFontSize: timeline.Number(14),
		timeline.ParamColor:    timeline.RGBA(1, 1, 0, 1),
	}})
	f := c.Compose(snap, 5, viewport.Identity())
	defer f.Release()

	lit := 0
	for i := 0; i < len(f.Image.Pix); i += 4 {
		if f.Image.Pix[i] > 100 {
			lit++
		}
	}
	assert.Greater(t, lit, 10)
	assert.Equal(t, 1, f.Drawn)
}

func TestTextItemAppliesItsEffects(t *testing.T) {
	c, diags := newTestCompositor(t, assets, nil)
	m := timeline.NewModel()
	tr, err := m.AddTrack(&timeline.Track{Type: timeline.TrackVideo, Visible: true})
	require.NoError(t, err)
	id, err := m.AddItem(tr, &timeline.Item{Type: timeline.ItemText, Duration: 10, Properties: map[string]timeline.Value{
		timeline.ParamText:     timeline.Enum("HELLO"),
		timeline.ParamFontSize: timeline.Number(14),
		timeline.ParamColor:    timeline.RGBA(1, 1, 0, 1),
	}})
	require.NoError(t, err)

	plain := c.Compose(m.Snapshot(), 5, viewport.Identity())
	defer plain.Release()

	_, err = m.ApplyEffect(id, timeline.EffectRef{Name: "invert"})
	require.NoError(t, err)
	inverted := c.Compose(m.Snapshot(), 5, viewport.Identity())
	defer inverted.Release()

	assert.False(t, bytes.Equal(plain.Image.Pix, inverted.Image.Pix))
	assert.Empty(t, *diags)
}

func TestTimecode(t *testing.T) {
	tests := []struct {
		t    float64
		fps  int
		want string
	}{
		{0, 30, "00:00:00:00"},
		{1.5, 30, "00:00:01:15"},
		{3661.04, 25, "01:01:01:01"},
		{-3, 30, "00:00:00:00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Timecode(tt.t, tt.fps))
	}
}
