package viewport

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZoomClamp(t *testing.T) {
	c := NewController()
	assert.Equal(t, 5.0, c.SetZoom(6.0))
	assert.Equal(t, 5.0, c.State().Zoom)
	assert.Equal(t, 0.1, c.SetZoom(0.01))
	assert.Equal(t, 0.1, c.State().Zoom)

	c.SetZoom(4)
	assert.Equal(t, 5.0, c.ZoomBy(2))
	assert.Equal(t, 5.0, c.ZoomBy(-1), "non-positive factor is ignored")
}

func TestPanDividesByZoom(t *testing.T) {
	c := NewController()
	c.SetZoom(2)
	c.Pan(10, -20)
	s := c.State()
	assert.Equal(t, 5.0, s.PanX)
	assert.Equal(t, -10.0, s.PanY)

	c.HandleDrag(4, 4)
	assert.Equal(t, 7.0, c.State().PanX)
}

func TestReset(t *testing.T) {
	c := NewController()
	c.SetZoom(3)
	c.Pan(30, 30)
	c.SetRotation(-90)
	assert.Equal(t, 270.0, c.State().Rotation)

	c.Reset()
	s := c.State()
	assert.Equal(t, 1.0, s.Zoom)
	assert.Equal(t, 0.0, s.PanX)
	assert.Equal(t, 0.0, s.PanY)
	assert.Equal(t, 270.0, s.Rotation)
}

func apply(m [6]float64, x, y float64) (float64, float64) {
	return m[0]*x + m[1]*y + m[2], m[3]*x + m[4]*y + m[5]
}

func TestMatrix(t *testing.T) {
	assert.True(t, Identity().IsIdentity())
	m := Identity().Matrix(100, 50)
	x, y := apply(m, 10, 20)
	assert.InDelta(t, 10, x, 1e-9)
	assert.InDelta(t, 20, y, 1e-9)

	// Zoom pivots on the centre.
	m = State{Zoom: 2}.Matrix(100, 50)
	x, y = apply(m, 50, 25)
	assert.InDelta(t, 50, x, 1e-9)
	assert.InDelta(t, 25, y, 1e-9)
	x, _ = apply(m, 60, 25)
	assert.InDelta(t, 70, x, 1e-9)

	// Pan is in content units, so it is scaled by zoom on screen.
	m = State{Zoom: 2, PanX: 5}.Matrix(100, 50)
	x, _ = apply(m, 50, 25)
	assert.InDelta(t, 60, x, 1e-9)

	// 90 degrees turns +x into +y about the centre.
	m = State{Zoom: 1, Rotation: 90}.Matrix(100, 100)
	x, y = apply(m, 60, 50)
	assert.InDelta(t, 50, x, 1e-9)
	assert.InDelta(t, 60, y, 1e-9)
}

func TestHandleWheelRouting(t *testing.T) {
	tests := []struct {
		name   string
		ev     WheelEvent
		action Action
	}{
		{"ctrl zooms", WheelEvent{DeltaY: -100, Mods: ModCtrl}, ActionZoom},
		{"meta zooms", WheelEvent{DeltaY: 100, Mods: ModMeta}, ActionZoom},
		{"shift pans", WheelEvent{DeltaX: 10, Mods: ModShift}, ActionPan},
		{"plain scrubs", WheelEvent{DeltaX: 50}, ActionScrub},
		{"alt scrubs", WheelEvent{DeltaY: 50, Mods: ModAlt}, ActionScrub},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewController()
			res := c.HandleWheel(tt.ev, 1, 10)
			assert.Equal(t, tt.action, res.Action)
		})
	}
}

func TestHandleWheelEffects(t *testing.T) {
	c := NewController()
	res := c.HandleWheel(WheelEvent{DeltaY: -100, Mods: ModCtrl}, 0, 10)
	assert.InDelta(t, math.Pow(zoomStep, 100), res.Zoom, 1e-9)
	assert.Greater(t, c.State().Zoom, 1.0)

	c.Reset()
	c.HandleWheel(WheelEvent{DeltaX: 10, DeltaY: 20, Mods: ModShift}, 0, 10)
	assert.Equal(t, State{Zoom: 1, PanX: -10, PanY: -20}, c.State())

	res = c.HandleWheel(WheelEvent{DeltaX: 100}, 2, 10)
	assert.InDelta(t, 3, res.Time, 1e-9)
	res = c.HandleWheel(WheelEvent{DeltaX: 5000}, 2, 10)
	assert.Equal(t, 10.0, res.Time)
	res = c.HandleWheel(WheelEvent{DeltaX: -5000}, 2, 10)
	assert.Equal(t, 0.0, res.Time)
}

func TestSubscribe(t *testing.T) {
	c := NewController()
	var got []State
	sub := c.Subscribe(func(s State) { got = append(got, s) })
	c.SetZoom(2)
	c.SetZoom(2) // unchanged, no event
	c.Pan(2, 0)
	require.Len(t, got, 2)
	assert.Equal(t, 1.0, got[1].PanX)

	sub.Unsubscribe()
	c.Reset()
	assert.Len(t, got, 2)
}
