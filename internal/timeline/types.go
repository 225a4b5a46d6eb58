package timeline

// TrackType is the kind of lane a Track represents.
type TrackType string

const (
	TrackVideo  TrackType = "video"
	TrackAudio  TrackType = "audio"
	TrackText   TrackType = "text"
	TrackEffect TrackType = "effect"
)

// ItemType selects the draw routine for an Item.
type ItemType string

const (
	ItemVideo  ItemType = "video"
	ItemImage  ItemType = "image"
	ItemAudio  ItemType = "audio"
	ItemText   ItemType = "text"
	ItemEffect ItemType = "effect"
)

// Interpolation names the easing applied on the segment ending at a keyframe.
type Interpolation string

const (
	InterpStep    Interpolation = "step"
	InterpLinear  Interpolation = "linear"
	InterpEaseIn  Interpolation = "easeIn"
	InterpEaseOut Interpolation = "easeOut"
	InterpBezier  Interpolation = "bezier"
)

// BlendMode controls how an item is composited over what is below it.
type BlendMode string

const (
	BlendNormal   BlendMode = "normal"
	BlendMultiply BlendMode = "multiply"
	BlendScreen   BlendMode = "screen"
	BlendOverlay  BlendMode = "overlay"
)

// MarkerType classifies a Marker.
type MarkerType string

const (
	MarkerIn      MarkerType = "in"
	MarkerOut     MarkerType = "out"
	MarkerChapter MarkerType = "chapter"
	MarkerCue     MarkerType = "cue"
	MarkerCustom  MarkerType = "custom"
)

// Common parameter ids.
const (
	ParamX               = "x"
	ParamY               = "y"
	ParamScale           = "scale"
	ParamScaleX          = "scaleX"
	ParamScaleY          = "scaleY"
	ParamRotation        = "rotation"
	ParamOpacity         = "opacity"
	ParamText            = "text"
	ParamFontSize        = "fontSize"
	ParamColor           = "color"
	ParamAnimationIn     = "animationIn"
	ParamAnimationOut    = "animationOut"
	ParamAnimationLength = "animationLength"
	ParamBlur            = "blur"
)

// Keyframe is a timed sample of one parameter. Time is item-local.
type Keyframe struct {
	Time   float64
	Value  Value
	Interp Interpolation
	// Bezier holds x1, y1, x2, y2 for InterpBezier. Zero means the CSS
	// "ease" curve.
	Bezier [4]float64
}

// EffectRef is a named filter attached to a single item.
type EffectRef struct {
	ID     string
	Name   string
	Params map[string]Value
}

// Item is a clip, image, text or effect placed on a Track.
type Item struct {
	ID         string
	TrackID    string
	Type       ItemType
	StartTime  float64
	Duration   float64
	ZIndex     int
	Asset      string
	BlendMode  BlendMode
	Properties map[string]Value
	Keyframes  map[string][]Keyframe
	Effects    []EffectRef
	// Seq is the creation order, used as the last ordering tie-break.
	Seq uint64
}

// End returns StartTime+Duration.
func (it *Item) End() float64 {
	return it.StartTime + it.Duration
}

// Covers reports whether global time t lies in [start, end).
func (it *Item) Covers(t float64) bool {
	return t >= it.StartTime && t < it.End()
}

// Property returns the static value of a parameter.
func (it *Item) Property(id string) (Value, bool) {
	v, ok := it.Properties[id]
	return v, ok
}

// Clone returns a deep copy.
func (it *Item) Clone() *Item {
	c := *it
	c.Properties = make(map[string]Value, len(it.Properties))
	for k, v := range it.Properties {
		c.Properties[k] = v
	}
	c.Keyframes = make(map[string][]Keyframe, len(it.Keyframes))
	for k, kfs := range it.Keyframes {
		c.Keyframes[k] = append([]Keyframe(nil), kfs...)
	}
	c.Effects = make([]EffectRef, len(it.Effects))
	for i, e := range it.Effects {
		c.Effects[i] = e.clone()
	}
	return &c
}

func (e EffectRef) clone() EffectRef {
	c := e
	c.Params = make(map[string]Value, len(e.Params))
	for k, v := range e.Params {
		c.Params[k] = v
	}
	return c
}

// Track is an ordered lane of items.
type Track struct {
	ID      string
	Name    string
	Type    TrackType
	Visible bool
	// Index is the stacking position; lower indices are drawn first.
	Index int
	Items []*Item
}

func (t *Track) clone() *Track {
	c := *t
	c.Items = make([]*Item, len(t.Items))
	for i, it := range t.Items {
		c.Items[i] = it.Clone()
	}
	return &c
}

// Marker is a labelled point in global timeline time.
type Marker struct {
	ID    string
	Time  float64
	Type  MarkerType
	Label string
	Color string
}
