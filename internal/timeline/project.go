package timeline

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Project is the on-disk form of a model.
type Project struct {
	Version string         `yaml:"version"`
	Tracks  []projectTrack `yaml:"tracks"`
	Markers []Marker       `yaml:"markers,omitempty"`
}

type projectTrack struct {
	ID      string        `yaml:"id"`
	Name    string        `yaml:"name,omitempty"`
	Type    TrackType     `yaml:"type"`
	Visible bool          `yaml:"visible"`
	Index   int           `yaml:"index"`
	Items   []projectItem `yaml:"items,omitempty"`
}

type projectItem struct {
	ID         string                       `yaml:"id"`
	Type       ItemType                     `yaml:"type"`
	Start      float64                      `yaml:"start"`
	Duration   float64                      `yaml:"duration"`
	ZIndex     int                          `yaml:"zIndex,omitempty"`
	Asset      string                       `yaml:"asset,omitempty"`
	BlendMode  BlendMode                    `yaml:"blend,omitempty"`
	Properties map[string]yamlValue         `yaml:"properties,omitempty"`
	Keyframes  map[string][]projectKeyframe `yaml:"keyframes,omitempty"`
	Effects    []projectEffect              `yaml:"effects,omitempty"`
}

type projectKeyframe struct {
	Time   float64       `yaml:"time"`
	Value  yamlValue     `yaml:"value"`
	Interp Interpolation `yaml:"interp,omitempty"`
	Bezier []float64     `yaml:"bezier,flow,omitempty"`
}

type projectEffect struct {
	ID     string               `yaml:"id,omitempty"`
	Name   string               `yaml:"name"`
	Params map[string]yamlValue `yaml:"params,omitempty"`
}

// yamlValue encodes a Value as a one-key mapping such as {number: 1}.
type yamlValue Value

func (v yamlValue) MarshalYAML() (interface{}, error) {
	switch v.Kind {
	case KindNumber:
		return map[string]float64{"number": v.Num}, nil
	case KindColor:
		return map[string]string{"color": v.Color.Hex()}, nil
	case KindBool:
		return map[string]bool{"bool": v.Bool}, nil
	case KindEnum:
		return map[string]string{"enum": v.Str}, nil
	case KindVector2:
		return map[string][]float64{"vec": {v.Vec.X, v.Vec.Y}}, nil
	}
	return nil, fmt.Errorf("cannot encode value of kind %s", v.Kind)
}

func (v *yamlValue) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		return v.decodeScalar(node)
	}
	if node.Kind != yaml.MappingNode || len(node.Content) != 2 {
		return fmt.Errorf("line %d: value must be a one-key mapping", node.Line)
	}
	key, body := node.Content[0].Value, node.Content[1]
	switch key {
	case "number":
		var f float64
		if err := body.Decode(&f); err != nil {
			return err
		}
		*v = yamlValue(Number(f))
	case "color":
		var s string
		if err := body.Decode(&s); err != nil {
			return err
		}
		c, err := ParseColor(s)
		if err != nil {
			return fmt.Errorf("line %d: %w", body.Line, err)
		}
		*v = yamlValue(ColorValue(c))
	case "bool":
		var b bool
		if err := body.Decode(&b); err != nil {
			return err
		}
		*v = yamlValue(Bool(b))
	case "enum":
		var s string
		if err := body.Decode(&s); err != nil {
			return err
		}
		*v = yamlValue(Enum(s))
	case "vec":
		var xy []float64
		if err := body.Decode(&xy); err != nil {
			return err
		}
		if len(xy) != 2 {
			return fmt.Errorf("line %d: vec needs 2 components, got %d", body.Line, len(xy))
		}
		*v = yamlValue(Vector(xy[0], xy[1]))
	default:
		return fmt.Errorf("line %d: unknown value kind %q", node.Line, key)
	}
	return nil
}

// decodeScalar accepts shorthand: numbers, booleans, "#rrggbb" colors and
// plain strings as enums.
func (v *yamlValue) decodeScalar(node *yaml.Node) error {
	switch node.Tag {
	case "!!int", "!!float":
		var f float64
		if err := node.Decode(&f); err != nil {
			return err
		}
		*v = yamlValue(Number(f))
	case "!!bool":
		var b bool
		if err := node.Decode(&b); err != nil {
			return err
		}
		*v = yamlValue(Bool(b))
	default:
		if len(node.Value) > 0 && node.Value[0] == '#' {
			c, err := ParseColor(node.Value)
			if err != nil {
				return fmt.Errorf("line %d: %w", node.Line, err)
			}
			*v = yamlValue(ColorValue(c))
			return nil
		}
		*v = yamlValue(Enum(node.Value))
	}
	return nil
}

// LoadProject reads a YAML project file into a new model.
func LoadProject(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p Project
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	m := NewModel()
	if err := p.apply(m); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return m, nil
}

// SaveProject writes the model's current state as YAML.
func SaveProject(m *Model, path string) error {
	data, err := yaml.Marshal(ProjectFromSnapshot(m.Snapshot()))
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ProjectFromSnapshot converts a snapshot to its file form.
func ProjectFromSnapshot(s *Snapshot) *Project {
	p := &Project{Version: "1.0", Markers: append([]Marker(nil), s.Markers...)}
	for _, t := range s.Tracks {
		pt := projectTrack{ID: t.ID, Name: t.Name, Type: t.Type, Visible: t.Visible, Index: t.Index}
		items := append([]*Item(nil), t.Items...)
		sort.SliceStable(items, func(i, j int) bool { return items[i].Seq < items[j].Seq })
		for _, it := range items {
			pt.Items = append(pt.Items, toProjectItem(it))
		}
		p.Tracks = append(p.Tracks, pt)
	}
	return p
}

func toProjectItem(it *Item) projectItem {
	pi := projectItem{
		ID:        it.ID,
		Type:      it.Type,
		Start:     it.StartTime,
		Duration:  it.Duration,
		ZIndex:    it.ZIndex,
		Asset:     it.Asset,
		BlendMode: it.BlendMode,
	}
	if len(it.Properties) > 0 {
		pi.Properties = make(map[string]yamlValue, len(it.Properties))
		for k, v := range it.Properties {
			pi.Properties[k] = yamlValue(v)
		}
	}
	if len(it.Keyframes) > 0 {
		pi.Keyframes = make(map[string][]projectKeyframe, len(it.Keyframes))
		for param, kfs := range it.Keyframes {
			for _, kf := range kfs {
				pk := projectKeyframe{Time: kf.Time, Value: yamlValue(kf.Value), Interp: kf.Interp}
				if kf.Bezier != ([4]float64{}) {
					pk.Bezier = kf.Bezier[:]
				}
				pi.Keyframes[param] = append(pi.Keyframes[param], pk)
			}
		}
	}
	for _, e := range it.Effects {
		pe := projectEffect{ID: e.ID, Name: e.Name}
		if len(e.Params) > 0 {
			pe.Params = make(map[string]yamlValue, len(e.Params))
			for k, v := range e.Params {
				pe.Params[k] = yamlValue(v)
			}
		}
		pi.Effects = append(pi.Effects, pe)
	}
	return pi
}

// apply replays the project into m through the regular mutation entry
// points so every invariant is checked.
func (p *Project) apply(m *Model) error {
	for _, pt := range p.Tracks {
		trackID, err := m.AddTrack(&Track{ID: pt.ID, Name: pt.Name, Type: pt.Type, Visible: pt.Visible, Index: pt.Index})
		if err != nil {
			return err
		}
		for _, pi := range pt.Items {
			it := &Item{
				ID:         pi.ID,
				Type:       pi.Type,
				StartTime:  pi.Start,
				Duration:   pi.Duration,
				ZIndex:     pi.ZIndex,
				Asset:      pi.Asset,
				BlendMode:  pi.BlendMode,
				Properties: make(map[string]Value, len(pi.Properties)),
				Keyframes:  make(map[string][]Keyframe, len(pi.Keyframes)),
			}
			for k, v := range pi.Properties {
				it.Properties[k] = Value(v)
			}
			for param, pks := range pi.Keyframes {
				for _, pk := range pks {
					kf := Keyframe{Time: pk.Time, Value: Value(pk.Value), Interp: pk.Interp}
					if len(pk.Bezier) == 4 {
						copy(kf.Bezier[:], pk.Bezier)
					} else if len(pk.Bezier) != 0 {
						return fmt.Errorf("item %s param %s: bezier needs 4 control values", pi.ID, param)
					}
					it.Keyframes[param] = append(it.Keyframes[param], kf)
				}
			}
			for _, pe := range pi.Effects {
				e := EffectRef{ID: pe.ID, Name: pe.Name, Params: make(map[string]Value, len(pe.Params))}
				for k, v := range pe.Params {
					e.Params[k] = Value(v)
				}
				it.Effects = append(it.Effects, e)
			}
			if _, err := m.AddItem(trackID, it); err != nil {
				return err
			}
		}
	}
	for _, mk := range p.Markers {
		if _, err := m.AddMarker(mk); err != nil {
			return err
		}
	}
	return nil
}
