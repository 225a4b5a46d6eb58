package timeline

// Snapshot is a read-only copy of the model at one version. Renderers must
// not modify it.
type Snapshot struct {
	Version uint64
	Tracks  []*Track
	Markers []Marker
}

// Duration is the end of the last item in the snapshot.
func (s *Snapshot) Duration() float64 {
	if s == nil {
		return 0
	}
	return duration(s.Tracks)
}

// Item finds an item by id.
func (s *Snapshot) Item(id string) (*Item, *Track, bool) {
	for _, t := range s.Tracks {
		for _, it := range t.Items {
			if it.ID == id {
				return it, t, true
			}
		}
	}
	return nil, nil, false
}

// MarkersBetween returns markers with from <= Time < to.
func (s *Snapshot) MarkersBetween(from, to float64) []Marker {
	var out []Marker
	for _, mk := range s.Markers {
		if mk.Time >= from && mk.Time < to {
			out = append(out, mk)
		}
	}
	return out
}
