package renderer

import (
	"sort"

	"github.com/ivlev/cutview/internal/timeline"
)

// Active is an item covering the requested time, with its local time.
type Active struct {
	Item      *timeline.Item
	Track     *timeline.Track
	LocalTime float64
}

// Resolve returns the items on visible tracks whose [start, end) range
// contains t, in draw order: zIndex, then track index, then creation order.
// Later entries are drawn on top.
func Resolve(snap *timeline.Snapshot, t float64) []Active {
	if snap == nil {
		return nil
	}
	var out []Active
	for _, tr := range snap.Tracks {
		if !tr.Visible {
			continue
		}
		for _, it := range tr.Items {
			if it.Covers(t) {
				out = append(out, Active{Item: it, Track: tr, LocalTime: t - it.StartTime})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Item.ZIndex != b.Item.ZIndex {
			return a.Item.ZIndex < b.Item.ZIndex
		}
		if a.Track.Index != b.Track.Index {
			return a.Track.Index < b.Track.Index
		}
		return a.Item.Seq < b.Item.Seq
	})
	return out
}
