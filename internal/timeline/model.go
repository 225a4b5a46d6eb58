// Package timeline holds the project model: tracks, items, keyframes and
// markers. All state changes go through Model methods (or the Command
// wrappers around them); readers take immutable snapshots.
package timeline

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/ivlev/cutview/internal/events"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicateID       = errors.New("duplicate id")
	ErrInvalidItem       = errors.New("invalid item")
	ErrDuplicateKeyframe = errors.New("keyframe already exists at this time")
	ErrInvalidKeyframe   = errors.New("invalid keyframe")
)

// ChangeKind says what part of the model a mutation touched.
type ChangeKind string

const (
	ChangeTrack     ChangeKind = "track"
	ChangeItem      ChangeKind = "item"
	ChangeKeyframe  ChangeKind = "keyframe"
	ChangeParameter ChangeKind = "parameter"
	ChangeEffect    ChangeKind = "effect"
	ChangeMarker    ChangeKind = "marker"
)

// Change is published after every successful mutation.
type Change struct {
	Kind    ChangeKind
	ID      string
	Version uint64
}

// Model is the single owner of mutable timeline state.
type Model struct {
	mu      sync.RWMutex
	tracks  []*Track
	markers []*Marker
	seq     uint64
	version uint64
	snap    *Snapshot

	changes *events.Hub[Change]
}

// NewModel returns an empty model.
func NewModel() *Model {
	return &Model{changes: events.NewHub[Change]()}
}

// Subscribe registers fn for change notifications.
func (m *Model) Subscribe(fn func(Change)) *events.Subscription {
	return m.changes.Subscribe(fn)
}

// Close drops all change subscribers.
func (m *Model) Close() {
	m.changes.Close()
}

// Version increases by one with every mutation.
func (m *Model) Version() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}

// Duration is the end of the last item, recomputed on every call.
func (m *Model) Duration() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return duration(m.tracks)
}

func duration(tracks []*Track) float64 {
	d := 0.0
	for _, t := range tracks {
		for _, it := range t.Items {
			if end := it.End(); end > d {
				d = end
			}
		}
	}
	return d
}

// Tracks returns deep copies of all tracks in stacking order.
func (m *Model) Tracks() []*Track {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Track, len(m.tracks))
	for i, t := range m.tracks {
		out[i] = t.clone()
	}
	return out
}

// Track returns a copy of the track with the given id.
func (m *Model) Track(id string) (*Track, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t := m.findTrack(id)
	if t == nil {
		return nil, false
	}
	return t.clone(), true
}

// Item returns a copy of the item with the given id.
func (m *Model) Item(id string) (*Item, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, it, _ := m.findItem(id)
	if it == nil {
		return nil, false
	}
	return it.Clone(), true
}

// Markers returns all markers ordered by time.
func (m *Model) Markers() []Marker {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedMarkers(m.markers)
}

func sortedMarkers(src []*Marker) []Marker {
	out := make([]Marker, len(src))
	for i, mk := range src {
		out[i] = *mk
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

// Snapshot returns an immutable view of the current state. The same
// snapshot is returned until the next mutation.
func (m *Model) Snapshot() *Snapshot {
	m.mu.RLock()
	if s := m.snap; s != nil && s.Version == m.version {
		m.mu.RUnlock()
		return s
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap == nil || m.snap.Version != m.version {
		tracks := make([]*Track, len(m.tracks))
		for i, t := range m.tracks {
			tracks[i] = t.clone()
		}
		m.snap = &Snapshot{
			Version: m.version,
			Tracks:  tracks,
			Markers: sortedMarkers(m.markers),
		}
	}
	return m.snap
}

// AddTrack appends a track and returns its id.
func (m *Model) AddTrack(t *Track) (string, error) {
	if t == nil {
		return "", fmt.Errorf("%w: nil track", ErrInvalidItem)
	}
	m.mu.Lock()
	c := t.clone()
	c.Items = nil
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if m.findTrack(c.ID) != nil {
		m.mu.Unlock()
		return "", fmt.Errorf("track %s: %w", c.ID, ErrDuplicateID)
	}
	m.tracks = append(m.tracks, c)
	sort.SliceStable(m.tracks, func(i, j int) bool { return m.tracks[i].Index < m.tracks[j].Index })
	v := m.bump()
	m.mu.Unlock()

	m.notify(ChangeTrack, c.ID, v)
	return c.ID, nil
}

// RemoveTrack deletes a track together with its items.
func (m *Model) RemoveTrack(id string) error {
	m.mu.Lock()
	idx := -1
	for i, t := range m.tracks {
		if t.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.mu.Unlock()
		return fmt.Errorf("track %s: %w", id, ErrNotFound)
	}
	m.tracks = append(m.tracks[:idx], m.tracks[idx+1:]...)
	v := m.bump()
	m.mu.Unlock()

	m.notify(ChangeTrack, id, v)
	return nil
}

// SetTrackVisible toggles whether a track's items are rendered.
func (m *Model) SetTrackVisible(id string, visible bool) error {
	m.mu.Lock()
	t := m.findTrack(id)
	if t == nil {
		m.mu.Unlock()
		return fmt.Errorf("track %s: %w", id, ErrNotFound)
	}
	t.Visible = visible
	v := m.bump()
	m.mu.Unlock()

	m.notify(ChangeTrack, id, v)
	return nil
}

// AddItem places a copy of it on the track and returns the item id. A
// non-zero Seq is kept so that undoing a removal restores the original
// ordering.
func (m *Model) AddItem(trackID string, it *Item) (string, error) {
	if err := validateItem(it); err != nil {
		return "", err
	}
	m.mu.Lock()
	t := m.findTrack(trackID)
	if t == nil {
		m.mu.Unlock()
		return "", fmt.Errorf("track %s: %w", trackID, ErrNotFound)
	}
	c := it.Clone()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if _, existing, _ := m.findItem(c.ID); existing != nil {
		m.mu.Unlock()
		return "", fmt.Errorf("item %s: %w", c.ID, ErrDuplicateID)
	}
	c.TrackID = t.ID
	if c.BlendMode == "" {
		c.BlendMode = BlendNormal
	}
	if c.Seq == 0 {
		m.seq++
		c.Seq = m.seq
	} else if c.Seq > m.seq {
		m.seq = c.Seq
	}
	for param, kfs := range c.Keyframes {
		sorted, err := normalizeKeyframes(kfs)
		if err != nil {
			m.mu.Unlock()
			return "", fmt.Errorf("item %s param %s: %w", c.ID, param, err)
		}
		c.Keyframes[param] = sorted
	}
	t.Items = append(t.Items, c)
	sortItems(t.Items)
	v := m.bump()
	m.mu.Unlock()

	m.notify(ChangeItem, c.ID, v)
	return c.ID, nil
}

// RemoveItem deletes an item and returns a copy of it.
func (m *Model) RemoveItem(id string) (*Item, error) {
	m.mu.Lock()
	t, it, idx := m.findItem(id)
	if it == nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	t.Items = append(t.Items[:idx], t.Items[idx+1:]...)
	v := m.bump()
	m.mu.Unlock()

	m.notify(ChangeItem, id, v)
	return it, nil
}

// MoveItem changes an item's start time.
func (m *Model) MoveItem(id string, start float64) error {
	if start < 0 || math.IsNaN(start) || math.IsInf(start, 0) {
		return fmt.Errorf("%w: start %v", ErrInvalidItem, start)
	}
	m.mu.Lock()
	t, it, _ := m.findItem(id)
	if it == nil {
		m.mu.Unlock()
		return fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	it.StartTime = start
	sortItems(t.Items)
	v := m.bump()
	m.mu.Unlock()

	m.notify(ChangeItem, id, v)
	return nil
}

// AddKeyframe inserts kf keeping the parameter's keyframes sorted.
func (m *Model) AddKeyframe(itemID, param string, kf Keyframe) error {
	if err := validateKeyframe(kf); err != nil {
		return err
	}
	if kf.Interp == "" {
		kf.Interp = InterpLinear
	}
	m.mu.Lock()
	_, it, _ := m.findItem(itemID)
	if it == nil {
		m.mu.Unlock()
		return fmt.Errorf("item %s: %w", itemID, ErrNotFound)
	}
	kfs := it.Keyframes[param]
	i := sort.Search(len(kfs), func(i int) bool { return kfs[i].Time >= kf.Time })
	if i < len(kfs) && kfs[i].Time == kf.Time {
		m.mu.Unlock()
		return fmt.Errorf("item %s param %s at %g: %w", itemID, param, kf.Time, ErrDuplicateKeyframe)
	}
	kfs = append(kfs, Keyframe{})
	copy(kfs[i+1:], kfs[i:])
	kfs[i] = kf
	if it.Keyframes == nil {
		it.Keyframes = make(map[string][]Keyframe)
	}
	it.Keyframes[param] = kfs
	v := m.bump()
	m.mu.Unlock()

	m.notify(ChangeKeyframe, itemID, v)
	return nil
}

// RemoveKeyframe deletes the keyframe at exactly time t.
func (m *Model) RemoveKeyframe(itemID, param string, t float64) (Keyframe, error) {
	m.mu.Lock()
	_, it, _ := m.findItem(itemID)
	if it == nil {
		m.mu.Unlock()
		return Keyframe{}, fmt.Errorf("item %s: %w", itemID, ErrNotFound)
	}
	kfs := it.Keyframes[param]
	i := sort.Search(len(kfs), func(i int) bool { return kfs[i].Time >= t })
	if i >= len(kfs) || kfs[i].Time != t {
		m.mu.Unlock()
		return Keyframe{}, fmt.Errorf("keyframe %s@%g: %w", param, t, ErrNotFound)
	}
	removed := kfs[i]
	kfs = append(kfs[:i], kfs[i+1:]...)
	if len(kfs) == 0 {
		delete(it.Keyframes, param)
	} else {
		it.Keyframes[param] = kfs
	}
	v := m.bump()
	m.mu.Unlock()

	m.notify(ChangeKeyframe, itemID, v)
	return removed, nil
}

// SetParameter sets a static property and returns the previous value.
func (m *Model) SetParameter(itemID, param string, val Value) (prev Value, had bool, err error) {
	if !val.IsValid() {
		return Value{}, false, fmt.Errorf("%w: parameter %s has no kind", ErrInvalidItem, param)
	}
	m.mu.Lock()
	_, it, _ := m.findItem(itemID)
	if it == nil {
		m.mu.Unlock()
		return Value{}, false, fmt.Errorf("item %s: %w", itemID, ErrNotFound)
	}
	if it.Properties == nil {
		it.Properties = make(map[string]Value)
	}
	prev, had = it.Properties[param]
	it.Properties[param] = val
	v := m.bump()
	m.mu.Unlock()

	m.notify(ChangeParameter, itemID, v)
	return prev, had, nil
}

// UnsetParameter removes a static property.
func (m *Model) UnsetParameter(itemID, param string) error {
	m.mu.Lock()
	_, it, _ := m.findItem(itemID)
	if it == nil {
		m.mu.Unlock()
		return fmt.Errorf("item %s: %w", itemID, ErrNotFound)
	}
	delete(it.Properties, param)
	v := m.bump()
	m.mu.Unlock()

	m.notify(ChangeParameter, itemID, v)
	return nil
}

// ApplyEffect appends a filter to an item's effect stack.
func (m *Model) ApplyEffect(itemID string, e EffectRef) (string, error) {
	return m.InsertEffect(itemID, e, -1)
}

// InsertEffect places a filter at index (or at the end when index is out of
// range) and returns its id.
func (m *Model) InsertEffect(itemID string, e EffectRef, index int) (string, error) {
	if e.Name == "" {
		return "", fmt.Errorf("%w: effect without name", ErrInvalidItem)
	}
	m.mu.Lock()
	_, it, _ := m.findItem(itemID)
	if it == nil {
		m.mu.Unlock()
		return "", fmt.Errorf("item %s: %w", itemID, ErrNotFound)
	}
	c := e.clone()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	for _, ex := range it.Effects {
		if ex.ID == c.ID {
			m.mu.Unlock()
			return "", fmt.Errorf("effect %s: %w", c.ID, ErrDuplicateID)
		}
	}
	if index < 0 || index >= len(it.Effects) {
		it.Effects = append(it.Effects, c)
	} else {
		it.Effects = append(it.Effects, EffectRef{})
		copy(it.Effects[index+1:], it.Effects[index:])
		it.Effects[index] = c
	}
	v := m.bump()
	m.mu.Unlock()

	m.notify(ChangeEffect, itemID, v)
	return c.ID, nil
}

// RemoveEffect deletes a filter and reports where it was.
func (m *Model) RemoveEffect(itemID, effectID string) (EffectRef, int, error) {
	m.mu.Lock()
	_, it, _ := m.findItem(itemID)
	if it == nil {
		m.mu.Unlock()
		return EffectRef{}, -1, fmt.Errorf("item %s: %w", itemID, ErrNotFound)
	}
	for i, e := range it.Effects {
		if e.ID != effectID {
			continue
		}
		it.Effects = append(it.Effects[:i], it.Effects[i+1:]...)
		v := m.bump()
		m.mu.Unlock()

		m.notify(ChangeEffect, itemID, v)
		return e, i, nil
	}
	m.mu.Unlock()
	return EffectRef{}, -1, fmt.Errorf("effect %s: %w", effectID, ErrNotFound)
}

// AddMarker stores a marker and returns its id.
func (m *Model) AddMarker(mk Marker) (string, error) {
	if mk.Time < 0 || math.IsNaN(mk.Time) || math.IsInf(mk.Time, 0) {
		return "", fmt.Errorf("%w: marker time %v", ErrInvalidItem, mk.Time)
	}
	if mk.Type == "" {
		mk.Type = MarkerCustom
	}
	m.mu.Lock()
	if mk.ID == "" {
		mk.ID = uuid.NewString()
	}
	for _, ex := range m.markers {
		if ex.ID == mk.ID {
			m.mu.Unlock()
			return "", fmt.Errorf("marker %s: %w", mk.ID, ErrDuplicateID)
		}
	}
	c := mk
	m.markers = append(m.markers, &c)
	v := m.bump()
	m.mu.Unlock()

	m.notify(ChangeMarker, mk.ID, v)
	return mk.ID, nil
}

// RemoveMarker deletes a marker and returns it.
func (m *Model) RemoveMarker(id string) (Marker, error) {
	m.mu.Lock()
	for i, mk := range m.markers {
		if mk.ID != id {
			continue
		}
		m.markers = append(m.markers[:i], m.markers[i+1:]...)
		v := m.bump()
		m.mu.Unlock()

		m.notify(ChangeMarker, id, v)
		return *mk, nil
	}
	m.mu.Unlock()
	return Marker{}, fmt.Errorf("marker %s: %w", id, ErrNotFound)
}

// bump must be called with mu held.
func (m *Model) bump() uint64 {
	m.version++
	return m.version
}

func (m *Model) notify(kind ChangeKind, id string, version uint64) {
	m.changes.Publish(Change{Kind: kind, ID: id, Version: version})
}

func (m *Model) findTrack(id string) *Track {
	for _, t := range m.tracks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

func (m *Model) findItem(id string) (*Track, *Item, int) {
	for _, t := range m.tracks {
		for i, it := range t.Items {
			if it.ID == id {
				return t, it, i
			}
		}
	}
	return nil, nil, -1
}

func sortItems(items []*Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].StartTime != items[j].StartTime {
			return items[i].StartTime < items[j].StartTime
		}
		return items[i].Seq < items[j].Seq
	})
}

func validateItem(it *Item) error {
	if it == nil {
		return fmt.Errorf("%w: nil", ErrInvalidItem)
	}
	if !(it.Duration > 0) || math.IsInf(it.Duration, 0) {
		return fmt.Errorf("%w: duration must be > 0, got %v", ErrInvalidItem, it.Duration)
	}
	if it.StartTime < 0 || math.IsNaN(it.StartTime) || math.IsInf(it.StartTime, 0) {
		return fmt.Errorf("%w: start time %v", ErrInvalidItem, it.StartTime)
	}
	switch it.Type {
	case ItemVideo, ItemImage, ItemAudio, ItemText, ItemEffect:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidItem, it.Type)
	}
	return nil
}

func validateKeyframe(kf Keyframe) error {
	if math.IsNaN(kf.Time) || math.IsInf(kf.Time, 0) {
		return fmt.Errorf("%w: time %v", ErrInvalidKeyframe, kf.Time)
	}
	if !kf.Value.IsValid() {
		return fmt.Errorf("%w: value has no kind", ErrInvalidKeyframe)
	}
	switch kf.Interp {
	case "", InterpStep, InterpLinear, InterpEaseIn, InterpEaseOut, InterpBezier:
	default:
		return fmt.Errorf("%w: interpolation %q", ErrInvalidKeyframe, kf.Interp)
	}
	return nil
}

// normalizeKeyframes validates, sorts and rejects duplicate times.
func normalizeKeyframes(kfs []Keyframe) ([]Keyframe, error) {
	out := make([]Keyframe, len(kfs))
	for i, kf := range kfs {
		if err := validateKeyframe(kf); err != nil {
			return nil, err
		}
		if kf.Interp == "" {
			kf.Interp = InterpLinear
		}
		out[i] = kf
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	for i := 1; i < len(out); i++ {
		if out[i].Time == out[i-1].Time {
			return nil, fmt.Errorf("at %g: %w", out[i].Time, ErrDuplicateKeyframe)
		}
	}
	return out, nil
}
