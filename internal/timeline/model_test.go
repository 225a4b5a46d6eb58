package timeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestModel(t *testing.T) (*Model, string) {
	t.Helper()
	m := NewModel()
	trackID, err := m.AddTrack(&Track{Name: "V1", Type: TrackVideo, Visible: true})
	require.NoError(t, err)
	return m, trackID
}

func TestDurationTracksMutations(t *testing.T) {
	m, tr := newTestModel(t)
	assert.Equal(t, 0.0, m.Duration())

	a, err := m.AddItem(tr, &Item{Type: ItemImage, StartTime: 0, Duration: 5})
	require.NoError(t, err)
	assert.Equal(t, 5.0, m.Duration())

	_, err = m.AddItem(tr, &Item{Type: ItemText, StartTime: 3, Duration: 7})
	require.NoError(t, err)
	assert.Equal(t, 10.0, m.Duration())

	require.NoError(t, m.MoveItem(a, 20))
	assert.Equal(t, 25.0, m.Duration())

	_, err = m.RemoveItem(a)
	require.NoError(t, err)
	assert.Equal(t, 10.0, m.Duration())
}

func TestAddItemValidation(t *testing.T) {
	m, tr := newTestModel(t)
	tests := []struct {
		name string
		item *Item
	}{
		{"zero duration", &Item{Type: ItemImage, Duration: 0}},
		{"negative start", &Item{Type: ItemImage, StartTime: -1, Duration: 1}},
		{"unknown type", &Item{Type: "shape", Duration: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.AddItem(tr, tt.item)
			assert.True(t, errors.Is(err, ErrInvalidItem), "got %v", err)
		})
	}

	_, err := m.AddItem("missing", &Item{Type: ItemImage, Duration: 1})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestAddItemAssignsIDAndSeq(t *testing.T) {
	m, tr := newTestModel(t)
	a, err := m.AddItem(tr, &Item{Type: ItemImage, Duration: 1})
	require.NoError(t, err)
	b, err := m.AddItem(tr, &Item{Type: ItemImage, Duration: 1})
	require.NoError(t, err)
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)

	ia, _ := m.Item(a)
	ib, _ := m.Item(b)
	assert.Less(t, ia.Seq, ib.Seq)
	assert.Equal(t, BlendNormal, ia.BlendMode)
	assert.Equal(t, tr, ia.TrackID)
}

func TestKeyframesStaySorted(t *testing.T) {
	m, tr := newTestModel(t)
	id, err := m.AddItem(tr, &Item{Type: ItemImage, Duration: 10})
	require.NoError(t, err)

	for _, at := range []float64{4, 0, 2} {
		require.NoError(t, m.AddKeyframe(id, ParamX, Keyframe{Time: at, Value: Number(at)}))
	}
	err = m.AddKeyframe(id, ParamX, Keyframe{Time: 2, Value: Number(9)})
	assert.True(t, errors.Is(err, ErrDuplicateKeyframe))

	it, _ := m.Item(id)
	kfs := it.Keyframes[ParamX]
	require.Len(t, kfs, 3)
	assert.Equal(t, []float64{0, 2, 4}, []float64{kfs[0].Time, kfs[1].Time, kfs[2].Time})
	assert.Equal(t, InterpLinear, kfs[0].Interp)

	removed, err := m.RemoveKeyframe(id, ParamX, 2)
	require.NoError(t, err)
	assert.Equal(t, 2.0, removed.Value.Num)
	_, err = m.RemoveKeyframe(id, ParamX, 2)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestAddItemRejectsDuplicateKeyframes(t *testing.T) {
	m, tr := newTestModel(t)
	_, err := m.AddItem(tr, &Item{
		Type:     ItemImage,
		Duration: 1,
		Keyframes: map[string][]Keyframe{
			ParamOpacity: {{Time: 0, Value: Number(0)}, {Time: 0, Value: Number(1)}},
		},
	})
	assert.True(t, errors.Is(err, ErrDuplicateKeyframe))
}

func TestSnapshotCachedPerVersion(t *testing.T) {
	m, tr := newTestModel(t)
	s1 := m.Snapshot()
	assert.Same(t, s1, m.Snapshot())

	id, err := m.AddItem(tr, &Item{Type: ItemImage, Duration: 2})
	require.NoError(t, err)
	s2 := m.Snapshot()
	assert.NotSame(t, s1, s2)
	assert.Greater(t, s2.Version, s1.Version)

	// Snapshots are copies.
	it, _, ok := s2.Item(id)
	require.True(t, ok)
	it.Duration = 100
	assert.Equal(t, 2.0, m.Duration())
}

func TestMutationsNotify(t *testing.T) {
	m, tr := newTestModel(t)
	var got []Change
	sub := m.Subscribe(func(c Change) { got = append(got, c) })

	id, err := m.AddItem(tr, &Item{Type: ItemImage, Duration: 1})
	require.NoError(t, err)
	_, _, err = m.SetParameter(id, ParamOpacity, Number(0.5))
	require.NoError(t, err)
	_, err = m.AddMarker(Marker{Time: 1, Type: MarkerCue})
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, ChangeItem, got[0].Kind)
	assert.Equal(t, ChangeParameter, got[1].Kind)
	assert.Equal(t, ChangeMarker, got[2].Kind)
	assert.Equal(t, m.Version(), got[2].Version)

	sub.Unsubscribe()
	require.NoError(t, m.SetTrackVisible(tr, false))
	assert.Len(t, got, 3)
}

func TestFailedMutationDoesNotBumpVersion(t *testing.T) {
	m, _ := newTestModel(t)
	v := m.Version()
	_, err := m.RemoveItem("nope")
	assert.Error(t, err)
	assert.Equal(t, v, m.Version())
}

func TestEffects(t *testing.T) {
	m, tr := newTestModel(t)
	id, err := m.AddItem(tr, &Item{Type: ItemImage, Duration: 1})
	require.NoError(t, err)

	blur, err := m.ApplyEffect(id, EffectRef{Name: "blur", Params: map[string]Value{"radius": Number(2)}})
	require.NoError(t, err)
	_, err = m.ApplyEffect(id, EffectRef{Name: "grayscale"})
	require.NoError(t, err)

	e, idx, err := m.RemoveEffect(id, blur)
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	assert.Equal(t, "blur", e.Name)

	_, err = m.InsertEffect(id, e, idx)
	require.NoError(t, err)
	it, _ := m.Item(id)
	assert.Equal(t, "blur", it.Effects[0].Name)
	assert.Equal(t, "grayscale", it.Effects[1].Name)
}

func TestMarkersSortedByTime(t *testing.T) {
	m := NewModel()
	for _, at := range []float64{5, 1, 3} {
		_, err := m.AddMarker(Marker{Time: at, Type: MarkerChapter})
		require.NoError(t, err)
	}
	_, err := m.AddMarker(Marker{Time: -1})
	assert.True(t, errors.Is(err, ErrInvalidItem))

	ms := m.Markers()
	require.Len(t, ms, 3)
	assert.Equal(t, 1.0, ms[0].Time)
	assert.Equal(t, 5.0, ms[2].Time)
	assert.Len(t, m.Snapshot().MarkersBetween(1, 5), 2)
}
