package timeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandsUndoRedo(t *testing.T) {
	m, tr := newTestModel(t)
	first, err := m.AddItem(tr, &Item{Type: ItemImage, Duration: 4})
	require.NoError(t, err)

	add := &AddItemCommand{TrackID: tr, Item: &Item{Type: ItemText, StartTime: 2, Duration: 6}}
	require.NoError(t, add.Execute(m))
	assert.Equal(t, 8.0, m.Duration())

	require.NoError(t, add.Undo(m))
	assert.Equal(t, 4.0, m.Duration())

	require.NoError(t, add.Execute(m))
	_, ok := m.Item(add.ID())
	assert.True(t, ok, "redo keeps the same id")

	set := &SetParameterCommand{ItemID: first, Param: ParamOpacity, Value: Number(0.3)}
	require.NoError(t, set.Execute(m))
	require.NoError(t, set.Undo(m))
	it, _ := m.Item(first)
	_, had := it.Property(ParamOpacity)
	assert.False(t, had)

	kf := &AddKeyframeCommand{ItemID: first, Param: ParamX, Keyframe: Keyframe{Time: 1, Value: Number(10)}}
	require.NoError(t, kf.Execute(m))
	require.NoError(t, kf.Undo(m))
	it, _ = m.Item(first)
	assert.Empty(t, it.Keyframes[ParamX])
}

func TestRemoveItemUndoKeepsSeq(t *testing.T) {
	m, tr := newTestModel(t)
	a, err := m.AddItem(tr, &Item{Type: ItemImage, Duration: 1})
	require.NoError(t, err)
	_, err = m.AddItem(tr, &Item{Type: ItemImage, Duration: 1})
	require.NoError(t, err)
	before, _ := m.Item(a)

	rm := &RemoveItemCommand{ItemID: a}
	require.NoError(t, rm.Execute(m))
	_, ok := m.Item(a)
	assert.False(t, ok)

	require.NoError(t, rm.Undo(m))
	after, ok := m.Item(a)
	require.True(t, ok)
	assert.Equal(t, before.Seq, after.Seq)
}

func TestMarkerAndEffectCommands(t *testing.T) {
	m, tr := newTestModel(t)
	id, err := m.AddItem(tr, &Item{Type: ItemImage, Duration: 1})
	require.NoError(t, err)

	addMk := &AddMarkerCommand{Marker: Marker{Time: 2, Type: MarkerIn}}
	require.NoError(t, addMk.Execute(m))
	rmMk := &RemoveMarkerCommand{MarkerID: addMk.ID()}
	require.NoError(t, rmMk.Execute(m))
	assert.Empty(t, m.Markers())
	require.NoError(t, rmMk.Undo(m))
	assert.Len(t, m.Markers(), 1)

	apply := &ApplyEffectCommand{ItemID: id, Effect: EffectRef{Name: "invert"}}
	require.NoError(t, apply.Execute(m))
	rmFx := &RemoveEffectCommand{ItemID: id, EffectID: apply.ID()}
	require.NoError(t, rmFx.Execute(m))
	require.NoError(t, rmFx.Undo(m))
	require.NoError(t, apply.Undo(m))
	it, _ := m.Item(id)
	assert.Empty(t, it.Effects)
}

func TestUndoBeforeExecute(t *testing.T) {
	m := NewModel()
	cmds := []Command{
		&AddItemCommand{},
		&RemoveItemCommand{},
		&AddMarkerCommand{},
		&RemoveMarkerCommand{},
		&ApplyEffectCommand{},
		&RemoveEffectCommand{},
		&SetParameterCommand{},
		&AddKeyframeCommand{},
	}
	for _, c := range cmds {
		assert.Error(t, c.Undo(m), c.Name())
	}
}
