package timeline

import (
	"errors"
	"fmt"
)

// Command is one undoable model mutation. External history managers call
// Execute again to redo.
type Command interface {
	Execute(m *Model) error
	Undo(m *Model) error
	Name() string
}

var errNotExecuted = errors.New("command was not executed")

// AddItemCommand places Item on TrackID.
type AddItemCommand struct {
	TrackID string
	Item    *Item

	id string
}

func (c *AddItemCommand) Name() string { return "addItem" }

// ID is the id assigned by the last Execute.
func (c *AddItemCommand) ID() string { return c.id }

func (c *AddItemCommand) Execute(m *Model) error {
	it := c.Item.Clone()
	if c.id != "" {
		it.ID = c.id
	}
	id, err := m.AddItem(c.TrackID, it)
	if err != nil {
		return err
	}
	c.id = id
	return nil
}

func (c *AddItemCommand) Undo(m *Model) error {
	if c.id == "" {
		return errNotExecuted
	}
	removed, err := m.RemoveItem(c.id)
	if err != nil {
		return err
	}
	// Redo must keep the original creation order.
	c.Item = removed
	return nil
}

// RemoveItemCommand deletes an item. Undo restores it with the same id and
// creation sequence.
type RemoveItemCommand struct {
	ItemID string

	removed *Item
}

func (c *RemoveItemCommand) Name() string { return "removeItem" }

func (c *RemoveItemCommand) Execute(m *Model) error {
	it, err := m.RemoveItem(c.ItemID)
	if err != nil {
		return err
	}
	c.removed = it
	return nil
}

func (c *RemoveItemCommand) Undo(m *Model) error {
	if c.removed == nil {
		return errNotExecuted
	}
	_, err := m.AddItem(c.removed.TrackID, c.removed)
	return err
}

// AddMarkerCommand stores Marker.
type AddMarkerCommand struct {
	Marker Marker

	id string
}

func (c *AddMarkerCommand) Name() string { return "addMarker" }

func (c *AddMarkerCommand) ID() string { return c.id }

func (c *AddMarkerCommand) Execute(m *Model) error {
	mk := c.Marker
	if c.id != "" {
		mk.ID = c.id
	}
	id, err := m.AddMarker(mk)
	if err != nil {
		return err
	}
	c.id = id
	return nil
}

func (c *AddMarkerCommand) Undo(m *Model) error {
	if c.id == "" {
		return errNotExecuted
	}
	_, err := m.RemoveMarker(c.id)
	return err
}

// RemoveMarkerCommand deletes a marker by id.
type RemoveMarkerCommand struct {
	MarkerID string

	removed *Marker
}

func (c *RemoveMarkerCommand) Name() string { return "removeMarker" }

func (c *RemoveMarkerCommand) Execute(m *Model) error {
	mk, err := m.RemoveMarker(c.MarkerID)
	if err != nil {
		return err
	}
	c.removed = &mk
	return nil
}

func (c *RemoveMarkerCommand) Undo(m *Model) error {
	if c.removed == nil {
		return errNotExecuted
	}
	_, err := m.AddMarker(*c.removed)
	return err
}

// ApplyEffectCommand appends Effect to an item's filter stack.
type ApplyEffectCommand struct {
	ItemID string
	Effect EffectRef

	id string
}

func (c *ApplyEffectCommand) Name() string { return "applyEffect" }

func (c *ApplyEffectCommand) ID() string { return c.id }

func (c *ApplyEffectCommand) Execute(m *Model) error {
	e := c.Effect
	if c.id != "" {
		e.ID = c.id
	}
	id, err := m.ApplyEffect(c.ItemID, e)
	if err != nil {
		return err
	}
	c.id = id
	return nil
}

func (c *ApplyEffectCommand) Undo(m *Model) error {
	if c.id == "" {
		return errNotExecuted
	}
	_, _, err := m.RemoveEffect(c.ItemID, c.id)
	return err
}

// RemoveEffectCommand removes one filter; Undo puts it back at the same
// position.
type RemoveEffectCommand struct {
	ItemID   string
	EffectID string

	removed *EffectRef
	index   int
}

func (c *RemoveEffectCommand) Name() string { return "removeEffect" }

func (c *RemoveEffectCommand) Execute(m *Model) error {
	e, idx, err := m.RemoveEffect(c.ItemID, c.EffectID)
	if err != nil {
		return err
	}
	c.removed, c.index = &e, idx
	return nil
}

func (c *RemoveEffectCommand) Undo(m *Model) error {
	if c.removed == nil {
		return errNotExecuted
	}
	_, err := m.InsertEffect(c.ItemID, *c.removed, c.index)
	return err
}

// SetParameterCommand sets a static property, remembering what it replaced.
type SetParameterCommand struct {
	ItemID string
	Param  string
	Value  Value

	prev     Value
	had      bool
	executed bool
}

func (c *SetParameterCommand) Name() string { return "setParameter" }

func (c *SetParameterCommand) Execute(m *Model) error {
	prev, had, err := m.SetParameter(c.ItemID, c.Param, c.Value)
	if err != nil {
		return err
	}
	c.prev, c.had, c.executed = prev, had, true
	return nil
}

func (c *SetParameterCommand) Undo(m *Model) error {
	if !c.executed {
		return errNotExecuted
	}
	if !c.had {
		return m.UnsetParameter(c.ItemID, c.Param)
	}
	_, _, err := m.SetParameter(c.ItemID, c.Param, c.prev)
	return err
}

// AddKeyframeCommand inserts one keyframe.
type AddKeyframeCommand struct {
	ItemID   string
	Param    string
	Keyframe Keyframe

	executed bool
}

func (c *AddKeyframeCommand) Name() string { return "addKeyframe" }

func (c *AddKeyframeCommand) Execute(m *Model) error {
	if err := m.AddKeyframe(c.ItemID, c.Param, c.Keyframe); err != nil {
		return err
	}
	c.executed = true
	return nil
}

func (c *AddKeyframeCommand) Undo(m *Model) error {
	if !c.executed {
		return errNotExecuted
	}
	if _, err := m.RemoveKeyframe(c.ItemID, c.Param, c.Keyframe.Time); err != nil {
		return fmt.Errorf("undo %s: %w", c.Name(), err)
	}
	return nil
}
