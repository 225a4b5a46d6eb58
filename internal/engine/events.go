package engine

import "github.com/ivlev/cutview/internal/compositor"

type EventKind string

const (
	EventTimeChanged      EventKind = "timeChanged"
	EventPlayStateChanged EventKind = "playStateChanged"
	EventStateChanged     EventKind = "stateChanged"
	EventRenderStats      EventKind = "renderStats"
	EventDiagnostic       EventKind = "diagnostic"
	EventFramePresented   EventKind = "framePresented"
)

// Event is published on the engine hub. Only the fields that belong to
// Kind are set.
type Event struct {
	Kind    EventKind
	Time    float64
	Playing bool
	Stats   Stats

	Diagnostic *Diagnostic

	// Frame is valid only while the listener runs; its buffer is reused
	// afterwards. Copy the pixels to keep them.
	Frame *compositor.Frame
}

type DiagnosticKind string

const (
	DiagInvalidSeekTarget       DiagnosticKind = "invalidSeekTarget"
	DiagAssetUnavailable        DiagnosticKind = "assetUnavailable"
	DiagRenderFailure           DiagnosticKind = "renderFailure"
	DiagDegenerateKeyframeRange DiagnosticKind = "degenerateKeyframeRange"
	DiagOther                   DiagnosticKind = "other"
)

// Diagnostic is a recovered error surfaced to listeners.
type Diagnostic struct {
	Kind   DiagnosticKind
	ItemID string
	Asset  string
	Time   float64
	Err    error
}

func (d Diagnostic) Error() string {
	if d.ItemID != "" {
		return string(d.Kind) + ": item " + d.ItemID + ": " + d.Err.Error()
	}
	return string(d.Kind) + ": " + d.Err.Error()
}

func (d Diagnostic) Unwrap() error { return d.Err }
