package engine

import "time"

// Stats summarise frame production.
type Stats struct {
	// FPS is the number of frames presented during the last second.
	FPS           float64
	RenderTimeMs  float64
	FrameCount    uint64
	DroppedFrames uint64
}

type statsTracker struct {
	recent  []time.Time
	frames  uint64
	dropped uint64
	render  time.Duration
}

func (s *statsTracker) present(now time.Time, render time.Duration) {
	s.frames++
	s.render = render
	s.recent = append(s.recent, now)
	s.prune(now)
}

func (s *statsTracker) drop() {
	s.dropped++
}

func (s *statsTracker) prune(now time.Time) {
	cut := 0
	for cut < len(s.recent) && now.Sub(s.recent[cut]) >= time.Second {
		cut++
	}
	if cut > 0 {
		s.recent = append(s.recent[:0], s.recent[cut:]...)
	}
}

func (s *statsTracker) snapshot(now time.Time) Stats {
	s.prune(now)
	return Stats{
		FPS:           float64(len(s.recent)),
		RenderTimeMs:  float64(s.render) / float64(time.Millisecond),
		FrameCount:    s.frames,
		DroppedFrames: s.dropped,
	}
}
