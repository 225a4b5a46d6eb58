package config

import "time"

// Preset is a named output format.
type Preset struct {
	Width, Height int
}

var Presets = map[string]Preset{
	"16:9": {Width: 1280, Height: 720},
	"9:16": {Width: 720, Height: 1280},
	"4:5":  {Width: 1080, Height: 1350},
}

// Tier trades preview fidelity for frame rate.
type Tier struct {
	Name         string
	FPS          int
	PreviewScale float64
}

const (
	TierHigh   = "high"
	TierMedium = "medium"
	TierLow    = "low"
	TierAuto   = "auto"
)

var Tiers = map[string]Tier{
	TierHigh:   {Name: TierHigh, FPS: 60, PreviewScale: 1},
	TierMedium: {Name: TierMedium, FPS: 30, PreviewScale: 1},
	TierLow:    {Name: TierLow, FPS: 24, PreviewScale: 0.5},
}

// Default returns a config with every default applied and the medium tier,
// without reading files, environment or the host.
func Default() *Config {
	return &Config{
		Width:        1280,
		Height:       720,
		Quality:      TierMedium,
		FPS:          30,
		PreviewScale: 1,
		BatchSize:    4,
		StepFPS:      30,
		IdleTimeout:  4 * time.Millisecond,
		Background:   "#000000",
		EffectMode:   EffectModeLayered,
		Rate:         1,
		LogLevel:     "info",
		Overlays:     Overlays{GridSize: 8},
		Assets:       Assets{CacheSize: 256, Workers: 4, SequenceFPS: 25, DPI: 150},
		Tier:         Tiers[TierMedium],
	}
}
