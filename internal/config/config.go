// Package config loads engine settings from defaults, an optional YAML
// file, CUTVIEW_* environment variables and command line flags, in that
// order of precedence (flags win).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ivlev/cutview/internal/system"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Width        int           `mapstructure:"width" yaml:"width"`
	Height       int           `mapstructure:"height" yaml:"height"`
	Preset       string        `mapstructure:"preset" yaml:"preset"`
	Quality      string        `mapstructure:"quality" yaml:"quality"`
	FPS          int           `mapstructure:"fps" yaml:"fps"`
	PreviewScale float64       `mapstructure:"preview_scale" yaml:"preview_scale"`
	BatchSize    int           `mapstructure:"batch_size" yaml:"batch_size"`
	StepFPS      float64       `mapstructure:"step_fps" yaml:"step_fps"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	Background   string        `mapstructure:"background" yaml:"background"`
	EffectMode   string        `mapstructure:"effect_mode" yaml:"effect_mode"`
	Loop         bool          `mapstructure:"loop" yaml:"loop"`
	Rate         float64       `mapstructure:"rate" yaml:"rate"`
	LogLevel     string        `mapstructure:"log_level" yaml:"log_level"`

	Overlays Overlays `mapstructure:"overlays" yaml:"overlays"`
	Assets   Assets   `mapstructure:"assets" yaml:"assets"`
	Export   Export   `mapstructure:"export" yaml:"export"`

	// Tier is the quality tier Quality resolved to.
	Tier Tier `mapstructure:"-" yaml:"-"`
}

// Overlays toggles the diagnostic layers drawn over the composite.
type Overlays struct {
	Grid      bool `mapstructure:"grid" yaml:"grid"`
	GridSize  int  `mapstructure:"grid_size" yaml:"grid_size"`
	Rulers    bool `mapstructure:"rulers" yaml:"rulers"`
	SafeZones bool `mapstructure:"safe_zones" yaml:"safe_zones"`
	Timecode  bool `mapstructure:"timecode" yaml:"timecode"`
	QRSlate   bool `mapstructure:"qr_slate" yaml:"qr_slate"`
}

// Any reports whether at least one overlay is on.
func (o Overlays) Any() bool {
	return o.Grid || o.Rulers || o.SafeZones || o.Timecode || o.QRSlate
}

type Assets struct {
	CacheSize   int     `mapstructure:"cache_size" yaml:"cache_size"`
	Workers     int     `mapstructure:"workers" yaml:"workers"`
	SequenceFPS float64 `mapstructure:"sequence_fps" yaml:"sequence_fps"`
	DPI         float64 `mapstructure:"dpi" yaml:"dpi"`
}

type Export struct {
	Output  string `mapstructure:"output" yaml:"output"`
	Encoder string `mapstructure:"encoder" yaml:"encoder"`
	Quality int    `mapstructure:"quality" yaml:"quality"`
}

const (
	EffectModeLayered = "layered"
	EffectModeInline  = "inline"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("width", 1280)
	v.SetDefault("height", 720)
	v.SetDefault("preset", "")
	v.SetDefault("quality", "auto")
	v.SetDefault("fps", 0)
	v.SetDefault("preview_scale", 0)
	v.SetDefault("batch_size", 4)
	v.SetDefault("step_fps", 30)
	v.SetDefault("idle_timeout", 4*time.Millisecond)
	v.SetDefault("background", "#000000")
	v.SetDefault("effect_mode", EffectModeLayered)
	v.SetDefault("loop", false)
	v.SetDefault("rate", 1)
	v.SetDefault("log_level", "info")

	v.SetDefault("overlays.grid", false)
	v.SetDefault("overlays.grid_size", 8)
	v.SetDefault("overlays.rulers", false)
	v.SetDefault("overlays.safe_zones", false)
	v.SetDefault("overlays.timecode", false)
	v.SetDefault("overlays.qr_slate", false)

	v.SetDefault("assets.cache_size", 256)
	v.SetDefault("assets.workers", 4)
	v.SetDefault("assets.sequence_fps", 25)
	v.SetDefault("assets.dpi", 150)

	v.SetDefault("export.output", "")
	v.SetDefault("export.encoder", "")
	v.SetDefault("export.quality", 0)
}

// flagKeys maps command line flag names to config keys.
var flagKeys = map[string]string{
	"width":         "width",
	"height":        "height",
	"preset":        "preset",
	"quality":       "quality",
	"fps":           "fps",
	"preview-scale": "preview_scale",
	"effect-mode":   "effect_mode",
	"background":    "background",
	"loop":          "loop",
	"rate":          "rate",
	"log-level":     "log_level",
	"grid":          "overlays.grid",
	"rulers":        "overlays.rulers",
	"safe-zones":    "overlays.safe_zones",
	"timecode":      "overlays.timecode",
	"qr-slate":      "overlays.qr_slate",
	"workers":       "assets.workers",
	"dpi":           "assets.dpi",
	"output":        "export.output",
	"encoder":       "export.encoder",
	"crf":           "export.quality",
}

// RegisterFlags adds the engine flags to fs. Defaults come from Load, so the
// flag defaults here only document the type.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.Int("width", 1280, "frame width")
	fs.Int("height", 720, "frame height")
	fs.String("preset", "", "format preset: 16:9, 9:16 (Shorts/TikTok), 4:5 (Instagram)")
	fs.String("quality", "auto", "quality tier: high, medium, low, auto")
	fs.Int("fps", 0, "target fps (0 = from quality tier)")
	fs.Float64("preview-scale", 0, "preview resolution scale (0 = from quality tier)")
	fs.String("effect-mode", EffectModeLayered, "effect compositing: layered or inline")
	fs.String("background", "#000000", "background color")
	fs.Bool("loop", false, "loop playback")
	fs.Float64("rate", 1, "playback rate")
	fs.String("log-level", "info", "log level")
	fs.Bool("grid", false, "draw grid overlay")
	fs.Bool("rulers", false, "draw rulers")
	fs.Bool("safe-zones", false, "draw action and title safe zones")
	fs.Bool("timecode", false, "burn in timecode")
	fs.Bool("qr-slate", false, "draw a QR code of the timecode")
	fs.Int("workers", 4, "asset decode workers")
	fs.Float64("dpi", 150, "PDF render DPI")
	fs.String("output", "", "export output path")
	fs.String("encoder", "", "ffmpeg video encoder (empty = best available)")
	fs.Int("crf", 0, "encoder quality (0 = auto)")
}

// Load builds a Config. path may be empty; flags may be nil. Only flags the
// user actually set override file and environment values.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("cutview")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil || !f.Changed {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.applyPreset(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.ApplyTier(nil); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyPreset() error {
	if c.Preset == "" {
		return nil
	}
	p, ok := Presets[c.Preset]
	if !ok {
		return fmt.Errorf("%w: unknown preset %q", ErrInvalidConfig, c.Preset)
	}
	c.Width, c.Height = p.Width, p.Height
	return nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error
	if c.Width <= 0 || c.Height <= 0 {
		errs = append(errs, fmt.Errorf("frame size %dx%d", c.Width, c.Height))
	}
	if c.FPS < 0 {
		errs = append(errs, fmt.Errorf("fps %d", c.FPS))
	}
	if c.PreviewScale < 0 || c.PreviewScale > 4 {
		errs = append(errs, fmt.Errorf("preview_scale %g", c.PreviewScale))
	}
	if c.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("batch_size %d", c.BatchSize))
	}
	if c.StepFPS <= 0 {
		errs = append(errs, fmt.Errorf("step_fps %g", c.StepFPS))
	}
	switch c.EffectMode {
	case EffectModeLayered, EffectModeInline:
	default:
		errs = append(errs, fmt.Errorf("effect_mode %q", c.EffectMode))
	}
	if _, ok := Tiers[c.Quality]; !ok && c.Quality != TierAuto {
		errs = append(errs, fmt.Errorf("quality %q", c.Quality))
	}
	if c.Rate == 0 {
		errs = append(errs, errors.New("rate must not be zero"))
	}
	if c.Assets.CacheSize <= 0 {
		errs = append(errs, fmt.Errorf("assets.cache_size %d", c.Assets.CacheSize))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// ApplyTier resolves Quality to a Tier and fills FPS and PreviewScale when
// they were left at zero. probe is used for "auto"; nil means the real
// host.
func (c *Config) ApplyTier(probe func() (system.HostInfo, error)) error {
	name := c.Quality
	if name == TierAuto {
		if probe == nil {
			probe = system.ProbeHost
		}
		host, err := probe()
		if err != nil {
			name = TierMedium
		} else {
			name = host.Tier()
		}
	}
	tier, ok := Tiers[name]
	if !ok {
		return fmt.Errorf("%w: quality %q", ErrInvalidConfig, c.Quality)
	}
	c.Tier = tier
	if c.FPS == 0 {
		c.FPS = tier.FPS
	}
	if c.PreviewScale == 0 {
		c.PreviewScale = tier.PreviewScale
	}
	return nil
}

// FrameBudget is the time available to produce one frame.
func (c *Config) FrameBudget() time.Duration {
	fps := c.FPS
	if fps <= 0 {
		fps = 30
	}
	return time.Second / time.Duration(fps)
}

// PreviewSize is the frame size after PreviewScale.
func (c *Config) PreviewSize() (int, int) {
	s := c.PreviewScale
	if s <= 0 {
		s = 1
	}
	w := max(1, int(float64(c.Width)*s+0.5))
	h := max(1, int(float64(c.Height)*s+0.5))
	return w, h
}
