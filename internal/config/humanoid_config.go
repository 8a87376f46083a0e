// File: internal/config/humanoid_config.go
// HumanoidConfig tunes the pacing that makes scripted input look like a person
// at the keyboard: jitter between keystrokes, "think" pauses between actions and
// the fixed settle delays used after dropdowns and scrolls.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// HumanoidConfig holds the parameters of the pacing model.
type HumanoidConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// KeyDelayMax is the upper bound of the uniform delay between keystrokes.
	KeyDelayMax time.Duration `mapstructure:"key_delay_max" yaml:"key_delay_max"`
	// PauseMin and PauseMax bound the uniform think pause between actions.
	PauseMin time.Duration `mapstructure:"pause_min" yaml:"pause_min"`
	PauseMax time.Duration `mapstructure:"pause_max" yaml:"pause_max"`
	// SettleScale multiplies the fixed settle delays. Zero removes them.
	SettleScale float64 `mapstructure:"settle_scale" yaml:"settle_scale"`
	// Seed fixes the random source. Zero seeds from the clock.
	Seed int64 `mapstructure:"seed" yaml:"seed"`
}

func setHumanoidDefaults(v *viper.Viper) {
	v.SetDefault("humanoid.enabled", true)
	v.SetDefault("humanoid.key_delay_max", "150ms")
	v.SetDefault("humanoid.pause_min", "1s")
	v.SetDefault("humanoid.pause_max", "3s")
	v.SetDefault("humanoid.settle_scale", 1.0)
	v.SetDefault("humanoid.seed", 0)
}

// Validate checks the pacing bounds.
func (h HumanoidConfig) Validate() error {
	if h.KeyDelayMax < 0 {
		return fmt.Errorf("key_delay_max must not be negative")
	}
	if h.PauseMin < 0 || h.PauseMax < h.PauseMin {
		return fmt.Errorf("pause bounds are invalid (min %s, max %s)", h.PauseMin, h.PauseMax)
	}
	if h.SettleScale < 0 {
		return fmt.Errorf("settle_scale must not be negative")
	}
	return nil
}
