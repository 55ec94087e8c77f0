package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// MarkdownConfig carries the tunable defaults for markdown recommendations.
type MarkdownConfig struct {
	BaseDiscountPercent float64 `mapstructure:"baseDiscountPercent"`
	Multiplier          float64 `mapstructure:"multiplier"`
	Formula             string  `mapstructure:"formula"`
	Strategy            string  `mapstructure:"strategy"`
	BundleBonuses       bool    `mapstructure:"bundleBonuses"`
	MaxDiscountPercent  float64 `mapstructure:"maxDiscountPercent"`
	DaysThreshold       int     `mapstructure:"daysThreshold"`
}

func DefaultMarkdownConfig() MarkdownConfig {
	return MarkdownConfig{
		BaseDiscountPercent: 20,
		Multiplier:          1.0,
		Formula:             "additive_growth",
		Strategy:            "optimal",
		BundleBonuses:       true,
		MaxDiscountPercent:  50,
		DaysThreshold:       3,
	}
}

type MarkdownConfigHolder struct {
	current atomic.Value // holds MarkdownConfig
}

// NewStaticMarkdownConfigHolder pins a config without touching the filesystem.
func NewStaticMarkdownConfigHolder(cfg MarkdownConfig) *MarkdownConfigHolder {
	holder := &MarkdownConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewMarkdownConfigHolder(log *zap.Logger) (*MarkdownConfigHolder, error) {
	log = log.Named("config.markdown")
	v := viper.New()

	v.SetConfigName("markdown")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/perishables")
	v.AddConfigPath(".")

	v.SetEnvPrefix("PERISHABLES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultMarkdownConfig()
	v.SetDefault("markdown.baseDiscountPercent", defaults.BaseDiscountPercent)
	v.SetDefault("markdown.multiplier", defaults.Multiplier)
	v.SetDefault("markdown.formula", defaults.Formula)
	v.SetDefault("markdown.strategy", defaults.Strategy)
	v.SetDefault("markdown.bundleBonuses", defaults.BundleBonuses)
	v.SetDefault("markdown.maxDiscountPercent", defaults.MaxDiscountPercent)
	v.SetDefault("markdown.daysThreshold", defaults.DaysThreshold)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	var cfg MarkdownConfig
	if err := v.UnmarshalKey("markdown", &cfg); err != nil {
		return nil, err
	}
	if err := validateMarkdownConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticMarkdownConfigHolder(cfg)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated MarkdownConfig
		if err := v.UnmarshalKey("markdown", &updated); err != nil {
			log.Warn("reload failed", zap.Error(err))
			return
		}
		if err := validateMarkdownConfig(updated); err != nil {
			log.Warn("invalid config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *MarkdownConfigHolder) Get() MarkdownConfig {
	if h == nil {
		return DefaultMarkdownConfig()
	}
	return h.current.Load().(MarkdownConfig)
}

func validateMarkdownConfig(cfg MarkdownConfig) error {
	if cfg.BaseDiscountPercent < 0 || cfg.BaseDiscountPercent > 100 {
		return errors.New("markdown.baseDiscountPercent must be between 0 and 100")
	}
	if cfg.Multiplier < 0 {
		return errors.New("markdown.multiplier cannot be negative")
	}
	if cfg.MaxDiscountPercent <= 0 || cfg.MaxDiscountPercent > 100 {
		return errors.New("markdown.maxDiscountPercent must be between 0 and 100")
	}
	if cfg.DaysThreshold <= 0 {
		return errors.New("markdown.daysThreshold must be positive")
	}
	switch cfg.Formula {
	case "additive_growth", "linear_scale":
	default:
		return errors.New("markdown.formula must be additive_growth or linear_scale")
	}
	switch cfg.Strategy {
	case "", "optimal", "aggressive", "conservative":
	default:
		return errors.New("markdown.strategy must be optimal, aggressive or conservative")
	}
	return nil
}
