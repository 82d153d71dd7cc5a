package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// SLAConfig carries the tunables operators adjust without a redeploy.
type SLAConfig struct {
	NearBreachRatio      float64  `mapstructure:"nearBreachRatio"`
	DefaultTargetSeconds int64    `mapstructure:"defaultTargetSeconds"`
	CacheTTLSeconds      int64    `mapstructure:"cacheTTLSeconds"`
	TrackedBranches      []string `mapstructure:"trackedBranches"`
}

func DefaultSLAConfig() SLAConfig {
	return SLAConfig{
		NearBreachRatio:      0.2,
		DefaultTargetSeconds: 300,
		CacheTTLSeconds:      30,
		TrackedBranches: []string{
			"Tops Central Plaza ลาดพร้าว",
			"Tops Central World",
			"Tops สุขุมวิท 39",
			"Tops ทองหล่อ",
			"Tops สีลม คอมเพล็กซ์",
			"Tops เอกมัย",
			"Tops พร้อมพงษ์",
			"Tops จตุจักร",
		},
	}
}

func (c SLAConfig) CacheTTL() time.Duration {
	if c.CacheTTLSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

type SLAConfigHolder struct {
	current atomic.Value // holds SLAConfig
}

// NewStaticSLAConfigHolder returns a holder that never reloads.
func NewStaticSLAConfigHolder(cfg SLAConfig) *SLAConfigHolder {
	holder := &SLAConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewSLAConfigHolder(log *zap.Logger) (*SLAConfigHolder, error) {
	log = log.Named("config.sla")
	v := viper.New()

	v.SetConfigName("sla")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/orderdesk/config")
	v.AddConfigPath("/etc/orderdesk")
	v.AddConfigPath(".")

	v.SetEnvPrefix("ORDERDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultSLAConfig()
	v.SetDefault("sla.nearBreachRatio", defaults.NearBreachRatio)
	v.SetDefault("sla.defaultTargetSeconds", defaults.DefaultTargetSeconds)
	v.SetDefault("sla.cacheTTLSeconds", defaults.CacheTTLSeconds)
	v.SetDefault("sla.trackedBranches", defaults.TrackedBranches)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	cfg := defaults
	if err := v.UnmarshalKey("sla", &cfg); err != nil {
		return nil, err
	}
	if err := validateSLAConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticSLAConfigHolder(cfg)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated := DefaultSLAConfig()
		if err := v.UnmarshalKey("sla", &updated); err != nil {
			log.Warn("reload failed", zap.Error(err))
			return
		}
		if err := validateSLAConfig(updated); err != nil {
			log.Warn("invalid config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *SLAConfigHolder) Get() SLAConfig {
	if h == nil {
		return DefaultSLAConfig()
	}
	cfg, ok := h.current.Load().(SLAConfig)
	if !ok {
		return DefaultSLAConfig()
	}
	return cfg
}

func validateSLAConfig(cfg SLAConfig) error {
	if cfg.NearBreachRatio <= 0 || cfg.NearBreachRatio >= 1 {
		return errors.New("sla.nearBreachRatio must be between 0 and 1")
	}
	if cfg.DefaultTargetSeconds <= 0 {
		return errors.New("sla.defaultTargetSeconds must be positive")
	}
	if cfg.CacheTTLSeconds <= 0 {
		return errors.New("sla.cacheTTLSeconds must be positive")
	}
	return nil
}
