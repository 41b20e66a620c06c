package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// IntersectionMode selects how wall/entity occlusion is classified.
type IntersectionMode string

const (
	ModeAny                 IntersectionMode = "any"
	ModePercentageThreshold IntersectionMode = "percentage-threshold"
	ModeCenterPoint         IntersectionMode = "center-point"
	ModeSideCoverage        IntersectionMode = "side-coverage"
	ModeTactical            IntersectionMode = "tactical"
	ModeVolumetricSampling  IntersectionMode = "volumetric-sampling"
)

// CoverOptions configures the cover detector.
type CoverOptions struct {
	Mode              IntersectionMode `json:"mode" mapstructure:"mode"`
	StandardThreshold float64          `json:"standardThreshold" mapstructure:"standardThreshold"`
	GreaterThreshold  float64          `json:"greaterThreshold" mapstructure:"greaterThreshold"`
	AllowGreater      bool             `json:"allowGreater" mapstructure:"allowGreater"`
	SampleCount       int              `json:"sampleCount" mapstructure:"sampleCount"`
	IgnoreUndetected  bool             `json:"ignoreUndetected" mapstructure:"ignoreUndetected"`
	IgnoreDead        bool             `json:"ignoreDead" mapstructure:"ignoreDead"`
	IgnoreAllies      bool             `json:"ignoreAllies" mapstructure:"ignoreAllies"`
	RespectIgnoreFlag bool             `json:"respectIgnoreFlag" mapstructure:"respectIgnoreFlag"`
	ProneCanBlock     bool             `json:"proneCanBlock" mapstructure:"proneCanBlock"`
}

// NotificationOptions configures user-facing notification throttling.
type NotificationOptions struct {
	MaxPerSession  int  `json:"maxPerSession" mapstructure:"maxPerSession"`
	NotifyFallback bool `json:"notifyFallback" mapstructure:"notifyFallback"`
	NotifyRecovery bool `json:"notifyRecovery" mapstructure:"notifyRecovery"`
}

// RecoveryOptions configures per-system recovery retry limits.
type RecoveryOptions struct {
	MaxAttempts int `json:"maxAttempts" mapstructure:"maxAttempts"`
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing visioner.cfg.json.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName("visioner.cfg.json")
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// SetDefaults registers every recognized option with its default value.
// Called by Load; tests call it directly to run without a config file.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./visionerlogs")

	viper.SetDefault("cover.mode", string(ModePercentageThreshold))
	viper.SetDefault("cover.standardThreshold", 0.5)
	viper.SetDefault("cover.greaterThreshold", 0.7)
	viper.SetDefault("cover.allowGreater", true)
	viper.SetDefault("cover.sampleCount", 5)
	viper.SetDefault("cover.ignoreUndetected", true)
	viper.SetDefault("cover.ignoreDead", true)
	viper.SetDefault("cover.ignoreAllies", false)
	viper.SetDefault("cover.respectIgnoreFlag", true)
	viper.SetDefault("cover.proneCanBlock", false)

	viper.SetDefault("notifications.maxPerSession", 5)
	viper.SetDefault("notifications.notifyFallback", true)
	viper.SetDefault("notifications.notifyRecovery", true)

	viper.SetDefault("recovery.maxAttempts", 3)

	viper.SetDefault("engine.batchSize", 25)
	viper.SetDefault("engine.cacheTTLMs", 250)

	viper.SetDefault("db.enabled", false)
	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "visioner")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "visioner-metrics")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.endpoint", "")

	viper.SetDefault("notify.websocket.enabled", false)
	viper.SetDefault("notify.websocket.url", "ws://localhost:5001/notifications")
}

// Cover builds the cover detector options from the loaded configuration.
func Cover() CoverOptions {
	return CoverOptions{
		Mode:              IntersectionMode(viper.GetString("cover.mode")),
		StandardThreshold: viper.GetFloat64("cover.standardThreshold"),
		GreaterThreshold:  viper.GetFloat64("cover.greaterThreshold"),
		AllowGreater:      viper.GetBool("cover.allowGreater"),
		SampleCount:       viper.GetInt("cover.sampleCount"),
		IgnoreUndetected:  viper.GetBool("cover.ignoreUndetected"),
		IgnoreDead:        viper.GetBool("cover.ignoreDead"),
		IgnoreAllies:      viper.GetBool("cover.ignoreAllies"),
		RespectIgnoreFlag: viper.GetBool("cover.respectIgnoreFlag"),
		ProneCanBlock:     viper.GetBool("cover.proneCanBlock"),
	}
}

// Notifications builds the notification throttling options.
func Notifications() NotificationOptions {
	return NotificationOptions{
		MaxPerSession:  viper.GetInt("notifications.maxPerSession"),
		NotifyFallback: viper.GetBool("notifications.notifyFallback"),
		NotifyRecovery: viper.GetBool("notifications.notifyRecovery"),
	}
}

// Recovery builds the recovery retry options.
func Recovery() RecoveryOptions {
	return RecoveryOptions{
		MaxAttempts: viper.GetInt("recovery.maxAttempts"),
	}
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}
