package anticheat

import "time"

// Config holds the tunable thresholds.
type Config struct {
	MinUpdateInterval time.Duration
	MaxAccuracy       float64 // meters
	TeleportWindow    time.Duration
	TeleportDistance  float64 // meters
	MaxSpeed          float64 // m/s
	// LinearThreshold is the mean turning angle (radians) below which a path looks scripted.
	LinearThreshold float64
	PatternWindow   int
	StaticRepeats   int
	FlagWindow      time.Duration
	FlagThreshold   int
	HistorySize     int
	ViolationLog    int
	TagTolerance    float64
	IdleTimeout     time.Duration
}

// DefaultConfig 默认阈值
func DefaultConfig() Config {
	return Config{
		MinUpdateInterval: 500 * time.Millisecond,
		MaxAccuracy:       50,
		TeleportWindow:    2 * time.Second,
		TeleportDistance:  100,
		MaxSpeed:          15,
		LinearThreshold:   0.01,
		PatternWindow:     5,
		StaticRepeats:     3,
		FlagWindow:        5 * time.Minute,
		FlagThreshold:     5,
		HistorySize:       100,
		ViolationLog:      200,
		TagTolerance:      1.2,
		IdleTimeout:       30 * time.Minute,
	}
}

// withDefaults 填充零值字段
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MinUpdateInterval <= 0 {
		c.MinUpdateInterval = d.MinUpdateInterval
	}
	if c.MaxAccuracy <= 0 {
		c.MaxAccuracy = d.MaxAccuracy
	}
	if c.TeleportWindow <= 0 {
		c.TeleportWindow = d.TeleportWindow
	}
	if c.TeleportDistance <= 0 {
		c.TeleportDistance = d.TeleportDistance
	}
	if c.MaxSpeed <= 0 {
		c.MaxSpeed = d.MaxSpeed
	}
	if c.LinearThreshold <= 0 {
		c.LinearThreshold = d.LinearThreshold
	}
	if c.PatternWindow < 3 {
		c.PatternWindow = d.PatternWindow
	}
	if c.StaticRepeats <= 0 {
		c.StaticRepeats = d.StaticRepeats
	}
	if c.FlagWindow <= 0 {
		c.FlagWindow = d.FlagWindow
	}
	if c.FlagThreshold <= 0 {
		c.FlagThreshold = d.FlagThreshold
	}
	if c.HistorySize <= 0 {
		c.HistorySize = d.HistorySize
	}
	if c.ViolationLog <= 0 {
		c.ViolationLog = d.ViolationLog
	}
	if c.TagTolerance < 1 {
		c.TagTolerance = d.TagTolerance
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = d.IdleTimeout
	}
	return c
}
