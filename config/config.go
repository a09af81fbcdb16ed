package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/wfunc/tagserver/anticheat"
	"github.com/wfunc/tagserver/room"
	"github.com/wfunc/tagserver/services"
)

// 存档数据库驱动
const (
	DriverNone   = "none"
	DriverMemory = "memory"
	DriverGorm   = "gorm"
	DriverPQ     = "pq"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Game      GameConfig      `mapstructure:"game"`
	Janitor   JanitorConfig   `mapstructure:"janitor"`
	Anticheat AnticheatConfig `mapstructure:"anticheat"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Broadcast BroadcastConfig `mapstructure:"broadcast"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type ServerConfig struct {
	HTTPAddress string `mapstructure:"http_address"`
	// RPCAddress 为空时不启动 RPC 服务
	RPCAddress string        `mapstructure:"rpc_address"`
	JoinURL    string        `mapstructure:"join_url"`
	Heartbeat  time.Duration `mapstructure:"heartbeat"`
}

type DatabaseConfig struct {
	Driver   string         `mapstructure:"driver"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

type GameConfig struct {
	DefaultTagRadius   float64       `mapstructure:"default_tag_radius"`
	DefaultGPSInterval time.Duration `mapstructure:"default_gps_interval"`
	DefaultMaxPlayers  int           `mapstructure:"default_max_players"`
	// Timezone quiet hours are evaluated in, an IANA name.
	Timezone string `mapstructure:"timezone"`
}

type JanitorConfig struct {
	Interval       time.Duration `mapstructure:"interval"`
	ExpiryInterval time.Duration `mapstructure:"expiry_interval"`
	GameRetention  time.Duration `mapstructure:"game_retention"`
	HistoryIdle    time.Duration `mapstructure:"history_idle"`
}

type AnticheatConfig struct {
	MinUpdateInterval time.Duration `mapstructure:"min_update_interval"`
	MaxAccuracy       float64       `mapstructure:"max_accuracy"`
	TeleportWindow    time.Duration `mapstructure:"teleport_window"`
	TeleportDistance  float64       `mapstructure:"teleport_distance"`
	MaxSpeed          float64       `mapstructure:"max_speed"`
	LinearThreshold   float64       `mapstructure:"linear_threshold"`
	PatternWindow     int           `mapstructure:"pattern_window"`
	StaticRepeats     int           `mapstructure:"static_repeats"`
	FlagWindow        time.Duration `mapstructure:"flag_window"`
	FlagThreshold     int           `mapstructure:"flag_threshold"`
	HistorySize       int           `mapstructure:"history_size"`
	ViolationLog      int           `mapstructure:"violation_log"`
	TagTolerance      float64       `mapstructure:"tag_tolerance"`
}

type ArchiveConfig struct {
	QueueSize  int           `mapstructure:"queue_size"`
	MaxElapsed time.Duration `mapstructure:"max_elapsed"`
}

type BroadcastConfig struct {
	QueueSize int `mapstructure:"queue_size"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type MetricsConfig struct {
	Namespace string `mapstructure:"namespace"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_address", ":8080")
	v.SetDefault("server.rpc_address", ":9090")
	v.SetDefault("server.join_url", "tag://join/")
	v.SetDefault("server.heartbeat", 30*time.Second)

	v.SetDefault("database.driver", DriverNone)
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "postgres")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.dbname", "tag")

	v.SetDefault("game.default_tag_radius", room.DefaultTagRadius)
	v.SetDefault("game.default_gps_interval", 5*time.Second)
	v.SetDefault("game.default_max_players", room.DefaultMaxPlayers)
	v.SetDefault("game.timezone", "UTC")

	v.SetDefault("janitor.interval", services.DefaultSweepInterval)
	v.SetDefault("janitor.expiry_interval", services.DefaultExpiryInterval)
	v.SetDefault("janitor.game_retention", room.DefaultRetention)

	d := anticheat.DefaultConfig()
	v.SetDefault("janitor.history_idle", d.IdleTimeout)
	v.SetDefault("anticheat.min_update_interval", d.MinUpdateInterval)
	v.SetDefault("anticheat.max_accuracy", d.MaxAccuracy)
	v.SetDefault("anticheat.teleport_window", d.TeleportWindow)
	v.SetDefault("anticheat.teleport_distance", d.TeleportDistance)
	v.SetDefault("anticheat.max_speed", d.MaxSpeed)
	v.SetDefault("anticheat.linear_threshold", d.LinearThreshold)
	v.SetDefault("anticheat.pattern_window", d.PatternWindow)
	v.SetDefault("anticheat.static_repeats", d.StaticRepeats)
	v.SetDefault("anticheat.flag_window", d.FlagWindow)
	v.SetDefault("anticheat.flag_threshold", d.FlagThreshold)
	v.SetDefault("anticheat.history_size", d.HistorySize)
	v.SetDefault("anticheat.violation_log", d.ViolationLog)
	v.SetDefault("anticheat.tag_tolerance", d.TagTolerance)

	v.SetDefault("archive.queue_size", 64)
	v.SetDefault("archive.max_elapsed", 30*time.Second)
	v.SetDefault("broadcast.queue_size", 256)
	v.SetDefault("log.level", "info")
	v.SetDefault("metrics.namespace", "tag")
}

// LoadConfig reads config.yaml from path; a missing file leaves the defaults.
// Every key can be overridden by TAG_<SECTION>_<KEY>, e.g. TAG_DATABASE_DRIVER.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("TAG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverNone, DriverMemory, DriverGorm, DriverPQ:
	default:
		return fmt.Errorf("config: unknown database.driver %q", c.Database.Driver)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if err := c.DefaultSettings().Validate(); err != nil {
		return fmt.Errorf("config: game defaults: %w", err)
	}
	return nil
}

// Location 安静时段所用时区
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Game.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: game.timezone: %w", err)
	}
	return loc, nil
}

// DefaultSettings fills in what a create request leaves out.
func (c *Config) DefaultSettings() room.Settings {
	return room.Settings{
		TagRadius:   c.Game.DefaultTagRadius,
		GPSInterval: c.Game.DefaultGPSInterval,
		MaxPlayers:  c.Game.DefaultMaxPlayers,
	}
}

func (c *Config) AnticheatSettings() anticheat.Config {
	a := c.Anticheat
	return anticheat.Config{
		MinUpdateInterval: a.MinUpdateInterval,
		MaxAccuracy:       a.MaxAccuracy,
		TeleportWindow:    a.TeleportWindow,
		TeleportDistance:  a.TeleportDistance,
		MaxSpeed:          a.MaxSpeed,
		LinearThreshold:   a.LinearThreshold,
		PatternWindow:     a.PatternWindow,
		StaticRepeats:     a.StaticRepeats,
		FlagWindow:        a.FlagWindow,
		FlagThreshold:     a.FlagThreshold,
		HistorySize:       a.HistorySize,
		ViolationLog:      a.ViolationLog,
		TagTolerance:      a.TagTolerance,
		IdleTimeout:       c.Janitor.HistoryIdle,
	}
}

func (c *Config) JanitorSettings() services.JanitorConfig {
	return services.JanitorConfig{
		SweepInterval:  c.Janitor.Interval,
		ExpiryInterval: c.Janitor.ExpiryInterval,
		GameRetention:  c.Janitor.GameRetention,
	}
}
