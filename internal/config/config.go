package config

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel          zapcore.Level
	InverterModbusTcp InverterModbusTCPConfig `mapstructure:"inverter_modbus_tcp"`
	MQTT              MQTTConfig              `mapstructure:"mqtt"`

	MonitorConfig   MonitorConfig   `mapstructure:"monitor"`
	SchedulerConfig SchedulerConfig `mapstructure:"scheduler"`
	DevicesConfig   DevicesConfig   `mapstructure:"devices"`
	HardwareConfig  HardwareConfig  `mapstructure:"hardware"`
	HistoryConfig   HistoryConfig   `mapstructure:"history"`
	InfluxDBConfig  InfluxDBConfig  `mapstructure:"influxdb"`
	Port            uint            `mapstructure:"port"`
	HttpLog         bool            `mapstructure:"http_log"`
}

type InverterModbusTCPConfig struct {
	Host          string
	Port          uint
	MeterId       uint `mapstructure:"meter_id"`
	InverterId    uint `mapstructure:"inverter_id"`
	IgnoreFronius bool `mapstructure:"ignore_fronius"`
	TimeoutMillis uint `mapstructure:"timeout_millis"`
}

type MonitorConfig struct {
	PollIntervalMillis uint32 `mapstructure:"poll_interval_millis"`
}

func (c MonitorConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMillis) * time.Millisecond
}

type SchedulerConfig struct {
	HysteresisMinutes        uint    `mapstructure:"hysteresis_minutes"`
	SettleSeconds            uint    `mapstructure:"settle_seconds"`
	BatteryCriticalSoC       float64 `mapstructure:"battery_critical_soc"`
	BatteryMinSoC            float64 `mapstructure:"battery_min_soc"`
	MinSurplusDelta          float64 `mapstructure:"min_surplus_delta"`
	MinUpdateIntervalSeconds uint    `mapstructure:"min_update_interval_seconds"`
	DailyResetCron           string  `mapstructure:"daily_reset_cron"`
	FailClosed               bool    `mapstructure:"fail_closed"`
}

func (c SchedulerConfig) Hysteresis() time.Duration {
	return time.Duration(c.HysteresisMinutes) * time.Minute
}

func (c SchedulerConfig) SettleWindow() time.Duration {
	return time.Duration(c.SettleSeconds) * time.Second
}

func (c SchedulerConfig) MinUpdateInterval() time.Duration {
	return time.Duration(c.MinUpdateIntervalSeconds) * time.Second
}

type DevicesConfig struct {
	ConfigFile string `mapstructure:"config_file"`
}

type HardwareConfig struct {
	Type        string `mapstructure:"type"`
	TopicPrefix string `mapstructure:"topic_prefix"`
}

type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type InfluxDBConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	URL           string `mapstructure:"url"`
	Token         string `mapstructure:"token"`
	Org           string `mapstructure:"org"`
	Bucket        string `mapstructure:"bucket"`
	BatchSize     uint   `mapstructure:"batch_size"`
	FlushInterval uint   `mapstructure:"flush_interval"`
}

type MQTTConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}
