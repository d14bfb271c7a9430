package util

import (
	"github.com/berfenger/surplus2mqtt/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		InverterModbusTcp: config.InverterModbusTCPConfig{
			Host:          "-.-.-.-",
			Port:          502,
			MeterId:       200,
			InverterId:    0,
			TimeoutMillis: 1000,
		},
		MQTT: config.MQTTConfig{
			Host:      "localhost",
			Port:      1883,
			BaseTopic: "surplus",
		},
		MonitorConfig: config.MonitorConfig{
			PollIntervalMillis: 1000,
		},
		SchedulerConfig: config.SchedulerConfig{
			HysteresisMinutes:        5,
			SettleSeconds:            15,
			BatteryCriticalSoC:       10,
			BatteryMinSoC:            20,
			MinSurplusDelta:          50,
			MinUpdateIntervalSeconds: 60,
			DailyResetCron:           "0 0 0 * * *",
		},
		HardwareConfig: config.HardwareConfig{
			Type:        "none",
			TopicPrefix: "surplus_devices",
		},
		Port: 8080,
	}
}
