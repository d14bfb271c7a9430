package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	adactor "github.com/berfenger/surplus2mqtt/internal/adapter/actor"
	"github.com/berfenger/surplus2mqtt/internal/adapter/hardware"
	"github.com/berfenger/surplus2mqtt/internal/adapter/history"
	"github.com/berfenger/surplus2mqtt/internal/adapter/store"
	"github.com/berfenger/surplus2mqtt/internal/adapter/telemetry"
	"github.com/berfenger/surplus2mqtt/internal/config"
	"github.com/berfenger/surplus2mqtt/internal/core/actor"
	"github.com/berfenger/surplus2mqtt/internal/core/port"
	"github.com/berfenger/surplus2mqtt/internal/core/registry"
	"github.com/berfenger/surplus2mqtt/internal/core/service"
	"github.com/berfenger/surplus2mqtt/internal/mqtt"
	"github.com/berfenger/surplus2mqtt/internal/server"
	"github.com/berfenger/surplus2mqtt/internal/util/actorutil"
	"github.com/berfenger/surplus2mqtt/pkg/sunspec"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		os.Exit(1)
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())
	defer logger.Sync()

	// devices
	devStore := store.NewFileStore(cfg.DevicesConfig.ConfigFile)
	reg := registry.New(logger)
	if err := reg.Load(devStore); err != nil {
		logger.Fatal("could not load devices", zap.String("file", cfg.DevicesConfig.ConfigFile), zap.Error(err))
	}

	deps := actor.SchedulerDeps{
		Registry: reg,
		Adapter:  hardwareAdapter(cfg, logger),
		Store:    devStore,
		Clock:    time.Now,
	}

	if cfg.HistoryConfig.Enabled {
		recorder, err := openHistory(cfg.HistoryConfig.Path)
		if err != nil {
			logger.Fatal("could not open history database", zap.String("path", cfg.HistoryConfig.Path), zap.Error(err))
		}
		deps.Recorder = recorder
	}

	if cfg.InfluxDBConfig.Enabled {
		sink, err := connectTelemetry(cfg.InfluxDBConfig, logger)
		switch {
		case errors.Is(err, telemetry.ErrDisabled):
			logger.Warn("influxdb enabled without url, telemetry disabled")
		case err != nil:
			// telemetry is optional
			logger.Error("influxdb unavailable, telemetry disabled", zap.Error(err))
		default:
			deps.Telemetry = sink
		}
	}

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	// init Modbus actor provider
	modbusProv, err := modbusActorProvider(cfg, logger)
	if err != nil {
		logger.Fatal("could not create modbus readers", zap.Error(err))
	}

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, modbusProv, mqttActorProvider(cfg, logger), deps, logger)
	})
	pid, err := ctx.SpawnNamed(props, "master")
	if err != nil {
		logger.Fatal("could not spawn master actor", zap.Error(err))
	}

	server := server.NewServer(*cfg, ctx, pid, logger)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	// stopping the master stops the scheduler, which switches every device off
	if err := ctx.StopFuture(pid).Wait(); err != nil {
		logger.Warn("master actor did not stop cleanly", zap.Error(err))
	}
	as.Shutdown()
}

func initConfig() (*config.Config, error) {

	// alias PORT => SURPLUS_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("SURPLUS_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("surplus")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	// check and fix base topic
	baseTopic, err := config.CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	// check and fix homeassistant discovery topic
	hadBaseTopic, err := config.CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return nil, errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.HADiscoveryTopic = hadBaseTopic

	// check bounds
	if cfg.MonitorConfig.PollIntervalMillis < 1000 {
		return nil, errors.New("config param monitor.poll_interval_millis should be >= 1000")
	}
	if cfg.SchedulerConfig.BatteryCriticalSoC < 0 || cfg.SchedulerConfig.BatteryMinSoC > 100 ||
		cfg.SchedulerConfig.BatteryCriticalSoC > cfg.SchedulerConfig.BatteryMinSoC {
		return nil, errors.New("config params scheduler.battery_critical_soc <= scheduler.battery_min_soc must be within [0,100]")
	}
	if cfg.SchedulerConfig.MinSurplusDelta < 0 {
		return nil, errors.New("config param scheduler.min_surplus_delta should be >= 0")
	}
	if _, err := service.NewResetSchedule(cfg.SchedulerConfig.DailyResetCron, time.Local); err != nil {
		return nil, fmt.Errorf("config param scheduler.daily_reset_cron: %w", err)
	}
	if cfg.DevicesConfig.ConfigFile == "" {
		return nil, errors.New("config param devices.config_file is required")
	}
	switch cfg.HardwareConfig.Type {
	case hardware.TypeNone, hardware.TypeMQTT:
	default:
		return nil, fmt.Errorf("config param hardware.type must be %q or %q", hardware.TypeNone, hardware.TypeMQTT)
	}
	if cfg.HistoryConfig.Enabled && cfg.HistoryConfig.Path == "" {
		return nil, errors.New("config param history.path is required when history is enabled")
	}

	return &cfg, nil
}

func modbusActorProvider(cfg *config.Config, logger *zap.Logger) (actor.ModbusActorProvider, error) {

	timeout := time.Duration(cfg.InverterModbusTcp.TimeoutMillis) * time.Millisecond

	inv, err := sunspec.NewInverterReader(cfg.InverterModbusTcp.Host,
		cfg.InverterModbusTcp.Port, uint8(cfg.InverterModbusTcp.InverterId), timeout,
		cfg.InverterModbusTcp.IgnoreFronius, logger, nil)

	if err != nil {
		return nil, err
	}

	acMeter, err := sunspec.NewMeterReader(cfg.InverterModbusTcp.Host,
		cfg.InverterModbusTcp.Port, uint8(cfg.InverterModbusTcp.MeterId), timeout,
		cfg.InverterModbusTcp.IgnoreFronius, logger, nil)

	if err != nil {
		return nil, err
	}

	return func() *adactor.ModbusActor {
		return adactor.NewModbusActor(inv, acMeter, logger)
	}, nil
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func(es *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, es, logger)
	}
}

func hardwareAdapter(cfg *config.Config, logger *zap.Logger) port.HardwareAdapter {
	if cfg.HardwareConfig.Type == hardware.TypeMQTT {
		return hardware.NewMQTTAdapter(mqtt.BrokerOpts(cfg.MQTT, "surplus_hw"),
			cfg.HardwareConfig.TopicPrefix, 5*time.Second, logger)
	}
	return hardware.NewNullAdapter()
}

func openHistory(path string) (*history.Recorder, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	db, err := history.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return history.NewRecorder(db), nil
}

func connectTelemetry(cfg config.InfluxDBConfig, logger *zap.Logger) (*telemetry.InfluxSink, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return telemetry.Connect(ctx, telemetry.Options{
		URL:           cfg.URL,
		Token:         cfg.Token,
		Org:           cfg.Org,
		Bucket:        cfg.Bucket,
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
	}, logger)
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("inverter_modbus_tcp.host", "")
	viper.SetDefault("inverter_modbus_tcp.port", 502)
	viper.SetDefault("inverter_modbus_tcp.inverter_id", 1)
	viper.SetDefault("inverter_modbus_tcp.meter_id", 200)
	viper.SetDefault("inverter_modbus_tcp.ignore_fronius", false)
	viper.SetDefault("inverter_modbus_tcp.timeout_millis", 1000)
	viper.SetDefault("mqtt.host", "localhost")
	viper.SetDefault("mqtt.port", 1883)
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.ha_discovery_enable", false)
	viper.SetDefault("mqtt.base_topic", "surplus")
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	viper.SetDefault("monitor.poll_interval_millis", 5000)
	viper.SetDefault("scheduler.hysteresis_minutes", 5)
	viper.SetDefault("scheduler.settle_seconds", 15)
	viper.SetDefault("scheduler.battery_critical_soc", 10)
	viper.SetDefault("scheduler.battery_min_soc", 20)
	viper.SetDefault("scheduler.min_surplus_delta", 50)
	viper.SetDefault("scheduler.min_update_interval_seconds", 60)
	viper.SetDefault("scheduler.daily_reset_cron", service.DefaultDailyResetCron)
	viper.SetDefault("scheduler.fail_closed", false)
	viper.SetDefault("devices.config_file", "devices.yaml")
	viper.SetDefault("hardware.type", hardware.TypeNone)
	viper.SetDefault("hardware.topic_prefix", "zigbee2mqtt")
	viper.SetDefault("history.enabled", false)
	viper.SetDefault("history.path", "surplus.db")
	viper.SetDefault("influxdb.enabled", false)
	viper.SetDefault("influxdb.url", "")
	viper.SetDefault("influxdb.token", "")
	viper.SetDefault("influxdb.org", "")
	viper.SetDefault("influxdb.bucket", "surplus")
	viper.SetDefault("influxdb.batch_size", 100)
	viper.SetDefault("influxdb.flush_interval", 10)
	viper.SetDefault("port", 8080)
	viper.SetDefault("http_log", false)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	cfg.InfluxDBConfig.Token = "*redacted*"
	slog.Info("Using", "config", cfg)
}
