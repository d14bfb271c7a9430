package actorutil

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/berfenger/surplus2mqtt/internal/core/domain"
	"github.com/berfenger/surplus2mqtt/internal/mqtt"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/lmittmann/tint"
	"go.uber.org/zap"
)

func PipeToSelfWithRecover(ctx actor.Context, future *actor.Future, mapFn func(error) any) {
	ctx.ReenterAfter(future, func(msg any, err error) {
		if err != nil {
			ctx.Send(ctx.Self(), mapFn(err))
			return
		}
		ctx.Send(ctx.Self(), msg)
	})
}

func NewActorSystemWithZapLogger(logger *zap.Logger) *actor.ActorSystem {
	stdOutLogger := zap.NewStdLog(logger)

	var slogLevel slog.Level = slog.LevelInfo

	switch logger.Level() {
	case zap.DebugLevel:
		slogLevel = slog.LevelDebug
	case zap.InfoLevel:
		slogLevel = slog.LevelInfo
	case zap.WarnLevel:
		slogLevel = slog.LevelWarn
	case zap.ErrorLevel, zap.PanicLevel, zap.FatalLevel:
		slogLevel = slog.LevelError
	}

	return actor.NewActorSystem(actor.WithLoggerFactory(func(system *actor.ActorSystem) *slog.Logger {
		return slog.New(tint.NewHandler(stdOutLogger.Writer(), &tint.Options{
			Level:      slogLevel,
			TimeFormat: time.DateTime,
		}))
	}))
}

func ActorLogger(actorName string, logger *zap.Logger) *zap.Logger {
	return logger.With(zap.String("actor", actorName))
}

var ErrUnknownCommand = errors.New("unknown command")

// ParsedMQTTCommandToRequest maps an MQTT command to the actor request that serves it.
func ParsedMQTTCommandToRequest(cmd mqtt.ParsedMQTTCommand) (domain.ActorRequest, error) {
	if cmd.Command != mqtt.COMMAND_SWITCH || !strings.HasPrefix(cmd.DeviceId, domain.DEVICE_SWITCH_ID_PREFIX) {
		return nil, fmt.Errorf("%w: %s %s", ErrUnknownCommand, cmd.Command, cmd.DeviceId)
	}
	var mode domain.SwitchMode
	switch strings.ToLower(strings.TrimSpace(cmd.Payload)) {
	case mqtt.MQTT_PAYLOAD_ON:
		mode = domain.SwitchModeOn
	case mqtt.MQTT_PAYLOAD_OFF:
		mode = domain.SwitchModeOff
	case "toggle":
		mode = domain.SwitchModeToggle
	default:
		return nil, fmt.Errorf("invalid switch payload %q", cmd.Payload)
	}
	return domain.SwitchDeviceRequest{
		SwitchId: cmd.DeviceId,
		Mode:     mode,
	}, nil
}
