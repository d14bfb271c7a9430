package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/berfenger/surplus2mqtt/internal/config"

	"github.com/asynkron/protoactor-go/actor"
	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"
)

const requestTimeout = 5 * time.Second

type Server struct {
	port        uint
	httpLog     bool
	rootContext *actor.RootContext
	masterActor *actor.PID
	logger      *zap.Logger
}

func NewServer(cfg config.Config, rootContext *actor.RootContext, masterActor *actor.PID, logger *zap.Logger) *http.Server {
	NewServer := &Server{
		port:        cfg.Port,
		rootContext: rootContext,
		masterActor: masterActor,
		httpLog:     cfg.HttpLog,
		logger:      logger.With(zap.String("component", "http")),
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", NewServer.port),
		Handler:      NewServer.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return server
}
