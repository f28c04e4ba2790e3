package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"paperwing/internal/cache"
	"paperwing/internal/config"
	"paperwing/internal/controller"
	"paperwing/internal/database"
	"paperwing/internal/orchestrator"
	"paperwing/internal/rabbitmq"
)

// Ticker advances the processing state machine by one transition
type Ticker interface {
	RunTick(ctx context.Context) (*orchestrator.TickResult, error)
}

type Server struct {
	sc     controller.ServerController
	dc     controller.DocumentController
	orch   Ticker
	config config.Config
}

func New(config config.Config, db database.Database, cache cache.Cache, rabbit rabbitmq.Publisher, uploader controller.Uploader, orch *orchestrator.Orchestrator) *http.Server {
	sc := controller.NewServer(db, cache, rabbit)
	dc := controller.NewDocumentController(db, cache, uploader, rabbit, &config)

	server := Server{
		sc:     sc,
		dc:     dc,
		orch:   orch,
		config: config,
	}

	return &http.Server{
		Addr:         fmt.Sprintf(":%v", config.Port),
		Handler:      server.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}
