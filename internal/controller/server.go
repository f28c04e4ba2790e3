package controller

import (
	"context"

	"paperwing/internal/cache"
	"paperwing/internal/database"
	"paperwing/internal/rabbitmq"
)

// HealthReport names each dependency and whether it answered
type HealthReport struct {
	Healthy bool              `json:"healthy"`
	Checks  map[string]string `json:"checks"`
}

type ServerController interface {
	Health(ctx context.Context) HealthReport
	Online() string
}

type serverController struct {
	db     database.Database
	cache  cache.Cache
	rabbit rabbitmq.Publisher
}

func NewServer(db database.Database, c cache.Cache, rabbit rabbitmq.Publisher) ServerController {
	return &serverController{
		db:     db,
		cache:  c,
		rabbit: rabbit,
	}
}

func (sc *serverController) Online() string {
	return "Online"
}

// Health checks every dependency and reports per-check results. A broker
// outage degrades status fan-out but not processing, so it is still
// reported; load balancers decide what they key off.
func (sc *serverController) Health(ctx context.Context) HealthReport {
	report := HealthReport{Healthy: true, Checks: map[string]string{}}

	if err := sc.db.Health(); err != nil {
		report.Healthy = false
		report.Checks["mongodb"] = err.Error()
	} else {
		report.Checks["mongodb"] = "ok"
	}

	if err := sc.cache.Ping(ctx); err != nil {
		report.Healthy = false
		report.Checks["redis"] = err.Error()
	} else {
		report.Checks["redis"] = "ok"
	}

	if sc.rabbit != nil {
		if err := sc.rabbit.Health(); err != nil {
			report.Healthy = false
			report.Checks["rabbitmq"] = err.Error()
		} else {
			report.Checks["rabbitmq"] = "ok"
		}
	}

	return report
}
