package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/cactilia/cactilia-backend/api/responses"
	"github.com/cactilia/cactilia-backend/pkg/config"
	pkgerrors "github.com/cactilia/cactilia-backend/pkg/errors"
	"github.com/cactilia/cactilia-backend/pkg/logger"
)

const (
	envHeader          = "X-Cactilia-Env"
	readyCheckTimeout  = 2 * time.Second
	readyStatusOK      = "ok"
	readyStatusFailing = "unavailable"
)

// Pinger is any dependency that can report connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyCheck names one dependency probed by the readiness endpoint. A nil Pinger is skipped.
type ReadyCheck struct {
	Name   string
	Pinger Pinger
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every dependency and fails with 503 when any of them is down.
func HealthReady(cfg *config.Config, logg *logger.Logger, checks ...ReadyCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
		defer cancel()

		statuses := make(map[string]string, len(checks))
		var failed []string
		for _, check := range checks {
			if check.Pinger == nil {
				continue
			}
			if err := check.Pinger.Ping(ctx); err != nil {
				statuses[check.Name] = readyStatusFailing
				failed = append(failed, check.Name)
				if logg != nil {
					logg.Warn(logg.WithField(r.Context(), "dependency", check.Name), "readiness check failed: "+err.Error())
				}
				continue
			}
			statuses[check.Name] = readyStatusOK
		}

		if len(failed) > 0 {
			err := pkgerrors.New(pkgerrors.CodeDependency, "dependencies unavailable").
				WithDetails(map[string]any{"checks": statuses})
			responses.WriteError(r.Context(), nil, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": statuses})
	}
}
