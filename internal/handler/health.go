package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/survey-runner/backend/pkg/utils"
)

const healthTimeout = 2 * time.Second

// Checker reports whether one dependency is reachable.
type Checker func(ctx context.Context) error

type health struct {
	Status       string          `json:"status"`
	Dependencies map[string]bool `json:"dependencies,omitempty"`
}

// healthcheckHandler answers with the state of every dependency.
func healthcheckHandler(checks map[string]Checker, logger *zap.Logger) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		h := health{Status: "ok", Dependencies: make(map[string]bool, len(names))}
		for _, name := range names {
			err := checks[name](ctx)
			h.Dependencies[name] = err == nil
			if err != nil {
				h.Status = "degraded"
				logger.Warn("health check failed", zap.String("dependency", name), zap.Error(err))
			}
		}

		status := http.StatusOK
		if h.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		utils.RespondJSON(w, status, h)
	}
}
