package handlers

import (
	"context"
	"net/http"

	pkghttp "github.com/BradenHooton/prok/pkg/http"
)

// HealthChecker reports whether a dependency is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// Health reports liveness and database reachability
func Health(db HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.HealthCheck(r.Context()); err != nil {
			pkghttp.WriteJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "degraded", Database: "unreachable"})
			return
		}
		pkghttp.WriteJSON(w, http.StatusOK, HealthResponse{Status: "ok", Database: "ok"})
	}
}
