package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/shield/pkg/authsdk"
	"github.com/aussiebroadwan/shield/pkg/httpx"
)

// LivezHandler reports that the process is serving, with its uptime and
// build version.
func LivezHandler(startTime time.Time, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := authsdk.HealthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).Round(time.Second).String(),
			Version: version,
		}
		httpx.WriteJSON(w, http.StatusOK, response)
	}
}
