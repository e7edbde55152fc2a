package api

import (
	"net/http"

	"github.com/Keksclan/goRawrGate/ping"
)

// Health handles GET /health with the report of svc. A degraded report is
// still a 200.
func Health(svc *ping.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Report(r.Context()))
	}
}
