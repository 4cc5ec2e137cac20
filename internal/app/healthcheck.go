package app

import (
	"net/http"

	"github.com/metinatakli/seat-reservation/api"
)

func (app *application) GetHealth(w http.ResponseWriter, r *http.Request) {
	status := "UP"
	systemInfo := api.SystemInfo{
		Version:     version,
		Environment: app.config.env,
	}

	resp := api.HealthcheckResponse{
		Status:     status,
		SystemInfo: systemInfo,
	}

	if app.sweeper != nil {
		stats := app.sweeper.Stats()
		resp.Sweeper = &api.SweeperInfo{
			Running:         stats.IsRunning,
			TotalExpired:    stats.TotalExpired,
			TotalSkipped:    stats.TotalSkipped,
			TotalReconciled: stats.TotalReconciled,
			LastSweepTime:   stats.LastSweepTime,
			LastSweepCount:  stats.LastSweepCount,
		}
	}

	err := app.writeJSON(w, http.StatusOK, resp, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}
