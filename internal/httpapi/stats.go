package httpapi

import (
	"net/http"

	"cloudpico-sensorbridge/internal/ble"
	"cloudpico-sensorbridge/internal/utils"
)

type statsResponse struct {
	ble.StatsSnapshot
	TableFull bool `json:"table_full"`
}

func registerStats(mux *http.ServeMux, d Deps) {
	mux.HandleFunc("GET /stats", func(w http.ResponseWriter, r *http.Request) {
		if d.Stats == nil {
			utils.WriteError(w, http.StatusServiceUnavailable, "statistics unavailable")
			return
		}
		resp := statsResponse{StatsSnapshot: d.Stats.Snapshot()}
		if d.TableFull != nil {
			resp.TableFull = d.TableFull()
		}
		utils.WriteJSON(w, http.StatusOK, resp)
	})
}
