package httpapi

import (
	"errors"
	"net"
	"net/http"
	"strings"

	"cloudpico-sensorbridge/internal/gwobj"
	"cloudpico-sensorbridge/internal/measure"
	"cloudpico-sensorbridge/internal/utils"
)

type beacon struct {
	gwobj.Object
	Readings []measure.Reading `json:"readings"`
}

type beaconsResponse struct {
	Beacons []beacon `json:"beacons"`
	Blocked []string `json:"blocked"`
}

type beaconsHandler struct {
	objects Objects
	latest  LatestValues
}

func registerBeacons(mux *http.ServeMux, d Deps) {
	if d.Objects == nil {
		return
	}
	h := &beaconsHandler{objects: d.Objects, latest: d.Latest}
	mux.HandleFunc("GET /beacons", h.handleList)
	mux.HandleFunc("DELETE /beacons/{addr}", h.handleDelete)
	mux.HandleFunc("POST /beacons/{addr}/block", h.handleBlock)
	mux.HandleFunc("DELETE /beacons/{addr}/block", h.handleUnblock)
}

func (h *beaconsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	objs := h.objects.List()
	resp := beaconsResponse{
		Beacons: make([]beacon, 0, len(objs)),
		Blocked: h.objects.Blocked(),
	}
	for _, o := range objs {
		b := beacon{Object: o, Readings: []measure.Reading{}}
		if h.latest != nil {
			if rs := h.latest.Latest(o.Index); rs != nil {
				b.Readings = rs
			}
		}
		resp.Beacons = append(resp.Beacons, b)
	}
	utils.WriteJSON(w, http.StatusOK, resp)
}

func (h *beaconsHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}
	if err := h.objects.Delete(addr); err != nil {
		if errors.Is(err, gwobj.ErrNotFound) {
			utils.WriteBeaconError(w, http.StatusNotFound, addr, err)
			return
		}
		utils.WriteBeaconError(w, http.StatusInternalServerError, addr, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *beaconsHandler) handleBlock(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}
	if err := h.objects.Block(r.Context(), addr); err != nil {
		utils.WriteBeaconError(w, http.StatusInternalServerError, addr, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *beaconsHandler) handleUnblock(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}
	if err := h.objects.Unblock(r.Context(), addr); err != nil {
		utils.WriteBeaconError(w, http.StatusInternalServerError, addr, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathAddress(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := r.PathValue("addr")
	hw, err := net.ParseMAC(raw)
	if err != nil || len(hw) != 6 {
		utils.WriteError(w, http.StatusBadRequest, "invalid beacon address")
		return "", false
	}
	return strings.ToUpper(hw.String()), true
}
