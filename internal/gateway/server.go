package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ramses-rf/gateway/internal/driver"
	"github.com/ramses-rf/gateway/internal/ramses"
)

// NewRouter builds the introspection HTTP surface over g: system/zone/device
// state, fault logs, schedules, and the transport's Prometheus metrics.
func NewRouter(g *Gateway) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.HandlerFor(g.Transport.Registry(), promhttp.HandlerOpts{}))

	r.Get("/stats", func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte(g.Transport.Stats()))
	})

	r.Get("/systems", g.handleListSystems)
	r.Get("/systems/{ctl}/faultlog", g.handleFaultLog)
	r.Get("/systems/{ctl}/zones/{idx}/schedule", g.handleScheduleFetch)
	r.Put("/systems/{ctl}/zones/{idx}/schedule", g.handleSchedulePut)

	return r
}

func parseCtlAddr(s string) (ramses.Address, error) {
	return ramses.ParseAddress(s)
}

type zoneView struct {
	Idx      string `json:"idx"`
	ZoneType string `json:"zone_type,omitempty"`
	Sensor   string `json:"sensor,omitempty"`
}

type systemView struct {
	Controller    string     `json:"controller"`
	BoilerControl string     `json:"boiler_control,omitempty"`
	DHW           *zoneView  `json:"dhw,omitempty"`
	Zones         []zoneView `json:"zones"`
}

func (g *Gateway) handleListSystems(w http.ResponseWriter, r *http.Request) {
	var out []systemView
	for _, sys := range g.Topology.Systems() {
		sv := systemView{Controller: g.nameOf(sys.Controller.Addr)}
		if bc := sys.BoilerControl(); bc != nil {
			sv.BoilerControl = g.nameOf(bc.Addr)
		}
		if dhw := sys.DHW(); dhw != nil {
			sv.DHW = &zoneView{Idx: dhw.Idx, ZoneType: dhw.ZoneType()}
		}
		for _, z := range sys.Zones() {
			zv := zoneView{Idx: z.Idx, ZoneType: z.ZoneType()}
			if s := z.Sensor(); s != nil {
				zv.Sensor = g.nameOf(s.Addr)
			}
			sv.Zones = append(sv.Zones, zv)
		}
		out = append(out, sv)
	}
	writeJSON(w, out)
}

func (g *Gateway) handleFaultLog(w http.ResponseWriter, r *http.Request) {
	ctl, err := parseCtlAddr(chi.URLParam(r, "ctl"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), driver.TransactionTimeout)
	defer cancel()

	entries, err := g.FaultLog(ctl).Fetch(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusGatewayTimeout)
		return
	}
	writeJSON(w, entries)
}

func (g *Gateway) handleScheduleFetch(w http.ResponseWriter, r *http.Request) {
	ctl, err := parseCtlAddr(chi.URLParam(r, "ctl"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	zoneIdx := chi.URLParam(r, "idx")

	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	sched, err := g.Schedule(ctl).Fetch(ctx, zoneIdx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusGatewayTimeout)
		return
	}
	writeJSON(w, sched)
}

func (g *Gateway) handleSchedulePut(w http.ResponseWriter, r *http.Request) {
	ctl, err := parseCtlAddr(chi.URLParam(r, "ctl"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	zoneIdx := chi.URLParam(r, "idx")

	var sched ramses.Schedule
	if err := json.NewDecoder(r.Body).Decode(&sched); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sched.ZoneIdx = zoneIdx

	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	if err := g.Schedule(ctl).Put(ctx, &sched); err != nil {
		http.Error(w, err.Error(), http.StatusGatewayTimeout)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
