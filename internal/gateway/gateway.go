// Package gateway wires the transport, topology, and per-system drivers
// into one running service, and exposes it over HTTP for introspection.
package gateway

import (
	"context"
	"sync"

	"github.com/ramses-rf/gateway/internal/driver"
	"github.com/ramses-rf/gateway/internal/ramses"
	"github.com/ramses-rf/gateway/internal/topology"
	"github.com/ramses-rf/gateway/internal/transport"
)

// Gateway is the assembled runtime: one Transport driving one Topology,
// with fault-log and schedule drivers created lazily per discovered system.
type Gateway struct {
	Transport *transport.Transport
	Topology  *topology.Topology
	Names     map[string]string // device address -> friendly label, from config.yaml

	mu              sync.Mutex
	faultLogs       map[string]*driver.FaultLog
	zoneLocks       map[string]*driver.ZoneLock
	scheduleDrivers map[string]*driver.ScheduleDriver
}

// New assembles a Gateway around sink, the transport's wire connection.
// names is the optional address->label map loaded from config.yaml.
func New(sink transport.Sink, names map[string]string) *Gateway {
	t := transport.New(sink)
	topo := topology.New()
	t.Subscribe(topo.OnMessage)

	if names == nil {
		names = map[string]string{}
	}
	g := &Gateway{
		Transport:       t,
		Topology:        topo,
		Names:           names,
		faultLogs:       make(map[string]*driver.FaultLog),
		zoneLocks:       make(map[string]*driver.ZoneLock),
		scheduleDrivers: make(map[string]*driver.ScheduleDriver),
	}
	return g
}

// nameOf returns the friendly label for addr, or its wire address if none
// is configured.
func (g *Gateway) nameOf(addr ramses.Address) string {
	if name, ok := g.Names[addr.String()]; ok && name != "" {
		return name
	}
	return addr.String()
}

// Run drives the transport's QoS engine until ctx is cancelled.
func (g *Gateway) Run(ctx context.Context) {
	g.Transport.Run(ctx)
}

// FaultLog returns (creating if absent) the fault-log driver for ctl.
func (g *Gateway) FaultLog(ctl ramses.Address) *driver.FaultLog {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := ctl.String()
	if fl, ok := g.faultLogs[key]; ok {
		return fl
	}
	fl := driver.NewFaultLog(g.Transport, ctl)
	g.faultLogs[key] = fl
	return fl
}

// Schedule returns (creating if absent) the schedule driver for ctl, backed
// by a per-system ZoneLock shared across all its zones' transactions.
func (g *Gateway) Schedule(ctl ramses.Address) *driver.ScheduleDriver {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := ctl.String()
	if sd, ok := g.scheduleDrivers[key]; ok {
		return sd
	}
	lock, ok := g.zoneLocks[key]
	if !ok {
		lock = &driver.ZoneLock{}
		g.zoneLocks[key] = lock
	}
	sd := driver.NewScheduleDriver(g.Transport, ctl, lock)
	g.scheduleDrivers[key] = sd
	return sd
}
