// Package stats tracks server-wide counters and exposes them both as an
// in-process snapshot and, optionally, as Prometheus metrics.
package stats

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stats holds atomic counters updated by the event loop and handlers.
// Single-threaded operation means no counter race is possible from the
// Map side, but connection accept/close and stats scraping happen
// concurrently, so the counters themselves stay atomic.
type Stats struct {
	totalOps     atomic.Uint64
	getOps       atomic.Uint64
	setOps       atomic.Uint64
	delOps       atomic.Uint64
	listOps      atomic.Uint64
	unknownOps   atomic.Uint64
	getHits      atomic.Uint64
	connections  atomic.Uint64
	activeConns  atomic.Int64
	bytesRead    atomic.Uint64
	bytesWritten atomic.Uint64
}

// New creates a Stats and registers its Prometheus collectors against
// reg. Pass nil to skip Prometheus registration entirely.
func New(reg prometheus.Registerer) *Stats {
	s := &Stats{}
	if reg == nil {
		return s
	}

	factory := promauto.With(reg)
	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "fastkv",
		Name:      "ops_total",
		Help:      "Total commands processed.",
	}, func() float64 { return float64(s.totalOps.Load()) })
	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "fastkv",
		Name:      "get_ops_total",
		Help:      "Total GET commands processed.",
	}, func() float64 { return float64(s.getOps.Load()) })
	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "fastkv",
		Name:      "set_ops_total",
		Help:      "Total SET commands processed.",
	}, func() float64 { return float64(s.setOps.Load()) })
	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "fastkv",
		Name:      "del_ops_total",
		Help:      "Total DEL commands processed.",
	}, func() float64 { return float64(s.delOps.Load()) })
	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "fastkv",
		Name:      "list_ops_total",
		Help:      "Total LIST commands processed.",
	}, func() float64 { return float64(s.listOps.Load()) })
	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "fastkv",
		Name:      "unknown_ops_total",
		Help:      "Total unrecognized commands received.",
	}, func() float64 { return float64(s.unknownOps.Load()) })
	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "fastkv",
		Name:      "connections_total",
		Help:      "Total connections accepted.",
	}, func() float64 { return float64(s.connections.Load()) })
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "fastkv",
		Name:      "active_connections",
		Help:      "Connections currently open.",
	}, func() float64 { return float64(s.activeConns.Load()) })
	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "fastkv",
		Name:      "bytes_read_total",
		Help:      "Total bytes read from client sockets.",
	}, func() float64 { return float64(s.bytesRead.Load()) })
	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "fastkv",
		Name:      "bytes_written_total",
		Help:      "Total bytes written to client sockets.",
	}, func() float64 { return float64(s.bytesWritten.Load()) })

	return s
}

func (s *Stats) RecordGet(hit bool) {
	s.totalOps.Add(1)
	s.getOps.Add(1)
	if hit {
		s.getHits.Add(1)
	}
}

func (s *Stats) RecordSet() {
	s.totalOps.Add(1)
	s.setOps.Add(1)
}

func (s *Stats) RecordDelete() {
	s.totalOps.Add(1)
	s.delOps.Add(1)
}

func (s *Stats) RecordList() {
	s.totalOps.Add(1)
	s.listOps.Add(1)
}

func (s *Stats) RecordUnknown() {
	s.totalOps.Add(1)
	s.unknownOps.Add(1)
}

func (s *Stats) ConnectionOpened() {
	s.connections.Add(1)
	s.activeConns.Add(1)
}

func (s *Stats) ConnectionClosed() {
	s.activeConns.Add(-1)
}

func (s *Stats) RecordRead(n int) {
	s.bytesRead.Add(uint64(n))
}

func (s *Stats) RecordWrite(n int) {
	s.bytesWritten.Add(uint64(n))
}

// Snapshot is a point-in-time copy of the counters, safe to log or
// print without further synchronization.
type Snapshot struct {
	TotalOps     uint64
	GetOps       uint64
	SetOps       uint64
	DelOps       uint64
	ListOps      uint64
	UnknownOps   uint64
	GetHitRate   float64
	Connections  uint64
	ActiveConns  int64
	BytesRead    uint64
	BytesWritten uint64
}

// Snapshot returns a copy of the current counters.
func (s *Stats) Snapshot() Snapshot {
	getOps := s.getOps.Load()
	hitRate := 0.0
	if getOps > 0 {
		hitRate = float64(s.getHits.Load()) / float64(getOps)
	}
	return Snapshot{
		TotalOps:     s.totalOps.Load(),
		GetOps:       getOps,
		SetOps:       s.setOps.Load(),
		DelOps:       s.delOps.Load(),
		ListOps:      s.listOps.Load(),
		UnknownOps:   s.unknownOps.Load(),
		GetHitRate:   hitRate,
		Connections:  s.connections.Load(),
		ActiveConns:  s.activeConns.Load(),
		BytesRead:    s.bytesRead.Load(),
		BytesWritten: s.bytesWritten.Load(),
	}
}
