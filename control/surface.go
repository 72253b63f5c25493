// Surface wraps the router's live state (worker queues, service counts,
// cpu accumulators, fd table) with Prometheus collectors and a small gin
// HTTP server. It never touches message routing; a process that never
// calls Handler runs with this file's code entirely inert.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package control

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/momentics/hioload-actor/router"
)

// Surface owns the Prometheus collectors, the legacy-style debug probe
// registry, and (optionally) a gin HTTP server exposing them.
type Surface struct {
	reg      *prometheus.Registry
	mqDepth  *prometheus.GaugeVec
	svcCount *prometheus.GaugeVec
	cpuTotal *prometheus.GaugeVec
	fdCount  prometheus.Gauge

	metrics *MetricsRegistry
	probes  *DebugProbes
	config  *ConfigStore

	router *router.Server
}

// New builds a Surface wired to r's workers. Call Scrape periodically (or
// let the gin /metrics handler trigger it on demand) to refresh gauges.
func New(r *router.Server) *Surface {
	reg := prometheus.NewRegistry()
	s := &Surface{
		reg:    reg,
		router: r,
		metrics: NewMetricsRegistry(),
		probes:  NewDebugProbes(),
		config:  NewConfigStore(),
		mqDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "hioload_actor", Name: "worker_queue_depth", Help: "pending messages per worker",
		}, []string{"worker"}),
		svcCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "hioload_actor", Name: "worker_service_count", Help: "live services per worker",
		}, []string{"worker"}),
		cpuTotal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "hioload_actor", Name: "worker_cpu_nanoseconds_total", Help: "accumulated handler cpu time per worker",
		}, []string{"worker"}),
		fdCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hioload_actor", Name: "socket_fd_count", Help: "live socket fds across all workers",
		}),
	}
	reg.MustRegister(s.mqDepth, s.svcCount, s.cpuTotal, s.fdCount)

	RegisterPlatformProbes(s.probes)
	s.probes.RegisterProbe("router.state", func() any { return r.State().String() })
	s.probes.RegisterProbe("router.exitCode", func() any { return r.ExitCode() })
	s.probes.RegisterProbe("control.metrics", func() any { return s.metrics.GetSnapshot() })

	s.config.SetConfig(map[string]any{"scrapeIntervalMs": 1000})
	s.config.OnReload(func() {
		snap := s.config.GetSnapshot()
		s.metrics.Set("config.lastReload", snap)
	})
	RegisterReloadHook(func() { s.Scrape() })
	return s
}

// Scrape refreshes every gauge from the live router/worker state. Safe to
// call concurrently with the workers' own goroutines: it only reads
// already-atomic/locked accessors.
func (s *Surface) Scrape() {
	for _, w := range s.router.Workers() {
		label := prometheus.Labels{"worker": strconv.FormatUint(uint64(w.ID()), 10)}
		s.mqDepth.With(label).Set(float64(w.QueueDepth()))
		s.svcCount.With(label).Set(float64(w.Count()))
		s.cpuTotal.With(label).Set(float64(w.CPU()))
	}
	s.fdCount.Set(float64(s.router.FDCount()))
	s.metrics.Set("fdCount", s.router.FDCount())
	s.metrics.Set("routerState", s.router.State().String())
}

// Handler returns a gin engine exposing GET /metrics (Prometheus exposition
// format), GET /debug (registered probe dump), GET+POST /config (the
// hot-reloadable config store), and GET /scan/:workerid (the service list
// for one worker, or all workers when :workerid is "0").
func (s *Surface) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	e := gin.New()
	e.GET("/metrics", func(c *gin.Context) {
		s.Scrape()
		promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}).ServeHTTP(c.Writer, c.Request)
	})
	e.GET("/debug", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.probes.DumpState())
	})
	e.GET("/config", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.config.GetSnapshot())
	})
	e.POST("/config", func(c *gin.Context) {
		var body map[string]any
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s.config.SetConfig(body)
		TriggerHotReload()
		c.JSON(http.StatusOK, s.config.GetSnapshot())
	})
	e.GET("/scan/:workerid", func(c *gin.Context) {
		v, err := strconv.ParseUint(c.Param("workerid"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid worker id"})
			return
		}
		c.Data(http.StatusOK, "application/json", []byte(s.router.ScanServices(uint32(v))))
	})
	return e
}
