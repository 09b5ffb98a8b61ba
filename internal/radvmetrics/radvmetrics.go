// Package radvmetrics exposes Prometheus counters for Router Advertisement
// and control-socket activity.
package radvmetrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// namespace is the common Prometheus namespace for every metric this
// package registers.
const namespace = "rsadv"

// Metrics holds the daemon's Prometheus counters.
type Metrics struct {
	MulticastRAsTotal    prometheus.Counter
	UnicastRAsTotal      prometheus.Counter
	SolicitationsDropped prometheus.Counter
	ControlRequestsTotal *prometheus.CounterVec
}

// New registers and returns a fresh set of counters on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		MulticastRAsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ra",
			Name:      "multicast_total",
			Help:      "Total number of multicast Router Advertisements sent.",
		}),
		UnicastRAsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ra",
			Name:      "unicast_total",
			Help:      "Total number of unicast Router Advertisements sent.",
		}),
		SolicitationsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rs",
			Name:      "dropped_total",
			Help:      "Total number of Router Solicitations dropped by validation or backpressure.",
		}),
		ControlRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "control",
			Name:      "requests_total",
			Help:      "Total number of control requests handled, by discriminator.",
		}, []string{"kind"}),
	}
}

// Server serves the /metrics endpoint over HTTP.
type Server struct {
	logger *slog.Logger
	server *http.Server
}

// NewServer returns a Server bound to addr, serving reg's registered
// metrics at /metrics.
func NewServer(logger *slog.Logger, addr string, reg *prometheus.Registry) *Server {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return &Server{
		logger: logger,
		server: &http.Server{Addr: addr, Handler: mux},
	}
}

// Run starts serving until ctx is cancelled.
func (s *Server) Run(ctx context.Context) {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		s.logger.ErrorContext(ctx, "listening for metrics", slogutil.KeyError, err)

		return
	}

	go func() {
		<-ctx.Done()
		_ = s.server.Close()
	}()

	err = s.server.Serve(ln)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.ErrorContext(ctx, "serving metrics", slogutil.KeyError, err)
	}
}
