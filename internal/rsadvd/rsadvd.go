// Package rsadvd wires together the control listener, scheduler, receiver,
// and reaper into one running daemon.
package rsadvd

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/netip"
	"sync"
	"time"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/AdguardTeam/rsadv/internal/ctrlsock"
	"github.com/AdguardTeam/rsadv/internal/platform"
	"github.com/AdguardTeam/rsadv/internal/raddb"
	"github.com/AdguardTeam/rsadv/internal/radv"
	"github.com/AdguardTeam/rsadv/internal/radvmetrics"
	"github.com/AdguardTeam/rsadv/internal/rsadvcfg"
	"github.com/prometheus/client_golang/prometheus"
)

// Config configures a [Daemon].
type Config struct {
	Logger  *slog.Logger
	RSAdv   *rsadvcfg.Config
	Metrics *radvmetrics.Metrics
}

// Daemon is the assembled set of long-lived tasks described in spec.md §2:
// the control listener, the RA scheduler, the RS receiver, and the expiry
// reaper, sharing one [radv.State].
type Daemon struct {
	logger *slog.Logger

	iface    platform.Interface
	conn     radv.Conn
	state    *radv.State
	db       *databaseAdapter
	listener *ctrlsock.Listener
	sched    *radv.Scheduler
	recv     *radv.Receiver
	reaper   *radv.Reaper
}

// New assembles a Daemon from conf. It performs the fatal, startup-only
// checks described in spec.md §6: the interface must exist, have a MAC, and
// have a link-local address; the ICMPv6 socket must bind; the control socket
// must not already be in use. The database load is never fatal: a missing,
// unreadable, or undecodable file starts the daemon with empty state.
func New(ctx context.Context, conf *Config) (d *Daemon, err error) {
	logger := conf.Logger
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}

	iface, err := platform.Open(conf.RSAdv.Interface)
	if err != nil {
		return nil, fmt.Errorf("opening interface: %w", err)
	}

	linkLocal, err := platform.LinkLocalAddr(ctx, iface)
	if err != nil {
		return nil, fmt.Errorf("finding link-local address: %w", err)
	}

	rawConn, err := radv.ListenInterface(linkLocal, iface.Name(), iface.ScopeID())
	if err != nil {
		return nil, fmt.Errorf("binding icmpv6 socket: %w", err)
	}

	var conn radv.Conn = rawConn
	if conf.Metrics != nil {
		conn = &countingConn{Conn: rawConn, metrics: conf.Metrics}
	}

	state := radv.NewState(conf.RSAdv.MTU)

	db := raddb.New(logger, conf.RSAdv.DBPath)
	prefixes, dns := db.Load(ctx)
	now := time.Now()
	for _, p := range prefixes {
		state.SetPrefix(radv.Prefix{
			Addr:      p.Addr,
			Length:    p.Length,
			Preferred: radv.NewUntilLifetime(now.Add(p.Preferred)),
			Valid:     radv.NewUntilLifetime(now.Add(p.Valid)),
		})
	}
	for _, addr := range dns {
		state.SetDNSServer(addr, radv.NewDurationLifetime(time.Hour))
	}

	clock := timeutil.SystemClock{}

	sched := radv.NewScheduler(&radv.SchedulerConfig{
		Logger:            logger,
		State:             state,
		Conn:              conn,
		Clock:             clock,
		Rand:              rand.New(rand.NewSource(time.Now().UnixNano())),
		MAC:               iface.MAC(),
		MaxRtrAdvInterval: conf.RSAdv.MaxInterval(),
		MinRtrAdvInterval: conf.RSAdv.MinInterval(),
		AnnounceOnExit:    conf.RSAdv.AnnounceOnExit,
	})

	recv := radv.NewReceiver(logger, conn, sched)
	if conf.Metrics != nil {
		recv.OnDrop(conf.Metrics.SolicitationsDropped.Inc)
	}

	dbAdapter := &databaseAdapter{db: db}
	reaper := radv.NewReaper(&radv.ReaperConfig{
		Logger:    logger,
		State:     state,
		Clock:     clock,
		Iface:     iface,
		DB:        dbAdapter,
		Scheduler: sched,
	})

	var handler ctrlsock.Handler = radv.NewHandler(state)
	if conf.Metrics != nil {
		handler = &countingHandler{handler: handler.(*radv.Handler), metrics: conf.Metrics}
	}

	listener, err := ctrlsock.Listen(&ctrlsock.Config{
		Logger:     logger,
		Handler:    handler,
		SocketPath: conf.RSAdv.ControlSocket,
	})
	if err != nil {
		return nil, fmt.Errorf("listening on control socket: %w", err)
	}

	return &Daemon{
		logger:   logger,
		iface:    iface,
		conn:     conn,
		state:    state,
		db:       dbAdapter,
		listener: listener,
		sched:    sched,
		recv:     recv,
		reaper:   reaper,
	}, nil
}

// Run starts all four tasks and blocks until ctx is cancelled, at which
// point it waits for each to finish its shutdown sequence.
func (d *Daemon) Run(ctx context.Context) {
	var wg sync.WaitGroup

	wg.Add(4)

	go func() {
		defer wg.Done()
		d.listener.Serve(ctx)
	}()

	go func() {
		defer wg.Done()
		d.sched.Run(ctx)
	}()

	go func() {
		defer wg.Done()
		d.recv.Run(ctx)
	}()

	go func() {
		defer wg.Done()
		d.reaper.Run(ctx)
	}()

	wg.Wait()

	if err := d.listener.Close(); err != nil {
		d.logger.ErrorContext(ctx, "closing control listener", slogutil.KeyError, err)
	}

	if err := d.conn.Close(); err != nil {
		d.logger.ErrorContext(ctx, "closing icmpv6 socket", slogutil.KeyError, err)
	}
}

// WatchConfig applies hot-reloadable fields (MTU, min/max RA interval,
// announce-on-exit) from each config update received on updates, until ctx
// is cancelled or updates is closed.
func (d *Daemon) WatchConfig(ctx context.Context, updates <-chan *rsadvcfg.Config) {
	for {
		select {
		case <-ctx.Done():
			return
		case conf, ok := <-updates:
			if !ok {
				return
			}

			d.state.SetMTU(conf.MTU)
			d.sched.SetAnnounceOnExit(conf.AnnounceOnExit)
			d.sched.SetIntervals(conf.MaxInterval(), conf.MinInterval())

			d.logger.InfoContext(ctx, "applied config reload")
		}
	}
}

// databaseAdapter adapts *raddb.Database to the [radv.Database] interface,
// converting between radv's wall-clock-anchored [radv.Prefix] and raddb's
// duration-based on-disk record shape.
type databaseAdapter struct {
	db *raddb.Database
}

// Store implements the [radv.Database] interface for *databaseAdapter.
func (a *databaseAdapter) Store(ctx context.Context, prefixes []radv.Prefix, dns []netip.Addr) error {
	now := time.Now()

	entries := make([]raddb.PrefixEntry, 0, len(prefixes))
	for _, p := range prefixes {
		entries = append(entries, raddb.PrefixEntry{
			Addr:      p.Addr,
			Length:    p.Length,
			Preferred: p.Preferred.Remaining(now),
			Valid:     p.Valid.Remaining(now),
		})
	}

	return a.db.Store(ctx, entries, dns)
}

// MetricsBundle bundles a Prometheus registry, its registered counters, and
// the HTTP server exposing them.
type MetricsBundle struct {
	Registry *prometheus.Registry
	Counters *radvmetrics.Metrics
	Server   *radvmetrics.Server
}

// Metrics returns the bundle's counters, or nil if b is nil, so callers can
// pass an optionally-nil *MetricsBundle straight into [Config.Metrics].
func (b *MetricsBundle) Metrics() *radvmetrics.Metrics {
	if b == nil {
		return nil
	}

	return b.Counters
}

// NewMetricsBundle creates a fresh Prometheus registry, registers the
// daemon's counters on it, and prepares an HTTP server to expose them at
// addr.
func NewMetricsBundle(logger *slog.Logger, addr string) *MetricsBundle {
	reg := prometheus.NewRegistry()
	counters := radvmetrics.New(reg)

	return &MetricsBundle{
		Registry: reg,
		Counters: counters,
		Server:   radvmetrics.NewServer(logger, addr, reg),
	}
}
