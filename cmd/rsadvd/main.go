// Command rsadvd is the IPv6 Router Advertisement daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/rsadv/internal/rsadvcfg"
	"github.com/AdguardTeam/rsadv/internal/rsadvd"
	"github.com/AdguardTeam/rsadv/internal/version"
	"github.com/kardianos/service"
)

func main() {
	configPath := flag.String("config", "/etc/rsadv.yaml", "path to the configuration file")
	metricsAddr := flag.String("metrics", "", "address to serve Prometheus metrics on; empty disables it")
	serviceAction := flag.String("service", "", "service action: install, uninstall, start, stop, or run")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Verbose())

		return
	}

	logger := slogutil.New(&slogutil.Config{
		Format:       slogutil.FormatJSON,
		Level:        slog.LevelInfo,
		AddTimestamp: true,
	})

	svc := &program{
		logger:      logger,
		configPath:  *configPath,
		metricsAddr: *metricsAddr,
	}

	svcConfig := &service.Config{
		Name:        "rsadvd",
		DisplayName: "IPv6 Router Advertisement Daemon",
		Description: "Advertises IPv6 prefixes and recursive DNS servers via Neighbor Discovery.",
		Arguments:   []string{"-config", *configPath},
	}

	s, err := service.New(svc, svcConfig)
	if err != nil {
		logger.Error("creating service", slogutil.KeyError, err)
		os.Exit(1)
	}

	if *serviceAction != "" && *serviceAction != "run" {
		if err = service.Control(s, *serviceAction); err != nil {
			logger.Error("performing service action", "action", *serviceAction, slogutil.KeyError, err)
			os.Exit(1)
		}

		return
	}

	if err = s.Run(); err != nil {
		logger.Error("running service", slogutil.KeyError, err)
		os.Exit(1)
	}
}

// program implements [service.Interface], running the daemon either as a
// foreground process or under an OS service manager.
type program struct {
	logger      *slog.Logger
	configPath  string
	metricsAddr string

	cancel context.CancelFunc
	done   chan struct{}
}

// Start implements the [service.Interface] interface for *program.
func (p *program) Start(_ service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})

	go p.run(ctx)

	return nil
}

// Stop implements the [service.Interface] interface for *program. It
// triggers the terminating-RA shutdown sequence and waits for it to finish.
func (p *program) Stop(_ service.Service) error {
	p.cancel()
	<-p.done

	return nil
}

// run loads configuration, assembles the daemon, and runs it until ctx is
// cancelled by Stop or by an OS signal.
func (p *program) run(parent context.Context) {
	defer close(p.done)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	conf, err := rsadvcfg.Load(p.configPath)
	if err != nil {
		p.logger.ErrorContext(ctx, "loading config", slogutil.KeyError, err)

		return
	}

	var metrics *rsadvd.MetricsBundle
	if p.metricsAddr != "" {
		metrics = rsadvd.NewMetricsBundle(p.logger, p.metricsAddr)

		go metrics.Server.Run(ctx)
	}

	daemon, err := rsadvd.New(ctx, &rsadvd.Config{
		Logger:  p.logger,
		RSAdv:   conf,
		Metrics: metrics.Metrics(),
	})
	if err != nil {
		p.logger.ErrorContext(ctx, "initializing daemon", slogutil.KeyError, err)

		return
	}

	watcher, err := rsadvcfg.NewWatcher(p.logger, p.configPath)
	if err != nil {
		p.logger.WarnContext(ctx, "watching config for changes", slogutil.KeyError, err)
	} else {
		go watcher.Run(ctx)
		go daemon.WatchConfig(ctx, watcher.Updates())
	}

	daemon.Run(ctx)
}
