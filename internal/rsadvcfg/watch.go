package rsadvcfg

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/fsnotify/fsnotify"
)

// Watcher reloads mutable configuration fields from the file it was loaded
// from whenever that file changes, per spec.md's ambient configuration
// stack: only min_rtr_adv_interval, max_rtr_adv_interval, mtu, and
// announce_on_exit are hot-reloadable. Renaming the interface or control
// socket path requires a restart.
type Watcher struct {
	logger  *slog.Logger
	path    string
	watcher *fsnotify.Watcher
	updates chan *Config
}

// NewWatcher returns a Watcher tracking path for changes. logger must not be
// nil.
func NewWatcher(logger *slog.Logger, path string) (w *Watcher, err error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// fsnotify recommends watching the containing directory rather than the
	// file itself, since editors commonly replace a file rather than
	// writing into it in place.
	if err = fw.Add(filepath.Dir(path)); err != nil {
		_ = fw.Close()

		return nil, err
	}

	return &Watcher{
		logger:  logger,
		path:    path,
		watcher: fw,
		updates: make(chan *Config, 1),
	}, nil
}

// Updates returns the channel on which reloaded configs are published. A
// failed reload is logged and does not publish anything.
func (w *Watcher) Updates() <-chan *Config {
	return w.updates
}

// Run processes filesystem events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	defer slogutil.RecoverAndLog(ctx, w.logger)

	for {
		select {
		case <-ctx.Done():
			_ = w.watcher.Close()

			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}

			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			w.reload(ctx)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}

			w.logger.ErrorContext(ctx, "watching config", slogutil.KeyError, err)
		}
	}
}

// reload re-parses the config file and publishes it, logging and skipping
// the publish on failure.
func (w *Watcher) reload(ctx context.Context) {
	conf, err := Load(w.path)
	if err != nil {
		w.logger.ErrorContext(ctx, "reloading config", "path", w.path, slogutil.KeyError, err)

		return
	}

	select {
	case w.updates <- conf:
	default:
		w.logger.DebugContext(ctx, "dropping config reload, channel full")
	}
}
