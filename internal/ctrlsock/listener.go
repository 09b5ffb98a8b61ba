package ctrlsock

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/rsadv/internal/ctrlproto"
	"github.com/google/uuid"
)

// socketPerm is the filesystem permission mode applied to the socket file,
// restricting control access to processes running as the same user or root.
const socketPerm = 0o600

// Handler applies a decoded control request to the daemon's shared state and
// returns the response to send back.  ctx is cancelled when the daemon
// begins shutting down; a handler invoked concurrently with shutdown may
// observe a cancelled ctx and should still return a best-effort response.
type Handler interface {
	Handle(ctx context.Context, req ctrlproto.Request) (ctrlproto.Response, error)
}

// Config configures a [Listener].
type Config struct {
	// Logger logs accepted connections and protocol errors.  It must not be
	// nil.
	Logger *slog.Logger

	// Handler applies incoming requests to shared state.  It must not be
	// nil.
	Handler Handler

	// SocketPath is the filesystem path of the Unix domain socket.  It must
	// not be empty.
	SocketPath string
}

// Listener accepts connections on the control socket and serves the control
// protocol on each.
type Listener struct {
	logger  *slog.Logger
	handler Handler
	ln      *net.UnixListener
	path    string
	wg      sync.WaitGroup
}

// Listen binds the control socket described by conf.  If the socket path
// already exists, Listen first probes it: a live listener there causes
// Listen to fail with [ErrSocketInUse]; a stale socket file (left behind by
// a crashed process) is unlinked and rebound.
func Listen(conf *Config) (l *Listener, err error) {
	if _, statErr := os.Stat(conf.SocketPath); statErr == nil {
		var stale bool
		stale, err = probeStaleSocket(conf.SocketPath)
		if err != nil {
			return nil, err
		}

		if stale {
			if rmErr := os.Remove(conf.SocketPath); rmErr != nil {
				return nil, fmt.Errorf("removing stale socket: %w", rmErr)
			}
		}
	} else if !errors.Is(statErr, os.ErrNotExist) {
		return nil, fmt.Errorf("statting socket path: %w", statErr)
	}

	addr, err := net.ResolveUnixAddr("unix", conf.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("resolving socket address: %w", err)
	}

	ln, err := net.ListenUnix("unix", addr)
	if err != nil {
		return nil, fmt.Errorf("binding control socket: %w", err)
	}

	if err = os.Chmod(conf.SocketPath, socketPerm); err != nil {
		_ = ln.Close()

		return nil, fmt.Errorf("setting socket permissions: %w", err)
	}

	return &Listener{
		logger:  conf.Logger,
		handler: conf.Handler,
		ln:      ln,
		path:    conf.SocketPath,
	}, nil
}

// Serve accepts connections until ctx is cancelled or Close is called,
// serving each on its own goroutine.  It blocks until every in-flight
// connection has finished.
func (l *Listener) Serve(ctx context.Context) {
	go func() {
		<-ctx.Done()

		_ = l.ln.Close()
	}()

	for {
		conn, err := l.ln.AcceptUnix()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}

			l.logger.ErrorContext(ctx, "accepting connection", slogutil.KeyError, err)

			continue
		}

		l.wg.Add(1)

		go func() {
			defer l.wg.Done()

			l.serveConn(ctx, conn)
		}()
	}

	l.wg.Wait()
}

// Close releases the listening socket and unlinks the socket file.
func (l *Listener) Close() (err error) {
	if err = l.ln.Close(); err != nil {
		return fmt.Errorf("closing control socket: %w", err)
	}

	if rmErr := os.Remove(l.path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		return fmt.Errorf("removing control socket: %w", rmErr)
	}

	return nil
}

// serveConn serves the control protocol on conn until the client closes it
// or a protocol error occurs, then closes conn.
func (l *Listener) serveConn(ctx context.Context, conn *net.UnixConn) {
	connID := uuid.New()
	logger := l.logger.With(slog.String("conn_id", connID.String()))

	defer func() {
		if err := conn.Close(); err != nil {
			logger.DebugContext(ctx, "closing connection", slogutil.KeyError, err)
		}
	}()

	logger.DebugContext(ctx, "accepted connection")

	for {
		req, err := ctrlproto.ReadRequest(conn)
		if err != nil {
			logger.DebugContext(ctx, "ending connection", slogutil.KeyError, err)

			return
		}

		resp, err := l.handler.Handle(ctx, req)
		if err != nil {
			logger.ErrorContext(ctx, "handling request", slogutil.KeyError, err)

			return
		}

		if err = ctrlproto.WriteResponse(conn, resp); err != nil {
			logger.DebugContext(ctx, "writing response", slogutil.KeyError, err)

			return
		}
	}
}
