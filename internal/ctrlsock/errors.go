// Package ctrlsock implements the Unix domain socket listener for the
// control protocol in [github.com/AdguardTeam/rsadv/internal/ctrlproto]:
// stale-socket takeover on startup, one goroutine per accepted connection,
// and per-connection request/response framing.
package ctrlsock

import (
	"net"
	"time"

	"github.com/AdguardTeam/golibs/errors"
)

// ErrSocketInUse is returned by [Listen] when another process already
// listens on the configured socket path.
const ErrSocketInUse errors.Error = "ctrlsock: socket already in use"

// probeDialTimeout bounds the startup probe connection attempt so a
// half-dead peer cannot hang daemon startup.
const probeDialTimeout = 2 * time.Second

// probeStaleSocket reports whether the Unix socket at path is stale: the
// path exists but nothing accepts connections on it (ECONNREFUSED), in
// which case the caller may safely unlink and rebind it.  It returns a
// non-nil err wrapping [ErrSocketInUse] if another listener is live, and a
// plain non-nil err for any other failure.
func probeStaleSocket(path string) (stale bool, err error) {
	conn, dialErr := net.DialTimeout("unix", path, probeDialTimeout)
	if dialErr == nil {
		_ = conn.Close()

		return false, ErrSocketInUse
	}

	var opErr *net.OpError
	if errors.As(dialErr, &opErr) && isConnRefused(opErr) {
		return true, nil
	}

	return false, dialErr
}
