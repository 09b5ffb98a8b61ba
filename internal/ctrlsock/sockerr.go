package ctrlsock

import (
	"errors"
	"net"
	"syscall"
)

// isConnRefused reports whether opErr wraps ECONNREFUSED, the error the
// kernel returns when connecting to a socket path that exists but has no
// listener bound to it (e.g. left behind by a daemon that crashed).
func isConnRefused(opErr *net.OpError) bool {
	return errors.Is(opErr.Err, syscall.ECONNREFUSED)
}
