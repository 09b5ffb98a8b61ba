package radv

import (
	"context"
	"fmt"
	"time"

	"github.com/AdguardTeam/rsadv/internal/ctrlproto"
)

// Handler implements [github.com/AdguardTeam/rsadv/internal/ctrlsock.Handler],
// applying decoded control requests to shared [State].
type Handler struct {
	state *State
}

// NewHandler returns a Handler that mutates state.
func NewHandler(state *State) *Handler {
	return &Handler{state: state}
}

// Handle implements ctrlsock.Handler.
func (h *Handler) Handle(_ context.Context, req ctrlproto.Request) (ctrlproto.Response, error) {
	switch r := req.(type) {
	case ctrlproto.AddPrefix:
		h.state.SetPrefix(Prefix{
			Addr:      r.Prefix.Addr,
			Preferred: toLifetime(r.Prefix.Preferred),
			Valid:     toLifetime(r.Prefix.Valid),
			Length:    r.Prefix.PrefixLength,
		})
	case ctrlproto.RemovePrefix:
		h.state.DeletePrefix(r.Prefix.Addr)
	case ctrlproto.AddDNSServer:
		h.state.SetDNSServer(r.Server.Addr, toLifetime(r.Server.Lifetime))
	case ctrlproto.RemoveDNSServer:
		h.state.DeleteDNSServer(r.Server.Addr)
	default:
		return nil, fmt.Errorf("unsupported request type %T", req)
	}

	return ctrlproto.Ok{}, nil
}

// toLifetime converts a wire-level lifetime into the domain [Lifetime] it
// denotes.
func toLifetime(l ctrlproto.Lifetime) Lifetime {
	switch l.Kind {
	case ctrlproto.LifetimeUntil:
		return NewUntilLifetime(time.Unix(int64(l.Seconds), 0).UTC())
	default:
		return NewDurationLifetime(time.Duration(l.Seconds) * time.Second)
	}
}
