package rsadvd

import (
	"context"
	"net/netip"

	"github.com/AdguardTeam/rsadv/internal/ctrlproto"
	"github.com/AdguardTeam/rsadv/internal/ndp"
	"github.com/AdguardTeam/rsadv/internal/radv"
	"github.com/AdguardTeam/rsadv/internal/radvmetrics"
)

// countingConn decorates a [radv.Conn], incrementing metrics on every sent
// Router Advertisement.
type countingConn struct {
	radv.Conn
	metrics *radvmetrics.Metrics
}

// SendMulticast implements the [radv.Conn] interface for *countingConn.
func (c *countingConn) SendMulticast(ctx context.Context, pkt ndp.Packet) error {
	err := c.Conn.SendMulticast(ctx, pkt)
	if err == nil {
		c.metrics.MulticastRAsTotal.Inc()
	}

	return err
}

// SendUnicast implements the [radv.Conn] interface for *countingConn.
func (c *countingConn) SendUnicast(ctx context.Context, pkt ndp.Packet, dst netip.Addr) error {
	err := c.Conn.SendUnicast(ctx, pkt, dst)
	if err == nil {
		c.metrics.UnicastRAsTotal.Inc()
	}

	return err
}

// countingHandler decorates a [ctrlsock.Handler], incrementing a per-kind
// control-request counter.
type countingHandler struct {
	handler *radv.Handler
	metrics *radvmetrics.Metrics
}

// Handle implements the ctrlsock.Handler interface for *countingHandler.
func (h *countingHandler) Handle(
	ctx context.Context,
	req ctrlproto.Request,
) (ctrlproto.Response, error) {
	resp, err := h.handler.Handle(ctx, req)
	if err == nil {
		h.metrics.ControlRequestsTotal.WithLabelValues(requestKind(req)).Inc()
	}

	return resp, err
}

// requestKind returns the label value identifying req's kind.
func requestKind(req ctrlproto.Request) string {
	switch req.(type) {
	case ctrlproto.AddPrefix:
		return "add_prefix"
	case ctrlproto.RemovePrefix:
		return "remove_prefix"
	case ctrlproto.AddDNSServer:
		return "add_dns_server"
	case ctrlproto.RemoveDNSServer:
		return "remove_dns_server"
	default:
		return "unknown"
	}
}
