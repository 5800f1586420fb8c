package server

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/net/netutil"

	"github.com/zfogg/ascii-chat-server/internal/health"
)

// Listen binds the server's listening socket, dual-stack (IPv6 with
// v4-mapped addresses) when available, falling back to IPv4-only if the
// dual-stack form fails to resolve or bind. The returned listener is
// wrapped with a connection-count limiter as defense-in-depth against
// exceeding MaxClients even if the admit loop's own bookkeeping lags.
func (s *Server) Listen() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.BindAddress, s.cfg.Port)

	lc := net.ListenConfig{Control: setReuseAddrAndDualStack}
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		log.Warn("dual-stack bind failed, retrying on tcp4", "addr", addr, "error", err.Error())
		addr4 := fmt.Sprintf("0.0.0.0:%d", s.cfg.Port)
		ln, err = lc.Listen(context.Background(), "tcp4", addr4)
		if err != nil {
			s.health.Update("listener", health.Unhealthy, err.Error())
			return fmt.Errorf("server: bind failed on both tcp and tcp4: %w", err)
		}
		s.health.Update("listener", health.Degraded, "bound tcp4-only after dual-stack bind failed")
	} else {
		s.health.Update("listener", health.Healthy, "")
	}

	s.listener = netutil.LimitListener(ln, s.cfg.MaxClients)
	log.Info("listening", "addr", ln.Addr().String(), "maxClients", s.cfg.MaxClients)
	return nil
}

// Close closes the listening socket, unblocking any goroutine parked in
// Accept. Safe to call from a signal handler.
func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

// Addr returns the listener's bound address, or nil if Listen hasn't
// been called yet.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}
