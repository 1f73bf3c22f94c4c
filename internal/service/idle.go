package service

import (
	"time"

	"go.uber.org/zap"

	"orb-server/internal/protocol"
	"orb-server/internal/transport"
)

func (n *NetServer) idleLoop() error {
	interval := n.opts.IdleTimeout / 2
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-n.t.Dying():
			return nil
		case now := <-ticker.C:
			n.closeIdle(now)
		}
	}
}

// closeIdle sends CloseConnection to every connection with no pending
// request that has been quiet for longer than IdleTimeout.
func (n *NetServer) closeIdle(now time.Time) int {
	n.mu.Lock()
	idle := make([]*connState, 0)
	for c := range n.conns {
		if c.pending.Load() == 0 && c.idleSince(now) > n.opts.IdleTimeout {
			idle = append(idle, c)
		}
	}
	n.mu.Unlock()

	for _, c := range idle {
		n.logger.Info("idle connection closed",
			zap.String("trace_id", c.traceID),
			zap.String("remote", c.conn.RemoteAddr()),
		)
		_ = c.send(&transport.Frame{Type: protocol.MsgCloseConnection, TraceID: c.traceID})
		c.close()
	}
	return len(idle)
}
