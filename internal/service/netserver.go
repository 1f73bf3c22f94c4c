package service

import (
	"errors"
	"net"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"orb-server/internal/transport"
)

// WSPath is where websocket clients upgrade.
const WSPath = "/giop"

// ListenAndServe accepts TCP connections on addr and returns the bound
// address.
func (n *NetServer) ListenAndServe(addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	if err := n.addListener(ln, func() error { return n.acceptLoop(ln) }); err != nil {
		return nil, err
	}
	n.logger.Info("orb listening", zap.String("addr", ln.Addr().String()))
	return ln.Addr(), nil
}

func (n *NetServer) acceptLoop(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-n.t.Dying():
				return nil
			default:
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			n.logger.Warn("accept failed",
				zap.String("addr", ln.Addr().String()),
				zap.String("reason", err.Error()),
			)
			return nil
		}
		n.ServeConn(transport.NewBufferedConnWithOptions(conn, n.opts.ConnOptions))
	}
}

// ListenWS serves websocket clients on addr at WSPath.
func (n *NetServer) ListenWS(addr string) (net.Addr, error) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  n.opts.ConnOptions.ReadBufferSize,
		WriteBufferSize: n.opts.ConnOptions.WriteBufferSize,
		CheckOrigin:     func(*http.Request) bool { return true },
	}
	mux := http.NewServeMux()
	mux.HandleFunc(WSPath, func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			n.logger.Warn("websocket upgrade failed",
				zap.String("remote", r.RemoteAddr),
				zap.String("reason", err.Error()),
			)
			return
		}
		n.ServeConn(transport.NewWSConn(c, n.opts.ConnOptions))
	})
	return n.serveHTTP(addr, mux, "websocket")
}

// ListenMetrics exposes g in the Prometheus text format at /metrics.
func (n *NetServer) ListenMetrics(addr string, g prometheus.Gatherer) (net.Addr, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return n.serveHTTP(addr, mux, "metrics")
}

func (n *NetServer) serveHTTP(addr string, h http.Handler, name string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	srv := &http.Server{Handler: h}
	err = n.addListener(ln, func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case <-n.t.Dying():
			default:
				n.logger.Warn("http listener stopped",
					zap.String("listener", name),
					zap.String("reason", err.Error()),
				)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	n.logger.Info("http listening", zap.String("listener", name), zap.String("addr", ln.Addr().String()))
	return ln.Addr(), nil
}
