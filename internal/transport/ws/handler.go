package ws

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"

	"github.com/andy6609/roomchat/internal/chat"
)

type Options struct {
	// AllowedOrigins lists Origin header values accepted on upgrade. When
	// empty, gorilla's same-host check applies.
	AllowedOrigins []string
	MaxLineLength  int
	WriteTimeout   time.Duration
}

// Handler upgrades HTTP requests and hands the connections to a chat.Server.
type Handler struct {
	server   *chat.Server
	opts     Options
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewHandler(srv *chat.Server, opts Options, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		server: srv,
		opts:   opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger,
	}
	if len(opts.AllowedOrigins) > 0 {
		h.upgrader.CheckOrigin = h.checkOrigin
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || lo.Contains(h.opts.AllowedOrigins, origin)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		h.logger.Warn("websocket upgrade failed", "addr", r.RemoteAddr, "error", err)
		return
	}

	h.logger.Info("client connected", "addr", wsConn.RemoteAddr().String(), "transport", "websocket")
	conn := NewConn(wsConn, h.opts.MaxLineLength, h.opts.WriteTimeout)
	if err := h.server.ServeConn(conn); err != nil {
		h.logger.Warn("connection refused", "addr", conn.RemoteAddr(), "error", err)
	}
}
