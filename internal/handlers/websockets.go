package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Send/receive timing configuration and message size limits.
const (
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
	maxMsgSize       = 1 << 12 // 4 KB
	defaultInterval  = 5 * time.Second
	maxInterval      = time.Minute
	maxIntervalMilli = 60_000
)

// wsEnvelope frames every message pushed to a dashboard.
type wsEnvelope struct {
	Type  string      `json:"type"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	// TODO: restrict to the dashboard origin once it is served from a fixed host.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// @Summary      Live client status
// @Description  Upgrades to a websocket and pushes {"type":"status"} envelopes every interval.
// @Tags         monitoring
// @Param        client_id    query  string  true   "Client"
// @Param        interval     query  string  false  "Push interval, e.g. 2s (max 1m)"
// @Param        interval_ms  query  int     false  "Push interval in milliseconds"
// @Success      101
// @Failure      400  {object}  map[string]string
// @Router       /ws [get]
func (h *Handler) wsConnect(c *gin.Context) {
	client := strings.TrimSpace(c.Query("client_id"))
	if client == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing 'client_id'"})
		return
	}
	interval := h.parseInterval(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.log != nil {
			h.log.Errorw("ws_upgrade_failed", "client_id", client, "err", err)
		}
		return
	}
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	go h.startReader(conn, done)

	ticker := time.NewTicker(interval)
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ping.Stop()
	}()

	ctx := c.Request.Context()
	if err := h.sendStatus(ctx, conn, client); err != nil {
		if h.log != nil {
			h.log.Infow("ws_write_failed_initial", "client_id", client, "err", err)
		}
		return
	}

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				if h.log != nil {
					h.log.Infow("ws_ping_failed", "client_id", client, "err", err)
				}
				return
			}
		case <-ticker.C:
			if err := h.sendStatus(ctx, conn, client); err != nil {
				if h.log != nil {
					h.log.Infow("ws_write_failed", "client_id", client, "err", err)
				}
				return
			}
		}
	}
}

// parseInterval reads ?interval=2s or ?interval_ms=2000 with bounds.
func (h *Handler) parseInterval(c *gin.Context) time.Duration {
	if s := c.Query("interval"); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 && d <= maxInterval {
			return d
		}
	}
	if ms := c.Query("interval_ms"); ms != "" {
		if v, err := strconv.Atoi(ms); err == nil && v > 0 && v <= maxIntervalMilli {
			return time.Duration(v) * time.Millisecond
		}
	}
	return defaultInterval
}

// startReader drains incoming messages to handle control frames and detect closure.
func (h *Handler) startReader(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if h.log != nil {
				h.log.Debugw("ws_read_closed", "err", err)
			}
			return
		}
	}
}

// sendStatus writes the client's current status. A failed lookup is sent as
// an error envelope before the connection is dropped.
func (h *Handler) sendStatus(ctx context.Context, conn *websocket.Conn, client string) error {
	st, err := h.services.ClientStatus(ctx, client)
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err != nil {
		if h.log != nil {
			h.log.Errorw("ws_client_status_failed", "client_id", client, "err", err)
		}
		_ = conn.WriteJSON(wsEnvelope{Type: "error", Error: "failed to load status"})
		return err
	}
	return conn.WriteJSON(wsEnvelope{Type: "status", Data: st})
}
