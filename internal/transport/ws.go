package transport

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"pairchat/internal/constants"
	"pairchat/internal/httputil"
	"pairchat/internal/metrics"
	"pairchat/internal/models"
	"pairchat/internal/service"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Clients are trusted pair members authenticated by the login event;
	// the handshake itself accepts any origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsConn adapts one WebSocket connection to the service.Conn surface. The
// write mutex serializes frames from the dispatch goroutine; control frames
// bypass it, which gorilla permits.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) Send(event models.EventKind, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	writeTimeout := time.Duration(constants.DefaultWSWriteTimeoutSec) * time.Second
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(models.Frame{Event: event, Data: payload})
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

// Handler upgrades HTTP requests to WebSocket sessions and pumps their
// frames into the relay's dispatch queue.
type Handler struct {
	relay  *service.Relay
	logger *logrus.Logger
}

func NewHandler(relay *service.Relay, logger *logrus.Logger) *Handler {
	return &Handler{relay: relay, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithField("remote_ip", httputil.GetClientIP(r)).
			WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	conn := &wsConn{conn: ws}
	client := h.relay.Register(conn)

	h.logger.WithFields(logrus.Fields{
		"conn_id":   client.ID,
		"remote_ip": httputil.GetClientIP(r),
	}).Info("WebSocket connection established")
	metrics.IncrementCounter("ws_connections_total", nil, "accepted WebSocket connections")

	go h.keepAlive(ws, client.ID)
	h.readLoop(ws, conn, client)
}

// readLoop decodes inbound frames and submits them for dispatch. It owns
// the connection's lifetime: any read error tears the session down.
func (h *Handler) readLoop(ws *websocket.Conn, conn *wsConn, client *service.Client) {
	defer func() {
		h.relay.Disconnect(client)
		if err := conn.Close(); err != nil {
			h.logger.WithField("conn_id", client.ID).WithError(err).Debug("Connection close failed")
		}
		h.logger.WithField("conn_id", client.ID).Info("WebSocket connection closed")
	}()

	ws.SetReadLimit(constants.DefaultWSReadLimitBytes)
	pongTimeout := time.Duration(constants.DefaultWSPongTimeoutSec) * time.Second
	if err := ws.SetReadDeadline(time.Now().Add(pongTimeout)); err != nil {
		return
	}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.WithField("conn_id", client.ID).WithError(err).Warn("Unexpected WebSocket close")
			}
			return
		}

		var frame models.Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			h.logger.WithField("conn_id", client.ID).WithError(err).Debug("Discarding malformed frame")
			if sendErr := conn.Send(models.EventErrorMessage, "Invalid message data."); sendErr != nil {
				return
			}
			continue
		}
		if frame.Event == "" {
			if sendErr := conn.Send(models.EventErrorMessage, "Invalid message data."); sendErr != nil {
				return
			}
			continue
		}

		h.relay.Submit(service.Event{Client: client, Kind: frame.Event, Data: frame.Data})
	}
}

// keepAlive pings the peer on a fixed interval; a peer that stops answering
// trips the read deadline in readLoop.
func (h *Handler) keepAlive(ws *websocket.Conn, connID string) {
	interval := time.Duration(constants.DefaultWSPingIntervalSec) * time.Second
	writeTimeout := time.Duration(constants.DefaultWSWriteTimeoutSec) * time.Second

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
			h.logger.WithField("conn_id", connID).WithError(err).Debug("Keepalive ping failed")
			return
		}
	}
}
