package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"mom-admin-api/internal/docstore"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	wsWriteWait  = 5 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
)

// wsClient serializes writes to a websocket connection; gorilla allows a
// single concurrent writer.
type wsClient struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsClient) Send(message []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.conn.WriteMessage(websocket.TextMessage, message) == nil
}

func (c *wsClient) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(wsWriteWait))
}

func (c *wsClient) Close() {
	_ = c.conn.Close()
}

// DocumentEvent is pushed to websocket clients for every change of the
// watched document, and once with its current value after connecting.
type DocumentEvent struct {
	Path string          `json:"path"`
	Data json.RawMessage `json:"data"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS is already handled at Gin level; allow upgrade from any origin here
		return true
	},
}

type SocketHandler struct {
	store docstore.Store
	log   zerolog.Logger
}

func NewSocketHandler(store docstore.Store, log zerolog.Logger) *SocketHandler {
	return &SocketHandler{store: store, log: log.With().Str("component", "ws").Logger()}
}

// WatchDocument upgrades the connection and streams changes of the
// document named by the path query parameter.
// GET /api/ws?path=config/login
func (h *SocketHandler) WatchDocument(c *gin.Context) {
	path, err := docstore.CleanPath(c.Query("path"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Query parameter path is required"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	client := &wsClient{conn: conn}

	push := func(doc json.RawMessage) {
		msg, err := json.Marshal(DocumentEvent{Path: path, Data: doc})
		if err == nil {
			client.Send(msg)
		}
	}
	unsubscribe := h.store.Subscribe(path, push)

	if doc, err := h.store.Read(c.Request.Context(), path); err == nil {
		push(doc)
	} else if !errors.Is(err, docstore.ErrNotFound) {
		h.log.Warn().Err(err).Str("path", path).Msg("initial document read failed")
	}

	// Heartbeat: send periodic pings; close on error
	pingTicker := time.NewTicker(wsPingPeriod)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-pingTicker.C:
				if err := client.ping(); err != nil {
					// ping failed; reader loop will exit on next error
					return
				}
			}
		}
	}()
	defer func() {
		close(done)
		pingTicker.Stop()
		unsubscribe()
		client.Close()
	}()

	// Reader loop: drain messages and keep connection alive via pong handler
	conn.SetReadLimit(1024)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
