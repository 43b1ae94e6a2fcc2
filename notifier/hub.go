package notifier

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-offline-cache/types"
	"github.com/saiset-co/sai-offline-cache/utils"
)

type HubState int32

const (
	HubStateStopped HubState = iota
	HubStateStarting
	HubStateRunning
	HubStateStopping
)

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 16
)

// Hub pushes lifecycle events (install complete, activation takeover)
// to connected UI clients over websocket so stale instances can
// reload. Delivery is best-effort; a slow client is dropped, never
// waited on.
type Hub struct {
	ctx      context.Context
	cancel   context.CancelFunc
	logger   types.Logger
	config   *types.NotifierConfig
	server   *http.Server
	upgrader websocket.Upgrader
	clients  map[*client]struct{}
	mu       sync.RWMutex
	state    atomic.Value
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func NewHub(ctx context.Context, logger types.Logger, config *types.NotifierConfig) *Hub {
	hubCtx, cancel := context.WithCancel(ctx)

	hub := &Hub{
		ctx:    hubCtx,
		cancel: cancel,
		logger: logger,
		config: config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}

	hub.state.Store(HubStateStopped)
	return hub
}

func (h *Hub) Start() error {
	if !h.state.CompareAndSwap(HubStateStopped, HubStateStarting) {
		return types.ErrServerAlreadyRunning
	}

	mux := http.NewServeMux()
	mux.HandleFunc(h.config.Path, h.handleConnect)

	addr := fmt.Sprintf("%s:%d", h.config.Host, h.config.Port)
	h.server = &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("Notifier listener failed", zap.Error(err))
		}
	}()

	h.state.Store(HubStateRunning)
	h.logger.Info("Notifier hub started",
		zap.String("addr", addr),
		zap.String("path", h.config.Path))
	return nil
}

func (h *Hub) Stop() error {
	if !h.state.CompareAndSwap(HubStateRunning, HubStateStopping) {
		return types.ErrNotifierNotRunning
	}

	defer func() {
		h.state.Store(HubStateStopped)
		h.cancel()
	}()

	h.mu.Lock()
	for c := range h.clients {
		close(c.send)
		c.conn.Close()
	}
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return h.server.Shutdown(shutdownCtx)
}

func (h *Hub) IsRunning() bool {
	return h.state.Load().(HubState) == HubStateRunning
}

// Broadcast fans the event out to every connected client. It never
// blocks the caller; the lifecycle transition has already happened.
func (h *Hub) Broadcast(event types.LifecycleEvent) {
	if !h.IsRunning() {
		return
	}

	payload, err := utils.Marshal(event)
	if err != nil {
		h.logger.Error("Failed to marshal lifecycle event", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			h.logger.Debug("Dropping event for slow notifier client")
		}
	}

	h.logger.Debug("Lifecycle event broadcast",
		zap.String("type", event.Type),
		zap.String("generation", event.Generation),
		zap.Int("clients", len(h.clients)))
}

func (h *Hub) handleConnect(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("Websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) writePump(c *client) {
	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				return
			}

			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.drop(c)
				return
			}
		case <-h.ctx.Done():
			return
		}
	}
}

// readPump exists only to detect client disconnects; inbound messages
// are discarded.
func (h *Hub) readPump(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.drop(c)
			return
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.clients[c]; exists {
		delete(h.clients, c)
		close(c.send)
		c.conn.Close()
	}
}
