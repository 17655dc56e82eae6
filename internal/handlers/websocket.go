package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/mossy-p/meeting-signaling/config"
	"github.com/mossy-p/meeting-signaling/internal/models"
	membership "github.com/mossy-p/meeting-signaling/internal/redis"
	"github.com/mossy-p/meeting-signaling/internal/relay"
)

var (
	ErrBackpressure = errors.New("send buffer full")
	ErrClosed       = errors.New("connection closed")
)

// Client is one websocket connection. It is the connection handle the relay
// registers for a participant.
type Client struct {
	id      string
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	limiter *rate.Limiter
}

func (c *Client) ID() string { return c.id }

// Emit queues a named event without blocking.
func (c *Client) Emit(event string, payload any) error {
	frame, err := models.NewFrame(event, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrBackpressure
	}
}

func (c *Client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// SignalingHandler accepts websocket connections and feeds their events to
// the relay.
type SignalingHandler struct {
	lifecycle *relay.Lifecycle
	router    *relay.Router
	cfg       config.WSConfig
	upgrader  websocket.Upgrader

	mu      sync.Mutex
	clients map[*Client]struct{}
	wg      sync.WaitGroup
}

func NewSignalingHandler(lifecycle *relay.Lifecycle, router *relay.Router, cfg config.WSConfig) *SignalingHandler {
	return &SignalingHandler{
		lifecycle: lifecycle,
		router:    router,
		cfg:       cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Origin checking is handled by middleware
				return true
			},
		},
		clients: make(map[*Client]struct{}),
	}
}

// HandleSignaling upgrades the request and runs the session until the
// socket closes. Connect parameters come from the query string.
func (h *SignalingHandler) HandleSignaling(c *gin.Context) {
	params := relay.ConnectParams{
		UserID:   c.Query("userId"),
		RoomID:   c.Query("roomId"),
		Nickname: c.Query("nickname"),
		Pub:      models.ParsePublicFlag(c.Query("pub")),
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Str("module", "handlers.ws").Msg("failed to upgrade connection")
		return
	}

	client := &Client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, h.cfg.SendBuffer),
		done: make(chan struct{}),
	}
	if h.cfg.RateLimit > 0 {
		client.limiter = rate.NewLimiter(rate.Limit(h.cfg.RateLimit), max(h.cfg.RateBurst, 1))
	}

	if !h.track(client) {
		client.close()
		return
	}

	go h.writePump(client)

	// The request context ends with this handler, the session outlives it.
	ctx := context.Background()
	sess := h.lifecycle.Connect(ctx, params, client)
	go h.readPump(ctx, client, sess)
}

func (h *SignalingHandler) track(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients == nil {
		return false
	}
	h.clients[c] = struct{}{}
	h.wg.Add(1)
	return true
}

func (h *SignalingHandler) untrack(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	h.wg.Done()
}

// Shutdown closes every open connection, which runs their disconnect
// handling, and waits for that to finish or ctx to expire.
func (h *SignalingHandler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	clients := h.clients
	h.clients = nil
	h.mu.Unlock()

	for c := range clients {
		c.close()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *SignalingHandler) readPump(ctx context.Context, c *Client, sess *relay.Session) {
	logger := log.With().Str("module", "handlers.ws").Str("conn", c.id).Str("user", sess.UserID()).Logger()
	defer func() {
		h.lifecycle.Disconnect(ctx, sess)
		c.close()
		h.untrack(c)
	}()

	if h.cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(h.cfg.MaxMessageSize)
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Warn().Err(err).Msg("websocket error")
			}
			return
		}

		if c.limiter != nil && !c.limiter.Allow() {
			logger.Warn().Msg("rate limit exceeded, dropping event")
			continue
		}

		var frame models.Frame
		if err := json.Unmarshal(message, &frame); err != nil {
			logger.Warn().Err(err).Msg("failed to parse frame")
			continue
		}

		ev, err := models.Decode(frame)
		if err != nil {
			logger.Warn().Err(err).Str("event", frame.Event).Msg("dropping event")
			continue
		}

		if err := h.router.Route(ctx, sess, ev); err != nil {
			logRouteError(logger, frame.Event, err)
		}
	}
}

func (h *SignalingHandler) writePump(c *Client) {
	ticker := time.NewTicker(h.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug().Err(err).Str("module", "handlers.ws").Str("conn", c.id).Msg("failed to write message")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

func logRouteError(logger zerolog.Logger, event string, err error) {
	var ev *zerolog.Event
	switch {
	case errors.Is(err, relay.ErrRecipientOffline):
		ev = logger.Info()
	case errors.Is(err, membership.ErrStoreUnavailable):
		ev = logger.Error()
	default:
		ev = logger.Warn()
	}
	ev.Err(err).Str("event", event).Msg("event not delivered")
}
