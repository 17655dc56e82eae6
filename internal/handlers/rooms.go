package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	membership "github.com/mossy-p/meeting-signaling/internal/redis"
	"github.com/mossy-p/meeting-signaling/internal/relay"
)

// Pinger reports whether the membership store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RoomsHandler serves read-only room data over HTTP.
type RoomsHandler struct {
	router     *relay.Router
	iceServers []webrtc.ICEServer
}

func NewRoomsHandler(router *relay.Router, iceServers []webrtc.ICEServer) *RoomsHandler {
	return &RoomsHandler{router: router, iceServers: iceServers}
}

// GetRoomUsers returns the stored roster of a room, the same records a
// client receives for a roomUserList event.
func (h *RoomsHandler) GetRoomUsers(c *gin.Context) {
	roomID := c.Param("roomId")
	if roomID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "roomId is required"})
		return
	}

	roster, err := h.router.Roster(c.Request.Context(), roomID)
	if err != nil {
		log.Error().Err(err).Str("module", "handlers.rooms").Str("room", roomID).Msg("failed to read roster")
		status := http.StatusInternalServerError
		if errors.Is(err, membership.ErrStoreUnavailable) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": "Failed to read room members"})
		return
	}

	c.JSON(http.StatusOK, roster)
}

// GetICEServers returns the STUN/TURN servers clients should use.
func (h *RoomsHandler) GetICEServers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"iceServers": h.iceServers})
}

// Health reports "ok", or "degraded" with 503 when the store is unreachable.
func Health(store Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := store.Ping(c.Request.Context()); err != nil {
			log.Warn().Err(err).Str("module", "handlers.health").Msg("membership store unreachable")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
