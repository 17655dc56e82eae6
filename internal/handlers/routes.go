package handlers

import (
	"github.com/gin-gonic/gin"
)

// SetupRouter mounts every HTTP and websocket endpoint.
func SetupRouter(allowedOrigins []string, store Pinger, rooms *RoomsHandler, signaling *SignalingHandler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger())

	// Global CORS middleware (runs before routing)
	router.Use(OriginFilter(allowedOrigins))

	router.GET("/health", Health(store))

	apiGroup := router.Group("/api")
	{
		apiGroup.GET("/rooms/:roomId/users", rooms.GetRoomUsers)
		apiGroup.GET("/ice-servers", rooms.GetICEServers)
	}

	wsGroup := router.Group("/ws")
	{
		wsGroup.GET("/signal", signaling.HandleSignaling)
	}

	return router
}
