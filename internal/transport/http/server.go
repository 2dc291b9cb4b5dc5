package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatrelay/internal/auth"
	"github.com/vovakirdan/chatrelay/internal/config"
	"github.com/vovakirdan/chatrelay/internal/core"
)

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewServer builds an HTTP server with the chat socket and the room API.
// The socket lives on a plain ServeMux so the upgrade hijacks the raw
// connection instead of gin's response writer.
func NewServer(relay *core.Relay, authService *auth.Service, rooms RoomStore, history HistoryStore, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	router.GET("/health", healthHandler)

	authMW := AuthMiddleware(authService, logger)

	roomHandlers := NewRoomHandlers(rooms, history, logger)
	api := router.Group("/api", authMW)
	{
		api.POST("/rooms", roomHandlers.CreateRoom)
		api.POST("/rooms/direct/:user_id", roomHandlers.DirectRoom)
		api.GET("/rooms/:room_id/messages", roomHandlers.ListMessages)
		api.DELETE("/rooms/:room_id/messages", RequireAdmin(), roomHandlers.ClearMessages)
	}

	mux := stdhttp.NewServeMux()
	mux.Handle("GET /ws/chat/{room_id}", NewWSHandler(relay, authService, cfg.WriteTimeout, cfg.MaxMessageBytes, logger))
	mux.Handle("/", router)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
