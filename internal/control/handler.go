package control

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/mathiu1/aadhavmadhav-sub000/internal/config"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The daemon binds to localhost; origin policy is enforced by
		// the CORS middleware on the REST surface.
		return true
	},
}

// WSHandler handles UI websocket upgrade requests
type WSHandler struct {
	hub    *Hub
	config *config.Config
	logger zerolog.Logger
}

// NewWSHandler creates a new websocket upgrade handler
func NewWSHandler(hub *Hub, cfg *config.Config, logger zerolog.Logger) *WSHandler {
	return &WSHandler{
		hub:    hub,
		config: cfg,
		logger: logger,
	}
}

// ServeHTTP upgrades the connection and attaches it to the hub
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to upgrade connection")
		return
	}

	client := NewClient(h.hub, conn, h.config, h.logger)
	h.hub.register <- client
	client.Start()
}
