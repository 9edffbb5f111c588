package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/yeremiapane/restaurant-qr/middlewares"
	"github.com/yeremiapane/restaurant-qr/models"
	"github.com/yeremiapane/restaurant-qr/realtime"
	"github.com/yeremiapane/restaurant-qr/services"
	"github.com/yeremiapane/restaurant-qr/utils"
)

type WebSocketController struct {
	Hub      *realtime.Hub
	Sessions *services.SessionService
	upgrader websocket.Upgrader
}

func NewWebSocketController(hub *realtime.Hub, sessions *services.SessionService) *WebSocketController {
	return &WebSocketController{
		Hub:      hub,
		Sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // origin sudah dibatasi lewat CORS
			},
		},
	}
}

// parseScope menerima "12" atau "QR_SESSION_12"
func parseScope(scope string) (uint, bool) {
	scope = strings.TrimPrefix(scope, "QR_SESSION_")
	id, err := strconv.ParseUint(scope, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// Connect -> endpoint WebSocket untuk customer (per session) dan staff (per role)
func (wc *WebSocketController) Connect(c *gin.Context) {
	role := c.GetString(middlewares.CtxRole)

	var rooms []string
	switch role {
	case models.RoleCustomer:
		sessionID, ok := parseScope(c.Query("scope"))
		if !ok {
			c.AbortWithStatus(http.StatusBadRequest)
			return
		}
		if _, err := wc.Sessions.GetSession(c.Request.Context(), sessionID); err != nil {
			c.AbortWithStatus(http.StatusNotFound)
			return
		}
		rooms = []string{realtime.SessionRoom(sessionID), realtime.RoleRoom(models.RoleCustomer)}
	case models.RoleAdmin, models.RoleStaff, models.RoleChef:
		rooms = []string{realtime.RoleRoom(role)}
	default:
		c.AbortWithStatus(http.StatusForbidden)
		return
	}

	ws, err := wc.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		utils.ErrorLogger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	wc.Hub.Register(ws, rooms...)
	utils.InfoLogger.Printf("WebSocket connected: role=%s rooms=%v", role, rooms)

	// Client tidak mengirim apa-apa, read loop hanya untuk deteksi disconnect
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}

	wc.Hub.Unregister(ws)
}
