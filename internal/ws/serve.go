package ws

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/libohan-ha/BaiHe-sub001/internal/models"
	"github.com/libohan-ha/BaiHe-sub001/pkg/config"
	"github.com/libohan-ha/BaiHe-sub001/pkg/jwt"
	"github.com/libohan-ha/BaiHe-sub001/pkg/logger"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development
	},
	HandshakeTimeout: 10 * time.Second,
	ReadBufferSize:   1024,
	WriteBufferSize:  1024,
}

// UserDirectory resolves token subjects to stored profiles
type UserDirectory interface {
	GetUserByID(id uint) (*models.User, error)
}

// ServeWs authenticates the handshake and, on success, upgrades the
// connection and joins the session to the room. Credential failures
// terminate the attempt before any room state is touched.
func ServeWs(hub *Hub, orchestrator *Orchestrator, jwtService *jwt.Service, users UserDirectory, c *gin.Context) {
	log := logger.FromContext(c)

	token := bearerToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{"code": "UNAUTHENTICATED", "message": "credential required"}})
		return
	}

	claims, err := jwtService.ValidateToken(token)
	if err != nil {
		code := "UNAUTHENTICATED"
		if errors.Is(err, jwt.ErrExpiredToken) {
			code = "TOKEN_EXPIRED"
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{"code": code, "message": "invalid credential"}})
		return
	}

	user, err := users.GetUserByID(claims.UserID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{"code": "UNKNOWN_SUBJECT", "message": "unknown subject"}})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.LogError(err, "websocket upgrade failed")
		return
	}
	conn.EnableWriteCompression(true)

	identity := Identity{
		ID:          user.ID,
		DisplayName: user.Name,
		AvatarURL:   user.AvatarURL,
	}

	client := NewClient(identity, conn, hub, orchestrator, config.Get().Chat.SendBufferSize, logger.GetGlobal())
	hub.register <- client

	log.Info("websocket connection established",
		"participant_id", identity.ID,
		"display_name", identity.DisplayName,
	)

	go client.WritePump()
	go client.ReadPump()
}

// bearerToken pulls the credential from the handshake: the token query
// parameter or an Authorization header.
func bearerToken(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}
