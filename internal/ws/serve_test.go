package ws

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libohan-ha/BaiHe-sub001/internal/models"
	"github.com/libohan-ha/BaiHe-sub001/pkg/jwt"
)

type fakeUsers struct {
	users map[uint]*models.User
}

func (f *fakeUsers) GetUserByID(id uint) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, errors.New("user not found")
	}
	return u, nil
}

func handshakeRouter(jwtService *jwt.Service, users UserDirectory) *gin.Engine {
	gin.SetMode(gin.TestMode)
	log := testLogger()
	hub := NewHub(log)
	orch := NewOrchestrator(hub, &fakeGateway{}, &fakePersonas{}, &fakeProvider{}, Options{}, log)

	r := gin.New()
	r.GET("/ws/chat", func(c *gin.Context) {
		ServeWs(hub, orch, jwtService, users, c)
	})
	return r
}

func TestServeWsRejectsMissingToken(t *testing.T) {
	r := handshakeRouter(jwt.NewService("secret", time.Hour), &fakeUsers{})

	req, _ := http.NewRequest(http.MethodGet, "/ws/chat", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "UNAUTHENTICATED")
}

func TestServeWsRejectsExpiredToken(t *testing.T) {
	expiredIssuer := jwt.NewService("secret", -time.Hour)
	token, err := expiredIssuer.GenerateToken(1, "alice@example.com")
	require.NoError(t, err)

	r := handshakeRouter(jwt.NewService("secret", time.Hour), &fakeUsers{})

	req, _ := http.NewRequest(http.MethodGet, "/ws/chat?token="+token, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "TOKEN_EXPIRED")
}

func TestServeWsRejectsUnknownSubject(t *testing.T) {
	jwtService := jwt.NewService("secret", time.Hour)
	token, err := jwtService.GenerateToken(999, "ghost@example.com")
	require.NoError(t, err)

	r := handshakeRouter(jwtService, &fakeUsers{})

	req, _ := http.NewRequest(http.MethodGet, "/ws/chat", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "UNKNOWN_SUBJECT")
}
