package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/vigil-sec/vigil/internal/models"
)

func setupAuthTest(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}))

	user := models.User{Username: "alice", Enabled: true}
	require.NoError(t, user.SetPassword("correct-horse"))
	require.NoError(t, db.Create(&user).Error)

	router := gin.New()
	router.POST("/auth/login", NewAuthHandler(db, "test-secret").Login)
	return router, db
}

func login(router *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestLogin_Success(t *testing.T) {
	router, _ := setupAuthTest(t)

	w := login(router, `{"username":"alice","password":"correct-horse"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)

	token, err := jwt.Parse(resp.Token, func(*jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	})
	require.NoError(t, err)
	sub, err := token.Claims.GetSubject()
	require.NoError(t, err)
	assert.Equal(t, "alice", sub)

	assert.NotContains(t, w.Body.String(), "password_hash", "hash must never leave the server")
}

func TestLogin_BadCredentials(t *testing.T) {
	router, _ := setupAuthTest(t)

	w := login(router, `{"username":"alice","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = login(router, `{"username":"nobody","password":"whatever"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogin_DisabledUser(t *testing.T) {
	router, db := setupAuthTest(t)
	require.NoError(t, db.Model(&models.User{}).Where("username = ?", "alice").Update("enabled", false).Error)

	w := login(router, `{"username":"alice","password":"correct-horse"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogin_MalformedBody(t *testing.T) {
	router, _ := setupAuthTest(t)
	w := login(router, `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
