package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lumenpress/lumenpress/internal/config"
	"github.com/lumenpress/lumenpress/internal/security"
	log "github.com/sirupsen/logrus"
)

// AuthHandler handles admin authentication endpoints.
type AuthHandler struct {
	cfg config.AuthConfig
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(cfg config.AuthConfig) *AuthHandler {
	return &AuthHandler{cfg: cfg}
}

// loginRequest defines the request body for admin login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	TOTP     string `json:"totp"`
}

// Login checks the configured credentials and issues a JWT.
func (h *AuthHandler) Login(c *gin.Context) {
	if !h.cfg.Enabled {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "authentication is disabled"})
		return
	}

	var body loginRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid json"})
		return
	}
	username := strings.TrimSpace(body.Username)
	password := strings.TrimSpace(body.Password)
	if username == "" || password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "username and password are required"})
		return
	}

	if username != h.cfg.Username || !security.CheckPassword(h.cfg.PasswordHash, password) {
		log.WithField("username", username).Warn("admin login rejected")
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "invalid credentials"})
		return
	}

	if strings.TrimSpace(h.cfg.TOTPSecret) != "" {
		if strings.TrimSpace(body.TOTP) == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "mfa required"})
			return
		}
		if !security.ValidateTOTP(h.cfg.TOTPSecret, body.TOTP) {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "invalid code"})
			return
		}
	}

	ttl := h.cfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	token, errToken := security.GenerateAdminToken(h.cfg.JWTSecret, username, ttl)
	if errToken != nil {
		log.WithError(errToken).Error("sign admin token")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "generate token failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"token":      token,
		"expires_at": time.Now().UTC().Add(ttl).Format(time.RFC3339),
		"username":   username,
	})
}
