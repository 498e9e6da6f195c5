package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/jdkroon/adslot-backend/internal/repository"
	"github.com/jdkroon/adslot-backend/internal/utils"
)

// AuthHandler implements operator login.  Advertisers never authenticate
// against this service: the public endpoints are anonymous and the claim
// flow is authenticated by the claim token itself.
type AuthHandler struct {
	Admins       *repository.AdminRepo
	JWTSecret    string
	AccessTTLMin int
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(admins *repository.AdminRepo, jwtSecret string, accessTTLMin int) *AuthHandler {
	return &AuthHandler{Admins: admins, JWTSecret: jwtSecret, AccessTTLMin: accessTTLMin}
}

// Login handles POST /v1/auth/login.  It verifies the operator's email and
// password and returns a short-lived admin access token.  Wrong email and
// wrong password produce the same 401 so the endpoint does not leak which
// accounts exist.
func (h *AuthHandler) Login(c echo.Context) error {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.Email == "" || body.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email and password are required"})
	}
	admin, err := h.Admins.GetByEmail(c.Request().Context(), body.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if !utils.VerifyPassword(admin.PasswordHash, body.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	token, err := utils.NewAccessToken(h.JWTSecret, admin.ID, h.AccessTTLMin)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to issue token"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"access_token": token.Token,
		"expires_at":   token.Exp.Format(time.RFC3339),
	})
}
