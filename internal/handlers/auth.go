package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	iauth "github.com/fusen-app/fusen/internal/auth"
	"github.com/fusen-app/fusen/internal/services"
	"github.com/fusen-app/fusen/pkg/metrics"
	"github.com/fusen-app/fusen/pkg/response"
)

// AuthHandler exposes registration, login and identity endpoints.
type AuthHandler struct {
	users *services.UserService
	jwt   *iauth.JWTService
}

// NewAuthHandler constructs an AuthHandler instance.
func NewAuthHandler(users *services.UserService, jwt *iauth.JWTService) (*AuthHandler, error) {
	if users == nil {
		return nil, errors.New("auth handler: user service is required")
	}
	if jwt == nil {
		return nil, errors.New("auth handler: jwt service is required")
	}
	return &AuthHandler{users: users, jwt: jwt}, nil
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Name     string `json:"name" validate:"required,min=1,max=120"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Register creates an account and returns the user with a fresh token.
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.users.Register(requestContext(c), req.Email, req.Password, req.Name)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		response.Error(c, err)
		return
	}

	token, err := h.jwt.GenerateAccessToken(iauth.AccessTokenInput{UserID: user.ID, Email: user.Email})
	if err != nil {
		response.Error(c, err)
		return
	}

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	response.Success(c, http.StatusCreated, gin.H{"user": user, "token": token})
}

// Login verifies credentials and returns the user with a fresh token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.users.Authenticate(requestContext(c), req.Email, req.Password)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		response.Error(c, err)
		return
	}

	token, err := h.jwt.GenerateAccessToken(iauth.AccessTokenInput{UserID: user.ID, Email: user.Email})
	if err != nil {
		response.Error(c, err)
		return
	}

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	response.Success(c, http.StatusOK, gin.H{"user": user, "token": token})
}

// Me returns the authenticated user's profile.
func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.users.GetByID(requestContext(c), currentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"user": user})
}
