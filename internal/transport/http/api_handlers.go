package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-dm/internal/auth"
	"github.com/vovakirdan/wirechat-dm/internal/store"
)

// APIHandlers provides HTTP handlers for account endpoints.
type APIHandlers struct {
	authService *auth.Service
	log         *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance.
func NewAPIHandlers(authService *auth.Service, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{
		authService: authService,
		log:         logger,
	}
}

// SignupRequest represents the signup request body.
type SignupRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Bio      string `json:"bio"`
}

// LoginRequest represents the login request body.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// UpdateProfileRequest represents the profile update body.
type UpdateProfileRequest struct {
	FullName   string `json:"fullName"`
	Bio        string `json:"bio"`
	ProfilePic string `json:"profilePic"`
}

// Response is the common envelope of every API reply.
type Response struct {
	Success  bool          `json:"success"`
	Message  string        `json:"message,omitempty"`
	Token    string        `json:"token,omitempty"`
	UserData *UserResponse `json:"userData,omitempty"`
}

// Fail builds an unsuccessful response.
func Fail(message string) Response {
	return Response{Success: false, Message: message}
}

// UserResponse is a user without credentials.
type UserResponse struct {
	ID         string    `json:"_id"`
	FullName   string    `json:"fullName"`
	Email      string    `json:"email"`
	ProfilePic string    `json:"profilePic"`
	Bio        string    `json:"bio"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func userToResponse(u *store.User) *UserResponse {
	return &UserResponse{
		ID:         u.ID,
		FullName:   u.FullName,
		Email:      u.Email,
		ProfilePic: u.ProfilePic,
		Bio:        u.Bio,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
}

// Signup handles account creation.
// POST /api/auth/signup
func (h *APIHandlers) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid signup request")
		c.JSON(http.StatusBadRequest, Fail("invalid request body"))
		return
	}

	token, user, err := h.authService.Signup(c.Request.Context(), auth.SignupInput{
		FullName: req.FullName,
		Email:    req.Email,
		Password: req.Password,
		Bio:      req.Bio,
	})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrMissingDetails),
			errors.Is(err, auth.ErrInvalidEmail),
			errors.Is(err, auth.ErrInvalidPassword),
			errors.Is(err, auth.ErrPasswordTooLong):
			c.JSON(http.StatusBadRequest, Fail(err.Error()))
		case errors.Is(err, auth.ErrUserExists):
			c.JSON(http.StatusConflict, Fail(err.Error()))
		default:
			h.log.Error().Err(err).Str("email", req.Email).Msg("failed to sign up user")
			c.JSON(http.StatusInternalServerError, Fail("internal server error"))
		}
		return
	}

	h.log.Info().Str("user_id", user.ID).Msg("user signed up")
	c.JSON(http.StatusCreated, Response{
		Success:  true,
		Message:  "Account created successfully",
		Token:    token,
		UserData: userToResponse(user),
	})
}

// Login handles user login.
// POST /api/auth/login
func (h *APIHandlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid login request")
		c.JSON(http.StatusBadRequest, Fail("invalid request body"))
		return
	}

	token, user, err := h.authService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, Fail("Invalid credentials"))
			return
		}
		h.log.Error().Err(err).Str("email", req.Email).Msg("failed to login user")
		c.JSON(http.StatusInternalServerError, Fail("internal server error"))
		return
	}

	h.log.Info().Str("user_id", user.ID).Msg("user logged in")
	c.JSON(http.StatusOK, Response{
		Success:  true,
		Message:  "Login successful",
		Token:    token,
		UserData: userToResponse(user),
	})
}

// CheckAuth returns the authenticated user.
// GET /api/auth/check
func (h *APIHandlers) CheckAuth(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, Fail("not authorized"))
		return
	}

	user, err := h.authService.CurrentUser(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusUnauthorized, Fail("not authorized"))
			return
		}
		h.log.Error().Err(err).Str("user_id", userID).Msg("failed to load user")
		c.JSON(http.StatusInternalServerError, Fail("internal server error"))
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, UserData: userToResponse(user)})
}

// UpdateProfile changes the caller's name, bio and picture.
// PUT /api/auth/update-profile
func (h *APIHandlers) UpdateProfile(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, Fail("not authorized"))
		return
	}

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Fail("invalid request body"))
		return
	}

	user, err := h.authService.UpdateProfile(c.Request.Context(), userID, store.ProfileUpdate{
		FullName:   req.FullName,
		Bio:        req.Bio,
		ProfilePic: req.ProfilePic,
	})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrMissingDetails):
			c.JSON(http.StatusBadRequest, Fail(err.Error()))
		case errors.Is(err, store.ErrNotFound):
			c.JSON(http.StatusNotFound, Fail("user not found"))
		default:
			h.log.Error().Err(err).Str("user_id", userID).Msg("failed to update profile")
			c.JSON(http.StatusInternalServerError, Fail("internal server error"))
		}
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, UserData: userToResponse(user)})
}
