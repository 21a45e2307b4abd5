package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"syncway/internal/domain"
	"syncway/internal/service"
)

// UserHandler handles HTTP requests for users.
type UserHandler struct {
	userService *service.UserService
	dispatcher  EventDispatcher
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(userService *service.UserService, dispatcher EventDispatcher) *UserHandler {
	return &UserHandler{userService: userService, dispatcher: dispatcher}
}

// RegisterRequest is the HTTP request body for user registration.
type RegisterRequest struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	UserType string `json:"userType"`
}

// NotificationsRequest is the HTTP request body for toggling email.
type NotificationsRequest struct {
	Enable *bool `json:"enable"`
}

// UserDTO is the wire form of a user.
type UserDTO struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Phone              string    `json:"phone"`
	Email              string    `json:"email,omitempty"`
	UserType           string    `json:"userType"`
	EmailNotifications bool      `json:"emailNotifications"`
	CreatedAt          time.Time `json:"createdAt"`
}

// UserResponse wraps a single user.
type UserResponse struct {
	Success bool     `json:"success"`
	User    *UserDTO `json:"user"`
}

// UserListResponse wraps a list of users.
type UserListResponse struct {
	Success bool      `json:"success"`
	Users   []UserDTO `json:"users"`
}

func toUserDTO(u *domain.User) *UserDTO {
	return &UserDTO{
		ID:                 u.ID,
		Name:               u.Name,
		Phone:              u.Phone,
		Email:              u.Email,
		UserType:           string(u.Role),
		EmailNotifications: u.EmailNotifications,
		CreatedAt:          u.CreatedAt,
	}
}

// Register handles POST /v1/users/register
func (h *UserHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c)
		return
	}

	result, err := h.userService.Register(c.Request.Context(), service.RegisterRequest{
		Name:  req.Name,
		Phone: req.Phone,
		Email: req.Email,
		Role:  domain.UserRole(req.UserType),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	h.dispatcher.DispatchAsync(c.Request.Context(), result.Events)
	respondJSON(c, http.StatusCreated, UserResponse{Success: true, User: toUserDTO(result.User)})
}

// GetAll handles GET /v1/users
func (h *UserHandler) GetAll(c *gin.Context) {
	users, err := h.userService.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	response := UserListResponse{Success: true, Users: make([]UserDTO, 0, len(users))}
	for _, u := range users {
		response.Users = append(response.Users, *toUserDTO(u))
	}
	respondJSON(c, http.StatusOK, response)
}

// GetUser handles GET /v1/users/:id
func (h *UserHandler) GetUser(c *gin.Context) {
	user, err := h.userService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, UserResponse{Success: true, User: toUserDTO(user)})
}

// SetNotifications handles PUT /v1/users/:id/notifications
func (h *UserHandler) SetNotifications(c *gin.Context) {
	var req NotificationsRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Enable == nil {
		respondBadRequest(c)
		return
	}

	user, err := h.userService.SetEmailNotifications(c.Request.Context(), c.Param("id"), *req.Enable)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, UserResponse{Success: true, User: toUserDTO(user)})
}

// Deactivate handles DELETE /v1/users/:id
func (h *UserHandler) Deactivate(c *gin.Context) {
	result, err := h.userService.Deactivate(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	h.dispatcher.DispatchAsync(c.Request.Context(), result.Events)
	respondJSON(c, http.StatusOK, gin.H{"success": true})
}
