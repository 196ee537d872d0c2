package handlers

import (
	"github.com/go-playground/validator/v10"
)

// CustomValidator wraps the go-playground/validator library to implement Echo's Validator interface.
type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator creates a new CustomValidator.
func NewValidator() *CustomValidator {
	return &CustomValidator{validator: validator.New()}
}

// Validate implements the echo.Validator interface.
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Username string `json:"username" form:"username" validate:"required"`
	Password string `json:"password" form:"password" validate:"required"`
}

// AddFriendRequest is the body of POST /api/friends/add and /remove.
type AddFriendRequest struct {
	FriendTag string `json:"friendTag" form:"friendTag" validate:"required"`
}

// AcceptFriendRequest is the body of POST /api/friends/accept.
type AcceptFriendRequest struct {
	RequesterTag string `json:"requesterTag" form:"requesterTag" validate:"required"`
}

// BroadcastRequest is the body of POST /admin/broadcast.
type BroadcastRequest struct {
	Text string `json:"text" form:"text" validate:"required"`
}
