package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/task-manager/internal/api/dto"
	"github.com/spec-kit/task-manager/internal/auth"
	"github.com/spec-kit/task-manager/internal/service"
	apperrors "github.com/spec-kit/task-manager/pkg/util"
)

// UsersHandler serves account endpoints for the caller.
type UsersHandler struct {
	auth *service.AuthService
}

// NewUsersHandler constructs handler.
func NewUsersHandler(authService *service.AuthService) *UsersHandler {
	return &UsersHandler{auth: authService}
}

// Me handles GET /api/users/me.
func (h *UsersHandler) Me(c *fiber.Ctx) error {
	identity, ok := auth.CurrentIdentity(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	user, err := h.auth.CurrentUser(c.UserContext(), identity)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.UserResponse{
		ID:          user.ID,
		Username:    user.Username,
		Email:       user.Email,
		Authorities: identity.Authorities,
		CreatedAt:   user.CreatedAt,
	}})
}
