package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lmasson/giftwise-api/internal/models"
	"github.com/lmasson/giftwise-api/internal/service"
	appErrors "github.com/lmasson/giftwise-api/pkg/errors"
	"github.com/lmasson/giftwise-api/pkg/response"
)

// UserHandler exposes profile and budget endpoints.
type UserHandler struct {
	service *service.UserService
}

// NewUserHandler creates a new handler.
func NewUserHandler(svc *service.UserService) *UserHandler {
	return &UserHandler{service: svc}
}

// Me godoc
// @Summary Get current user
// @Description Returns the authenticated user's profile with budget totals
// @Tags Users
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /users/me [get]
func (h *UserHandler) Me(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	profile, err := h.service.Me(c.Request.Context(), claims.Subject)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, profile)
}

// UpdateBudget godoc
// @Summary Set gift budget
// @Description Set the authenticated user's gift budget
// @Tags Users
// @Accept json
// @Produce json
// @Param payload body models.BudgetRequest true "Budget payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /users/me/budget [put]
func (h *UserHandler) UpdateBudget(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.BudgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid budget payload"))
		return
	}

	if err := h.service.UpdateBudget(c.Request.Context(), claims.Subject, req); err != nil {
		response.Error(c, err)
		return
	}

	profile, err := h.service.Me(c.Request.Context(), claims.Subject)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profile)
}

// ClearBudget godoc
// @Summary Remove gift budget
// @Description Clear the authenticated user's gift budget
// @Tags Users
// @Produce json
// @Success 204 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /users/me/budget [delete]
func (h *UserHandler) ClearBudget(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.ClearBudget(c.Request.Context(), claims.Subject); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}
