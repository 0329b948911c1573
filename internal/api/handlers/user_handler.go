package handlers

import (
	"net/http"

	"auction-engine/internal/domain"
	"auction-engine/internal/services"
	"auction-engine/pkg/logger"

	"github.com/labstack/echo/v4"
)

type UserHandler struct {
	userManager    *services.UserManager
	auctionManager *services.AuctionManager
	log            logger.Logger
}

type EditEmailRequest struct {
	Email string `json:"email"`
}

func NewUserHandler(userManager *services.UserManager, auctionManager *services.AuctionManager,
	log logger.Logger) *UserHandler {
	return &UserHandler{
		userManager:    userManager,
		auctionManager: auctionManager,
		log:            log,
	}
}

func (h *UserHandler) CreatedBy(c echo.Context) error {
	auctions, err := h.auctionManager.GetCreatedBy(c.Request().Context(), c.Param("email"))
	if err != nil {
		return h.fail(c, "created by", err)
	}
	return c.JSON(http.StatusOK, nonNil(auctions))
}

func (h *UserHandler) BidsBy(c echo.Context) error {
	auctions, err := h.auctionManager.GetBidsBy(c.Request().Context(), c.Param("email"))
	if err != nil {
		return h.fail(c, "bids by", err)
	}
	return c.JSON(http.StatusOK, nonNil(auctions))
}

func (h *UserHandler) Notifications(c echo.Context) error {
	notifications, err := h.auctionManager.GetNotifications(c.Request().Context(), c.Param("email"))
	if err != nil {
		return h.fail(c, "notifications", err)
	}
	return c.JSON(http.StatusOK, nonNil(notifications))
}

func (h *UserHandler) EditEmail(c echo.Context) error {
	email := c.Param("email")
	if actor(c) != email {
		return respondError(c, domain.NewStateError("you can only edit your own account"))
	}

	var req EditEmailRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, domain.NewValidationError("invalid request body"))
	}

	if err := h.userManager.EditEmail(c.Request().Context(), email, req.Email); err != nil {
		return h.fail(c, "edit email", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *UserHandler) Ban(c echo.Context) error {
	if err := h.userManager.Ban(c.Request().Context(), actor(c), c.Param("email")); err != nil {
		return h.fail(c, "ban", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *UserHandler) DeleteAccount(c echo.Context) error {
	if err := h.userManager.DeleteAccount(c.Request().Context(), actor(c), c.Param("email")); err != nil {
		return h.fail(c, "delete account", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *UserHandler) fail(c echo.Context, op string, err error) error {
	if StatusFor(err) == http.StatusInternalServerError {
		h.log.Error("Request failed", "op", op, "error", err)
	}
	return respondError(c, err)
}
