package handlers

import (
	"net/http"
	"strconv"
	"time"

	"auction-engine/internal/domain"
	"auction-engine/internal/services"
	"auction-engine/pkg/logger"

	"github.com/labstack/echo/v4"
)

type AuctionHandler struct {
	auctionManager *services.AuctionManager
	log            logger.Logger
}

type StartAuctionRequest struct {
	domain.ListingDraft
	DurationSeconds int64 `json:"duration_seconds"`
}

type PlaceBidRequest struct {
	Amount int64 `json:"amount"`
}

func NewAuctionHandler(auctionManager *services.AuctionManager, log logger.Logger) *AuctionHandler {
	return &AuctionHandler{
		auctionManager: auctionManager,
		log:            log,
	}
}

func (h *AuctionHandler) StartAuction(c echo.Context) error {
	seller, err := requireActor(c)
	if err != nil {
		return respondError(c, err)
	}

	var req StartAuctionRequest
	if err := c.Bind(&req); err != nil {
		h.log.Debug("Failed to bind request", "error", err)
		return respondError(c, domain.NewValidationError("invalid request body"))
	}

	duration := time.Duration(req.DurationSeconds) * time.Second
	auction, err := h.auctionManager.StartAuction(c.Request().Context(), seller, req.ListingDraft, duration)
	if err != nil {
		return h.fail(c, "start auction", err)
	}

	h.log.Info("Auction started", "auction_id", auction.ID, "seller", seller)
	return c.JSON(http.StatusCreated, auction)
}

func (h *AuctionHandler) ListAuctions(c echo.Context) error {
	ctx := c.Request().Context()

	var auctions []domain.Auction
	var err error
	switch scope := c.QueryParam("scope"); scope {
	case "", "ongoing":
		auctions, err = h.auctionManager.GetOngoing(ctx)
	case "all":
		auctions, err = h.auctionManager.GetAll(ctx, actor(c))
	default:
		err = domain.NewValidationError("unknown scope %q", scope)
	}
	if err != nil {
		return h.fail(c, "list auctions", err)
	}
	return c.JSON(http.StatusOK, nonNil(auctions))
}

func (h *AuctionHandler) GetAuction(c echo.Context) error {
	id, err := auctionID(c)
	if err != nil {
		return respondError(c, err)
	}

	auction, err := h.auctionManager.GetAuction(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, "get auction", err)
	}
	return c.JSON(http.StatusOK, auction)
}

func (h *AuctionHandler) DeleteAuction(c echo.Context) error {
	id, err := auctionID(c)
	if err != nil {
		return respondError(c, err)
	}

	if err := h.auctionManager.DeleteAuction(c.Request().Context(), actor(c), id); err != nil {
		return h.fail(c, "delete auction", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AuctionHandler) PlaceBid(c echo.Context) error {
	id, err := auctionID(c)
	if err != nil {
		return respondError(c, err)
	}

	var req PlaceBidRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, domain.NewValidationError("invalid request body"))
	}

	bid, err := h.auctionManager.PlaceBid(c.Request().Context(), actor(c), id, req.Amount)
	if err != nil {
		return h.fail(c, "place bid", err)
	}
	return c.JSON(http.StatusCreated, bid)
}

func (h *AuctionHandler) Buyout(c echo.Context) error {
	id, err := auctionID(c)
	if err != nil {
		return respondError(c, err)
	}

	bid, err := h.auctionManager.Buyout(c.Request().Context(), actor(c), id)
	if err != nil {
		return h.fail(c, "buyout", err)
	}
	return c.JSON(http.StatusCreated, bid)
}

// fail logs server side failures and writes the error response.
func (h *AuctionHandler) fail(c echo.Context, op string, err error) error {
	if StatusFor(err) == http.StatusInternalServerError {
		h.log.Error("Request failed", "op", op, "request_id", c.Response().Header().Get(echo.HeaderXRequestID), "error", err)
	}
	return respondError(c, err)
}

func auctionID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, domain.NewValidationError("invalid auction id %q", c.Param("id"))
	}
	return id, nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
