package handlers

import (
	"net/http"
	"time"

	"auction-engine/internal/services"
	"auction-engine/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// NewRouter builds the RPC server. Routes live under /api/v1, the caller
// identity travels in the X-User-Email header.
func NewRouter(auctionManager *services.AuctionManager, userManager *services.UserManager, log logger.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			req := c.Request()
			log.Debug("Request handled",
				"method", req.Method,
				"path", req.URL.Path,
				"status", c.Response().Status,
				"user", req.Header.Get(HeaderUserEmail),
				"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
				"latency", time.Since(start).String())
			return err
		}
	})

	auctionHandler := NewAuctionHandler(auctionManager, log)
	userHandler := NewUserHandler(userManager, auctionManager, log)

	api := e.Group("/api/v1")
	api.POST("/auctions", auctionHandler.StartAuction)
	api.GET("/auctions", auctionHandler.ListAuctions)
	api.GET("/auctions/:id", auctionHandler.GetAuction)
	api.DELETE("/auctions/:id", auctionHandler.DeleteAuction)
	api.POST("/auctions/:id/bids", auctionHandler.PlaceBid)
	api.POST("/auctions/:id/buyout", auctionHandler.Buyout)

	api.GET("/users/:email/auctions", userHandler.CreatedBy)
	api.GET("/users/:email/bids", userHandler.BidsBy)
	api.GET("/users/:email/notifications", userHandler.Notifications)
	api.PUT("/users/:email", userHandler.EditEmail)
	api.POST("/users/:email/ban", userHandler.Ban)
	api.DELETE("/users/:email", userHandler.DeleteAccount)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":        "ok",
			"service":       "auction-engine",
			"timestamp":     time.Now().Format(time.RFC3339),
			"held_auctions": auctionManager.Held(),
		})
	})

	return e
}
