// Package client is the remote side of the engine: an RPC client for the
// HTTP API and an event stream feeding cache views.
package client

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"auction-engine/internal/api/handlers"
	"auction-engine/internal/cache"
	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"

	"resty.dev/v3"
)

var _ cache.Backend = (*RPCClient)(nil)

// RPCClient calls the /api/v1 routes acting as the session identity. Error
// responses come back as the domain errors the server mapped them from.
type RPCClient struct {
	http    *resty.Client
	session *cache.Session
	log     logger.Logger
}

func NewRPCClient(baseURL string, timeout time.Duration, session *cache.Session, log logger.Logger) *RPCClient {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &RPCClient{
		http:    httpClient,
		session: session,
		log:     log.With("component", "rpc_client"),
	}
}

func (c *RPCClient) Close() error {
	return c.http.Close()
}

func (c *RPCClient) request(ctx context.Context) *resty.Request {
	req := c.http.R().SetContext(ctx).SetError(&handlers.ErrorResponse{})
	if identity := c.session.Identity(); identity != "" {
		req.SetHeader(handlers.HeaderUserEmail, identity)
	}
	return req
}

func (c *RPCClient) StartAuction(ctx context.Context, draft domain.ListingDraft, duration time.Duration) (domain.Auction, error) {
	var auction domain.Auction
	resp, err := c.request(ctx).
		SetBody(handlers.StartAuctionRequest{ListingDraft: draft, DurationSeconds: int64(duration / time.Second)}).
		SetResult(&auction).
		Post("/api/v1/auctions")
	if err := c.check("start auction", resp, err); err != nil {
		return domain.Auction{}, err
	}
	return auction, nil
}

func (c *RPCClient) PlaceBid(ctx context.Context, auctionID int64, amount int64) (domain.Bid, error) {
	var bid domain.Bid
	resp, err := c.request(ctx).
		SetPathParam("id", strconv.FormatInt(auctionID, 10)).
		SetBody(handlers.PlaceBidRequest{Amount: amount}).
		SetResult(&bid).
		Post("/api/v1/auctions/{id}/bids")
	if err := c.check("place bid", resp, err); err != nil {
		return domain.Bid{}, err
	}
	return bid, nil
}

func (c *RPCClient) Buyout(ctx context.Context, auctionID int64) (domain.Bid, error) {
	var bid domain.Bid
	resp, err := c.request(ctx).
		SetPathParam("id", strconv.FormatInt(auctionID, 10)).
		SetResult(&bid).
		Post("/api/v1/auctions/{id}/buyout")
	if err := c.check("buyout", resp, err); err != nil {
		return domain.Bid{}, err
	}
	return bid, nil
}

func (c *RPCClient) DeleteAuction(ctx context.Context, auctionID int64) error {
	resp, err := c.request(ctx).
		SetPathParam("id", strconv.FormatInt(auctionID, 10)).
		Delete("/api/v1/auctions/{id}")
	return c.check("delete auction", resp, err)
}

func (c *RPCClient) GetAuction(ctx context.Context, auctionID int64) (domain.Auction, error) {
	var auction domain.Auction
	resp, err := c.request(ctx).
		SetPathParam("id", strconv.FormatInt(auctionID, 10)).
		SetResult(&auction).
		Get("/api/v1/auctions/{id}")
	if err := c.check("get auction", resp, err); err != nil {
		return domain.Auction{}, err
	}
	return auction, nil
}

func (c *RPCClient) GetOngoing(ctx context.Context) ([]domain.Auction, error) {
	var auctions []domain.Auction
	resp, err := c.request(ctx).
		SetQueryParam("scope", "ongoing").
		SetResult(&auctions).
		Get("/api/v1/auctions")
	return auctions, c.check("get ongoing", resp, err)
}

// GetAll lists every auction. The server only answers it for the moderator.
func (c *RPCClient) GetAll(ctx context.Context, actor string) ([]domain.Auction, error) {
	var auctions []domain.Auction
	resp, err := c.request(ctx).
		SetHeader(handlers.HeaderUserEmail, actor).
		SetQueryParam("scope", "all").
		SetResult(&auctions).
		Get("/api/v1/auctions")
	return auctions, c.check("get all", resp, err)
}

func (c *RPCClient) GetCreatedBy(ctx context.Context, seller string) ([]domain.Auction, error) {
	var auctions []domain.Auction
	resp, err := c.request(ctx).
		SetPathParam("email", seller).
		SetResult(&auctions).
		Get("/api/v1/users/{email}/auctions")
	return auctions, c.check("get created", resp, err)
}

func (c *RPCClient) GetBidsBy(ctx context.Context, bidder string) ([]domain.Auction, error) {
	var auctions []domain.Auction
	resp, err := c.request(ctx).
		SetPathParam("email", bidder).
		SetResult(&auctions).
		Get("/api/v1/users/{email}/bids")
	return auctions, c.check("get bids", resp, err)
}

func (c *RPCClient) GetNotifications(ctx context.Context, receiver string) ([]domain.Notification, error) {
	var notifications []domain.Notification
	resp, err := c.request(ctx).
		SetPathParam("email", receiver).
		SetResult(&notifications).
		Get("/api/v1/users/{email}/notifications")
	return notifications, c.check("get notifications", resp, err)
}

// EditEmail renames the session identity and switches the session over.
func (c *RPCClient) EditEmail(ctx context.Context, newEmail string) error {
	resp, err := c.request(ctx).
		SetPathParam("email", c.session.Identity()).
		SetBody(handlers.EditEmailRequest{Email: newEmail}).
		Put("/api/v1/users/{email}")
	if err := c.check("edit email", resp, err); err != nil {
		return err
	}
	c.session.SetIdentity(newEmail)
	return nil
}

func (c *RPCClient) Ban(ctx context.Context, email string) error {
	resp, err := c.request(ctx).
		SetPathParam("email", email).
		Post("/api/v1/users/{email}/ban")
	return c.check("ban", resp, err)
}

func (c *RPCClient) DeleteAccount(ctx context.Context, email string) error {
	resp, err := c.request(ctx).
		SetPathParam("email", email).
		Delete("/api/v1/users/{email}")
	return c.check("delete account", resp, err)
}

func (c *RPCClient) Health(ctx context.Context) error {
	resp, err := c.request(ctx).Get("/health")
	return c.check("health", resp, err)
}

// check turns a failed call into a typed error.
func (c *RPCClient) check(op string, resp *resty.Response, err error) error {
	if err != nil {
		return &domain.TransportFault{Op: op, Err: err}
	}
	if !resp.IsError() {
		return nil
	}

	reason := resp.String()
	body, _ := resp.Error().(*handlers.ErrorResponse)
	if body != nil && body.Error != "" {
		reason = body.Error
	}

	switch resp.StatusCode() {
	case http.StatusUnprocessableEntity:
		return &domain.ValidationError{Reason: reason}
	case http.StatusConflict:
		return &domain.StateError{Reason: reason}
	case http.StatusNotFound:
		if body != nil && body.Entity != "" {
			return &domain.NotFoundError{Entity: body.Entity, ID: body.ID}
		}
		return &domain.NotFoundError{Entity: "resource", ID: op}
	default:
		c.log.Debug("Request failed", "op", op, "status", resp.StatusCode(), "reason", reason)
		return &domain.TransportFault{Op: op, Err: fmt.Errorf("status %d: %s", resp.StatusCode(), reason)}
	}
}
