package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"auction-engine/internal/domain"
)

var _ domain.Store = (*Store)(nil)

const auctionColumns = `id, title, description, reserve_price, buyout_price, min_increment,
        start_time, end_time, current_bid, current_bidder, seller, status, image_path`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAuction(row rowScanner) (domain.Auction, error) {
	var auction domain.Auction
	var status int

	err := row.Scan(&auction.ID, &auction.Title, &auction.Description,
		&auction.ReservePrice, &auction.BuyoutPrice, &auction.MinIncrement,
		&auction.StartTime, &auction.EndTime, &auction.CurrentBid, &auction.CurrentBidder,
		&auction.Seller, &status, &auction.ImagePath)
	if err != nil {
		return domain.Auction{}, err
	}

	auction.Status = domain.AuctionStatus(status)
	return auction, nil
}

func (s *Store) SaveAuction(ctx context.Context, auction domain.Auction) (domain.Auction, error) {
	query := `
        INSERT INTO auctions (title, description, reserve_price, buyout_price, min_increment,
            start_time, end_time, current_bid, current_bidder, seller, status, image_path)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	result, err := s.db.ExecContext(ctx, query,
		auction.Title, auction.Description, auction.ReservePrice, auction.BuyoutPrice,
		auction.MinIncrement, auction.StartTime, auction.EndTime, auction.CurrentBid,
		auction.CurrentBidder, auction.Seller, int(auction.Status), auction.ImagePath)
	if err != nil {
		return domain.Auction{}, fmt.Errorf("insert auction: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return domain.Auction{}, fmt.Errorf("insert auction: %w", err)
	}
	auction.ID = id
	return auction, nil
}

func (s *Store) GetAuctionByID(ctx context.Context, auctionID int64) (domain.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE id = ?`

	auction, err := scanAuction(s.db.QueryRowContext(ctx, query, auctionID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Auction{}, domain.NewNotFound("auction", auctionID)
	}
	if err != nil {
		return domain.Auction{}, fmt.Errorf("query auction: %w", err)
	}
	return auction, nil
}

func (s *Store) MarkClosed(ctx context.Context, auctionID int64) error {
	query := `UPDATE auctions SET status = ? WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, int(domain.StatusClosed), auctionID)
	if err != nil {
		return fmt.Errorf("close auction: %w", err)
	}
	return s.requireRow(ctx, result, auctionID)
}

func (s *Store) DeleteAuction(ctx context.Context, auctionID int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM auctions WHERE id = ?`, auctionID)
	if err != nil {
		return fmt.Errorf("delete auction: %w", err)
	}
	return s.requireRow(ctx, result, auctionID)
}

// requireRow turns a zero-row update into NotFound. MySQL reports zero
// affected rows for an update that changes nothing, so existence is checked
// separately.
func (s *Store) requireRow(ctx context.Context, result sql.Result, auctionID int64) error {
	if rows, err := result.RowsAffected(); err == nil && rows > 0 {
		return nil
	}
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM auctions WHERE id = ?)`, auctionID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("query auction: %w", err)
	}
	if !exists {
		return domain.NewNotFound("auction", auctionID)
	}
	return nil
}

func (s *Store) GetOngoing(ctx context.Context) ([]domain.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE status = ? ORDER BY id`
	return s.queryAuctions(ctx, query, int(domain.StatusOngoing))
}

func (s *Store) GetCreatedBy(ctx context.Context, seller string) ([]domain.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE seller = ? ORDER BY id`
	return s.queryAuctions(ctx, query, seller)
}

func (s *Store) GetBidsBy(ctx context.Context, bidder string) ([]domain.Auction, error) {
	query := `
        SELECT ` + auctionColumns + ` FROM auctions
        WHERE id IN (SELECT DISTINCT auction_id FROM bids WHERE bidder = ?)
        ORDER BY id
    `
	return s.queryAuctions(ctx, query, bidder)
}

func (s *Store) GetAll(ctx context.Context) ([]domain.Auction, error) {
	return s.queryAuctions(ctx, `SELECT `+auctionColumns+` FROM auctions ORDER BY id`)
}

func (s *Store) queryAuctions(ctx context.Context, query string, args ...interface{}) ([]domain.Auction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query auctions: %w", err)
	}
	defer rows.Close()

	var auctions []domain.Auction
	for rows.Next() {
		auction, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan auction: %w", err)
		}
		auctions = append(auctions, auction)
	}
	return auctions, rows.Err()
}
