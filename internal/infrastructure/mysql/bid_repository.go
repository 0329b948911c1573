package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"auction-engine/internal/domain"
)

// SaveBid locks the auction row, re-validates the bid against it and records
// the bid together with the new current bid.
func (s *Store) SaveBid(ctx context.Context, bidder string, amount int64, auctionID int64) (domain.Bid, error) {
	return s.placeBid(ctx, bidder, amount, auctionID, false)
}

func (s *Store) SaveBuyout(ctx context.Context, bidder string, amount int64, auctionID int64) (domain.Bid, error) {
	return s.placeBid(ctx, bidder, amount, auctionID, true)
}

func (s *Store) placeBid(ctx context.Context, bidder string, amount int64, auctionID int64, buyout bool) (domain.Bid, error) {
	var bid domain.Bid
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		query := `SELECT ` + auctionColumns + ` FROM auctions WHERE id = ? FOR UPDATE`
		auction, err := scanAuction(tx.QueryRowContext(ctx, query, auctionID))
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NewNotFound("auction", auctionID)
		}
		if err != nil {
			return fmt.Errorf("lock auction: %w", err)
		}

		status := auction.Status
		if buyout {
			price, err := domain.ValidateBuyout(auction, bidder)
			if err != nil {
				return err
			}
			if amount != price {
				return domain.NewValidationError("buyout amount %d does not match the buyout price %d", amount, price)
			}
			status = domain.StatusClosed
		} else if err := domain.ValidateBid(auction, bidder, amount); err != nil {
			return err
		}

		bid = domain.Bid{AuctionID: auctionID, Bidder: bidder, Amount: amount, PlacedAt: s.now()}
		result, err := tx.ExecContext(ctx, `
            INSERT INTO bids (auction_id, bidder, amount, placed_at)
            VALUES (?, ?, ?, ?)`,
			bid.AuctionID, bid.Bidder, bid.Amount, bid.PlacedAt)
		if err != nil {
			return fmt.Errorf("insert bid: %w", err)
		}
		if bid.ID, err = result.LastInsertId(); err != nil {
			return fmt.Errorf("insert bid: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
            UPDATE auctions SET current_bid = ?, current_bidder = ?, status = ?
            WHERE id = ?`,
			amount, bidder, int(status), auctionID)
		if err != nil {
			return fmt.Errorf("update auction: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Bid{}, err
	}
	return bid, nil
}

// BidHistory returns the recorded bids of an auction, oldest first.
func (s *Store) BidHistory(ctx context.Context, auctionID int64) ([]domain.Bid, error) {
	query := `
        SELECT id, auction_id, bidder, amount, placed_at
        FROM bids
        WHERE auction_id = ?
        ORDER BY id ASC
    `

	rows, err := s.db.QueryContext(ctx, query, auctionID)
	if err != nil {
		return nil, fmt.Errorf("query bids: %w", err)
	}
	defer rows.Close()

	var bids []domain.Bid
	for rows.Next() {
		var bid domain.Bid
		if err := rows.Scan(&bid.ID, &bid.AuctionID, &bid.Bidder, &bid.Amount, &bid.PlacedAt); err != nil {
			return nil, fmt.Errorf("scan bid: %w", err)
		}
		bids = append(bids, bid)
	}
	return bids, rows.Err()
}
