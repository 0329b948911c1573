package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"auction-engine/internal/domain"
)

func (s *Store) IsBanned(ctx context.Context, email string) (bool, error) {
	var banned bool
	err := s.db.QueryRowContext(ctx, `SELECT banned FROM users WHERE email = ?`, email).Scan(&banned)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query user: %w", err)
	}
	return banned, nil
}

func (s *Store) Ban(ctx context.Context, email string) error {
	query := `INSERT INTO users (email, banned) VALUES (?, TRUE) ON DUPLICATE KEY UPDATE banned = TRUE`
	if _, err := s.db.ExecContext(ctx, query, email); err != nil {
		return fmt.Errorf("ban user: %w", err)
	}
	return nil
}

func (s *Store) RenameUser(ctx context.Context, oldEmail, newEmail string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var inUse bool
		err := tx.QueryRowContext(ctx, `
            SELECT EXISTS(SELECT 1 FROM users WHERE email = ?)
                OR EXISTS(SELECT 1 FROM auctions WHERE seller = ? OR current_bidder = ?)
                OR EXISTS(SELECT 1 FROM notifications WHERE receiver = ?)`,
			newEmail, newEmail, newEmail, newEmail).Scan(&inUse)
		if err != nil {
			return fmt.Errorf("check email: %w", err)
		}
		if inUse {
			return domain.NewValidationError("email %s is already in use", newEmail)
		}

		updates := []string{
			`UPDATE auctions SET seller = ? WHERE seller = ?`,
			`UPDATE auctions SET current_bidder = ? WHERE current_bidder = ?`,
			`UPDATE bids SET bidder = ? WHERE bidder = ?`,
			`UPDATE notifications SET receiver = ? WHERE receiver = ?`,
			`UPDATE users SET email = ? WHERE email = ?`,
		}
		for _, stmt := range updates {
			if _, err := tx.ExecContext(ctx, stmt, newEmail, oldEmail); err != nil {
				return fmt.Errorf("rename user: %w", err)
			}
		}
		return nil
	})
}

// DeleteUser removes the user, their notifications and every auction they
// sell. Bids on those auctions go with them through the foreign key.
func (s *Store) DeleteUser(ctx context.Context, email string) ([]int64, error) {
	var removed []int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT id FROM auctions WHERE seller = ? ORDER BY id FOR UPDATE`, email)
		if err != nil {
			return fmt.Errorf("query auctions: %w", err)
		}
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("scan auction id: %w", err)
			}
			removed = append(removed, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		deletes := []string{
			`DELETE FROM auctions WHERE seller = ?`,
			`DELETE FROM notifications WHERE receiver = ?`,
			`DELETE FROM users WHERE email = ?`,
		}
		for _, stmt := range deletes {
			if _, err := tx.ExecContext(ctx, stmt, email); err != nil {
				return fmt.Errorf("delete user: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}
