package mysql

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema creates the tables used by Store. Every statement is idempotent.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS auctions (
        id             BIGINT       NOT NULL AUTO_INCREMENT,
        title          VARCHAR(80)  NOT NULL,
        description    TEXT         NOT NULL,
        reserve_price  BIGINT       NOT NULL,
        buyout_price   BIGINT       NOT NULL,
        min_increment  BIGINT       NOT NULL,
        start_time     DATETIME(6)  NOT NULL,
        end_time       DATETIME(6)  NOT NULL,
        current_bid    BIGINT       NOT NULL DEFAULT 0,
        current_bidder VARCHAR(255) NOT NULL DEFAULT '',
        seller         VARCHAR(255) NOT NULL,
        status         TINYINT      NOT NULL DEFAULT 0,
        image_path     VARCHAR(512) NOT NULL DEFAULT '',
        PRIMARY KEY (id),
        KEY idx_auctions_seller (seller),
        KEY idx_auctions_status (status)
    )`,
	`CREATE TABLE IF NOT EXISTS bids (
        id         BIGINT       NOT NULL AUTO_INCREMENT,
        auction_id BIGINT       NOT NULL,
        bidder     VARCHAR(255) NOT NULL,
        amount     BIGINT       NOT NULL,
        placed_at  DATETIME(6)  NOT NULL,
        PRIMARY KEY (id),
        KEY idx_bids_bidder (bidder),
        CONSTRAINT fk_bids_auction FOREIGN KEY (auction_id) REFERENCES auctions (id) ON DELETE CASCADE
    )`,
	`CREATE TABLE IF NOT EXISTS notifications (
        id         BIGINT       NOT NULL AUTO_INCREMENT,
        receiver   VARCHAR(255) NOT NULL,
        content    TEXT         NOT NULL,
        created_at DATETIME(6)  NOT NULL,
        PRIMARY KEY (id),
        KEY idx_notifications_receiver (receiver)
    )`,
	`CREATE TABLE IF NOT EXISTS users (
        email  VARCHAR(255) NOT NULL,
        banned BOOLEAN      NOT NULL DEFAULT FALSE,
        PRIMARY KEY (email)
    )`,
}

func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
