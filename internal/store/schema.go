package store

import (
	"context"
	"database/sql"
)

// schemaStatements creates the record store's tables if they do not yet
// exist. The teacher repo assumes a pre-provisioned schema; this
// repository's cmd/server runs this once at startup so the module is
// runnable end to end without an external migration tool.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS currencies (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(64) NOT NULL UNIQUE,
		symbol VARCHAR(16) NOT NULL UNIQUE,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS markets (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		base_currency_id BIGINT NOT NULL,
		quote_currency_id BIGINT NOT NULL,
		base_symbol VARCHAR(16) NOT NULL,
		quote_symbol VARCHAR(16) NOT NULL,
		symbol VARCHAR(40) NOT NULL UNIQUE,
		fee DECIMAL(19,9) NOT NULL DEFAULT 0,
		state VARCHAR(16) NOT NULL DEFAULT 'Active',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		UNIQUE KEY uniq_market_pair (base_currency_id, quote_currency_id)
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		market_id BIGINT NOT NULL,
		order_type VARCHAR(16) NOT NULL,
		order_side VARCHAR(8) NOT NULL,
		price DECIMAL(34,16) NOT NULL,
		amount DECIMAL(28,8) NOT NULL,
		filled_amount DECIMAL(28,8) NOT NULL DEFAULT 0,
		remaining_amount DECIMAL(28,8) NOT NULL DEFAULT 0,
		order_state VARCHAR(32) NOT NULL,
		created_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		updated_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6),
		filled_at TIMESTAMP(6) NULL,
		INDEX idx_orders_matching (market_id, order_side, order_state, price, created_at)
	)`,
	`CREATE TABLE IF NOT EXISTS trades (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		maker_order_id BIGINT NOT NULL,
		taker_order_id BIGINT NOT NULL,
		market_id BIGINT NOT NULL,
		price DECIMAL(34,16) NOT NULL,
		amount DECIMAL(28,8) NOT NULL,
		fee DECIMAL(19,9) NOT NULL,
		created_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		INDEX idx_trades_market (market_id, created_at)
	)`,
}

// Migrate creates the record store's tables if they do not already exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
