package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type Database struct {
	Conn *sql.DB
}

func NewDatabase(ctx context.Context, dsn string) (*Database, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(25)
	conn.SetConnMaxLifetime(5 * time.Minute)
	return &Database{Conn: conn}, nil
}

func (d *Database) Close() error {
	return d.Conn.Close()
}

// Schema is applied in order by AutoMigrate. Every statement is idempotent.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		username VARCHAR(50) UNIQUE NOT NULL,
		password VARCHAR(255) NOT NULL,
		subscription_tier VARCHAR(10) NOT NULL DEFAULT 'none'
			CHECK (subscription_tier IN ('none', 'basic', 'pro')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS listings (
		id UUID PRIMARY KEY,
		seller_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		platform VARCHAR(40) NOT NULL,
		handle VARCHAR(100) NOT NULL,
		title VARCHAR(140) NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		kind VARCHAR(10) NOT NULL CHECK (kind IN ('username', 'account')),
		price_cents BIGINT NOT NULL CHECK (price_cents > 0),
		status VARCHAR(10) NOT NULL DEFAULT 'active'
			CHECK (status IN ('active', 'sold', 'withdrawn')),
		buyer_id UUID REFERENCES users(id) ON DELETE SET NULL,
		sale_price_cents BIGINT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		sold_at TIMESTAMPTZ
	)`,

	`CREATE INDEX IF NOT EXISTS idx_listings_browse ON listings (status, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_listings_seller ON listings (seller_id)`,

	`CREATE TABLE IF NOT EXISTS bids (
		id UUID PRIMARY KEY,
		listing_id UUID NOT NULL REFERENCES listings(id) ON DELETE CASCADE,
		bidder_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		amount_cents BIGINT NOT NULL CHECK (amount_cents > 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE INDEX IF NOT EXISTS idx_bids_listing ON bids (listing_id, amount_cents DESC)`,

	`CREATE TABLE IF NOT EXISTS conversations (
		id UUID PRIMARY KEY,
		conversation_key VARCHAR(255) UNIQUE NOT NULL,
		user_a UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		user_b UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_message_at TIMESTAMPTZ
	)`,

	`CREATE TABLE IF NOT EXISTS messages (
		id UUID PRIMARY KEY,
		conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		sender_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		content TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages (conversation_id, created_at DESC)`,
}

func (d *Database) AutoMigrate(ctx context.Context) error {
	for _, query := range Schema {
		if _, err := d.Conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
