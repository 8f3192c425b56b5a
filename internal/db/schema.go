package db

import (
	"database/sql"
	"fmt"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS users (
    id         BIGSERIAL PRIMARY KEY,
    username   TEXT NOT NULL UNIQUE,
    email      TEXT NOT NULL,
    role       TEXT NOT NULL DEFAULT 'USER' CHECK (role IN ('USER', 'ADMIN')),
    created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS cards (
    id                 BIGSERIAL PRIMARY KEY,
    encrypted_number   TEXT NOT NULL,
    number_hmac        TEXT NOT NULL UNIQUE,
    masked_number      TEXT NOT NULL,
    owner_id           BIGINT NOT NULL REFERENCES users(id),
    expiry_date        DATE NOT NULL,
    status             TEXT NOT NULL DEFAULT 'ACTIVE' CHECK (status IN ('ACTIVE', 'BLOCKED', 'EXPIRED')),
    balance            NUMERIC(19, 2) NOT NULL DEFAULT 0 CHECK (balance >= 0),
    block_request_sent BOOLEAN NOT NULL DEFAULT FALSE,
    blocked_at         TIMESTAMPTZ,
    block_reason       TEXT,
    created_at         TIMESTAMPTZ NOT NULL,
    updated_at         TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cards_owner ON cards(owner_id);
CREATE INDEX IF NOT EXISTS idx_cards_status_expiry ON cards(status, expiry_date);

CREATE TABLE IF NOT EXISTS transfers (
    id            BIGSERIAL PRIMARY KEY,
    from_card_id  BIGINT NOT NULL REFERENCES cards(id),
    to_card_id    BIGINT NOT NULL REFERENCES cards(id),
    amount        NUMERIC(19, 2) NOT NULL CHECK (amount > 0),
    description   TEXT,
    status        TEXT NOT NULL DEFAULT 'PENDING' CHECK (status IN ('PENDING', 'COMPLETED', 'FAILED')),
    error_message TEXT,
    created_at    TIMESTAMPTZ NOT NULL,
    processed_at  TIMESTAMPTZ,
    CHECK (from_card_id <> to_card_id)
);

CREATE INDEX IF NOT EXISTS idx_transfers_from ON transfers(from_card_id);
CREATE INDEX IF NOT EXISTS idx_transfers_to ON transfers(to_card_id);
CREATE INDEX IF NOT EXISTS idx_transfers_created ON transfers(created_at);
CREATE INDEX IF NOT EXISTS idx_transfers_status ON transfers(status);
`

// SQLite keeps money as TEXT so decimals round-trip exactly; dates are ISO-8601 text.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
    id         INTEGER PRIMARY KEY,
    username   TEXT NOT NULL UNIQUE,
    email      TEXT NOT NULL,
    role       TEXT NOT NULL DEFAULT 'USER' CHECK (role IN ('USER', 'ADMIN')),
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS cards (
    id                 INTEGER PRIMARY KEY,
    encrypted_number   TEXT NOT NULL,
    number_hmac        TEXT NOT NULL UNIQUE,
    masked_number      TEXT NOT NULL,
    owner_id           INTEGER NOT NULL REFERENCES users(id),
    expiry_date        TEXT NOT NULL,
    status             TEXT NOT NULL DEFAULT 'ACTIVE' CHECK (status IN ('ACTIVE', 'BLOCKED', 'EXPIRED')),
    balance            TEXT NOT NULL DEFAULT '0' CHECK (CAST(balance AS REAL) >= 0),
    block_request_sent INTEGER NOT NULL DEFAULT 0,
    blocked_at         DATETIME,
    block_reason       TEXT,
    created_at         DATETIME NOT NULL,
    updated_at         DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cards_owner ON cards(owner_id);
CREATE INDEX IF NOT EXISTS idx_cards_status_expiry ON cards(status, expiry_date);

CREATE TABLE IF NOT EXISTS transfers (
    id            INTEGER PRIMARY KEY,
    from_card_id  INTEGER NOT NULL REFERENCES cards(id),
    to_card_id    INTEGER NOT NULL REFERENCES cards(id),
    amount        TEXT NOT NULL,
    description   TEXT,
    status        TEXT NOT NULL DEFAULT 'PENDING' CHECK (status IN ('PENDING', 'COMPLETED', 'FAILED')),
    error_message TEXT,
    created_at    DATETIME NOT NULL,
    processed_at  DATETIME,
    CHECK (from_card_id <> to_card_id)
);

CREATE INDEX IF NOT EXISTS idx_transfers_from ON transfers(from_card_id);
CREATE INDEX IF NOT EXISTS idx_transfers_to ON transfers(to_card_id);
CREATE INDEX IF NOT EXISTS idx_transfers_created ON transfers(created_at);
CREATE INDEX IF NOT EXISTS idx_transfers_status ON transfers(status);
`

// migrations are applied in order after schema creation. Each must be idempotent.
// Append new migrations at the end.
var migrations = map[Dialect][]string{
	Postgres: {},
	SQLite:   {},
}

// Migrate creates the schema for the dialect and applies pending migrations.
func Migrate(db *sql.DB, dialect Dialect) error {
	schema := sqliteSchema
	if dialect == Postgres {
		schema = postgresSchema
	}

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	for i, m := range migrations[dialect] {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("failed to run migration %d: %w", i+1, err)
		}
	}
	return nil
}
