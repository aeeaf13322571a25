// Package db stores dashboard accounts in sqlite.
package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type DB struct {
	sql *sql.DB
}

type Account struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	conn.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return &DB{sql: conn}, nil
}

func (d *DB) Close() error {
	return d.sql.Close()
}

func (d *DB) Migrate() error {
	_, err := d.sql.Exec(`
		CREATE TABLE IF NOT EXISTS accounts (
			id            TEXT PRIMARY KEY,
			username      TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at    INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create accounts: %w", err)
	}
	return nil
}

func (d *DB) CreateAccount(username, passwordHash string) (*Account, error) {
	acc := &Account{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
	}
	_, err := d.sql.Exec(
		"INSERT INTO accounts (id, username, password_hash, created_at) VALUES (?, ?, ?, ?)",
		acc.ID, acc.Username, acc.PasswordHash, acc.CreatedAt.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	return acc, nil
}

func (d *DB) AccountByUsername(username string) (*Account, error) {
	row := d.sql.QueryRow(
		"SELECT id, username, password_hash, created_at FROM accounts WHERE username = ?",
		username,
	)
	var acc Account
	var created int64
	if err := row.Scan(&acc.ID, &acc.Username, &acc.PasswordHash, &created); err != nil {
		return nil, err
	}
	acc.CreatedAt = time.Unix(created, 0)
	return &acc, nil
}

func (d *DB) UpdateAccountPassword(id, passwordHash string) error {
	_, err := d.sql.Exec(
		"UPDATE accounts SET password_hash = ? WHERE id = ?",
		passwordHash, id,
	)
	return err
}

// HasAnyAccount reports whether at least one account exists. Used to warn
// at startup when nobody would be able to log in.
func (d *DB) HasAnyAccount() (bool, error) {
	var n int
	if err := d.sql.QueryRow("SELECT COUNT(*) FROM accounts").Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}
