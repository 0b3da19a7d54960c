package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/ats/internal/domain"
)

// CredentialRepository persists encrypted exchange API credentials. Rotation
// never mutates an existing row — a new row always wins, matching the
// append-only ledger discipline applied elsewhere in the Control Store.
type CredentialRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewCredentialRepository(db *sql.DB, log zerolog.Logger) *CredentialRepository {
	return &CredentialRepository{db: db, log: log.With().Str("repo", "credential").Logger()}
}

func (r *CredentialRepository) Create(c domain.Credential) (int64, error) {
	res, err := r.db.Exec(`
		INSERT INTO credentials (name, encrypted_access_key, encrypted_secret_key, nonce_access, nonce_secret)
		VALUES (?, ?, ?, ?, ?)`,
		c.Name, c.EncryptedAccessKey, c.EncryptedSecretKey, c.NonceAccess, c.NonceSecret)
	if err != nil {
		return 0, fmt.Errorf("create credential %s: %w", c.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read credential id: %w", err)
	}
	r.log.Info().Str("name", c.Name).Msg("credential rotated")
	return id, nil
}

// Latest returns the most recently created row for a credential name.
func (r *CredentialRepository) Latest(name string) (domain.Credential, error) {
	row := r.db.QueryRow(`
		SELECT id, name, encrypted_access_key, encrypted_secret_key, nonce_access, nonce_secret, created_at
		FROM credentials WHERE name = ? ORDER BY created_at DESC LIMIT 1`, name)

	var c domain.Credential
	err := row.Scan(&c.ID, &c.Name, &c.EncryptedAccessKey, &c.EncryptedSecretKey, &c.NonceAccess, &c.NonceSecret, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Credential{}, ErrNotFound
	}
	if err != nil {
		return domain.Credential{}, fmt.Errorf("get credential %s: %w", name, err)
	}
	return c, nil
}
