package repositories

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/gitpulse/gitpulse/internal/models"
)

// SessionRepository stores session-scoped credentials in SQLite. With the
// default in-memory DSN the records are ephemeral: they die with the
// process, which is the intended lifetime of a cached credential.
type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{
		db: db,
	}
}

// Get retrieves the credential stored under key. Returns (nil, nil) when
// no record exists.
func (r *SessionRepository) Get(key string) (*models.Credential, error) {
	query := `SELECT access_token, user_json FROM sessions WHERE key = ?`

	var accessToken, userJSON string
	err := r.db.QueryRow(query, key).Scan(&accessToken, &userJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var user models.AuthUser
	if err := json.Unmarshal([]byte(userJSON), &user); err != nil {
		return nil, err
	}

	return &models.Credential{
		AccessToken: accessToken,
		User:        user,
	}, nil
}

// Set stores the full credential pair under key in a single statement, so
// a reader can never observe a half-updated record.
func (r *SessionRepository) Set(key string, cred *models.Credential) error {
	userJSON, err := json.Marshal(cred.User)
	if err != nil {
		return err
	}

	query := `
		INSERT OR REPLACE INTO sessions (key, access_token, user_json, created_at)
		VALUES (?, ?, ?, ?)
	`

	_, err = r.db.Exec(query, key, cred.AccessToken, string(userJSON), time.Now())
	return err
}

// Clear removes the credential stored under key
func (r *SessionRepository) Clear(key string) error {
	query := `DELETE FROM sessions WHERE key = ?`

	_, err := r.db.Exec(query, key)
	return err
}
