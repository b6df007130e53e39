// Package auth stores per-user MCP service credentials and injects them
// into service configurations at connect time.
package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/STPDevteam/awesome-server/pkg/models"
)

// ErrAuthNotFound — no credential record exists for the (user, service) pair.
var ErrAuthNotFound = errors.New("auth record not found")

// Store persists credential records in the mcp_auth table.
// auth_data is stored as a JSON object keyed by credential name.
type Store struct {
	db *sql.DB
}

// NewStore creates a credential store over an open database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Save upserts a credential record. Saving resets verification: changed
// credentials must be re-verified before injection.
func (s *Store) Save(ctx context.Context, userID, serviceName string, authData map[string]string) error {
	data, err := json.Marshal(authData)
	if err != nil {
		return fmt.Errorf("marshal auth data: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO mcp_auth (user_id, service_name, auth_data, is_verified, updated_at)
		VALUES ($1, $2, $3, FALSE, NOW())
		ON CONFLICT (user_id, service_name)
		DO UPDATE SET auth_data = EXCLUDED.auth_data,
		              is_verified = FALSE,
		              verified_at = NULL,
		              updated_at = NOW()`,
		userID, serviceName, data)
	if err != nil {
		return fmt.Errorf("save auth for %s/%s: %w", userID, serviceName, err)
	}
	return nil
}

// Get fetches the credential record for a (user, service) pair.
func (s *Store) Get(ctx context.Context, userID, serviceName string) (*models.MCPAuth, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, service_name, auth_data, is_verified, verified_at
		FROM mcp_auth
		WHERE user_id = $1 AND service_name = $2`,
		userID, serviceName)

	var rec models.MCPAuth
	var data []byte
	err := row.Scan(&rec.UserID, &rec.ServiceName, &data, &rec.IsVerified, &rec.VerifiedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", ErrAuthNotFound, userID, serviceName)
	}
	if err != nil {
		return nil, fmt.Errorf("get auth for %s/%s: %w", userID, serviceName, err)
	}

	if err := json.Unmarshal(data, &rec.AuthData); err != nil {
		return nil, fmt.Errorf("decode auth data for %s/%s: %w", userID, serviceName, err)
	}
	return &rec, nil
}

// MarkVerified flags a record as verified after a successful test connection.
func (s *Store) MarkVerified(ctx context.Context, userID, serviceName string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE mcp_auth
		SET is_verified = TRUE, verified_at = NOW(), updated_at = NOW()
		WHERE user_id = $1 AND service_name = $2`,
		userID, serviceName)
	if err != nil {
		return fmt.Errorf("mark verified for %s/%s: %w", userID, serviceName, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s/%s", ErrAuthNotFound, userID, serviceName)
	}
	return nil
}

// Delete removes a credential record.
func (s *Store) Delete(ctx context.Context, userID, serviceName string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM mcp_auth WHERE user_id = $1 AND service_name = $2`,
		userID, serviceName)
	if err != nil {
		return fmt.Errorf("delete auth for %s/%s: %w", userID, serviceName, err)
	}
	return nil
}
