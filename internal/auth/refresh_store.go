package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// HashToken computes the SHA-256 hex digest of a raw JWT string.
// Used for reuse detection — we never store the raw token.
func HashToken(rawJWT string) string {
	h := sha256.Sum256([]byte(rawJWT))
	return hex.EncodeToString(h[:])
}

// TokenFamily is a rotating refresh-token chain for one principal under
// one guard. Each refresh bumps the generation; presenting a superseded
// token is treated as theft and revokes the whole family.
type TokenFamily struct {
	ID                string
	Guard             Guard
	PrincipalID       int64
	CurrentGeneration int
	CurrentTokenHash  string
	RevokedAt         *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// RefreshStore abstracts refresh token family persistence.
type RefreshStore interface {
	CreateFamilyAndReturnID(ctx context.Context, guard Guard, principalID int64) (string, error)
	SetInitialTokenHash(ctx context.Context, familyID string, guard Guard, tokenHash string) error
	RotateToken(ctx context.Context, familyID string, guard Guard, presentedHash string, presentedGeneration int, newTokenHash string) (*TokenFamily, error)
	RevokeFamily(ctx context.Context, familyID string, guard Guard) error
	RevokeAllForPrincipal(ctx context.Context, guard Guard, principalID int64) error
}

// PGRefreshStore handles refresh token family database operations.
type PGRefreshStore struct {
	pool *pgxpool.Pool
}

func NewRefreshStore(pool *pgxpool.Pool) *PGRefreshStore {
	return &PGRefreshStore{pool: pool}
}

// CreateFamilyAndReturnID creates a family with a placeholder hash.
// Call SetInitialTokenHash immediately after to store the real hash.
// This two-step approach solves the chicken-and-egg problem: the JWT
// needs the family ID, but the hash needs the JWT.
func (s *PGRefreshStore) CreateFamilyAndReturnID(ctx context.Context, guard Guard, principalID int64) (string, error) {
	var familyID string
	err := s.pool.QueryRow(ctx,
		`INSERT INTO refresh_token_families (guard, principal_id, current_generation, current_token_hash)
		 VALUES ($1, $2, 1, 'pending')
		 RETURNING id`,
		string(guard), principalID,
	).Scan(&familyID)
	if err != nil {
		return "", fmt.Errorf("creating token family: %w", err)
	}
	return familyID, nil
}

// SetInitialTokenHash stores the real token hash for a newly created family.
func (s *PGRefreshStore) SetInitialTokenHash(ctx context.Context, familyID string, guard Guard, tokenHash string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE refresh_token_families
		 SET current_token_hash = $1, updated_at = now()
		 WHERE id = $2 AND guard = $3 AND current_token_hash = 'pending'`,
		tokenHash, familyID, string(guard),
	)
	if err != nil {
		return fmt.Errorf("setting initial token hash: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("family %s not in pending state", familyID)
	}
	return nil
}

// RotateToken atomically validates and rotates a refresh token.
// The single UPDATE checks that the family is active, the hash matches,
// and the generation matches. If any condition fails, zero rows are
// updated and we diagnose the reason.
func (s *PGRefreshStore) RotateToken(ctx context.Context, familyID string, guard Guard, presentedHash string, presentedGeneration int, newTokenHash string) (*TokenFamily, error) {
	var family TokenFamily
	err := s.pool.QueryRow(ctx,
		`UPDATE refresh_token_families
		 SET current_generation = current_generation + 1,
		     current_token_hash = $1,
		     updated_at = now()
		 WHERE id = $2
		   AND guard = $3
		   AND current_token_hash = $4
		   AND current_generation = $5
		   AND revoked_at IS NULL
		 RETURNING id, guard, principal_id, current_generation, current_token_hash, revoked_at, created_at, updated_at`,
		newTokenHash, familyID, string(guard), presentedHash, presentedGeneration,
	).Scan(
		&family.ID, &family.Guard, &family.PrincipalID,
		&family.CurrentGeneration, &family.CurrentTokenHash,
		&family.RevokedAt, &family.CreatedAt, &family.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, s.diagnoseRotationFailure(ctx, familyID, guard)
		}
		return nil, fmt.Errorf("rotating token: %w", err)
	}
	return &family, nil
}

// diagnoseRotationFailure determines why a rotation failed and takes
// appropriate action (revoke on reuse detection).
func (s *PGRefreshStore) diagnoseRotationFailure(ctx context.Context, familyID string, guard Guard) error {
	var revokedAt *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT revoked_at FROM refresh_token_families
		 WHERE id = $1 AND guard = $2`,
		familyID, string(guard),
	).Scan(&revokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrFamilyNotFound
		}
		return fmt.Errorf("diagnosing rotation failure: %w", err)
	}

	if revokedAt != nil {
		return ErrFamilyRevoked
	}

	// Family exists and is active, but hash/generation didn't match.
	// This means token reuse — revoke the entire family.
	if revokeErr := s.RevokeFamily(ctx, familyID, guard); revokeErr != nil {
		return fmt.Errorf("revoking family after reuse detection: %w", revokeErr)
	}
	return ErrTokenReuse
}

// RevokeFamily marks a token family as revoked.
func (s *PGRefreshStore) RevokeFamily(ctx context.Context, familyID string, guard Guard) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE refresh_token_families
		 SET revoked_at = now(), updated_at = now()
		 WHERE id = $1 AND guard = $2 AND revoked_at IS NULL`,
		familyID, string(guard),
	)
	if err != nil {
		return fmt.Errorf("revoking token family: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrFamilyNotFound
	}
	return nil
}

// RevokeAllForPrincipal revokes all active token families for a principal.
func (s *PGRefreshStore) RevokeAllForPrincipal(ctx context.Context, guard Guard, principalID int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE refresh_token_families
		 SET revoked_at = now(), updated_at = now()
		 WHERE guard = $1 AND principal_id = $2 AND revoked_at IS NULL`,
		string(guard), principalID,
	)
	if err != nil {
		return fmt.Errorf("revoking all families for principal: %w", err)
	}
	return nil
}

var _ RefreshStore = (*PGRefreshStore)(nil)
