package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// dummyHash keeps the bcrypt comparison on the code path even when the
// account does not exist, so response timing does not reveal whether an
// email is registered.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMye1VdLX0y2kYrOIbQm1z6kQmQnH6u1IIa"

// TokenPair is the result of a successful login or refresh.
type TokenPair struct {
	AccessToken  string `json:"token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// AuditRecorder receives authentication outcomes for the audit trail.
// Implementations must not block the request path.
type AuditRecorder interface {
	LoginSucceeded(ctx context.Context, p *Principal, ip string)
	LoginFailed(ctx context.Context, guard Guard, email, ip, reason string)
	LoggedOut(ctx context.Context, guard Guard, principalID, companyID int64)
	TokenRefreshed(ctx context.Context, p *Principal)
	TokenReuseDetected(ctx context.Context, p *Principal)
}

type nopRecorder struct{}

func (nopRecorder) LoginSucceeded(context.Context, *Principal, string)         {}
func (nopRecorder) LoginFailed(context.Context, Guard, string, string, string) {}
func (nopRecorder) LoggedOut(context.Context, Guard, int64, int64)             {}
func (nopRecorder) TokenRefreshed(context.Context, *Principal)                 {}
func (nopRecorder) TokenReuseDetected(context.Context, *Principal)             {}

// Service implements login, token validation, refresh and logout for all
// three guards.
type Service struct {
	store   Store
	tokens  *TokenService
	refresh RefreshStore
	audit   AuditRecorder
	logger  *slog.Logger
}

// ServiceOption customizes an auth Service.
type ServiceOption func(*Service)

// WithAuditRecorder routes authentication outcomes to the audit trail.
func WithAuditRecorder(rec AuditRecorder) ServiceOption {
	return func(s *Service) {
		s.audit = rec
	}
}

func NewService(store Store, tokens *TokenService, refresh RefreshStore, logger *slog.Logger, opts ...ServiceOption) *Service {
	s := &Service{store: store, tokens: tokens, refresh: refresh, audit: nopRecorder{}, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login authenticates email/password under the given guard. The error is
// identical whether the account is missing or the password is wrong.
func (s *Service) Login(ctx context.Context, guard Guard, email, password, ip string) (*Principal, *TokenPair, error) {
	account, err := s.store.FindByEmail(ctx, guard, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
			s.audit.LoginFailed(ctx, guard, email, ip, "invalid_credentials")
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		s.audit.LoginFailed(ctx, guard, email, ip, "invalid_credentials")
		return nil, nil, ErrInvalidCredentials
	}
	if !account.Active {
		s.audit.LoginFailed(ctx, guard, email, ip, "account_inactive")
		return nil, nil, ErrAccountInactive
	}
	if guard == GuardEmployee && !account.CompanyActive {
		s.audit.LoginFailed(ctx, guard, email, ip, "company_inactive")
		return nil, nil, ErrCompanyInactive
	}

	if err := s.store.RecordLogin(ctx, guard, account.ID, time.Now(), ip); err != nil {
		// Login metadata is best effort; the session itself is fine.
		s.logger.Warn("recording login", "guard", guard, "error", err)
	}

	principal := account.Principal(guard)
	pair, err := s.issuePair(ctx, principal)
	if err != nil {
		return nil, nil, err
	}
	s.audit.LoginSucceeded(ctx, principal, ip)
	return principal, pair, nil
}

// Authenticate verifies an access token and re-fetches the principal from
// storage: embedded claims are not trusted for active state, so
// deactivating an account or company takes effect on the next request.
func (s *Service) Authenticate(ctx context.Context, tokenString string) (*Principal, error) {
	claims, err := s.tokens.ValidateAccessToken(tokenString)
	if err != nil {
		return nil, err
	}

	account, err := s.store.FindByID(ctx, claims.Guard, claims.UserID)
	if err != nil {
		return nil, err
	}
	if !account.Active {
		return nil, ErrAccountInactive
	}
	if claims.Guard == GuardEmployee && !account.CompanyActive {
		return nil, ErrCompanyInactive
	}

	return account.Principal(claims.Guard), nil
}

// Refresh rotates a refresh token and returns a fresh pair. Presenting a
// superseded token revokes the entire family.
func (s *Service) Refresh(ctx context.Context, tokenString string) (*Principal, *TokenPair, error) {
	claims, err := s.tokens.ValidateRefreshToken(tokenString)
	if err != nil {
		return nil, nil, err
	}
	if claims.FamilyID == "" {
		return nil, nil, ErrTokenInvalid
	}

	account, err := s.store.FindByID(ctx, claims.Guard, claims.UserID)
	if err != nil {
		return nil, nil, err
	}
	if !account.Active {
		return nil, nil, ErrAccountInactive
	}
	if claims.Guard == GuardEmployee && !account.CompanyActive {
		return nil, nil, ErrCompanyInactive
	}
	principal := account.Principal(claims.Guard)

	newRefresh, err := s.tokens.CreateRefreshToken(principal, claims.FamilyID, claims.Generation+1)
	if err != nil {
		return nil, nil, fmt.Errorf("minting refresh token: %w", err)
	}

	_, err = s.refresh.RotateToken(ctx, claims.FamilyID, claims.Guard,
		HashToken(tokenString), claims.Generation, HashToken(newRefresh))
	if err != nil {
		switch {
		case errors.Is(err, ErrTokenReuse):
			s.audit.TokenReuseDetected(ctx, principal)
			return nil, nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
		case errors.Is(err, ErrFamilyRevoked), errors.Is(err, ErrFamilyNotFound):
			return nil, nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
		}
		return nil, nil, err
	}

	access, err := s.tokens.CreateAccessToken(principal)
	if err != nil {
		return nil, nil, fmt.Errorf("minting access token: %w", err)
	}

	s.audit.TokenRefreshed(ctx, principal)
	return principal, &TokenPair{
		AccessToken:  access,
		RefreshToken: newRefresh,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.tokens.AccessTTL().Seconds()),
	}, nil
}

// Logout revokes the refresh token family. Access tokens are stateless
// signed JWTs with no server-side blacklist; the client discards them.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		return err
	}
	if claims.FamilyID == "" {
		return nil
	}
	if err := s.refresh.RevokeFamily(ctx, claims.FamilyID, claims.Guard); err != nil {
		if errors.Is(err, ErrFamilyNotFound) {
			return nil
		}
		return err
	}
	s.audit.LoggedOut(ctx, claims.Guard, claims.UserID, claims.CompanyID)
	return nil
}

func (s *Service) issuePair(ctx context.Context, principal *Principal) (*TokenPair, error) {
	familyID, err := s.refresh.CreateFamilyAndReturnID(ctx, principal.Guard, principal.ID)
	if err != nil {
		return nil, err
	}

	refreshToken, err := s.tokens.CreateRefreshToken(principal, familyID, 1)
	if err != nil {
		return nil, fmt.Errorf("minting refresh token: %w", err)
	}
	if err := s.refresh.SetInitialTokenHash(ctx, familyID, principal.Guard, HashToken(refreshToken)); err != nil {
		return nil, err
	}

	access, err := s.tokens.CreateAccessToken(principal)
	if err != nil {
		return nil, fmt.Errorf("minting access token: %w", err)
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.tokens.AccessTTL().Seconds()),
	}, nil
}
