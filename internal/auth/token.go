package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

type andinoClaims struct {
	jwt.RegisteredClaims
	UserID     int64  `json:"uid"`
	Guard      string `json:"gua"`
	CompanyID  int64  `json:"cid,omitempty"`
	TokenType  string `json:"typ"`
	FamilyID   string `json:"fam,omitempty"`
	Generation int    `json:"gen,omitempty"`
}

// TokenClaims is the validated, decoded form of a token.
type TokenClaims struct {
	UserID     int64
	Guard      Guard
	CompanyID  int64
	TokenType  string
	FamilyID   string
	Generation int
	ExpiresAt  time.Time
}

// TokenService mints and validates HS256 JWTs for all three guards.
type TokenService struct {
	signingKey    []byte
	issuer        string
	accessExpiry  time.Duration
	refreshExpiry time.Duration
	refreshGrace  time.Duration
}

func NewTokenService(signingKey, issuer string, accessExpiryMins, refreshExpiryHours, refreshGraceMins int) *TokenService {
	return &TokenService{
		signingKey:    []byte(signingKey),
		issuer:        issuer,
		accessExpiry:  time.Duration(accessExpiryMins) * time.Minute,
		refreshExpiry: time.Duration(refreshExpiryHours) * time.Hour,
		refreshGrace:  time.Duration(refreshGraceMins) * time.Minute,
	}
}

// AccessTTL returns the access token lifetime.
func (s *TokenService) AccessTTL() time.Duration { return s.accessExpiry }

// CreateAccessToken mints an access token carrying the principal's guard
// and, for employees, the owning company.
func (s *TokenService) CreateAccessToken(p *Principal) (string, error) {
	return s.createToken(p, tokenTypeAccess, s.accessExpiry, "", 0)
}

// CreateRefreshToken mints a refresh token bound to a server-side token
// family and generation.
func (s *TokenService) CreateRefreshToken(p *Principal, familyID string, generation int) (string, error) {
	return s.createToken(p, tokenTypeRefresh, s.refreshExpiry, familyID, generation)
}

func (s *TokenService) createToken(p *Principal, tokenType string, expiry time.Duration, familyID string, generation int) (string, error) {
	now := time.Now()

	claims := andinoClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   strconv.FormatInt(p.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		},
		UserID:     p.ID,
		Guard:      string(p.Guard),
		CompanyID:  p.CompanyID,
		TokenType:  tokenType,
		FamilyID:   familyID,
		Generation: generation,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.signingKey)
}

// ValidateAccessToken verifies signature, issuer and expiry and returns
// the decoded claims of an access token.
func (s *TokenService) ValidateAccessToken(tokenString string) (*TokenClaims, error) {
	claims, err := s.parse(tokenString, 0)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != tokenTypeAccess {
		return nil, fmt.Errorf("%w: access token required", ErrTokenInvalid)
	}
	return claims, nil
}

// ValidateRefreshToken verifies a refresh token, accepting tokens expired
// within the configured grace window so an in-flight refresh is not lost
// to clock edge races.
func (s *TokenService) ValidateRefreshToken(tokenString string) (*TokenClaims, error) {
	claims, err := s.parse(tokenString, s.refreshGrace)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != tokenTypeRefresh {
		return nil, fmt.Errorf("%w: refresh token required", ErrTokenInvalid)
	}
	return claims, nil
}

func (s *TokenService) parse(tokenString string, leeway time.Duration) (*TokenClaims, error) {
	opts := []jwt.ParserOption{jwt.WithIssuer(s.issuer)}
	if leeway > 0 {
		opts = append(opts, jwt.WithLeeway(leeway))
	}

	token, err := jwt.ParseWithClaims(tokenString, &andinoClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.signingKey, nil
	}, opts...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*andinoClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	guard, err := ParseGuard(claims.Guard)
	if err != nil {
		return nil, err
	}

	out := &TokenClaims{
		UserID:     claims.UserID,
		Guard:      guard,
		CompanyID:  claims.CompanyID,
		TokenType:  claims.TokenType,
		FamilyID:   claims.FamilyID,
		Generation: claims.Generation,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}
