package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/notarydesk/authcore/internal/domain"
)

// FallbackSecret signs tokens when no secret is configured. Servers using it
// must say so at startup.
const FallbackSecret = "change-me-in-production"

// DefaultTTL is the validity window of a session token.
const DefaultTTL = 24 * time.Hour

// With the library default of whole seconds, exp is truncated and a token
// could die up to a second before its ttl. Millisecond NumericDates keep the
// window within a millisecond of now+ttl. The setting is process-wide.
func init() {
	jwt.TimePrecision = time.Millisecond
}

// SessionClaims is the identity a token asserts.
type SessionClaims struct {
	UserID    int64
	Username  string
	Role      domain.Role
	PartnerID *int64
}

// Claims is the signed token payload.
type Claims struct {
	UserID    int64       `json:"id"`
	Username  string      `json:"username"`
	Role      domain.Role `json:"role"`
	PartnerID *int64      `json:"partnerId"`
	jwt.RegisteredClaims
}

// Session returns the identity part of the claims.
func (c *Claims) Session() SessionClaims {
	return SessionClaims{
		UserID:    c.UserID,
		Username:  c.Username,
		Role:      c.Role,
		PartnerID: c.PartnerID,
	}
}

// TokenErrorKind classifies why a token was rejected.
type TokenErrorKind int

const (
	TokenMalformed TokenErrorKind = iota
	TokenExpired
	TokenSignatureInvalid
)

func (k TokenErrorKind) String() string {
	switch k {
	case TokenExpired:
		return "expired"
	case TokenSignatureInvalid:
		return "signature_invalid"
	default:
		return "malformed"
	}
}

// TokenError is returned by Verify for every rejected token.
type TokenError struct {
	Kind TokenErrorKind
	Err  error
}

func (e *TokenError) Error() string {
	if e.Err == nil {
		return "token " + e.Kind.String()
	}
	return fmt.Sprintf("token %s: %v", e.Kind, e.Err)
}

func (e *TokenError) Unwrap() error { return e.Err }

// IsTokenError reports whether err is a *TokenError of the given kind.
func IsTokenError(err error, kind TokenErrorKind) bool {
	var te *TokenError
	return errors.As(err, &te) && te.Kind == kind
}

// TokenManager issues and verifies stateless HS256 session tokens.
type TokenManager struct {
	secret   []byte
	issuer   string
	fallback bool
	now      func() time.Time
}

func NewTokenManager(secret, issuer string) *TokenManager {
	fallback := false
	if secret == "" {
		secret = FallbackSecret
		fallback = true
	}
	if issuer == "" {
		issuer = "authcore"
	}
	return &TokenManager{secret: []byte(secret), issuer: issuer, fallback: fallback, now: time.Now}
}

// UsingFallbackSecret reports whether tokens are signed with FallbackSecret.
func (tm *TokenManager) UsingFallbackSecret() bool {
	return tm.fallback
}

// WithClock replaces the time source. Intended for tests.
func (tm *TokenManager) WithClock(now func() time.Time) *TokenManager {
	tm.now = now
	return tm
}

// Issue signs claims valid for ttl from now.
func (tm *TokenManager) Issue(sc SessionClaims, ttl time.Duration) (string, error) {
	if sc.UserID == 0 || sc.Username == "" {
		return "", fmt.Errorf("user id and username required")
	}
	if !sc.Role.Valid() {
		return "", domain.ErrInvalidRole
	}
	now := tm.now()
	claims := Claims{
		UserID:    sc.UserID,
		Username:  sc.Username,
		Role:      sc.Role,
		PartnerID: sc.PartnerID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    tm.issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tm.secret)
}

// Verify checks the signature and validity window of tokenString. Every
// failure is a *TokenError.
func (tm *TokenManager) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return tm.secret, nil
	},
		jwt.WithTimeFunc(tm.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(tm.issuer),
	)
	if err != nil {
		return nil, classify(err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, &TokenError{Kind: TokenMalformed, Err: errors.New("invalid token claims")}
	}
	if claims.UserID == 0 || claims.Username == "" || !claims.Role.Valid() {
		return nil, &TokenError{Kind: TokenMalformed, Err: errors.New("incomplete identity claims")}
	}
	return claims, nil
}

func classify(err error) *TokenError {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return &TokenError{Kind: TokenSignatureInvalid, Err: err}
	case errors.Is(err, jwt.ErrTokenExpired):
		return &TokenError{Kind: TokenExpired, Err: err}
	default:
		return &TokenError{Kind: TokenMalformed, Err: err}
	}
}

// ExtractToken returns the credential of an "Authorization: Bearer <token>"
// header value.
func ExtractToken(authHeader string) (string, error) {
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", fmt.Errorf("invalid authorization header")
	}
	return parts[1], nil
}
