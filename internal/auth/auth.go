package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultAdminRole = "admin"

var (
	ErrNoToken      = errors.New("no authorization header")
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrNotAdmin     = errors.New("admin role required")
)

// Claims carried by session tokens. Subject is the owner id.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks bearer tokens minted by the session service. Session
// management itself lives there.
type Verifier struct {
	secret    []byte
	issuer    string
	adminRole string
}

func NewVerifier(cfg Config) (*Verifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid auth configuration: %w", err)
	}
	adminRole := cfg.AdminRole
	if adminRole == "" {
		adminRole = defaultAdminRole
	}
	return &Verifier{secret: []byte(cfg.JWTSecret), issuer: cfg.Issuer, adminRole: adminRole}, nil
}

// VerifyToken returns the owner id of the request's bearer token.
func (v *Verifier) VerifyToken(r *http.Request) (string, error) {
	claims, err := v.claims(r)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// VerifyAdmin is VerifyToken for operator endpoints.
func (v *Verifier) VerifyAdmin(r *http.Request) (string, error) {
	claims, err := v.claims(r)
	if err != nil {
		return "", err
	}
	if claims.Role != v.adminRole {
		return "", ErrNotAdmin
	}
	return claims.Subject, nil
}

func (v *Verifier) claims(r *http.Request) (*Claims, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, ErrNoToken
	}
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return nil, fmt.Errorf("%w: expected bearer scheme", ErrInvalidToken)
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return &claims, nil
}

// IssueToken signs a token for ownerID. The server never calls it; the
// uploader CLI and tests use it to mint development tokens.
func IssueToken(secret, ownerID, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   ownerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
