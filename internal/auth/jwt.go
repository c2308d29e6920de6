package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleAccount = "account"
	RoleParent  = "parent"
)

var ErrInvalidToken = errors.New("invalid token")

// JWTManager signs and validates the service's own HS256 tokens: account
// tokens from the local provider and short-lived parent tokens.
type JWTManager struct {
	secret    []byte
	issuer    string
	accessTTL time.Duration
	parentTTL time.Duration
	now       func() time.Time
}

// NewJWTManager creates a new JWT manager.
// secret must be at least 32 characters for HS256 security.
func NewJWTManager(secret, issuer string, accessTTL, parentTTL time.Duration) *JWTManager {
	return &JWTManager{
		secret:    []byte(secret),
		issuer:    issuer,
		accessTTL: accessTTL,
		parentTTL: parentTTL,
		now:       time.Now,
	}
}

type claims struct {
	jwt.RegisteredClaims
	Role  string `json:"role"`
	Email string `json:"email,omitempty"`
}

// Claims is the validated content of a token.
type Claims struct {
	AccountID string
	Email     string
	Role      string
	ExpiresAt time.Time
}

func (m *JWTManager) GenerateAccessToken(accountID, email string) (string, error) {
	return m.sign(accountID, email, RoleAccount, m.accessTTL)
}

// GenerateParentToken issues a token that unlocks parent endpoints for the
// family until it expires.
func (m *JWTManager) GenerateParentToken(accountID string) (string, error) {
	return m.sign(accountID, "", RoleParent, m.parentTTL)
}

// ParentTTL is how long an unlocked parent panel stays open.
func (m *JWTManager) ParentTTL() time.Duration { return m.parentTTL }

func (m *JWTManager) sign(subject, email, role string, ttl time.Duration) (string, error) {
	now := m.now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    m.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Role:  role,
		Email: email,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate parses and validates a token issued by this manager.
func (m *JWTManager) Validate(tokenString string) (Claims, error) {
	if tokenString == "" {
		return Claims{}, fmt.Errorf("%w: token is empty", ErrInvalidToken)
	}

	token, err := jwt.ParseWithClaims(tokenString, &claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithIssuer(m.issuer), jwt.WithTimeFunc(m.now))
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid || c.Subject == "" {
		return Claims{}, fmt.Errorf("%w: invalid claims", ErrInvalidToken)
	}

	out := Claims{AccountID: c.Subject, Email: c.Email, Role: c.Role}
	if c.ExpiresAt != nil {
		out.ExpiresAt = c.ExpiresAt.Time
	}
	return out, nil
}
