package mockserver

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var ErrTokenInvalid = errors.New("token invalid")

// TokenIssuer signs and validates the mock backend's bearer tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	issuer string
}

type authClaims struct {
	GroupID string `json:"group_id,omitempty"`
	jwt.RegisteredClaims
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &TokenIssuer{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: "inpass-mock",
	}
}

// Issue signs a token whose subject is the user id.
func (t *TokenIssuer) Issue(user User) (string, error) {
	if len(t.secret) == 0 {
		return "", ErrTokenInvalid
	}
	now := time.Now().UTC()
	claims := authClaims{
		GroupID: user.GroupID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Subject validates a token and returns the user id it names.
func (t *TokenIssuer) Subject(tokenString string) (string, error) {
	if len(t.secret) == 0 || strings.TrimSpace(tokenString) == "" {
		return "", ErrTokenInvalid
	}
	var claims authClaims
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	_, err := parser.ParseWithClaims(tokenString, &claims, func(_ *jwt.Token) (any, error) {
		return t.secret, nil
	})
	if err != nil {
		return "", ErrTokenInvalid
	}
	if claims.Issuer != t.issuer || strings.TrimSpace(claims.Subject) == "" {
		return "", ErrTokenInvalid
	}
	return claims.Subject, nil
}

// HashPassword and CheckPassword wrap bcrypt for the account endpoints.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
