package admin

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const tokenTTL = 24 * time.Hour

var (
	ErrInvalidPassword = errors.New("invalid password")
	ErrInvalidToken    = errors.New("invalid token")
)

// AuthService issues and validates the bearer tokens that protect the
// administrative HTTP surface. The admin password is hashed at startup and
// never kept in plain text.
type AuthService struct {
	passwordHash []byte
	jwtSecret    []byte
}

type Claims struct {
	Admin bool `json:"admin"`
	jwt.RegisteredClaims
}

// NewAuthService hashes the admin password and prepares the signing secret.
// With an empty secret a random one is generated, which invalidates tokens
// across restarts.
func NewAuthService(adminPassword, jwtSecret string) (*AuthService, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash admin password: %w", err)
	}

	secret := []byte(jwtSecret)
	if jwtSecret == "" {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
	}

	return &AuthService{passwordHash: hash, jwtSecret: secret}, nil
}

func (a *AuthService) ValidatePassword(password string) error {
	if err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)); err != nil {
		return ErrInvalidPassword
	}
	return nil
}

func (a *AuthService) GenerateToken() (string, error) {
	now := time.Now()
	claims := &Claims{
		Admin: true,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.jwtSecret)
}

func (a *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return a.jwtSecret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid && claims.Admin {
		return claims, nil
	}
	return nil, ErrInvalidToken
}
