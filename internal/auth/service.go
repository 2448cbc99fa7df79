// Package auth issues and validates the access tokens that carry the
// caller's wallet address.
package auth

import (
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/smartwill/lastwill/internal/clock"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token has expired")
)

// Claims are the access token claims. The subject is the caller address.
type Claims struct {
	jwt.RegisteredClaims
}

// Service signs and verifies HS256 access tokens.
type Service struct {
	signingKey []byte
	issuer     string
	ttl        time.Duration
	clock      clock.Clock
}

func NewService(signingKey, issuer string, ttl time.Duration, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.System{}
	}
	return &Service{signingKey: []byte(signingKey), issuer: issuer, ttl: ttl, clock: clk}
}

// Token is an issued access token.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Issue signs an access token for address.
func (s *Service) Issue(address common.Address) (Token, error) {
	now := s.clock.Now()
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   address.Hex(),
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		ID:        uuid.NewString(),
	}}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return Token{}, err
	}
	return Token{AccessToken: signed, TokenType: "Bearer", ExpiresIn: int64(s.ttl.Seconds())}, nil
}

// Verify validates the token and returns the address it was issued to.
func (s *Service) Verify(tokenString string) (common.Address, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithTimeFunc(s.clock.Now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return common.Address{}, ErrTokenExpired
		}
		return common.Address{}, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || !common.IsHexAddress(claims.Subject) {
		return common.Address{}, ErrInvalidToken
	}
	return common.HexToAddress(claims.Subject), nil
}
