package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// EngineAudience is stamped on tokens minted by this service. Tokens from
// the account service carry no audience and are accepted as well.
const EngineAudience = "kanso-discipline-engine"

var errInvalidSubject = errors.New("invalid token subject")

// EngineClaims are the claims read from a bearer token. Only the subject
// (the user id) matters to the engine; the rest is standard validation.
type EngineClaims struct {
	jwt.RegisteredClaims
}

// TokenService validates the bearer tokens issued by the account service.
// GenerateToken exists for operator tooling and tests.
type TokenService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenService(secretKey string, issuer string, tokenDuration time.Duration) *TokenService {
	return &TokenService{
		secret: []byte(secretKey),
		issuer: issuer,
		ttl:    tokenDuration,
		now:    time.Now,
	}
}

// GenerateToken mints a short-lived token for userID, used by settlectl to
// call the settlement API on a user's behalf.
func (s *TokenService) GenerateToken(userID string) (string, error) {
	if userID == "" {
		return "", errInvalidSubject
	}
	now := s.now()
	claims := EngineClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{EngineAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("token service: sign token for %s: %w", userID, err)
	}
	return signed, nil
}

// ValidateToken returns the user id carried by a valid HMAC-signed token.
func (s *TokenService) ValidateToken(tokenString string) (string, error) {
	claims := &EngineClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, s.key,
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid token claims")
	}

	// Tokens that name an audience must name this engine.
	if len(claims.Audience) > 0 && !audienceIncludes(claims.Audience, EngineAudience) {
		return "", fmt.Errorf("invalid token: %w", jwt.ErrTokenInvalidAudience)
	}
	if claims.Subject == "" {
		return "", errInvalidSubject
	}
	return claims.Subject, nil
}

func (s *TokenService) key(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return s.secret, nil
}

func audienceIncludes(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}
