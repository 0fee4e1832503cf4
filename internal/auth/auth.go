// Package auth verifies bearer tokens issued by the identity provider and
// signs the short-lived tokens used to link a Telegram chat to an account.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const linkAudience = "telegram-link"

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrMissingSecret = errors.New("jwt secret is not configured")
)

type Verifier struct {
	secret []byte
	now    func() time.Time
}

func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	return &Verifier{secret: []byte(secret), now: time.Now}, nil
}

// UserID validates an HS256 access token and returns its subject.
func (v *Verifier) UserID(token string) (uuid.UUID, error) {
	claims, err := v.parse(token)
	if err != nil {
		return uuid.Nil, err
	}
	for _, aud := range claims.Audience {
		if aud == linkAudience {
			return uuid.Nil, fmt.Errorf("%w: link token used as access token", ErrInvalidToken)
		}
	}
	return subject(claims)
}

// IssueAccessToken signs an access token for userID. The identity provider
// normally issues these; the service uses it for local tooling.
func (v *Verifier) IssueAccessToken(userID uuid.UUID, ttl time.Duration) (string, error) {
	now := v.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// IssueLinkToken signs a token the bot accepts in /start to bind a chat.
func (v *Verifier) IssueLinkToken(userID uuid.UUID, ttl time.Duration) (string, error) {
	now := v.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		Audience:  jwt.ClaimStrings{linkAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

func (v *Verifier) ParseLinkToken(token string) (uuid.UUID, error) {
	claims, err := v.parse(token, jwt.WithAudience(linkAudience))
	if err != nil {
		return uuid.Nil, err
	}
	return subject(claims)
}

func (v *Verifier) parse(token string, opts ...jwt.ParserOption) (*jwt.RegisteredClaims, error) {
	opts = append(opts,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	)

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return &claims, nil
}

func subject(claims *jwt.RegisteredClaims) (uuid.UUID, error) {
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: subject is not a user id", ErrInvalidToken)
	}
	return id, nil
}
