package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "chatgateway"

// Claims is the payload of a gateway token.
type Claims struct {
	Name        string  `json:"name,omitempty"`
	AvatarURL   *string `json:"avatar_url,omitempty"`
	AvatarColor *string `json:"avatar_color,omitempty"`
	jwt.RegisteredClaims
}

// JWTResolver authenticates HS256-signed tokens whose subject is the user id.
type JWTResolver struct {
	secret []byte
	now    func() time.Time
}

// NewJWTResolver returns a resolver that verifies tokens with secret.
func NewJWTResolver(secret []byte) *JWTResolver {
	return &JWTResolver{secret: secret, now: time.Now}
}

// Issue signs a token for user that expires after ttl.
func (r *JWTResolver) Issue(user User, ttl time.Duration) (string, error) {
	now := r.now()
	claims := &Claims{
		Name:        user.DisplayName,
		AvatarURL:   user.AvatarURL,
		AvatarColor: user.AvatarColor,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
}

// Resolve implements Resolver.
func (r *JWTResolver) Resolve(_ context.Context, token string) (User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return User{}, ErrInvalidToken
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return r.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(r.now),
	)
	if err != nil {
		return User{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return User{}, ErrInvalidToken
	}

	name := claims.Name
	if name == "" {
		name = claims.Subject
	}
	return User{
		ID:          claims.Subject,
		DisplayName: name,
		AvatarURL:   claims.AvatarURL,
		AvatarColor: claims.AvatarColor,
	}, nil
}

// IsInvalidToken reports whether err means the token did not authenticate.
func IsInvalidToken(err error) bool {
	return errors.Is(err, ErrInvalidToken)
}
