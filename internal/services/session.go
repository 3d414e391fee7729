package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/AnshRaj112/airdrop-chat-backend/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

// DefaultSessionDuration is how long issued tokens stay valid.
const DefaultSessionDuration = 7 * 24 * time.Hour

// SessionClaims is the payload the dashboard signs into its session token.
type SessionClaims struct {
	jwt.RegisteredClaims
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// SessionResolver turns a signed HS256 token into a Principal.
type SessionResolver struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewSessionResolver(secret, issuer string) *SessionResolver {
	return &SessionResolver{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// Resolve validates the token and returns the principal it names.
// Every failure is reported as ErrUnauthorized.
func (r *SessionResolver) Resolve(token string) (models.Principal, error) {
	if token == "" {
		return models.Principal{}, fmt.Errorf("%w: missing token", ErrUnauthorized)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(r.now),
	}
	if r.issuer != "" {
		opts = append(opts, jwt.WithIssuer(r.issuer))
	}

	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return r.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return models.Principal{}, fmt.Errorf("%w: token expired", ErrUnauthorized)
		}
		return models.Principal{}, fmt.Errorf("%w: invalid token", ErrUnauthorized)
	}
	if !parsed.Valid {
		return models.Principal{}, fmt.Errorf("%w: invalid token", ErrUnauthorized)
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return models.Principal{}, fmt.Errorf("%w: token has no user", ErrUnauthorized)
	}

	role := claims.Role
	if role != models.RoleAdmin {
		role = models.RoleUser
	}
	return models.Principal{UserID: userID, Username: claims.Username, Role: role}, nil
}

// Issue signs a token for p. The dashboard issues its own tokens; this is
// used by tooling and tests.
func (r *SessionResolver) Issue(p models.Principal, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultSessionDuration
	}
	now := r.now()
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    r.issuer,
			Subject:   p.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID:   p.UserID,
		Username: p.Username,
		Role:     p.Role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
}
