package rest

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/golang-jwt/jwt/v5"
)

// AdminTokenHeader carries the admin token.
const AdminTokenHeader = "X-Admin-Token"

// ErrInvalidToken is returned for malformed, expired or forged tokens.
var ErrInvalidToken = errors.New("invalid token")

// Claims are the session token claims.
type Claims struct {
	UserID string `json:"uid"`
	Name   string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Identity is the caller of a request. An empty UserID is anonymous.
type Identity struct {
	UserID string
	Name   string
}

type ctxIdentityKey struct{}

// IssueToken signs a session token for userID.
func IssueToken(secret []byte, userID, name string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("user id is required")
	}
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		Name:   name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign token")
	}
	return signed, nil
}

// ParseToken verifies raw and returns its claims.
func ParseToken(secret []byte, raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to parse token"), ErrInvalidToken)
	}
	if !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// identityFrom returns the request identity set by optionalAuth.
func identityFrom(ctx context.Context) Identity {
	id, _ := ctx.Value(ctxIdentityKey{}).(Identity)
	return id
}

// bearerToken reads the token from the Authorization header, or from the
// token query parameter for websocket upgrades where browsers cannot set
// headers.
func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// optionalAuth attaches the caller identity. Requests without a token are
// anonymous; requests with a bad token are rejected.
func optionalAuth(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id Identity
			hasAuth := r.Header.Get("Authorization") != "" || r.URL.Query().Has("token")
			if hasAuth {
				raw := bearerToken(r)
				claims, err := ParseToken(secret, raw)
				if raw == "" || err != nil {
					writeError(w, ErrInvalidToken)
					return
				}
				id = Identity{UserID: claims.UserID, Name: claims.Name}
			}
			ctx := context.WithValue(r.Context(), ctxIdentityKey{}, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// adminOnly requires the configured admin token. With no token configured
// the admin routes do not exist.
func adminOnly(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				http.NotFound(w, r)
				return
			}
			if r.Header.Get(AdminTokenHeader) != token {
				writeError(w, ErrInvalidToken)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
