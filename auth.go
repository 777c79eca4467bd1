package main

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Roles carried in access tokens.
const (
	RoleAdmin   = "admin"
	RolePremium = "premium"
	RoleLocal   = "local"
)

// localUserID owns all data when the server runs without authentication.
var localUserID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// Identity is the authenticated caller.
type Identity struct {
	UserID uuid.UUID
	Role   string
}

// HasRole reports whether the caller holds one of roles. The local identity
// holds every role.
func (id Identity) HasRole(roles ...string) bool {
	return id.Role == RoleLocal || slices.Contains(roles, id.Role)
}

type identityKey struct{}

func withIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromCtx returns the caller set by the auth middleware.
func IdentityFromCtx(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// accessClaims extends the standard claims with the caller's role.
type accessClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role,omitempty"`
}

// Authenticator validates HS256 bearer tokens issued by the identity
// provider. With no secret configured every request runs as the local user.
type Authenticator struct {
	secret   []byte
	issuer   string
	required bool
}

// NewAuthenticator creates an authenticator from cfg.
func NewAuthenticator(cfg AuthConfig) *Authenticator {
	return &Authenticator{
		secret:   []byte(cfg.JWTSecret),
		issuer:   cfg.Issuer,
		required: cfg.Required,
	}
}

// Verify parses and validates a token.
func (a *Authenticator) Verify(token string) (Identity, error) {
	if token == "" {
		return Identity{}, fmt.Errorf("token is empty: %w", ErrUnauthorized)
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	parsed, err := jwt.ParseWithClaims(token, &accessClaims{}, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return Identity{}, fmt.Errorf("parse token: %w: %w", ErrUnauthorized, err)
	}

	claims, ok := parsed.Claims.(*accessClaims)
	if !ok || !parsed.Valid {
		return Identity{}, fmt.Errorf("invalid token claims: %w", ErrUnauthorized)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Identity{}, fmt.Errorf("invalid subject: %w: %w", ErrUnauthorized, err)
	}
	return Identity{UserID: userID, Role: claims.Role}, nil
}

// Middleware attaches the caller's identity to /api/ requests. Requests
// without a token run as the local user unless authentication is required.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/") {
			next.ServeHTTP(w, r)
			return
		}

		serve := func(id Identity) {
			noteIdentity(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), id)))
		}

		local := Identity{UserID: localUserID, Role: RoleLocal}
		if len(a.secret) == 0 {
			serve(local)
			return
		}

		token := extractBearerToken(r)
		if token == "" && !a.required {
			serve(local)
			return
		}

		id, err := a.Verify(token)
		if err != nil {
			log.Ctx(r.Context()).Debug().Err(err).Msg("rejected bearer token")
			jsonError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		serve(id)
	})
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(auth, "Bearer ")
}
