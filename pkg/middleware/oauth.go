package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"shortlink/pkg/logging"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
)

type OAuthConfig struct {
	IssuerURL string
	Audience  string
}

type OAuthMiddleware struct {
	verifier *oidc.IDTokenVerifier
	logger   *logging.Logger
}

type AuthClaims struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
	Scope string `json:"scope"`
}

type contextKey string

const (
	subKey     contextKey = "sub"
	emailKey   contextKey = "email"
	ownerIDKey contextKey = "owner_id"
)

func NewOAuthMiddleware(config OAuthConfig, logger *logging.Logger) (*OAuthMiddleware, error) {
	provider, err := oidc.NewProvider(context.Background(), config.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("create OIDC provider: %w", err)
	}

	verifier := provider.Verifier(&oidc.Config{
		ClientID: config.Audience,
	})

	return &OAuthMiddleware{verifier: verifier, logger: logger}, nil
}

// Authenticate rejects requests without a valid bearer token and stores
// the caller's identity in the request context.
func (m *OAuthMiddleware) Authenticate() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, err := m.authenticate(r)
			if err != nil {
				m.logger.LogAuthEvent(r.Context(), "token_rejected", "", false)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuthenticate lets anonymous requests through untouched. When a
// bearer token is present and valid, the identity is attached so the
// request is treated as owned; an invalid token still means anonymous.
func (m *OAuthMiddleware) OptionalAuthenticate() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx, err := m.authenticate(r)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (m *OAuthMiddleware) authenticate(r *http.Request) (context.Context, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, fmt.Errorf("missing authorization header")
	}

	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == authHeader {
		return nil, fmt.Errorf("invalid authorization header format")
	}

	token, err := m.verifier.Verify(r.Context(), tokenString)
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}

	var claims AuthClaims
	if err := token.Claims(&claims); err != nil {
		return nil, fmt.Errorf("extract claims: %w", err)
	}

	ctx := r.Context()
	ctx = context.WithValue(ctx, subKey, claims.Sub)
	ctx = context.WithValue(ctx, emailKey, claims.Email)

	// Keycloak subjects are UUIDs; the owner id is the subject.
	if subUUID, err := uuid.Parse(claims.Sub); err == nil {
		ctx = context.WithValue(ctx, ownerIDKey, subUUID)
	}

	m.logger.LogAuthEvent(ctx, "token_accepted", claims.Sub, true)
	return ctx, nil
}

func GetSubFromContext(ctx context.Context) string {
	if sub, ok := ctx.Value(subKey).(string); ok {
		return sub
	}
	return ""
}

func GetEmailFromContext(ctx context.Context) string {
	if email, ok := ctx.Value(emailKey).(string); ok {
		return email
	}
	return ""
}

// GetOwnerIDFromContext returns the authenticated owner id, or uuid.Nil
// for anonymous requests.
func GetOwnerIDFromContext(ctx context.Context) uuid.UUID {
	if ownerID, ok := ctx.Value(ownerIDKey).(uuid.UUID); ok {
		return ownerID
	}
	return uuid.Nil
}

// WithOwnerID is exported for tests that need an authenticated context
// without running the middleware.
func WithOwnerID(ctx context.Context, ownerID uuid.UUID) context.Context {
	return context.WithValue(ctx, ownerIDKey, ownerID)
}
