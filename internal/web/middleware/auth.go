package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"

	"github.com/JonMunkholm/tablekit/internal/access"
	"github.com/JonMunkholm/tablekit/internal/core"
	"github.com/JonMunkholm/tablekit/internal/logging"
)

// SessionCookie carries the session token when no Authorization header is
// sent.
const SessionCookie = "session"

// Claims are the session token claims issued by the identity provider.
// The subject is the user id.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// TokenVerifier validates HS256 session tokens.
type TokenVerifier struct {
	secret []byte
	issuer string
	parser *jwt.Parser
}

// NewTokenVerifier accepts tokens signed with secret. A non-empty issuer must
// match the iss claim.
func NewTokenVerifier(secret, issuer string) *TokenVerifier {
	return &TokenVerifier{
		secret: []byte(secret),
		issuer: issuer,
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}
}

// Verify parses token and returns its claims.
func (v *TokenVerifier) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse session token: %w", err)
	}
	if claims.Subject == "" {
		return nil, errors.New("session token has no subject")
	}
	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return nil, fmt.Errorf("session token issuer %q not accepted", claims.Issuer)
	}
	return claims, nil
}

// Sign issues a token carrying claims. The server never signs; tablectl and
// tests do.
func (v *TokenVerifier) Sign(claims Claims) (string, error) {
	if v.issuer != "" && claims.Issuer == "" {
		claims.Issuer = v.issuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// IdentityResolver maps verified token claims to a stored identity.
type IdentityResolver interface {
	Resolve(ctx context.Context, userID, email string) (access.Identity, error)
}

// ErrorWriter renders an error response.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// Authenticate verifies the session token, resolves the caller's identity and
// stores it in the request context. Requests without a valid token are
// rejected with core.ErrUnauthenticated.
func Authenticate(verifier *TokenVerifier, users IdentityResolver, onError ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := core.WithRequestMeta(r.Context(), core.RequestMeta{
				IPAddress: clientIP(r.RemoteAddr),
				UserAgent: r.UserAgent(),
			})

			token := bearerToken(r)
			if token == "" {
				onError(w, r, core.ErrUnauthenticated)
				return
			}

			claims, err := verifier.Verify(token)
			if err != nil {
				logging.FromContext(ctx).Warn("auth: rejected session token",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"error", err,
				)
				onError(w, r, core.ErrUnauthenticated)
				return
			}

			id, err := users.Resolve(ctx, claims.Subject, claims.Email)
			if err != nil {
				onError(w, r, fmt.Errorf("resolve identity: %w", err))
				return
			}

			next.ServeHTTP(w, r.WithContext(access.WithIdentity(ctx, id)))
		})
	}
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}
