package rpc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"grantchain/crypto"
)

// ScopeCalls must be present in a token's scope claim to submit calls.
const ScopeCalls = "calls"

// AuthConfig configures bearer token checks on the call API. Tokens are
// HMAC signed; the subject claim is the caller's bech32 account.
type AuthConfig struct {
	Secret    []byte
	Issuer    string
	Audience  string
	ClockSkew time.Duration
}

type callerKey struct{}

// Authenticator validates operator tokens.
type Authenticator struct {
	cfg AuthConfig
}

// NewAuthenticator returns nil when no secret is configured, which disables
// the call API.
func NewAuthenticator(cfg AuthConfig) *Authenticator {
	if len(cfg.Secret) == 0 {
		return nil
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
	return &Authenticator{cfg: cfg}
}

// IssueToken signs a token for account valid for ttl.
func IssueToken(cfg AuthConfig, account [20]byte, ttl time.Duration) (string, error) {
	if len(cfg.Secret) == 0 {
		return "", errors.New("auth: secret required")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   crypto.AccountString(account),
		"scope": ScopeCalls,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}
	if cfg.Issuer != "" {
		claims["iss"] = cfg.Issuer
	}
	if cfg.Audience != "" {
		claims["aud"] = cfg.Audience
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cfg.Secret)
}

// Middleware rejects requests without a valid token carrying ScopeCalls and
// stores the caller account in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := extractBearer(r.Header.Get("Authorization"))
		if tokenString == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		caller, scopes, err := a.parse(tokenString)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		if !hasScope(scopes, ScopeCalls) {
			writeError(w, http.StatusForbidden, "insufficient scope")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey{}, caller)))
	})
}

func (a *Authenticator) parse(tokenString string) ([20]byte, []string, error) {
	opts := []jwt.ParserOption{
		jwt.WithLeeway(a.cfg.ClockSkew),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if a.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.cfg.Issuer))
	}
	if a.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(a.cfg.Audience))
	}
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return a.cfg.Secret, nil
	}, opts...)
	if err != nil {
		return [20]byte{}, nil, err
	}
	if !token.Valid {
		return [20]byte{}, nil, errors.New("token invalid")
	}
	subject, err := claims.GetSubject()
	if err != nil {
		return [20]byte{}, nil, err
	}
	caller, err := crypto.ParseAccount(subject)
	if err != nil {
		return [20]byte{}, nil, fmt.Errorf("subject: %w", err)
	}
	return caller, scopesFrom(claims["scope"]), nil
}

func callerFrom(ctx context.Context) ([20]byte, bool) {
	caller, ok := ctx.Value(callerKey{}).([20]byte)
	return caller, ok
}

func extractBearer(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func scopesFrom(raw interface{}) []string {
	switch v := raw.(type) {
	case string:
		return strings.Fields(v)
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, entry := range v {
			if s, ok := entry.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func hasScope(scopes []string, want string) bool {
	for _, scope := range scopes {
		if scope == want {
			return true
		}
	}
	return false
}
