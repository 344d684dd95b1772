package api

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kylo-io/hadoop-authz/pkg/authz"
)

// JWTConfig configures identity extraction from bearer tokens.
type JWTConfig struct {
	// UserClaim holds the user name. Default: "sub".
	UserClaim string
	// GroupsClaim holds the user's groups, as a string array or a comma
	// separated string. Dot-notation selects nested claims
	// (e.g. "realm_access.roles"). Default: "groups".
	GroupsClaim string
	// PublicKeyPath is a PEM-encoded RSA public key for RS256 verification.
	// If empty, signatures are not verified (trusted proxy mode); expiry,
	// Issuer and Audience are still checked.
	PublicKeyPath string
	Issuer        string
	Audience      string
}

// JWTIdentityMiddleware returns middleware that stores the identity carried
// by an "Authorization: Bearer" token in the request context. Requests
// without a valid token get the anonymous identity.
func JWTIdentityMiddleware(cfg JWTConfig, logger *slog.Logger) (func(http.Handler) http.Handler, error) {
	if cfg.UserClaim == "" {
		cfg.UserClaim = "sub"
	}
	if cfg.GroupsClaim == "" {
		cfg.GroupsClaim = "groups"
	}
	if logger == nil {
		logger = slog.Default()
	}

	var publicKey *rsa.PublicKey
	if cfg.PublicKeyPath != "" {
		key, err := loadPublicKey(cfg.PublicKeyPath)
		if err != nil {
			return nil, err
		}
		publicKey = key
		logger.Info("jwt identity: using RS256 verification", "keyPath", cfg.PublicKeyPath)
	} else {
		logger.Warn("jwt identity: no public key configured, tokens parsed without verification (trusted proxy mode)")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := authz.Identity{User: "anonymous"}
			if token := bearerToken(r); token != "" {
				claims, err := parseClaims(token, publicKey, cfg)
				if err != nil {
					logger.Debug("jwt parse failed, using anonymous identity", "error", err)
				} else {
					id = identityFromClaims(claims, cfg)
				}
			}
			next.ServeHTTP(w, r.WithContext(authz.WithIdentity(r.Context(), id)))
		})
	}, nil
}

func loadPublicKey(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read JWT public key from %s: %w", path, err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block from %s", path)
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is not RSA (got %T)", parsed)
	}
	return key, nil
}

func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func parseClaims(tokenString string, publicKey *rsa.PublicKey, cfg JWTConfig) (jwt.MapClaims, error) {
	var opts []jwt.ParserOption
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	var (
		token *jwt.Token
		err   error
	)
	if publicKey != nil {
		token, err = jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return publicKey, nil
		}, opts...)
	} else {
		// ParseUnverified skips exp, iss and aud; check them here.
		token, _, err = jwt.NewParser(opts...).ParseUnverified(tokenString, jwt.MapClaims{})
		if err == nil {
			err = jwt.NewValidator(opts...).Validate(token.Claims)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("JWT parse error: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("unexpected claims type")
	}
	return claims, nil
}

func identityFromClaims(claims jwt.MapClaims, cfg JWTConfig) authz.Identity {
	id := authz.Identity{User: "anonymous"}
	if user, ok := claimAt(claims, cfg.UserClaim).(string); ok && user != "" {
		id.User = user
	}
	switch v := claimAt(claims, cfg.GroupsClaim).(type) {
	case string:
		for _, g := range strings.Split(v, ",") {
			if g = strings.TrimSpace(g); g != "" {
				id.Groups = append(id.Groups, g)
			}
		}
	case []any:
		for _, g := range v {
			if s, ok := g.(string); ok && s != "" {
				id.Groups = append(id.Groups, s)
			}
		}
	}
	return id
}

// claimAt resolves a dot-separated claim path.
func claimAt(claims jwt.MapClaims, path string) any {
	var current any = map[string]any(claims)
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		if current, ok = m[part]; !ok {
			return nil
		}
	}
	return current
}
