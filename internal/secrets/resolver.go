// Package secrets resolves the operator account the console logs in with
// when running headless.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	pkgsecrets "github.com/tiffany-su2004/smart-greenhouse/pkg/secrets"
)

// ErrIncompleteSecret means the secret exists but lacks a required field.
var ErrIncompleteSecret = errors.New("operator secret missing email or password")

// OperatorCredentials is the login the console uses when no session is stored.
// Secret format: {"email": "...", "password": "..."}
type OperatorCredentials struct {
	Email    string
	Password string
}

// OperatorResolver fetches OperatorCredentials from a secrets Provider,
// caching them so a restart loop does not hammer Secrets Manager.
type OperatorResolver struct {
	logger     *zap.Logger
	secretName string
	provider   pkgsecrets.Provider
	cache      *pkgsecrets.Cache[OperatorCredentials]
}

// NewOperatorResolver builds a resolver for the named secret.
func NewOperatorResolver(
	logger *zap.Logger,
	secretName string,
	provider pkgsecrets.Provider,
	cache *pkgsecrets.Cache[OperatorCredentials],
) *OperatorResolver {
	return &OperatorResolver{
		logger:     logger,
		secretName: secretName,
		provider:   provider,
		cache:      cache,
	}
}

func (r *OperatorResolver) cacheKey() string {
	return strings.ToLower(r.secretName)
}

// Resolve returns the operator credentials, from cache when available.
func (r *OperatorResolver) Resolve(ctx context.Context) (OperatorCredentials, error) {
	key := r.cacheKey()

	if creds, ok := r.cache.Get(key); ok {
		return creds, nil
	}

	secretMap, err := r.provider.GetSecret(ctx, r.secretName)
	if err != nil {
		r.logger.Warn("aws.secret_fetch_failed",
			zap.String("key", r.secretName),
			zap.Error(err))
		return OperatorCredentials{}, fmt.Errorf("resolve operator credentials: %w", err)
	}

	creds, err := parseOperator(secretMap)
	if err != nil {
		return OperatorCredentials{}, fmt.Errorf("parse secret %q: %w", r.secretName, err)
	}

	r.cache.Put(key, creds)

	r.logger.Info("aws.operator_resolved",
		zap.String("secret", r.secretName),
		zap.String("email", creds.Email))
	return creds, nil
}

// Invalidate drops the cached value, e.g. after the backend rejected the password.
func (r *OperatorResolver) Invalidate() {
	r.cache.Bust(r.cacheKey())
}

func parseOperator(m map[string]string) (OperatorCredentials, error) {
	creds := OperatorCredentials{
		Email:    strings.TrimSpace(m["email"]),
		Password: m["password"],
	}
	if creds.Email == "" {
		creds.Email = strings.TrimSpace(m["username"])
	}
	if creds.Email == "" || creds.Password == "" {
		return OperatorCredentials{}, ErrIncompleteSecret
	}
	return creds, nil
}
