package secrets

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	pkgsecrets "github.com/tiffany-su2004/smart-greenhouse/pkg/secrets"
)

// --- Mock Provider ---

type mockProvider struct {
	secrets map[string]map[string]string
	err     error
	calls   int
}

func (m *mockProvider) GetSecret(_ context.Context, key string) (map[string]string, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if v, ok := m.secrets[key]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("secret not found: %s", key)
}

func newResolver(p pkgsecrets.Provider) *OperatorResolver {
	cache := pkgsecrets.NewCache[OperatorCredentials](5 * time.Minute)
	return NewOperatorResolver(zap.NewNop(), "dev/greenhouse/operator", p, cache)
}

// --- Tests ---

func TestOperatorResolver_FetchThenCache(t *testing.T) {
	mock := &mockProvider{secrets: map[string]map[string]string{
		"dev/greenhouse/operator": {"email": " ops@farm.io ", "password": "s3cret"},
	}}
	r := newResolver(mock)

	creds, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ops@farm.io", creds.Email)
	assert.Equal(t, "s3cret", creds.Password)

	_, err = r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, mock.calls, "second resolve should hit the cache")
}

func TestOperatorResolver_UsernameFallback(t *testing.T) {
	mock := &mockProvider{secrets: map[string]map[string]string{
		"dev/greenhouse/operator": {"username": "ops@farm.io", "password": "pw"},
	}}

	creds, err := newResolver(mock).Resolve(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "ops@farm.io", creds.Email)
}

func TestOperatorResolver_IncompleteSecret(t *testing.T) {
	mock := &mockProvider{secrets: map[string]map[string]string{
		"dev/greenhouse/operator": {"email": "ops@farm.io"},
	}}
	r := newResolver(mock)

	_, err := r.Resolve(context.Background())

	assert.ErrorIs(t, err, ErrIncompleteSecret)
	assert.Equal(t, 0, r.cache.Len(), "invalid secrets are not cached")
}

func TestOperatorResolver_ProviderError(t *testing.T) {
	mock := &mockProvider{err: errors.New("AccessDeniedException")}

	_, err := newResolver(mock).Resolve(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "AccessDeniedException")
}

func TestOperatorResolver_Invalidate(t *testing.T) {
	mock := &mockProvider{secrets: map[string]map[string]string{
		"dev/greenhouse/operator": {"email": "ops@farm.io", "password": "old"},
	}}
	r := newResolver(mock)

	_, err := r.Resolve(context.Background())
	require.NoError(t, err)

	mock.secrets["dev/greenhouse/operator"]["password"] = "rotated"
	r.Invalidate()

	creds, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "rotated", creds.Password)
	assert.Equal(t, 2, mock.calls)
}
