package secrets

import "context"

// Provider fetches a named secret stored as a flat JSON object.
// AWS Secrets Manager is the production implementation; tests supply fakes.
type Provider interface {
	GetSecret(ctx context.Context, name string) (map[string]string, error)
}
