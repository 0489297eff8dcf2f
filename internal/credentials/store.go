// Package credentials persists the access/refresh credential pair of the
// current console session. Stores never validate token shape; the issuing
// backend owns that.
package credentials

import "context"

// Fixed storage keys. Shared backends prefix them with a namespace.
const (
	KeyAccess  = "access_token"
	KeyRefresh = "refresh_token"
)

// Pair is the credential pair issued at login and rotated on every refresh.
type Pair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Empty reports whether neither field is set.
func (p Pair) Empty() bool {
	return p.AccessToken == "" && p.RefreshToken == ""
}

// Store is the single owner of the credential pair.
//
// SetPair writes only the non-empty fields of the pair; an empty field
// leaves the stored value untouched. Clear removes both values.
type Store interface {
	Access(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
	SetPair(ctx context.Context, p Pair) error
	Clear(ctx context.Context) error
	HealthCheck(ctx context.Context) error
}

func namespaced(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + ":" + key
}
