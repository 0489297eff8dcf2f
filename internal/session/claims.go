package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Claims are the fields of an access token the console reads for display
// and logging. Signatures are not checked; the backend remains the only
// authority on validity.
type Claims struct {
	Subject   string
	Role      string
	ExpiresAt time.Time // zero when the token carries no exp
}

// PeekClaims decodes an access token without verifying it.
func PeekClaims(token string) (Claims, error) {
	if token == "" {
		return Claims{}, errors.New("empty token")
	}
	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, mc); err != nil {
		return Claims{}, fmt.Errorf("decode access token: %w", err)
	}

	var c Claims
	c.Subject, _ = mc.GetSubject()
	if role, ok := mc["role"].(string); ok {
		c.Role = role
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	return c, nil
}

// claimFields returns log fields for the claims present in token. Opaque
// tokens yield none.
func claimFields(token string) []zap.Field {
	c, err := PeekClaims(token)
	if err != nil {
		return nil
	}
	var fields []zap.Field
	if c.Subject != "" {
		fields = append(fields, zap.String("sub", c.Subject))
	}
	if c.Role != "" {
		fields = append(fields, zap.String("role", c.Role))
	}
	if !c.ExpiresAt.IsZero() {
		fields = append(fields, zap.Time("expires_at", c.ExpiresAt))
	}
	return fields
}
