package runauth

import (
	"encoding/json"
	"time"
)

// Claims is the decoded claim set exactly as the validation primitive
// returned it. The gate only reads from it.
type Claims map[string]any

// Email returns the email claim, or "" when absent or not a string.
func (c Claims) Email() string {
	return c.str("email")
}

// Subject returns the sub claim.
func (c Claims) Subject() string {
	return c.str("sub")
}

// Issuer returns the iss claim.
func (c Claims) Issuer() string {
	return c.str("iss")
}

// Audience returns the aud claim, which may be a string or a list.
func (c Claims) Audience() []string {
	switch v := c["aud"].(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// ExpiresAt returns the exp claim as UTC time, zero when absent.
func (c Claims) ExpiresAt() time.Time {
	return c.unix("exp")
}

// IssuedAt returns the iat claim as UTC time, zero when absent.
func (c Claims) IssuedAt() time.Time {
	return c.unix("iat")
}

func (c Claims) str(name string) string {
	s, _ := c[name].(string)
	return s
}

func (c Claims) unix(name string) time.Time {
	var secs int64
	switch v := c[name].(type) {
	case float64:
		secs = int64(v)
	case int64:
		secs = v
	case int:
		secs = int64(v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return time.Time{}
		}
		secs = n
	default:
		return time.Time{}
	}
	return time.Unix(secs, 0).UTC()
}
