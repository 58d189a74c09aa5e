package redis

import "strings"

// Keyspace prefixes every key this service writes so a shared Redis can host
// other tenants.
type Keyspace string

const DefaultKeyspace Keyspace = "tc"

const (
	idempotencyPrefix = "idempotency"
	rateLimitPrefix   = "rate_limit"
	lockPrefix        = "lock"
)

// Key joins the non-blank parts under the keyspace with colons.
func (k Keyspace) Key(parts ...string) string {
	var b strings.Builder
	b.WriteString(string(k))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}

func (k Keyspace) idempotency(scope, id string) string { return k.Key(idempotencyPrefix, scope, id) }

func (k Keyspace) rateLimit(scope string) string { return k.Key(rateLimitPrefix, scope) }

func (k Keyspace) lock(name, env string) string {
	if env == "" {
		env = "local"
	}
	return k.Key(lockPrefix, name, env)
}
