package cache

import "fmt"

// RateKey builds the fixed-window counter key for a scope. The window number
// is part of the key so counters from different windows never collide.
func RateKey(scope string, window int64) string {
	return fmt.Sprintf("rate:%s:%d", scope, window)
}

// ProjectScope keys rate limiting by project slug.
func ProjectScope(slug string) string {
	return "project:" + slug
}

// TokenScope keys rate limiting by ingest token, so token callers are never
// limited by another caller's traffic.
func TokenScope(token string) string {
	return "token:" + token
}
