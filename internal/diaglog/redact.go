package diaglog

import "strings"

// sensitiveWords mark a payload key as secret when they appear anywhere in
// it, case-insensitively, so "bridge_token" and "AuthHeader" are caught as
// well as the bare names. The bridge credential must never reach diagnostic
// output.
var sensitiveWords = []string{
	"token",
	"password",
	"secret",
	"auth",
	"credential",
}

func isSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, w := range sensitiveWords {
		if strings.Contains(k, w) {
			return true
		}
	}
	return false
}

// Redact returns a copy of v with every value under a sensitive key replaced
// by the literal string "[REDACTED]". Maps and slices are walked recursively
// and never mutated in place; anything else passes through unchanged.
func Redact(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, child := range val {
			if isSensitiveKey(k) {
				out[k] = "[REDACTED]"
				continue
			}
			out[k] = Redact(child)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, elem := range val {
			out[i] = Redact(elem)
		}
		return out
	default:
		return v
	}
}
