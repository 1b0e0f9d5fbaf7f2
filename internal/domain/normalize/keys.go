package normalize

import (
	"maps"
	"slices"
	"strings"
	"unicode"

	"github.com/okian/bowlsense/pkg/metrics"
)

// SnakeCase converts camelCase, PascalCase and kebab-case names to snake_case.
// Acronyms stay together, so "videoURL" becomes "video_url".
func SnakeCase(s string) string {
	rs := []rune(strings.TrimSpace(s))
	var b strings.Builder
	b.Grow(len(rs) + 4)
	for i, r := range rs {
		if r == '-' || r == ' ' || r == '.' {
			r = '_'
		}
		if unicode.IsUpper(r) {
			if i > 0 && !isSep(rs[i-1]) {
				prev := rs[i-1]
				nextLower := i+1 < len(rs) && unicode.IsLower(rs[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					b.WriteByte('_')
				}
			}
			r = unicode.ToLower(r)
		}
		if r == '_' && strings.HasSuffix(b.String(), "_") {
			continue
		}
		b.WriteRune(r)
	}
	return strings.Trim(b.String(), "_")
}

func isSep(r rune) bool {
	return r == '_' || r == '-' || r == ' ' || r == '.'
}

// CanonicalKeys returns a copy of v with every object key rewritten to
// snake_case, recursing through nested objects and arrays. When two keys
// collide the one already in snake_case wins, then the first in byte order.
func CanonicalKeys(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		exact := make(map[string]bool, len(t))
		for _, k := range slices.Sorted(maps.Keys(t)) {
			sk := SnakeCase(k)
			if sk == k {
				out[sk] = CanonicalKeys(t[k])
				exact[sk] = true
				continue
			}
			if _, ok := out[sk]; !ok {
				out[sk] = CanonicalKeys(t[k])
			}
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = CanonicalKeys(val)
		}
		return out
	default:
		return v
	}
}

// fold copies the first present alias onto canonical when canonical is absent.
func fold(m map[string]any, canonical string, aliases ...string) {
	if present(m, canonical) {
		return
	}
	for _, a := range aliases {
		if present(m, a) {
			m[canonical] = m[a]
			metrics.RecordNormalizeFallback(canonical)
			return
		}
	}
}

func present(m map[string]any, k string) bool {
	v, ok := m[k]
	if !ok || v == nil {
		return false
	}
	if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
		return false
	}
	return true
}

// Envelope keys and metadata that never describe the payload itself.
var (
	envelopeKeys = []string{"data", "result", "analysis", "payload"}          //nolint:gochecknoglobals // fixed vocabulary
	metaKeys     = map[string]bool{"success": true, "ok": true, "code": true} //nolint:gochecknoglobals // fixed vocabulary
)

const maxEnvelopeDepth = 4

// unwrap descends through {"data": {...}} style envelopes. Outer fields fill
// gaps in the inner object so an envelope-level status or message survives.
func unwrap(m map[string]any) map[string]any {
	for range maxEnvelopeDepth {
		if present(m, "id") {
			return m
		}
		var inner map[string]any
		var via string
		for _, k := range envelopeKeys {
			if im, ok := m[k].(map[string]any); ok {
				inner, via = im, k
				break
			}
		}
		if inner == nil {
			return m
		}
		merged := make(map[string]any, len(inner)+len(m))
		for k, v := range inner {
			merged[k] = v
		}
		for k, v := range m {
			if k == via || metaKeys[k] {
				continue
			}
			if _, ok := merged[k]; !ok {
				merged[k] = v
			}
		}
		m = merged
	}
	return m
}
