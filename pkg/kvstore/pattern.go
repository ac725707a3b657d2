package kvstore

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// patternSpecials are the characters Redis MATCH or the glob compiler treat as syntax.
// '{' and '}' only mean alternation to the compiler, escaping them is a no-op for Redis.
const patternSpecials = `\*?[]{}`

// EscapePattern makes s match itself literally inside a glob pattern
func EscapePattern(s string) string {
	if !strings.ContainsAny(s, patternSpecials) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(patternSpecials, s[i]) >= 0 {
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// CompilePattern compiles a SCAN pattern for in-process matching. Without separators '*'
// spans any sequence, like in Redis. Character classes negate with '!' instead of '^'.
func CompilePattern(pattern string) (glob.Glob, error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid key pattern %q: %w", pattern, err)
	}
	return g, nil
}

// MatchPattern reports whether key matches pattern. An invalid pattern matches nothing.
func MatchPattern(pattern string, key string) bool {
	g, err := CompilePattern(pattern)
	if err != nil {
		return false
	}
	return g.Match(key)
}
