package scrape

import (
	"net/url"
	"path"
	"strings"
)

// Restaurant sites hang ordering, booking and account flows off the same
// host as the menu. None of them carry menu text worth reading.
var defaultExcludePatterns = []string{
	"/cart/*",
	"/checkout/*",
	"/account/*",
	"/login",
	"/gift-cards/*",
	"/careers/*",
	"/jobs/*",
	"/blog/*",
	"/press/*",
}

// DefaultMenuPaths are probed after the site root when looking for a menu.
var DefaultMenuPaths = []string{"/menu"}

// PathMatcher rejects URLs whose path matches an exclude glob. A pattern
// ending in "/*" also matches its directory and everything below it.
type PathMatcher struct {
	patterns []string
}

// NewPathMatcher creates a PathMatcher. With no patterns the restaurant-site
// defaults apply.
func NewPathMatcher(patterns []string) *PathMatcher {
	if len(patterns) == 0 {
		patterns = defaultExcludePatterns
	}
	lowered := make([]string, len(patterns))
	for i, p := range patterns {
		lowered[i] = strings.ToLower(p)
	}
	return &PathMatcher{patterns: lowered}
}

// Patterns returns the configured patterns, lower-cased.
func (m *PathMatcher) Patterns() []string {
	return m.patterns
}

// IsExcluded reports whether rawURL should not be scraped. Unparseable URLs
// are excluded.
func (m *PathMatcher) IsExcluded(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	p := strings.ToLower(u.Path)
	for _, pattern := range m.patterns {
		if globMatch(pattern, p) {
			return true
		}
	}
	return false
}

func globMatch(pattern, p string) bool {
	if ok, _ := path.Match(pattern, p); ok {
		return true
	}
	dir, ok := strings.CutSuffix(pattern, "/*")
	return ok && (p == dir || strings.HasPrefix(p, dir+"/"))
}

// MenuCandidates returns the pages to read for a restaurant menu: the site
// itself followed by each of paths resolved against it, minus duplicates and
// anything m excludes.
func (m *PathMatcher) MenuCandidates(site string, paths []string) []string {
	base, err := url.Parse(site)
	if err != nil || base.Host == "" {
		return nil
	}

	seen := map[string]bool{}
	var out []string
	add := func(u string) {
		if !seen[u] && !m.IsExcluded(u) {
			seen[u] = true
			out = append(out, u)
		}
	}
	add(site)

	root := strings.TrimRight(base.Path, "/")
	for _, p := range paths {
		next := *base
		next.RawQuery = ""
		next.Path = root + "/" + strings.TrimLeft(p, "/")
		add(next.String())
	}
	return out
}
