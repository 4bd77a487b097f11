package sync

import (
	"net/url"
	"regexp"
	"strings"
)

// sshRemoteRe matches the scp-like SSH remote form: user@host:org/repo(.git)?
var sshRemoteRe = regexp.MustCompile(`^[\w.-]+@([\w.-]+):(.+?)$`)

// NormalizeRemote canonicalizes a git remote URL to "host/path" form for
// cross-workstation project matching (spec §4.7's preconditions): SSH
// `git@host:org/repo.git` and HTTPS `https://host/org/repo.git` both
// collapse to the same string, with ".git", a trailing slash, and case
// differences stripped.
func NormalizeRemote(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}

	var host, path string
	if m := sshRemoteRe.FindStringSubmatch(raw); m != nil {
		host, path = m[1], m[2]
	} else if u, err := url.Parse(raw); err == nil && u.Host != "" {
		host, path = u.Host, u.Path
	} else if !strings.Contains(raw, "://") && !strings.Contains(raw, "@") && strings.Contains(raw, "/") {
		// Already in canonical "host/path" form — this is our own output fed
		// back in, not a URL or scp remote. Accept it so a second normalize
		// pass is a no-op instead of being rejected for lacking a scheme.
		parts := strings.SplitN(raw, "/", 2)
		host, path = parts[0], parts[1]
	} else {
		return "", false
	}

	path = strings.TrimPrefix(path, "/")
	path = strings.TrimSuffix(path, ".git")
	path = strings.TrimSuffix(path, "/")
	if host == "" || path == "" {
		return "", false
	}

	return strings.ToLower(host + "/" + path), true
}

// NormalizeRemotes normalizes every remote in raw, dropping ones that don't
// parse, and returns the deduplicated set.
func NormalizeRemotes(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	var out []string
	for _, r := range raw {
		n, ok := NormalizeRemote(r)
		if !ok || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// Intersects reports whether a and b share at least one normalized remote.
func Intersects(a, b []string) bool {
	set := make(map[string]bool, len(a))
	for _, r := range a {
		set[r] = true
	}
	for _, r := range b {
		if set[r] {
			return true
		}
	}
	return false
}
