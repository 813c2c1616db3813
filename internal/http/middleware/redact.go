package middleware

import "strings"

const reviewPathPrefix = "/api/review/files/"

// redactPath masks the bearer token segment of reviewer links.
func redactPath(path string) string {
	if !strings.HasPrefix(strings.ToLower(path), reviewPathPrefix) {
		return path
	}
	rest := path[len(reviewPathPrefix):]
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		return reviewPathPrefix + "***" + rest[i:]
	}
	return reviewPathPrefix + "***"
}
